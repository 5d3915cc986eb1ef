package project

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/zero8dotdev/godspeed-cli/log"
)

//go:embed all:skeleton
var skeleton embed.FS

// NamePlaceholder is replaced by the project name in every scaffolded file
const NamePlaceholder = "__PROJECT_NAME__"

var (
	ErrInvalidName   = errors.New("invalid project name")
	ErrProjectExists = errors.New("project directory already exists")
)

// Scaffolder creates new projects from a template. The template can be a
// directory or any archive format mholt/archives understands (zip, tar.gz, ...).
// Without a template the built-in skeleton is used.
type Scaffolder struct {
	Template string
}

// NewScaffolder creates a scaffolder; an empty template selects the built-in skeleton
func NewScaffolder(template string) *Scaffolder {
	return &Scaffolder{Template: template}
}

// Create scaffolds baseDir/name. It never writes into an existing directory.
func (s *Scaffolder) Create(ctx context.Context, baseDir, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	target := filepath.Join(baseDir, name)
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%s: %w", target, ErrProjectExists)
	} else if !os.IsNotExist(err) {
		return err
	}

	src, err := s.source(ctx)
	if err != nil {
		return err
	}

	if err := os.Mkdir(target, 0755); err != nil {
		return err
	}

	if err := copyTree(ctx, src, target, name); err != nil {
		// Leave nothing half-created behind
		os.RemoveAll(target)
		return err
	}

	log.Info().
		Str("name", name).
		Str("dir", target).
		Str("template", s.templateName()).
		Msg("project created")
	return nil
}

func (s *Scaffolder) templateName() string {
	if s.Template == "" {
		return "builtin"
	}
	return s.Template
}

// source opens the template as a read-only filesystem rooted at the project
func (s *Scaffolder) source(ctx context.Context) (iofs.FS, error) {
	if s.Template == "" {
		return iofs.Sub(skeleton, "skeleton")
	}

	fsys, err := archives.FileSystem(ctx, s.Template, nil)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", s.Template, err)
	}
	return unwrapSingleDir(fsys)
}

// unwrapSingleDir descends into the top-level folder most archives carry
// (my-template/package.json instead of package.json).
func unwrapSingleDir(fsys iofs.FS) (iofs.FS, error) {
	entries, err := iofs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return iofs.Sub(fsys, entries[0].Name())
	}
	return fsys, nil
}

func copyTree(ctx context.Context, src iofs.FS, target, name string) error {
	return iofs.WalkDir(src, ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}

		// Dependencies are installed, never copied
		if d.IsDir() && d.Name() == "node_modules" {
			return iofs.SkipDir
		}

		dest := filepath.Join(target, filepath.FromSlash(p))
		if d.IsDir() {
			return os.MkdirAll(dest, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := iofs.ReadFile(src, p)
		if err != nil {
			return err
		}
		data = bytes.ReplaceAll(data, []byte(NamePlaceholder), []byte(name))

		mode := os.FileMode(0644)
		if info, err := d.Info(); err == nil && info.Mode().Perm()&0111 != 0 {
			mode = 0755
		}
		return os.WriteFile(dest, data, mode)
	})
}

// ValidateName rejects names that are empty or would leave the base directory
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || path.IsAbs(name) || filepath.IsAbs(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}
