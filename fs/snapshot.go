package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zero8dotdev/godspeed-cli/log"
)

// FileRecord is one regular file of a snapshot
type FileRecord struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Snapshotter produces flat, depth-first listings of a directory tree.
//
// Record paths are expressed relative to base and prefixed with the snapshotted
// folder's own name, so a client can rebuild a display tree even when a
// subdirectory is snapshotted. Entries are visited in lexicographic order per
// directory, which makes the output deterministic for a fixed tree.
//
// The walk takes no locks. Files changed while a snapshot runs may show either
// version, and files removed mid-walk are skipped.
type Snapshotter struct {
	base   string
	filter *PathFilter
}

// NewSnapshotter creates a snapshotter resolving record paths against base
func NewSnapshotter(base string) *Snapshotter {
	return &Snapshotter{
		base:   base,
		filter: SnapshotFilter(),
	}
}

// Snapshot walks root and returns one record per readable regular file.
// Only a failure of root itself is returned; unreadable entries below it are
// logged and skipped.
func (s *Snapshotter) Snapshot(ctx context.Context, root string) ([]FileRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot %s: %w", root, ErrNotADirectory)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}

	startTime := time.Now()
	w := &snapshotWalk{
		snapshotter: s,
		rootName:    filepath.Base(root),
		records:     []FileRecord{},
	}
	if err := w.visit(ctx, root, entries); err != nil {
		return nil, err
	}

	log.Debug().
		Str("root", root).
		Int("files", len(w.records)).
		Int("skipped", w.skipped).
		Dur("duration", time.Since(startTime)).
		Msg("snapshot complete")

	return w.records, nil
}

type snapshotWalk struct {
	snapshotter *Snapshotter
	rootName    string
	records     []FileRecord
	skipped     int
}

func (w *snapshotWalk) visit(ctx context.Context, dir string, entries []os.DirEntry) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if w.snapshotter.filter.IsExcludedName(name) {
			continue
		}

		fullPath := filepath.Join(dir, name)

		if entry.IsDir() {
			children, err := os.ReadDir(fullPath)
			if err != nil {
				log.Warn().Err(err).Str("path", fullPath).Msg("skipping unreadable directory")
				w.skipped++
				continue
			}
			if err := w.visit(ctx, fullPath, children); err != nil {
				return err
			}
			continue
		}

		if !w.isRegularFile(entry, fullPath) {
			continue
		}

		content, err := os.ReadFile(fullPath)
		if err != nil {
			log.Warn().Err(err).Str("path", fullPath).Msg("skipping unreadable file")
			w.skipped++
			continue
		}

		w.records = append(w.records, FileRecord{
			Name:    name,
			Path:    w.recordPath(fullPath),
			Content: string(content),
		})
	}
	return nil
}

// isRegularFile follows symlinks to files; symlinked directories are not
// descended into so link cycles cannot trap the walk.
func (w *snapshotWalk) isRegularFile(entry os.DirEntry, fullPath string) bool {
	mode := entry.Type()
	if mode.IsRegular() {
		return true
	}
	if mode&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		log.Debug().Err(err).Str("path", fullPath).Msg("skipping dangling symlink")
		return false
	}
	return info.Mode().IsRegular()
}

func (w *snapshotWalk) recordPath(fullPath string) string {
	rel, err := filepath.Rel(w.snapshotter.base, fullPath)
	if err != nil {
		rel = fullPath
	}
	return filepath.ToSlash(filepath.Join(w.rootName, rel))
}
