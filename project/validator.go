package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MarkerFile marks a directory as a godspeed project
	MarkerFile = ".godspeed"

	// ManifestFile is the npm manifest every project carries
	ManifestFile = "package.json"
)

var (
	ErrMissingMarker   = errors.New("missing " + MarkerFile + " marker")
	ErrInvalidManifest = errors.New("invalid " + ManifestFile)
)

// Validator decides whether a directory is a godspeed project
type Validator struct{}

// IsProject reports whether dir holds a readable marker file and a manifest that parses as JSON
func (Validator) IsProject(dir string) bool {
	return Check(dir) == nil
}

// Check returns why dir is not a project, or nil when it is one
func Check(dir string) error {
	if _, err := os.ReadFile(filepath.Join(dir, MarkerFile)); err != nil {
		return fmt.Errorf("%s: %w", dir, ErrMissingMarker)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return fmt.Errorf("%s: %w: %v", dir, ErrInvalidManifest, err)
	}

	var manifest any
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("%s: %w: %v", dir, ErrInvalidManifest, err)
	}
	return nil
}
