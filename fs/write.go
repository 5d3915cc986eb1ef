package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteExisting replaces the content of an existing regular file.
//
// Missing files and directories are never created: an edit for a path that does
// not exist fails. The new content is written to a temp file in the same
// directory and renamed over the target, so concurrent readers observe either
// the old or the new content. Writers to the same path take turns; the last
// one wins. Symlinks are followed: the link's target gets the new content and
// the link itself stays in place.
func WriteExisting(path string, content []byte) error {
	path, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}

	unlock := writeLocks.acquire(path)
	defer unlock()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	// Create temp file in same directory (ensures same filesystem for atomic rename)
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".bridge-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure temp file is cleaned up on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return err
	}
	if err := tmpFile.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	tmpFile = nil
	return nil
}
