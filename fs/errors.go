package fs

import "errors"

var (
	// ErrNotADirectory is returned when a snapshot root is not a directory
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotRegularFile is returned when an edit targets something other than an existing file
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrWatcherClosed is returned when adding paths to a stopped watcher
	ErrWatcherClosed = errors.New("watcher closed")
)
