package fs

import "sync"

// pathLocks hands out one mutex per file path, so writes to the same file
// run one at a time while writes to different files proceed in parallel
type pathLocks struct {
	locks sync.Map // map[string]*sync.Mutex
}

// writeLocks serializes WriteExisting calls per target path
var writeLocks pathLocks

// acquire locks the mutex for path and returns its unlock func
func (pl *pathLocks) acquire(path string) func() {
	muInterface, _ := pl.locks.LoadOrStore(path, &sync.Mutex{})
	mu := muInterface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
