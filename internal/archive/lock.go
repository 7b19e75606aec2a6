package archive

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory lock scoped to one open file description,
// mirroring original_source's shelver.archive.file_lock.FileLock built on
// flock/fcntl. It must be released on every exit path, success or
// failure.
type FileLock struct {
	f *os.File
}

// NewFileLock opens path (creating it if absent) for locking purposes
// only; it does not imply anything about the file's data content.
func NewFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// OpenFileLock wraps an already-open file handle for locking.
func OpenFileLock(f *os.File) *FileLock {
	return &FileLock{f: f}
}

// Acquire blocks until the requested lock (exclusive or shared) is held.
// A blocking flock(2) call is itself a suspension point (spec.md §5); in
// the synchronous Go implementation that suspension is simply the
// goroutine blocking in the syscall, which the runtime schedules around
// other goroutines exactly like any other blocking I/O.
func (l *FileLock) Acquire(exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	return unix.Flock(int(l.f.Fd()), how)
}

// Release drops the lock. Safe to call more than once.
func (l *FileLock) Release() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// Close releases the lock and closes the underlying file.
func (l *FileLock) Close() error {
	_ = l.Release()
	return l.f.Close()
}
