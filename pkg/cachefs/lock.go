package cachefs

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cachefs/cachefs/internal/fsx"
)

// Lock primitives (C2, spec §4.2).
//
// All locks are whole-file advisory flock(2) locks. flock is per open
// file description, not per path: two descriptors opened independently by
// the same process contend with each other exactly the way two processes
// would, which is why cachefs's test suite can simulate "two
// processes" by simply opening the path twice from one test binary (see
// SPEC_FULL.md §8).
//
// Downgrade is implemented by re-flocking the *same* descriptor with
// LOCK_SH: flock(2) converts an already-held lock on a descriptor to the
// new mode atomically, without ever releasing it — which is what lets a
// producer hand a complete file to waiting readers without a window where
// nobody holds any lock on it at all.

// openSharedBlocking implements open_shared_blocking: blocks until a
// shared lock is held on path. present is false (with a nil file and nil
// error) if path does not exist.
func openSharedBlocking(fs fsx.FS, path string) (file fsx.File, present bool, err error) {
	f, err := fs.OpenFile(path, os.O_RDONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s for shared lock: %w", ErrLockFailed, path, err)
	}

	if err := flockRetry(f, unix.LOCK_SH); err != nil {
		_ = f.Close()

		return nil, false, fmt.Errorf("%w: shared lock %s: %w", ErrLockFailed, path, err)
	}

	return f, true, nil
}

// openExclusiveBlocking implements open_exclusive_blocking.
func openExclusiveBlocking(fs fsx.FS, path string) (file fsx.File, present bool, err error) {
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s for exclusive lock: %w", ErrLockFailed, path, err)
	}

	if err := flockRetry(f, unix.LOCK_EX); err != nil {
		_ = f.Close()

		return nil, false, fmt.Errorf("%w: exclusive lock %s: %w", ErrLockFailed, path, err)
	}

	return f, true, nil
}

// openExclusiveNonblocking implements open_exclusive_nonblocking.
func openExclusiveNonblocking(fs fsx.FS, path string) (fsx.File, lockAttempt, error) {
	f, err := fs.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, attemptMissing, nil
	}
	if err != nil {
		return nil, attemptMissing, fmt.Errorf("%w: open %s for nonblocking lock: %w", ErrLockFailed, path, err)
	}

	err = flockOnce(f, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return f, attemptAcquired, nil
	}

	_ = f.Close()

	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
		return nil, attemptContended, nil
	}

	return nil, attemptMissing, fmt.Errorf("%w: nonblocking lock %s: %w", ErrLockFailed, path, err)
}

// createExclusive implements create_exclusive: opens path with
// O_CREAT|O_EXCL|O_RDWR, mode 0666, and holds an exclusive lock on
// success. existed is true (with a nil file and nil error) if the file
// was already present.
func createExclusive(fs fsx.FS, path string) (file fsx.File, existed bool, err error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	if errors.Is(err, os.ErrExist) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: create %s: %w", ErrLockFailed, path, err)
	}

	if err := flockRetry(f, unix.LOCK_EX); err != nil {
		_ = f.Close()

		return nil, false, fmt.Errorf("%w: exclusive lock new file %s: %w", ErrLockFailed, path, err)
	}

	return f, false, nil
}

// downgrade atomically converts an exclusive lock on f to a shared lock,
// without ever releasing the lock.
func downgradeLock(f fsx.File) error {
	if err := flockRetry(f, unix.LOCK_SH); err != nil {
		return fmt.Errorf("%w: downgrade %s: %w", ErrLockFailed, f.Name(), err)
	}

	return nil
}

// unlockClose releases whatever lock f holds and closes it.
func unlockClose(f fsx.File) error {
	unlockErr := flockRetry(f, unix.LOCK_UN)
	closeErr := f.Close()

	if unlockErr != nil {
		return fmt.Errorf("%w: unlock %s: %w", ErrLockFailed, f.Name(), unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", f.Name(), closeErr)
	}

	return nil
}

// flockRetry issues a blocking flock operation, retrying on EINTR.
func flockRetry(f fsx.File, how int) error {
	const maxEINTRRetries = 10000

	fd := int(f.Fd())

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}

// flockOnce issues a single (typically non-blocking) flock operation,
// retrying only on EINTR since LOCK_NB never blocks to be interrupted.
func flockOnce(f fsx.File, how int) error {
	return flockRetry(f, how)
}
