package cachefs

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cachefs/cachefs/internal/fsx"
)

// controlFileSize is the fixed width of the control file's recorded
// aggregate byte size (spec §3, "Control file").
const controlFileSize = 8

// controlFileSuffix names the fixed control file inside the cache
// directory: "<prefix>cache_control".
const controlFileSuffix = "cache_control"

// openControlFile implements the first-construction algorithm of spec
// §4.3: create the control file if absent (seeding it with an 8-byte
// zero), or open the existing one. The returned descriptor is kept open
// for the lifetime of the Cache.
func openControlFile(fs fsx.FS, path string) (fsx.File, error) {
	f, existed, err := createExclusive(fs, path)
	if err != nil {
		return nil, fmt.Errorf("creating control file %s: %w", path, err)
	}

	if !existed {
		if err := writeControlSizeLocked(f, 0); err != nil {
			_ = unlockClose(f)

			return nil, fmt.Errorf("seeding control file %s: %w", path, err)
		}

		if err := flockRetry(f, unix.LOCK_UN); err != nil {
			_ = f.Close()

			return nil, fmt.Errorf("%w: releasing seed lock on %s: %w", ErrLockFailed, path, err)
		}

		return f, nil
	}

	f, err = fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening existing control file %s: %w", path, err)
	}

	return f, nil
}

// withControlGuard is the scoped guard construct of spec §4.2: it takes
// an exclusive or shared lock on the control file for the duration of fn
// and always releases it afterwards, on every exit path.
//
// Because the control-file descriptor is a single long-lived handle
// shared by every goroutine in this process, controlMu additionally
// serialises this process's own goroutines: flock would not block a
// second lock request from the same descriptor, so without controlMu two
// goroutines could believe they both hold the guard at once.
func (c *Cache) withControlGuard(exclusive bool, fn func() error) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}

	if err := flockRetry(c.controlFile, how); err != nil {
		return fmt.Errorf("%w: locking control file: %w", ErrLockFailed, err)
	}
	defer func() {
		if err := flockRetry(c.controlFile, unix.LOCK_UN); err != nil {
			c.logf("cachefs: releasing control file lock: %s", err)
		}
	}()

	return fn()
}

// readControlSizeLocked reads the recorded aggregate size. Callers must
// already hold at least a shared control-file guard.
func readControlSizeLocked(f fsx.File) (uint64, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("seeking control file: %w", err)
	}

	var buf [controlFileSize]byte

	n, err := f.Read(buf[:])
	if err != nil {
		return 0, fmt.Errorf("reading control file: %w", err)
	}
	if n != controlFileSize {
		return 0, fmt.Errorf("short read of control file: got %d bytes, want %d", n, controlFileSize)
	}

	return binary.NativeEndian.Uint64(buf[:]), nil
}

// writeControlSizeLocked writes the recorded aggregate size. Callers must
// already hold an exclusive control-file guard.
func writeControlSizeLocked(f fsx.File, size uint64) error {
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seeking control file: %w", err)
	}

	var buf [controlFileSize]byte
	binary.NativeEndian.PutUint64(buf[:], size)

	n, err := f.Write(buf[:])
	if err != nil {
		return fmt.Errorf("writing control file: %w", err)
	}
	if n != controlFileSize {
		return fmt.Errorf("short write of control file: wrote %d bytes, want %d", n, controlFileSize)
	}

	return nil
}

// GetCacheSize returns the recorded aggregate cache size (spec §4.6).
func (c *Cache) GetCacheSize() (uint64, error) {
	if !c.Enabled() {
		return 0, nil
	}

	var size uint64

	err := c.withControlGuard(false, func() error {
		var err error
		size, err = readControlSizeLocked(c.controlFile)

		return err
	})

	return size, err
}
