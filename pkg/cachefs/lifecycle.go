package cachefs

import (
	"fmt"
	"os"
)

// ReadLock implements get_read_lock (spec §4.5).
//
// It takes a shared guard on the control file for the duration of the
// attempt — this is what prevents a concurrent eviction scan (which takes
// the control file exclusively) from deleting path between the caller
// computing it and this call opening it.
func (c *Cache) ReadLock(path string) (ReadResult, error) {
	if !c.Enabled() {
		return ReadResult{Outcome: ReadMissing}, nil
	}

	var result ReadResult

	err := c.withControlGuard(false, func() error {
		f, present, err := openSharedBlocking(c.fs, path)
		if err != nil {
			return err
		}
		if !present {
			result = ReadResult{Outcome: ReadMissing}

			return nil
		}

		c.reg.record(path, f)
		result = ReadResult{Outcome: ReadAcquired, Handle: Handle{file: f, path: path}}

		return nil
	})

	return result, err
}

// CreateAndLock implements create_and_lock (spec §4.5): the atomic
// election of a single producer for path.
//
// On a disabled Cache ([Cache.Enabled] false), this is the same no-op mode
// [Cache.GetOrBuild] uses: it always reports CreateCreated against a fresh
// private scratch file rather than failing, so every caller of
// CreateAndLock sees one consistent meaning for "disabled" instead of
// GetOrBuild and direct callers disagreeing about it.
func (c *Cache) CreateAndLock(path string) (CreateResult, error) {
	if !c.Enabled() {
		h, err := c.newScratchHandle()
		if err != nil {
			return CreateResult{}, err
		}

		return CreateResult{Outcome: CreateCreated, Handle: h}, nil
	}

	var result CreateResult

	err := c.withControlGuard(true, func() error {
		f, existed, err := createExclusive(c.fs, path)
		if err != nil {
			return err
		}
		if existed {
			result = CreateResult{Outcome: CreateExists}

			return nil
		}

		c.reg.record(path, f)
		result = CreateResult{Outcome: CreateCreated, Handle: Handle{file: f, path: path}}

		return nil
	})

	return result, err
}

// newScratchHandle creates a private temp file, records it as ephemeral so
// [Cache.UnlockAndClose] deletes it, and returns a Handle wrapping it. This
// is the disabled-cache no-op substitute for a real on-disk entry, shared
// by [Cache.CreateAndLock] and [Cache.getOrBuildDisabled].
func (c *Cache) newScratchHandle() (Handle, error) {
	f, err := os.CreateTemp("", "cachefs-disabled-*")
	if err != nil {
		return Handle{}, fmt.Errorf("cachefs: disabled cache scratch file: %w", err)
	}

	path := f.Name()
	c.reg.record(path, f)
	c.reg.markEphemeral(path)

	return Handle{file: f, path: path}, nil
}

// ExclusiveToShared implements exclusive_to_shared (spec §4.5): downgrade
// h's exclusive lock to shared. Call this after the producer has finished
// writing and before releasing any control-file guard used for
// accounting — the file must never pass through an unlocked state
// between "building" and "ready".
func (c *Cache) ExclusiveToShared(h Handle) error {
	return downgradeLock(h.file)
}

// UnlockAndClose implements unlock_and_close (spec §4.5): drains every
// descriptor this process recorded for path and releases each one. A
// path with no recorded descriptors is a no-op.
//
// If path names a scratch file handed out by a disabled Cache's
// [Cache.CreateAndLock] or [Cache.GetOrBuild] (never part of any on-disk
// cache directory), the file is also removed once every descriptor on it
// is released.
func (c *Cache) UnlockAndClose(path string) {
	fds, ephemeral := c.reg.drain(path)
	for _, fd := range fds {
		if err := unlockClose(fd); err != nil {
			c.logf("cachefs: UnlockAndClose %s: %s", path, err)
		}
	}

	if ephemeral {
		if err := os.Remove(path); err != nil {
			c.logf("cachefs: UnlockAndClose: removing scratch file %s: %s", path, err)
		}
	}
}

// PurgeFile implements purge_file (spec §4.5): deletes the entry at path
// if it exists, accounting for its size under an exclusive control-file
// guard. A missing file is a no-op.
func (c *Cache) PurgeFile(path string) error {
	if !c.Enabled() {
		return nil
	}

	return c.withControlGuard(true, func() error {
		return c.purgeFileLocked(path)
	})
}

// purgeFileLocked performs the purge_file body. Callers must already hold
// an exclusive control-file guard.
func (c *Cache) purgeFileLocked(path string) error {
	f, present, err := openExclusiveBlocking(c.fs, path)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	fi, err := f.Stat()
	if err != nil {
		_ = unlockClose(f)

		return fmt.Errorf("cachefs: stat %s before purge: %w", path, err)
	}

	if err := c.fs.Remove(path); err != nil {
		_ = unlockClose(f)

		return fmt.Errorf("cachefs: removing %s: %w", path, err)
	}

	size, err := readControlSizeLocked(c.controlFile)
	if err != nil {
		_ = unlockClose(f)

		return err
	}

	if err := writeControlSizeLocked(c.controlFile, subtractClamped(size, uint64(fi.Size()))); err != nil {
		_ = unlockClose(f)

		return err
	}

	return unlockClose(f)
}

// subtractClamped computes a-b, clamped to 0. The recorded size can lag
// actual disk state across a crash (spec §3); a naive subtraction could
// underflow if that lag ever made the recorded size smaller than an
// entry's own size.
func subtractClamped(a, b uint64) uint64 {
	if b > a {
		return 0
	}

	return a - b
}
