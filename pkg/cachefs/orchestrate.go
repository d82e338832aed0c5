package cachefs

import (
	"fmt"
	"time"

	"github.com/cachefs/cachefs/internal/fsx"
)

// GetOrBuild runs the get-or-build flow of spec §4.7: return a locked,
// complete handle for src, building it with produce if no usable entry
// exists yet.
//
// src is mangled into a cache path with [Cache.FileName]. If valid is
// non-nil, it is consulted once, before the fast path; a false result
// purges any existing entry so the build path runs unconditionally. valid
// may be nil to always trust an existing entry (skip revalidation
// entirely).
//
// On success the caller owns the returned [Handle] and must eventually
// call [Cache.UnlockAndClose] on its path.
//
// If the cache is disabled ([Cache.Enabled] is false), GetOrBuild still
// calls produce — into a private scratch file that is never visible to
// any other process or recorded in any cache directory — so callers can
// treat a disabled cache exactly like an always-miss cache rather than a
// special case.
func (c *Cache) GetOrBuild(src string, produce Producer, valid Validator) (Handle, error) {
	if !c.Enabled() {
		return c.getOrBuildDisabled(src, produce)
	}

	path, err := c.FileName(src, true)
	if err != nil {
		return Handle{}, err
	}

	if valid != nil && !valid(c.fs, path) {
		if err := c.PurgeFile(path); err != nil {
			return Handle{}, err
		}
	}

	r, err := c.ReadLock(path)
	if err != nil {
		return Handle{}, err
	}
	if r.Outcome == ReadAcquired {
		c.hits.Add(1)

		return r.Handle, nil
	}

	c.misses.Add(1)

	cr, err := c.CreateAndLock(path)
	if err != nil {
		return Handle{}, err
	}

	switch cr.Outcome {
	case CreateCreated:
		return c.build(src, path, cr.Handle, produce)
	case CreateExists:
		return c.joinBuild(path)
	default:
		return Handle{}, fmt.Errorf("cachefs: unreachable CreateAndLock outcome %d", cr.Outcome)
	}
}

// build runs the producer for a freshly-created entry and transitions it
// from Building to Ready (spec §4.7.3).
func (c *Cache) build(src, path string, h Handle, produce Producer) (Handle, error) {
	if err := produce(src, h.file); err != nil {
		c.failures.Add(1)

		if rmErr := c.fs.Remove(path); rmErr != nil {
			c.logf("cachefs: removing failed build %s: %s", path, rmErr)
		}

		c.UnlockAndClose(path)

		return Handle{}, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	// MUST precede release: the file goes straight from exclusive to
	// shared without ever being briefly unlocked, so a racing eviction
	// scan can never observe it lock-free and delete it out from under
	// the readers this downgrade is about to unblock. It also precedes
	// the accounting below: a reader blocked on this entry holds the
	// control-file guard, which UpdateCacheInfo needs.
	if err := c.ExclusiveToShared(h); err != nil {
		c.UnlockAndClose(path)

		return Handle{}, err
	}

	size, err := c.UpdateCacheInfo(path)
	if err != nil {
		c.UnlockAndClose(path)

		return Handle{}, err
	}

	if c.CacheTooBig(size) {
		if err := c.UpdateAndPurge(path); err != nil {
			c.UnlockAndClose(path)

			return Handle{}, err
		}
	}

	if _, err := h.file.Seek(0, 0); err != nil {
		c.UnlockAndClose(path)

		return Handle{}, fmt.Errorf("cachefs: rewinding %s: %w", path, err)
	}

	return h, nil
}

// joinBuild handles the CreateExists branch: this process lost the
// create race, so it waits for the winner's shared-lock handoff instead.
func (c *Cache) joinBuild(path string) (Handle, error) {
	r2, err := c.ReadLock(path)
	if err != nil {
		return Handle{}, err
	}
	if r2.Outcome == ReadMissing {
		// The winner's entry vanished between CreateAndLock reporting
		// Exists and this read-lock attempt: someone purged or evicted
		// it outside of the locking discipline this package relies on.
		return Handle{}, ErrUnexpected
	}

	c.hits.Add(1)

	return r2.Handle, nil
}

// getOrBuildDisabled implements the disabled-cache no-op mode: produce
// still runs, but against the same kind of private scratch file
// [Cache.CreateAndLock] hands out when disabled, never recorded in any
// directory and deleted as soon as the caller releases it.
func (c *Cache) getOrBuildDisabled(src string, produce Producer) (Handle, error) {
	h, err := c.newScratchHandle()
	if err != nil {
		return Handle{}, err
	}

	if err := produce(src, h.file); err != nil {
		c.UnlockAndClose(h.path)

		return Handle{}, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	if _, err := h.file.Seek(0, 0); err != nil {
		c.UnlockAndClose(h.path)

		return Handle{}, fmt.Errorf("cachefs: rewinding scratch file: %w", err)
	}

	return h, nil
}

// ExistenceAndLMT is the "existence-and-LMT" canonical validity predicate
// of spec §4.7.1: the entry exists, is non-empty, and is no older than
// sourceModTime.
func ExistenceAndLMT(sourceModTime time.Time) Validator {
	return func(fs fsx.FS, cachePath string) bool {
		fi, err := fs.Stat(cachePath)
		if err != nil {
			return false
		}

		return fi.Size() != 0 && !fi.ModTime().Before(sourceModTime)
	}
}

// ExpectedSize is the "expected-size" canonical validity predicate of
// spec §4.7.1: the entry exists and its size equals expected.
func ExpectedSize(expected int64) Validator {
	return func(fs fsx.FS, cachePath string) bool {
		fi, err := fs.Stat(cachePath)
		if err != nil {
			return false
		}

		return fi.Size() == expected
	}
}
