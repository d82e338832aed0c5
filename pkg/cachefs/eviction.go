package cachefs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// UpdateCacheInfo implements update_cache_info (spec §4.6): adds path's
// on-disk size to the recorded aggregate and writes the new total back.
func (c *Cache) UpdateCacheInfo(path string) (uint64, error) {
	if !c.Enabled() {
		return 0, nil
	}

	var newSize uint64

	err := c.withControlGuard(true, func() error {
		current, err := readControlSizeLocked(c.controlFile)
		if err != nil {
			return err
		}

		fi, err := c.fs.Stat(path)
		if err != nil {
			return fmt.Errorf("cachefs: stat %s for accounting: %w", path, err)
		}

		newSize = current + uint64(fi.Size())

		return writeControlSizeLocked(c.controlFile, newSize)
	})

	return newSize, err
}

// dirEntry is one row of the directory scan UpdateAndPurge performs.
type dirEntry struct {
	path string
	size uint64
	atim int64 // unix nanoseconds, for deterministic sort
}

// UpdateAndPurge implements update_and_purge (spec §4.6): a full
// directory scan, recomputing the authoritative aggregate size and
// evicting the oldest entries (by access time) until the recorded size is
// back at or below the target watermark, skipping newFile (the entry the
// caller just created, which it cannot itself detect as locked) and any
// entry this process loses the non-blocking race for.
func (c *Cache) UpdateAndPurge(newFile string) error {
	if !c.Enabled() {
		return nil
	}

	return c.withControlGuard(true, func() error {
		entries, computedSize, err := c.scanEntriesLocked()
		if err != nil {
			return err
		}

		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].atim < entries[j].atim
		})

		for _, e := range entries {
			if computedSize <= c.targetBytes {
				break
			}
			if e.path == newFile {
				continue
			}

			f, attempt, err := openExclusiveNonblocking(c.fs, e.path)
			if err != nil {
				return err
			}

			switch attempt {
			case attemptContended, attemptMissing:
				continue
			case attemptAcquired:
				if err := c.fs.Remove(e.path); err != nil {
					_ = unlockClose(f)

					return fmt.Errorf("cachefs: removing %s during eviction: %w", e.path, err)
				}
				if err := unlockClose(f); err != nil {
					c.logf("cachefs: eviction unlock %s: %s", e.path, err)
				}

				computedSize = subtractClamped(computedSize, e.size)
				c.evictions.Add(1)
			}
		}

		return writeControlSizeLocked(c.controlFile, computedSize)
	})
}

// scanEntriesLocked lists the cache directory and collects every entry
// file (anything starting with the configured prefix other than the
// control file itself), summing their sizes into the authoritative
// computed size. Callers must already hold an exclusive control-file
// guard.
func (c *Cache) scanEntriesLocked() ([]dirEntry, uint64, error) {
	dirents, err := c.fs.ReadDir(c.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("cachefs: reading cache dir %s: %w", c.dir, err)
	}

	controlName := c.prefix + controlFileSuffix

	var (
		entries []dirEntry
		total   uint64
	)

	for _, de := range dirents {
		name := de.Name()
		if !strings.HasPrefix(name, c.prefix) || name == controlName {
			continue
		}

		fi, err := de.Info()
		if err != nil {
			continue // vanished between ReadDir and Info; skip, not fatal
		}
		if fi.IsDir() {
			continue
		}

		path := filepath.Join(c.dir, name)
		size := uint64(fi.Size())
		entries = append(entries, dirEntry{
			path: path,
			size: size,
			atim: atimeOf(fi).UnixNano(),
		})
		total += size
	}

	return entries, total, nil
}
