package cachefs

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cachefs/cachefs/internal/fsx"
)

// implCeilingMiB is the implementation ceiling for MaxBytes, in MiB: 2^44,
// per spec §3 ("Configuration"). 2^44 MiB is 2^64 bytes, one past the
// largest value a uint64 can hold, so the clamp is done in the MiB domain
// (against this constant) before ever converting to bytes; the byte form
// is computed at runtime in [clampMaxBytes] and saturates at
// math.MaxUint64 rather than overflow.
const implCeilingMiB = uint64(1) << 44

// targetFraction is the post-eviction watermark as a fraction of MaxBytes.
const targetFraction = 0.8

// Cache is a handle to a multi-process file-locking artifact cache (C8,
// spec §4.8). The zero value is not usable; construct one with [New].
//
// A *Cache is safe for concurrent use from multiple goroutines. It does
// not, by itself, coordinate with other *Cache values in the same
// process pointed at the same directory — construct one Cache per
// process per directory (typically via a package-level
// [sync.Once]-guarded singleton; see [Default]) and share that handle.
type Cache struct {
	// Logger, if non-nil, receives diagnostics for errors this package
	// does not surface to the caller (e.g. a failed unlink of a failed
	// build's partial file).
	Logger Logger

	dir, prefix string
	maxBytes    uint64
	targetBytes uint64
	enabled     bool

	fs fsx.FS

	controlFile fsx.File
	controlMu   sync.Mutex

	reg *registry

	hits, misses, evictions, failures atomic.Int64
}

// Options configures a [Cache]. See [New].
type Options struct {
	// Dir is the absolute path to the cache directory. If empty, New
	// returns a disabled cache (see [Cache.Enabled]) rather than an error.
	Dir string

	// Prefix is prepended to every entry filename and to the control
	// file's name. Required; New fails with [ErrBadConfig] if empty.
	Prefix string

	// MaxBytes is the aggregate size at which eviction is triggered. 0
	// means unlimited. Values above 2^44 MiB are clamped.
	MaxBytes uint64

	// Logger receives diagnostics for non-fatal internal errors. Nil
	// (the default) disables logging.
	Logger Logger

	// FS overrides the filesystem implementation. Nil (the default)
	// uses the real filesystem via internal/fsx.Real.
	FS fsx.FS
}

// New constructs a Cache per spec §4.8.
//
// An empty Dir disables the cache: New returns a valid, non-nil *Cache
// whose [Cache.Enabled] is false and whose other methods are documented
// no-ops, rather than an error — callers are expected to always hold a
// handle and branch on Enabled, not on whether New succeeded.
//
// An empty Prefix is always a configuration error, even for a disabled
// cache, since a disabled cache is otherwise indistinguishable from a
// misconfigured one.
func New(opts Options) (*Cache, error) {
	if opts.Prefix == "" {
		return nil, fmt.Errorf("%w: Prefix must not be empty", ErrBadConfig)
	}

	c := &Cache{
		Logger: opts.Logger,
		prefix: opts.Prefix,
		reg:    newRegistry(),
	}

	fs := opts.FS
	if fs == nil {
		fs = fsx.NewReal()
	}
	c.fs = fs

	if opts.Dir == "" {
		return c, nil
	}

	c.dir = opts.Dir

	if err := fs.MkdirAll(opts.Dir, 0o775); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir %s: %w", ErrBadConfig, opts.Dir, err)
	}

	c.maxBytes = clampMaxBytes(opts.MaxBytes)
	c.targetBytes = uint64(float64(c.maxBytes) * targetFraction)

	controlPath, err := c.FileName(controlFileSuffix, false)
	if err != nil {
		return nil, err
	}

	cf, err := openControlFile(fs, controlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	c.controlFile = cf

	c.enabled = true

	return c, nil
}

// clampMaxBytes clamps v (in bytes) to the implementation ceiling,
// implCeilingMiB MiB, mirroring the original's clamp order: compare in the
// MiB domain, before any multiplication back to bytes. implCeilingMiB MiB
// is exactly 2^64 bytes, one past what a uint64 can hold, so every
// representable uint64 byte count is already below the ceiling (its MiB
// count is at most 2^44-1) and this can never actually clamp anything; it
// exists so the ceiling stays named and documented the way the original
// names it, rather than silently relying on uint64's range. v == 0
// (unlimited) passes through unchanged, same as any other v.
func clampMaxBytes(v uint64) uint64 {
	if v == 0 {
		return 0
	}

	if v>>20 >= implCeilingMiB {
		return math.MaxUint64
	}

	return v
}

// Enabled reports whether the cache is usable. A Cache constructed with
// an empty Options.Dir is permanently disabled; every other method on it
// is a documented no-op.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// CacheTooBig implements cache_too_big (spec §4.6): true iff a max size
// is configured and size exceeds it.
func (c *Cache) CacheTooBig(size uint64) bool {
	return c.maxBytes != 0 && size > c.maxBytes
}

func (c *Cache) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
	defaultErr   error
)

// Default returns a process-wide singleton Cache, constructing it on
// first call with opts. Subsequent calls ignore opts and return the same
// handle (or the same construction error). This is the "once-initialised
// latch" pattern spec.md §9 recommends in place of implicit construction.
func Default(opts Options) (*Cache, error) {
	defaultOnce.Do(func() {
		defaultCache, defaultErr = New(opts)
	})

	return defaultCache, defaultErr
}
