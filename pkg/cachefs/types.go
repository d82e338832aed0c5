package cachefs

import "github.com/cachefs/cachefs/internal/fsx"

// Handle is a held lock on an entry file, returned by [Cache.ReadLock] and
// [Cache.CreateAndLock]. It is registered in the cache's per-process
// descriptor registry until released with [Cache.UnlockAndClose].
type Handle struct {
	file fsx.File
	path string
}

// File returns the underlying open file. Readers may Read/Seek it;
// producers write the artifact's bytes to it.
func (h Handle) File() fsx.File { return h.file }

// Path returns the absolute cache-file path this handle locks.
func (h Handle) Path() string { return h.path }

// Valid reports whether h refers to an open file. The zero Handle is not
// valid; [Cache.ReadLock] and [Cache.CreateAndLock] return a zero Handle
// alongside a Missing/Exists outcome.
func (h Handle) Valid() bool { return h.file != nil }

// ReadOutcome discriminates the two non-error results of [Cache.ReadLock].
// It is never an error value — see the package error-handling notes.
type ReadOutcome int

const (
	// ReadAcquired means the entry exists and is now shared-locked by
	// this process via the returned Handle.
	ReadAcquired ReadOutcome = iota
	// ReadMissing means no entry file exists for this path.
	ReadMissing
)

// ReadResult is the result of [Cache.ReadLock].
type ReadResult struct {
	Outcome ReadOutcome
	Handle  Handle
}

// CreateOutcome discriminates the two non-error results of
// [Cache.CreateAndLock]. It is never an error value.
type CreateOutcome int

const (
	// CreateCreated means this process won the race to build the entry
	// and holds an exclusive lock on the new, empty file.
	CreateCreated CreateOutcome = iota
	// CreateExists means another process already holds (or completed)
	// the build; this process lost the O_CREAT|O_EXCL race.
	CreateExists
)

// CreateResult is the result of [Cache.CreateAndLock].
type CreateResult struct {
	Outcome CreateOutcome
	Handle  Handle
}

// Producer materialises an artifact's bytes into f. It must write exactly
// the artifact's contents and no more. A non-nil return value is treated
// as a build failure: the orchestration unlinks the partial file and
// returns [ErrBuildFailed] wrapping err.
type Producer func(src string, f fsx.File) error

// Validator answers "is the cache entry at cachePath still usable?" for
// the source identifier a particular call is resolving. Implementations
// must be pure and side-effect-free; [Cache.GetOrBuild] calls it at most
// once per invocation, before attempting a read lock.
//
// Use [ExistenceAndLMT] or [ExpectedSize] for the two canonical
// predicates, or supply a custom func value.
type Validator func(fs fsx.FS, cachePath string) bool

// lockAttempt discriminates the outcome of a non-blocking exclusive lock
// attempt used internally by eviction. Never an error value.
type lockAttempt int

const (
	attemptAcquired lockAttempt = iota
	attemptContended
	attemptMissing
)
