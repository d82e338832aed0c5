package cachefs

import "errors"

// Sentinel errors returned by cachefs operations.
//
// Callers should use [errors.Is] to check error kinds; every error
// returned by this package wraps one of these (except for opaque I/O
// failures, which wrap the underlying *os.PathError/*os.SyscallError
// directly so callers can still match on the syscall errno).
var (
	// ErrBadConfig indicates the [Options] passed to [New] are invalid
	// (empty Prefix, an unusable Dir, or similar). Fatal at construction.
	ErrBadConfig = errors.New("cachefs: bad config")

	// ErrLockFailed indicates a flock(2)/fcntl(2) call failed for a
	// non-retryable reason (anything other than the file being missing
	// or the lock being contended).
	ErrLockFailed = errors.New("cachefs: lock failed")

	// ErrNameTooLong indicates the mangled basename for an identifier
	// exceeds the 254-byte filesystem limit this package enforces.
	ErrNameTooLong = errors.New("cachefs: name too long")

	// ErrBuildFailed indicates the caller-supplied [Producer] returned an
	// error. The partially-built entry file is unlinked before this
	// error is returned.
	ErrBuildFailed = errors.New("cachefs: build failed")

	// ErrUnexpected indicates the cache observed a state transition the
	// state machine in §4.7.3 says cannot happen (an entry vanishing
	// between create-exclusive reporting Exists and the following
	// read-lock attempt). Seeing this means another process bypassed
	// the locking discipline, e.g. by deleting entries without holding
	// the control file.
	ErrUnexpected = errors.New("cachefs: unexpected cache state")
)
