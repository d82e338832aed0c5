// Package cachefs provides a multi-process, file-locking cache for derived
// artifacts (uncompressed files, computed responses, precomputed metadata)
// shared between cooperating processes on one host.
//
// cachefs is not a database and has no in-memory index: the cache
// directory itself is the authoritative catalogue of entries. Coordination
// across processes is done entirely with advisory kernel file locks
// (flock(2)), so any number of processes can share one cache directory
// without a broker, a lock server, or shared memory.
//
// # Basic usage
//
//	c, err := cachefs.New(cachefs.Options{
//	    Dir:      "/var/tmp/myapp-cache",
//	    Prefix:   "v1-",
//	    MaxBytes: 10 << 30, // 10 GiB, 0 = unlimited
//	})
//	if err != nil {
//	    // handle cachefs.ErrBadConfig
//	}
//
//	h, err := c.GetOrBuild("s3://bucket/key", produce, cachefs.ExpectedSize(1024))
//	if err != nil {
//	    // handle cachefs.ErrBuildFailed or an I/O error
//	}
//	defer c.UnlockAndClose(h.Path())
//	io.Copy(dst, h.File())
//
// # Concurrency model
//
// At most one process builds a given artifact at a time (enforced by
// O_CREAT|O_EXCL plus an exclusive flock); any number of processes may
// read a complete artifact concurrently (shared flock). Aggregate cache
// size is tracked in a small control file whose own lock linearises every
// structural change (builds, purges, eviction scans) without ever being
// held across a producer call.
//
// # What this package does not do
//
// No distribution across hosts, no cross-filesystem replication, no
// transactional guarantees spanning multiple artifacts, no content
// checksums beyond file-size validation, and no background eviction
// goroutine — eviction runs opportunistically inside GetOrBuild.
package cachefs
