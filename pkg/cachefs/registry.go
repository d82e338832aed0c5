package cachefs

import (
	"sync"

	"github.com/cachefs/cachefs/internal/fsx"
)

// registry is the per-process descriptor registry (C4, spec §4.4): a
// multimap from absolute cache-file path to every open descriptor this
// process currently holds a lock through on that path.
//
// Because flock is per-open-file-description, the same process can
// legitimately hold more than one descriptor on the same path (e.g. a
// reader that calls ReadLock twice before releasing either). record
// appends rather than replaces so that drain can close every one of them;
// unlockAndClose would otherwise leak a lock reference the next time the
// process reopens the path.
type registry struct {
	mu        sync.Mutex
	entries   map[string][]fsx.File
	ephemeral map[string]bool // disabled-cache scratch file paths; UnlockAndClose deletes them
}

func newRegistry() *registry {
	return &registry{
		entries:   make(map[string][]fsx.File),
		ephemeral: make(map[string]bool),
	}
}

// record adds fd to the multi-set of descriptors held for path.
func (r *registry) record(path string, fd fsx.File) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[path] = append(r.entries[path], fd)
}

// markEphemeral flags path as a scratch file that UnlockAndClose unlinks
// from disk once every descriptor on it has been released.
func (r *registry) markEphemeral(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ephemeral[path] = true
}

// drain removes and returns every descriptor recorded for path, plus
// whether path was marked ephemeral. It is a no-op (returns nil, false)
// if no entry exists for path.
func (r *registry) drain(path string) ([]fsx.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fds := r.entries[path]
	delete(r.entries, path)

	ephemeral := r.ephemeral[path]
	delete(r.ephemeral, path)

	return fds, ephemeral
}

// count reports how many descriptors are currently recorded for path.
// Exists for tests verifying property P2; not part of the public API.
func (r *registry) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries[path])
}
