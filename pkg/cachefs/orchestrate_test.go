package cachefs

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cachefs/cachefs/internal/fsx"
)

func countingProducer(calls *int, payload string) Producer {
	return func(_ string, f fsx.File) error {
		*calls++
		_, err := f.Write([]byte(payload))

		return err
	}
}

// Test_GetOrBuild_Cold_Miss_Then_Hit is scenario 1: the first call for a
// source builds the entry; the second call reuses it without invoking
// produce again.
func Test_GetOrBuild_Cold_Miss_Then_Hit(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int

	h1, err := c.GetOrBuild("src-a", countingProducer(&calls, "built"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild (1): %v", err)
	}
	path := h1.Path()
	c.UnlockAndClose(path)

	h2, err := c.GetOrBuild("src-a", countingProducer(&calls, "built-again"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild (2): %v", err)
	}
	c.UnlockAndClose(h2.Path())

	if calls != 1 {
		t.Fatalf("producer called %d times, want 1 (second call should be a cache hit)", calls)
	}
	if c.hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", c.hits.Load())
	}
	if c.misses.Load() != 1 {
		t.Fatalf("misses = %d, want 1", c.misses.Load())
	}
}

// Test_GetOrBuild_Concurrent_Builders_Run_Producer_Once is scenario 2 and
// property P1 (at most one producer per artifact): N goroutines call
// GetOrBuild for the same source concurrently; exactly one of them must
// win the create race and run produce.
func Test_GetOrBuild_Concurrent_Builders_Run_Producer_Once(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		callCount int
		handles   = make([]Handle, n)
		errs      = make([]error, n)
	)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			produce := func(_ string, f fsx.File) error {
				mu.Lock()
				callCount++
				mu.Unlock()

				// Give other goroutines a chance to reach CreateAndLock
				// and observe CreateExists while this one still holds
				// the exclusive lock.
				time.Sleep(20 * time.Millisecond)

				_, err := f.Write([]byte("payload"))

				return err
			}

			h, err := c.GetOrBuild("shared-src", produce, nil)
			handles[i] = h
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("GetOrBuild goroutine %d: %v", i, err)
		}
	}

	if callCount != 1 {
		t.Fatalf("producer invoked %d times across %d concurrent GetOrBuild calls, want exactly 1", callCount, n)
	}

	for _, h := range handles {
		c.UnlockAndClose(h.Path())
	}
}

// Test_GetOrBuild_Crash_Mid_Build_Purges_And_Rebuilds is scenario 5: a
// producer that fails leaves no entry behind, and a subsequent call
// rebuilds cleanly.
func Test_GetOrBuild_Crash_Mid_Build_Purges_And_Rebuilds(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boom := errors.New("simulated producer crash")
	failing := func(_ string, f fsx.File) error {
		if _, err := f.Write([]byte("partial")); err != nil {
			return err
		}

		return boom
	}

	_, err = c.GetOrBuild("flaky-src", failing, nil)
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("GetOrBuild with failing producer: err=%v, want wrapping ErrBuildFailed", err)
	}
	if c.failures.Load() != 1 {
		t.Fatalf("failures = %d, want 1", c.failures.Load())
	}

	var calls int

	h, err := c.GetOrBuild("flaky-src", countingProducer(&calls, "recovered"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild after crash: %v", err)
	}
	defer c.UnlockAndClose(h.Path())

	if calls != 1 {
		t.Fatalf("producer called %d times on rebuild, want 1", calls)
	}

	data, err := io.ReadAll(h.File())
	if err != nil {
		t.Fatalf("reading rebuilt entry: %v", err)
	}
	if string(data) != "recovered" {
		t.Fatalf("rebuilt entry contents = %q, want %q", data, "recovered")
	}
}

// Test_GetOrBuild_Invalid_Entry_Is_Purged_And_Rebuilt covers the validator
// hook: a Validator reporting false forces a rebuild even though an entry
// already exists.
func Test_GetOrBuild_Invalid_Entry_Is_Purged_And_Rebuilt(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int

	h1, err := c.GetOrBuild("src", countingProducer(&calls, "v1"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild (1): %v", err)
	}
	c.UnlockAndClose(h1.Path())

	alwaysInvalid := func(_ fsx.FS, _ string) bool { return false }

	h2, err := c.GetOrBuild("src", countingProducer(&calls, "v2"), alwaysInvalid)
	if err != nil {
		t.Fatalf("GetOrBuild (2): %v", err)
	}
	defer c.UnlockAndClose(h2.Path())

	if calls != 2 {
		t.Fatalf("producer called %d times, want 2 (invalid entry must be rebuilt)", calls)
	}

	data, err := io.ReadAll(h2.File())
	if err != nil {
		t.Fatalf("reading rebuilt entry: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("rebuilt entry contents = %q, want %q", data, "v2")
	}
}

// Test_GetOrBuild_Disabled_Cache_Still_Invokes_Producer covers the
// disabled no-op mode: GetOrBuild still runs produce, but against a
// private scratch file cleaned up on UnlockAndClose.
func Test_GetOrBuild_Disabled_Cache_Still_Invokes_Producer(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Fatal("Enabled() = true, want false")
	}

	var calls int

	h, err := c.GetOrBuild("src", countingProducer(&calls, "scratch"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if calls != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}

	scratchPath := h.Path()
	c.UnlockAndClose(scratchPath)

	if _, err := c.fs.Stat(scratchPath); err == nil {
		t.Fatal("scratch file still present after UnlockAndClose on a disabled cache")
	}
}

func Test_ExistenceAndLMT_Rejects_Entry_Older_Than_Source(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int

	h1, err := c.GetOrBuild("src", countingProducer(&calls, "v1"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild (1): %v", err)
	}
	c.UnlockAndClose(h1.Path())

	future := time.Now().Add(time.Hour)

	h2, err := c.GetOrBuild("src", countingProducer(&calls, "v2"), ExistenceAndLMT(future))
	if err != nil {
		t.Fatalf("GetOrBuild (2): %v", err)
	}
	defer c.UnlockAndClose(h2.Path())

	if calls != 2 {
		t.Fatalf("producer called %d times, want 2 (entry older than source must be rebuilt)", calls)
	}
}

func Test_ExpectedSize_Rejects_Entry_Of_Wrong_Size(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var calls int

	h1, err := c.GetOrBuild("src", countingProducer(&calls, "1234567890"), nil)
	if err != nil {
		t.Fatalf("GetOrBuild (1): %v", err)
	}
	c.UnlockAndClose(h1.Path())

	h2, err := c.GetOrBuild("src", countingProducer(&calls, "short"), ExpectedSize(999))
	if err != nil {
		t.Fatalf("GetOrBuild (2): %v", err)
	}
	defer c.UnlockAndClose(h2.Path())

	if calls != 2 {
		t.Fatalf("producer called %d times, want 2 (wrong-size entry must be rebuilt)", calls)
	}
}

// Test_GetOrBuild_Hit_Never_Observes_Partial_Contents is property P5: a
// reader must never observe a file mid-write by its producer, because the
// exclusive-to-shared downgrade only happens after the producer returns.
func Test_GetOrBuild_Hit_Never_Observes_Partial_Contents(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const want = "complete-payload"

	slow := func(_ string, f fsx.File) error {
		for _, b := range []byte(want) {
			if _, err := f.Write([]byte{b}); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}

		return nil
	}

	var (
		wg      sync.WaitGroup
		readErr error
		readHandle Handle
	)

	wg.Add(1)
	go func() {
		defer wg.Done()

		time.Sleep(2 * time.Millisecond)

		r, err := c.ReadLock(mustPath(t, c, "src"))
		if err != nil {
			readErr = err

			return
		}
		if r.Outcome == ReadAcquired {
			readHandle = r.Handle
		}
	}()

	h, err := c.GetOrBuild("src", slow, nil)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	defer c.UnlockAndClose(h.Path())

	wg.Wait()
	if readErr != nil {
		t.Fatalf("concurrent ReadLock: %v", readErr)
	}

	if readHandle.Valid() {
		defer c.UnlockAndClose(readHandle.Path())

		data, err := io.ReadAll(readHandle.File())
		if err != nil {
			t.Fatalf("reading via concurrent handle: %v", err)
		}
		if s := string(data); s != "" && s != want {
			t.Fatalf("concurrent reader observed partial contents %q", s)
		}
	}
}

func mustPath(t *testing.T, c *Cache, src string) string {
	t.Helper()

	path, err := c.FileName(src, true)
	if err != nil {
		t.Fatalf("FileName: %v", err)
	}

	return path
}

func Test_ExistenceAndLMT_And_ExpectedSize_Report_Missing_As_Invalid(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	missing := fmt.Sprintf("%s/does-not-exist", c.dir)

	if ExistenceAndLMT(time.Now())(c.fs, missing) {
		t.Fatal("ExistenceAndLMT(missing path) = true, want false")
	}
	if ExpectedSize(0)(c.fs, missing) {
		t.Fatal("ExpectedSize(missing path) = true, want false")
	}
}
