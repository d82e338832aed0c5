package cachefs

import (
	"path/filepath"
	"testing"
)

func Test_Registry_Unrecorded_Path_Has_No_Descriptors(t *testing.T) {
	t.Parallel()

	r := newRegistry()
	path := "/tmp/fake-path"

	if got := r.count(path); got != 0 {
		t.Fatalf("count before record = %d, want 0", got)
	}

	fds, _ := r.drain(path)
	if fds != nil {
		t.Fatalf("drain on empty registry = %v, want nil", fds)
	}
}

// Test_CreateAndLock_Registers_And_Unregisters_Descriptor exercises
// property P2: after a successful CreateAndLock the registry holds the
// returned descriptor, and after UnlockAndClose it holds none.
func Test_CreateAndLock_Registers_And_Unregisters_Descriptor(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := c.FileName("alpha", true)
	if err != nil {
		t.Fatalf("FileName: %v", err)
	}

	cr, err := c.CreateAndLock(path)
	if err != nil {
		t.Fatalf("CreateAndLock: %v", err)
	}
	if cr.Outcome != CreateCreated {
		t.Fatalf("CreateAndLock outcome = %v, want CreateCreated", cr.Outcome)
	}

	if got := c.reg.count(path); got != 1 {
		t.Fatalf("registry count after CreateAndLock = %d, want 1", got)
	}

	c.UnlockAndClose(path)

	if got := c.reg.count(path); got != 0 {
		t.Fatalf("registry count after UnlockAndClose = %d, want 0", got)
	}
}

// Test_Registry_Holds_Multiple_Descriptors_For_Same_Path covers the
// multi-set requirement of spec §4.4: two same-process shared locks on
// one path are tracked independently so UnlockAndClose drains both.
func Test_Registry_Holds_Multiple_Descriptors_For_Same_Path(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := c.FileName("alpha", true)
	if err != nil {
		t.Fatalf("FileName: %v", err)
	}

	cr, err := c.CreateAndLock(path)
	if err != nil {
		t.Fatalf("CreateAndLock: %v", err)
	}
	if err := c.ExclusiveToShared(cr.Handle); err != nil {
		t.Fatalf("ExclusiveToShared: %v", err)
	}

	r1, err := c.ReadLock(path)
	if err != nil || r1.Outcome != ReadAcquired {
		t.Fatalf("ReadLock (1): outcome=%v err=%v", r1.Outcome, err)
	}

	r2, err := c.ReadLock(path)
	if err != nil || r2.Outcome != ReadAcquired {
		t.Fatalf("ReadLock (2): outcome=%v err=%v", r2.Outcome, err)
	}

	if got := c.reg.count(path); got != 3 {
		t.Fatalf("registry count = %d, want 3 (create + 2 reads)", got)
	}

	c.UnlockAndClose(path)

	if got := c.reg.count(path); got != 0 {
		t.Fatalf("registry count after UnlockAndClose = %d, want 0", got)
	}
}

func Test_UnlockAndClose_On_Unknown_Path_Is_NoOp(t *testing.T) {
	t.Parallel()

	c, err := New(Options{Dir: t.TempDir(), Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.UnlockAndClose(filepath.Join(c.dir, "never-locked"))
}
