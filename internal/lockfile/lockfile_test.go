package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	// WHAT: Acquire writes our pid; Release removes the file.
	path := filepath.Join(t.TempDir(), "linefeed.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pid, err := readPID(path)
	if err != nil {
		t.Fatalf("readPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid in lock: got %d, want %d", pid, os.Getpid())
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}
}

func TestAcquire_HeldByLiveProcess(t *testing.T) {
	// WHAT: A lock naming a live pid (ours) cannot be acquired again.
	path := filepath.Join(t.TempDir(), "linefeed.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(path); err == nil {
		t.Fatal("second Acquire succeeded on a held lock")
	}
}

func TestAcquire_ReclaimsStaleLock(t *testing.T) {
	// WHAT: A lock left by a dead process is reclaimed.
	// WHY: A crash must not require a manual rm before restart.
	path := filepath.Join(t.TempDir(), "linefeed.lock")

	// Pid well past any plausible live process on the test machine.
	if err := os.WriteFile(path, []byte("99999999\n"), 0o644); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer l.Release()

	pid, err := readPID(path)
	if err != nil {
		t.Fatalf("readPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid after reclaim: got %d, want %d", pid, os.Getpid())
	}
}

func TestAcquire_ReclaimsGarbageLock(t *testing.T) {
	// WHAT: An unreadable lock body is treated as stale.
	path := filepath.Join(t.TempDir(), "linefeed.lock")
	if err := os.WriteFile(path, []byte("not a pid"), 0o644); err != nil {
		t.Fatalf("seed garbage lock: %v", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over garbage lock: %v", err)
	}
	l.Release()
}

func TestAcquire_CreatesParentDir(t *testing.T) {
	// WHAT: The data directory is created on demand.
	path := filepath.Join(t.TempDir(), "data", "linefeed.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent dir: %v", err)
	}
}

func ExampleAcquire() {
	lock, err := Acquire(filepath.Join(os.TempDir(), "linefeed-example.lock"))
	if err != nil {
		fmt.Println("another instance is running:", err)
		return
	}
	defer lock.Release()
	fmt.Println("lock held")
	// Output: lock held
}
