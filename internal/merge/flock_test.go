package merge

import "testing"

func TestFileLockExclusive(t *testing.T) {
	dir := t.TempDir()

	first := NewFileLock(dir)
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	second := NewFileLock(dir)
	acquired, err := second.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if acquired {
		t.Error("TryLock() acquired a held lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	acquired, err = second.TryLock()
	if err != nil {
		t.Fatalf("TryLock() after release error = %v", err)
	}
	if !acquired {
		t.Error("TryLock() failed after lock release")
	}
	if err := second.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(t.TempDir())
	if err := fl.Unlock(); err != nil {
		t.Errorf("Unlock() without Lock() error = %v", err)
	}
}
