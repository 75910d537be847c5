package singleinstance

import (
	"path/filepath"
	"testing"
)

func TestAcquireLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "eliksir.lock")

	release, ok, err := AcquireLock(lockPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected lock to be acquired")
	}
	if release == nil {
		t.Fatal("release function should not be nil")
	}

	second, ok, err := AcquireLock(lockPath)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		second()
		t.Fatal("second acquire should fail while the lock is held")
	}

	release()

	again, ok, err := AcquireLock(lockPath)
	if err != nil || !ok {
		t.Fatalf("acquire after release = (%v, %v)", ok, err)
	}
	again()
}
