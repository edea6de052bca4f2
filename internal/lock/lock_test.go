package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "user-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "user-1.lock"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file is empty")
	}

	if err := l.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestSecondEngineForSameIdentityFails(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "user-1")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir, "user-1")
	if err == nil {
		t.Fatal("second Acquire() should fail")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Errorf("expected HeldError, got %T: %v", err, err)
	}
	if held.Identity != "user-1" {
		t.Errorf("Identity = %q, want user-1", held.Identity)
	}
}

func TestDistinctIdentitiesCoexist(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "user-1")
	if err != nil {
		t.Fatalf("Acquire(user-1) error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	l2, err := Acquire(dir, "user-2")
	if err != nil {
		t.Fatalf("Acquire(user-2) error = %v", err)
	}
	defer func() { _ = l2.Release() }()
}

func TestReleaseNilAndTwice(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	l, err := Acquire(t.TempDir(), "user-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
