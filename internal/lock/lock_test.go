package lock

import (
	"strings"
	"testing"
)

func TestAcquireIsExclusive(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir, "backup-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := Acquire(dir, "backup-1"); err == nil {
		t.Fatal("expected second acquire to fail")
	}
	other, err := Acquire(dir, "backup-2")
	if err != nil {
		t.Fatalf("acquire other folder: %v", err)
	}
	_ = other.Release()

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(dir, "backup-1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = again.Release()
}

func TestPathSanitizesName(t *testing.T) {
	p := Path("/locks", "a/b c")
	if !strings.HasSuffix(p, "sbu-a_b_c.lock") {
		t.Fatalf("unexpected lock path %s", p)
	}
}
