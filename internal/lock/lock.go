package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z._-]`)

type Lock struct {
	file *flock.Flock
	path string
}

// Path returns the lock file guarding name inside dir. An empty dir means
// the system temp directory.
func Path(dir, name string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sbu-"+unsafeChars.ReplaceAllString(name, "_")+".lock")
}

// Acquire takes the lock for name so only one backup, restore or eviction
// runs against a manifest folder at a time.
func Acquire(dir, name string) (*Lock, error) {
	path := Path(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another operation on %s is already running (lock: %s)", name, path)
	}
	return &Lock{file: lock, path: path}, nil
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
