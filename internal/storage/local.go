package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// Local stores objects as files below BasePath. An empty BasePath resolves
// keys against the working directory, so absolute folder paths work as is.
type Local struct {
	BasePath string
}

func NewLocal(path string) *Local {
	return &Local{BasePath: path}
}

func (l *Local) path(key string) string {
	return filepath.Join(l.BasePath, filepath.FromSlash(key))
}

func (l *Local) Put(ctx context.Context, key string, reader io.Reader, _ int64, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := l.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundf("object %s", key)
	}
	return file, err
}

func (l *Local) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ObjectInfo{}, errors.NotFoundf("object %s", key)
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: info.Size(), Modified: info.ModTime()}, nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := l.path(prefix)
	infos := []ObjectInfo{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		stat, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		key := Key(prefix, filepath.ToSlash(rel))
		infos = append(infos, ObjectInfo{Key: key, Size: stat.Size(), Modified: stat.ModTime()})
		return nil
	})
	return infos, err
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return errors.NotFoundf("object %s", key)
	}
	return err
}

// DeletePrefix removes the directory that holds prefix.
func (l *Local) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := l.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	root := l.path(prefix)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return 0, errors.NotFoundf("folder %s", prefix)
	}
	if err := os.RemoveAll(root); err != nil {
		return 0, err
	}
	return len(objects), nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
