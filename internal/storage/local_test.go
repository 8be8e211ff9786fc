package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/search-backup-utility/internal/config"
)

func TestLocalPutGetList(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())
	folder := "granular/backup-1"

	require.NoError(t, store.Put(ctx, Key(folder, "indices.txt"), strings.NewReader("db1-a\n"), -1, nil))
	require.NoError(t, store.Put(ctx, Key(folder, "databases.txt"), strings.NewReader("db1\n"), -1, nil))

	reader, err := store.Get(ctx, Key(folder, "indices.txt"))
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	assert.Equal(t, "db1-a\n", string(data))

	objects, err := store.List(ctx, folder)
	require.NoError(t, err)
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	assert.ElementsMatch(t, []string{"granular/backup-1/indices.txt", "granular/backup-1/databases.txt"}, keys)

	ok, err := store.Exists(ctx, Key(folder, "aliases.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalMissingObject(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())

	_, err := store.Get(ctx, "nope/aliases.json")
	assert.True(t, errors.Is(err, errors.NotFound))

	objects, err := store.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir())
	require.NoError(t, store.Put(ctx, "f/a", strings.NewReader("a"), -1, nil))
	require.NoError(t, store.Put(ctx, "f/b", strings.NewReader("b"), -1, nil))

	n, err := store.DeletePrefix(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.DeletePrefix(ctx, "f")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestNewBackend(t *testing.T) {
	store, err := New(config.StorageConfig{Backend: "Local", Local: config.LocalStore{Path: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = New(config.StorageConfig{Backend: BackendS3, S3: config.S3Store{Endpoint: "minio:9000"}})
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "bucket")

	_, err = New(config.StorageConfig{Backend: "azure"})
	assert.True(t, errors.Is(err, errors.NotSupported))
}
