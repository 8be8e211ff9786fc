package snapshot

import (
	"context"
	"regexp"
	"testing"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/cluster/clustertest"
)

func TestRenamePattern(t *testing.T) {
	pattern, replacement := Rename{Prefix: "db1", Replacement: "db3"}.Pattern()
	assert.Equal(t, "^db1(.*)$", pattern)
	assert.Equal(t, "db3$1", replacement)

	re := regexp.MustCompile(pattern)
	assert.Equal(t, "db3-orders", re.ReplaceAllString("db1-orders", replacement))
	assert.Equal(t, "db2-orders", re.ReplaceAllString("db2-orders", replacement))
}

func TestRenamePatternQuotesPrefix(t *testing.T) {
	pattern, _ := Rename{Prefix: "a.b", Replacement: "c"}.Pattern()
	assert.Equal(t, `^a\.b(.*)$`, pattern)
}

func TestCreateAndRestore(t *testing.T) {
	ctx := context.Background()
	gw := clustertest.New()
	action := New(gw, "repo", zerolog.Nop())

	require.NoError(t, action.Create(ctx, "backup-1", []string{"db1-a", "db1-b"}))
	indices, err := action.Indices(ctx, "backup-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"db1-a", "db1-b"}, indices)

	require.NoError(t, action.Restore(ctx, "backup-1", []string{"db1-a"}, &Rename{Prefix: "db1", Replacement: "db9"}))
	require.NoError(t, action.Restore(ctx, "backup-1", nil, nil))

	require.Len(t, gw.Restores, 2)
	renamed := gw.Restores[0]
	assert.Equal(t, []string{"db1-a"}, renamed.Indices)
	assert.False(t, renamed.IncludeAliases)
	assert.Equal(t, "^db1(.*)$", renamed.RenamePattern)
	assert.Equal(t, "db9$1", renamed.RenameReplacement)

	plain := gw.Restores[1]
	assert.True(t, plain.IncludeAliases)
	assert.Empty(t, plain.RenamePattern)
}

func TestCreateRejectsEmpty(t *testing.T) {
	action := New(clustertest.New(), "repo", zerolog.Nop())
	err := action.Create(context.Background(), "backup-1", nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestMissingRepository(t *testing.T) {
	action := New(clustertest.New(), "", zerolog.Nop())
	err := action.Create(context.Background(), "backup-1", []string{"a"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRestoreRequiresRestorableSnapshot(t *testing.T) {
	ctx := context.Background()
	gw := clustertest.New()
	gw.Snapshots["broken"] = cluster.SnapshotInfo{Snapshot: "broken", State: "FAILED"}
	action := New(gw, "repo", zerolog.Nop())

	err := action.Restore(ctx, "broken", []string{"a"}, nil)
	assert.True(t, errors.Is(err, errors.NotValid))

	err = action.Restore(ctx, "missing", []string{"a"}, nil)
	assert.True(t, errors.Is(err, errors.NotFound))
	assert.Empty(t, gw.Restores)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	gw := clustertest.New()
	action := New(gw, "repo", zerolog.Nop())
	require.NoError(t, action.Create(ctx, "backup-1", []string{"a"}))

	require.NoError(t, action.Delete(ctx, "backup-1"))
	err := action.Delete(ctx, "backup-1")
	assert.True(t, errors.Is(err, errors.NotFound))
}
