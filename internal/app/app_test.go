package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/cluster/clustertest"
	"github.com/rowjay/search-backup-utility/internal/config"
	"github.com/rowjay/search-backup-utility/internal/lock"
	"github.com/rowjay/search-backup-utility/internal/notify"
	"github.com/rowjay/search-backup-utility/internal/recovery"
	"github.com/rowjay/search-backup-utility/internal/storage"
	"github.com/rowjay/search-backup-utility/internal/tenant"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type stateSequence struct{ states []recovery.State }

func (s *stateSequence) State(context.Context) (recovery.State, error) {
	next := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return next, nil
}

type initiator struct {
	err   error
	calls int
}

func (i *initiator) RestorePasswords(context.Context) error {
	i.calls++
	return i.err
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Global:   config.GlobalConfig{LockDir: t.TempDir(), OperationTimeout: time.Minute},
		Snapshot: config.SnapshotConfig{Repository: "repo"},
		Backup:   config.BackupConfig{RetryCount: 1},
		Manifest: config.ManifestConfig{Compression: "zstd"},
		Recovery: config.RecoveryConfig{StateInterval: 5 * time.Second, RetryInterval: 10 * time.Second, Timeout: 240 * time.Second},
	}
}

func seeded() *clustertest.Gateway {
	gw := clustertest.New()
	gw.IndexSet = []string{"db1-orders", "db2-items", ".security"}
	gw.AliasSet = catalog.AliasMap{
		"db1-orders": {Aliases: map[string]json.RawMessage{"db1-read": json.RawMessage(`{}`)}},
	}
	gw.IndexTpls = []catalog.IndexTemplate{
		{Name: "db1-tpl", Body: catalog.Object{"index_patterns": json.RawMessage(`["db1-*"]`)}},
	}
	return gw
}

func newApp(t *testing.T, gw *clustertest.Gateway, poller *recovery.Poller) (*App, *recorder) {
	t.Helper()
	rec := &recorder{}
	a, err := New(testConfig(t), gw, storage.NewLocal(t.TempDir()), poller, zerolog.Nop(), rec)
	require.NoError(t, err)
	return a, rec
}

func TestGranularBackupAndRenamedRestore(t *testing.T) {
	ctx := context.Background()
	gw := seeded()
	adapter := &stateSequence{states: []recovery.State{recovery.StateIdle, recovery.StateRunning, recovery.StateDone}}
	agg := &initiator{}
	poller := recovery.NewPoller(adapter, agg, &instantClock{}, testConfig(t).Recovery, zerolog.Nop())
	a, rec := newApp(t, gw, poller)

	m, err := a.Backup(ctx, BackupOptions{Folder: "granular/20240101T1000", Tenants: []string{"db1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"db1-orders"}, m.Indices)
	assert.Equal(t, []string{"db1-orders"}, gw.Snapshots["20240101t1000"].Indices)

	err = a.Restore(ctx, RestoreOptions{
		Folder:  "granular/20240101T1000",
		Tenants: []string{"db1"},
		Mapping: tenant.Mapping{"db1": "db5"},
	})
	require.NoError(t, err)
	assert.Contains(t, gw.Targets("put_index_template"), "db5-tpl")
	assert.Equal(t, []string{"db5-orders"}, gw.Targets("close_indices"))
	assert.Equal(t, []string{"db5-orders/db5-read"}, gw.Targets("put_alias"))
	assert.Equal(t, 1, agg.calls)

	require.Len(t, rec.events, 2)
	assert.Equal(t, "backup", rec.events[0].Type)
	assert.Equal(t, "success", rec.events[1].Status)
	assert.Equal(t, "20240101t1000", rec.events[1].Snapshot)
}

func TestGranularBackupWithoutIndicesSkipsSnapshot(t *testing.T) {
	ctx := context.Background()
	gw := seeded()
	a, _ := newApp(t, gw, nil)

	_, err := a.Backup(ctx, BackupOptions{Folder: "granular/empty", Tenants: []string{"db9"}})
	require.NoError(t, err)
	assert.Empty(t, gw.Snapshots)

	err = a.Restore(ctx, RestoreOptions{Folder: "granular/empty", Tenants: []string{"db9"}})
	require.NoError(t, err)
	assert.Empty(t, gw.Restores)

	dbs, err := a.List(ctx, "granular/empty")
	require.NoError(t, err)
	assert.Equal(t, []string{"db9"}, dbs)
}

func TestFullBackupRestoreAndList(t *testing.T) {
	ctx := context.Background()
	gw := seeded()
	a, _ := newApp(t, gw, nil)

	_, err := a.Backup(ctx, BackupOptions{Folder: "full/Nightly"})
	require.NoError(t, err)
	assert.Equal(t, []string{"db1-orders", "db2-items"}, gw.Snapshots["nightly"].Indices)

	indices, err := a.List(ctx, "full/Nightly")
	require.NoError(t, err)
	assert.Equal(t, []string{"db1-orders", "db2-items"}, indices)

	require.NoError(t, a.Restore(ctx, RestoreOptions{Folder: "full/Nightly"}))
	require.Len(t, gw.Restores, 1)
	assert.True(t, gw.Restores[0].IncludeAliases)
}

func TestFullBackupWithoutIndicesFails(t *testing.T) {
	gw := clustertest.New()
	a, rec := newApp(t, gw, nil)

	_, err := a.Backup(context.Background(), BackupOptions{Folder: "full/x"})
	assert.True(t, errors.Is(err, errors.NotValid))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "failed", rec.events[0].Status)
}

func TestBackupFailsWhenSnapshotFails(t *testing.T) {
	gw := seeded()
	gw.Fail["create_snapshot"] = &cluster.SnapshotFailedError{Op: "create snapshot", Snapshot: "broken", State: "FAILED", FailedShards: 1}
	a, rec := newApp(t, gw, nil)

	_, err := a.Backup(context.Background(), BackupOptions{Folder: "full/broken"})
	var failed *cluster.SnapshotFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "FAILED", failed.State)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "failed", rec.events[0].Status)
}

func TestRestoreGranularFolderRequiresTenants(t *testing.T) {
	gw := seeded()
	a, _ := newApp(t, gw, nil)

	err := a.Restore(context.Background(), RestoreOptions{Folder: "/backups/granular/abc"})
	assert.Equal(t, ErrGranularWithoutDatabases, err)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Empty(t, gw.Mutations())
}

func TestRestoreRejectsInvalidTenant(t *testing.T) {
	a, _ := newApp(t, seeded(), nil)
	err := a.Restore(context.Background(), RestoreOptions{Folder: "granular/x", Tenants: []string{"db 1"}})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRestoreFailsWhenRecoveryFails(t *testing.T) {
	ctx := context.Background()
	gw := seeded()
	adapter := &stateSequence{states: []recovery.State{recovery.StateIdle}}
	agg := &initiator{err: errors.New("aggregator down")}
	poller := recovery.NewPoller(adapter, agg, &instantClock{}, testConfig(t).Recovery, zerolog.Nop())
	a, rec := newApp(t, gw, poller)

	_, err := a.Backup(ctx, BackupOptions{Folder: "granular/r1", Tenants: []string{"db1"}})
	require.NoError(t, err)

	err = a.Restore(ctx, RestoreOptions{Folder: "granular/r1", Tenants: []string{"db1"}})
	var failed *recovery.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, recovery.StateFailed, failed.State)
	assert.Equal(t, "failed", rec.events[len(rec.events)-1].Status)

	agg.calls = 0
	err = a.Restore(ctx, RestoreOptions{Folder: "granular/r1", Tenants: []string{"db1"}, SkipUsersRecovery: true})
	require.NoError(t, err)
	assert.Zero(t, agg.calls)
}

func TestEvictToleratesMissingParts(t *testing.T) {
	ctx := context.Background()
	gw := seeded()
	a, _ := newApp(t, gw, nil)

	_, err := a.Backup(ctx, BackupOptions{Folder: "full/old"})
	require.NoError(t, err)

	require.NoError(t, a.Evict(ctx, "full/old"))
	assert.NotContains(t, gw.Snapshots, "old")
	require.NoError(t, a.Evict(ctx, "full/old"))
}

func TestOperationsOnSameFolderAreExclusive(t *testing.T) {
	a, _ := newApp(t, seeded(), nil)
	held, err := lock.Acquire(a.Cfg.Global.LockDir, "busy")
	require.NoError(t, err)
	defer held.Release()

	_, err = a.Backup(context.Background(), BackupOptions{Folder: "full/busy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}
