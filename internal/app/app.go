package app

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/config"
	"github.com/rowjay/search-backup-utility/internal/lock"
	"github.com/rowjay/search-backup-utility/internal/logging"
	"github.com/rowjay/search-backup-utility/internal/manifest"
	"github.com/rowjay/search-backup-utility/internal/notify"
	"github.com/rowjay/search-backup-utility/internal/recovery"
	"github.com/rowjay/search-backup-utility/internal/restore"
	"github.com/rowjay/search-backup-utility/internal/snapshot"
	"github.com/rowjay/search-backup-utility/internal/storage"
	"github.com/rowjay/search-backup-utility/internal/tenant"
	"github.com/rowjay/search-backup-utility/internal/util"
)

// usageError is a fixed usage message that matches errors.NotValid.
type usageError string

func (e usageError) Error() string { return string(e) }

func (e usageError) Is(target error) bool { return target == errors.NotValid }

// ErrGranularWithoutDatabases rejects restoring a granular folder as a whole.
const ErrGranularWithoutDatabases = usageError("attempt to restore granular backup without databases")

type App struct {
	Cfg       *config.Config
	Store     *manifest.Store
	Snapshots *snapshot.Action
	Writer    *manifest.Writer
	Restorer  *restore.Orchestrator
	// Recovery is nil when credential recovery is not configured.
	Recovery *recovery.Poller
	Log      zerolog.Logger
	Notifier notify.Notifier
}

func New(cfg *config.Config, gateway cluster.Gateway, store storage.Storage, poller *recovery.Poller, log zerolog.Logger, notifier notify.Notifier) (*App, error) {
	manifests, err := manifest.NewStore(store, cfg.Manifest, log)
	if err != nil {
		return nil, err
	}
	snapshots := snapshot.New(gateway, cfg.Snapshot.Repository, log)
	return &App{
		Cfg:       cfg,
		Store:     manifests,
		Snapshots: snapshots,
		Writer:    manifest.NewWriter(gateway, manifests, log),
		Restorer:  restore.New(gateway, manifests, snapshots, log),
		Recovery:  poller,
		Log:       log,
		Notifier:  notifier,
	}, nil
}

type BackupOptions struct {
	Folder string
	// Tenants selects a granular backup.
	Tenants []string
}

type RestoreOptions struct {
	Folder            string
	Tenants           []string
	Mapping           tenant.Mapping
	Clean             bool
	SkipUsersRecovery bool
}

// Backup writes the manifest of folder and snapshots the captured indices.
func (a *App) Backup(ctx context.Context, opts BackupOptions) (*manifest.Manifest, error) {
	var result *manifest.Manifest
	err := a.run(ctx, "backup", opts.Folder, opts.Tenants, func(ctx context.Context, log zerolog.Logger, name string) error {
		if err := validateTenants(opts.Tenants); err != nil {
			return err
		}
		log.Info().Msg("Backup has started.")
		err := util.Retry(ctx, a.Cfg.Backup.RetryCount, a.Cfg.Backup.RetryBackoff, func(attempt int) error {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("retrying backup")
			}
			m, err := a.Writer.Write(ctx, opts.Folder, opts.Tenants)
			if err != nil {
				return err
			}
			result = m
			if len(m.Indices) == 0 {
				if len(opts.Tenants) > 0 {
					log.Info().Strs("databases", opts.Tenants).Msg("no indices match the requested databases, snapshot skipped")
					return nil
				}
				return errors.NotValidf("full backup with no indices")
			}
			return a.Snapshots.Create(ctx, name, m.Indices)
		})
		if err != nil {
			return err
		}
		log.Info().Msg("Backup is completed successfully.")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Restore replays folder onto the cluster and then recovers user
// credentials unless skipped or not configured.
func (a *App) Restore(ctx context.Context, opts RestoreOptions) error {
	return a.run(ctx, "restore", opts.Folder, opts.Tenants, func(ctx context.Context, log zerolog.Logger, name string) error {
		if len(opts.Tenants) == 0 && util.IsGranularFolder(opts.Folder) {
			return ErrGranularWithoutDatabases
		}
		if err := validateTenants(opts.Tenants); err != nil {
			return err
		}
		log.Info().Msg("Restore has started.")

		err := a.Restorer.Run(ctx, restore.Request{
			Folder:   opts.Folder,
			Snapshot: name,
			Tenants:  opts.Tenants,
			Mapping:  opts.Mapping,
			Clean:    opts.Clean,
		})
		if err != nil {
			return err
		}

		switch {
		case opts.SkipUsersRecovery:
			log.Info().Msg("Users recovery is skipped")
		case a.Recovery == nil:
			log.Info().Msg("Users recovery is disabled")
		default:
			if err := a.Recovery.Run(ctx); err != nil {
				return err
			}
		}

		log.Info().Msg("Restore is completed successfully.")
		return nil
	})
}

// Evict deletes the snapshot of folder and the folder itself. Either may
// already be gone.
func (a *App) Evict(ctx context.Context, folder string) error {
	return a.run(ctx, "evict", folder, nil, func(ctx context.Context, log zerolog.Logger, name string) error {
		log.Info().Msg("Eviction has started.")
		err := a.Snapshots.Delete(ctx, name)
		switch {
		case errors.Is(err, errors.NotFound):
			log.Info().Msg("snapshot is already deleted")
		case err != nil:
			return err
		}

		removed, err := a.Store.Remove(ctx, folder)
		switch {
		case errors.Is(err, errors.NotFound):
			log.Info().Msg("backup folder is already removed")
		case err != nil:
			return fmt.Errorf("remove backup folder: %w", err)
		default:
			log.Info().Int("files", removed).Msg("backup folder removed")
		}
		log.Info().Msg("Eviction is completed successfully.")
		return nil
	})
}

// List returns the databases stored in folder, or the indices of its
// snapshot when the backup was not granular.
func (a *App) List(ctx context.Context, folder string) ([]string, error) {
	m, err := a.Store.Load(ctx, folder)
	if err != nil {
		return nil, err
	}
	if m.Granular() {
		return m.Databases, nil
	}
	return a.Snapshots.Indices(ctx, util.SnapshotName(folder))
}

// run holds the folder lock and the operation timeout around fn and reports
// the outcome to the notifier.
func (a *App) run(ctx context.Context, op, folder string, tenants []string, fn func(context.Context, zerolog.Logger, string) error) (opErr error) {
	start := time.Now()
	name := util.SnapshotName(folder)
	log := logging.WithCategory(a.Log, op).With().Str("folder", folder).Str("snapshot", name).Logger()

	defer func() {
		if a.Notifier == nil {
			return
		}
		event := notify.Event{
			Type:      op,
			Status:    statusFromErr(opErr),
			Folder:    folder,
			Snapshot:  name,
			Databases: tenants,
			StartedAt: start,
			EndedAt:   time.Now(),
			Duration:  time.Since(start).Round(time.Millisecond).String(),
		}
		if opErr != nil {
			event.Error = opErr.Error()
		}
		if err := a.Notifier.Notify(context.Background(), event); err != nil {
			log.Warn().Err(err).Msg("notification failed")
		}
	}()

	if a.Cfg.Global.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Cfg.Global.OperationTimeout)
		defer cancel()
	}

	guard, err := lock.Acquire(a.Cfg.Global.LockDir, name)
	if err != nil {
		return err
	}
	defer guard.Release()

	return fn(ctx, log, name)
}

func validateTenants(tenants []string) error {
	for _, t := range tenants {
		if err := tenant.Validate(t); err != nil {
			return err
		}
	}
	return nil
}

func statusFromErr(err error) string {
	if err == nil {
		return "success"
	}
	return "failed"
}
