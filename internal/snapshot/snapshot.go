// Package snapshot builds the snapshot requests issued for backup and restore.
package snapshot

import (
	"context"
	"fmt"
	"regexp"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/cluster"
)

// Action issues snapshot calls against one repository.
type Action struct {
	gateway    cluster.Gateway
	repository string
	log        zerolog.Logger
}

func New(gateway cluster.Gateway, repository string, log zerolog.Logger) *Action {
	return &Action{
		gateway:    gateway,
		repository: repository,
		log:        log.With().Str("component", "snapshot").Str("repository", repository).Logger(),
	}
}

// Rename describes an index rename performed by the cluster while restoring.
type Rename struct {
	Prefix      string
	Replacement string
}

// Pattern returns the regex and replacement handed to the restore API.
func (r Rename) Pattern() (string, string) {
	return "^" + regexp.QuoteMeta(r.Prefix) + "(.*)$", r.Replacement + "$1"
}

func (a *Action) validate() error {
	if a.repository == "" {
		return errors.NotValidf("snapshot repository is not configured")
	}
	return nil
}

// Create snapshots the given indices and waits for completion.
func (a *Action) Create(ctx context.Context, name string, indices []string) error {
	if err := a.validate(); err != nil {
		return err
	}
	if len(indices) == 0 {
		return errors.NotValidf("snapshot %s with no indices", name)
	}
	a.log.Info().Str("snapshot", name).Int("indices", len(indices)).Msg("creating snapshot")
	if err := a.gateway.CreateSnapshot(ctx, a.repository, name, cluster.CreateSnapshotRequest{Indices: indices}); err != nil {
		return fmt.Errorf("create snapshot %s: %w", name, err)
	}
	return nil
}

// Info returns the snapshot, failing with errors.NotFound when it does not exist.
func (a *Action) Info(ctx context.Context, name string) (cluster.SnapshotInfo, error) {
	if err := a.validate(); err != nil {
		return cluster.SnapshotInfo{}, err
	}
	info, err := a.gateway.Snapshot(ctx, a.repository, name)
	if err != nil {
		return cluster.SnapshotInfo{}, fmt.Errorf("inspect snapshot %s: %w", name, err)
	}
	return info, nil
}

// Indices lists the indices stored in the snapshot.
func (a *Action) Indices(ctx context.Context, name string) ([]string, error) {
	info, err := a.Info(ctx, name)
	if err != nil {
		return nil, err
	}
	return info.Indices, nil
}

// Restore restores indices from the snapshot. A nil rename restores under the
// stored names and keeps the aliases stored with the indices.
func (a *Action) Restore(ctx context.Context, name string, indices []string, rename *Rename) error {
	info, err := a.Info(ctx, name)
	if err != nil {
		return err
	}
	if !info.Restorable() {
		return errors.NotValidf("snapshot %s in state %s", name, info.State)
	}

	req := cluster.RestoreSnapshotRequest{Indices: indices, IncludeAliases: rename == nil}
	event := a.log.Info().Str("snapshot", name).Strs("indices", indices)
	if rename != nil {
		req.RenamePattern, req.RenameReplacement = rename.Pattern()
		event = event.Str("rename_pattern", req.RenamePattern).Str("rename_replacement", req.RenameReplacement)
	}
	event.Msg("restoring snapshot")

	if err := a.gateway.RestoreSnapshot(ctx, a.repository, name, req); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", name, err)
	}
	return nil
}

// Delete removes the snapshot.
func (a *Action) Delete(ctx context.Context, name string) error {
	if err := a.validate(); err != nil {
		return err
	}
	a.log.Info().Str("snapshot", name).Msg("deleting snapshot")
	if err := a.gateway.DeleteSnapshot(ctx, a.repository, name); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}
