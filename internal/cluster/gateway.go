// Package cluster talks to the search cluster: indices, aliases, the three
// template namespaces and the snapshot API.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/juju/errors"

	"github.com/rowjay/search-backup-utility/internal/catalog"
)

// Gateway is the subset of the cluster API that backup and restore use.
// Delete and get calls for names that do not exist fail with an error
// satisfying errors.Is(err, errors.NotFound).
type Gateway interface {
	Indices(ctx context.Context) ([]string, error)
	Aliases(ctx context.Context) (catalog.AliasMap, error)
	IndexTemplates(ctx context.Context) ([]catalog.IndexTemplate, error)
	ComponentTemplates(ctx context.Context) ([]catalog.ComponentTemplate, error)
	LegacyTemplates(ctx context.Context) ([]catalog.LegacyTemplate, error)

	PutIndexTemplate(ctx context.Context, t catalog.IndexTemplate) error
	PutComponentTemplate(ctx context.Context, t catalog.ComponentTemplate) error
	PutLegacyTemplate(ctx context.Context, t catalog.LegacyTemplate) error
	DeleteIndexTemplate(ctx context.Context, pattern string) error
	DeleteComponentTemplate(ctx context.Context, pattern string) error
	DeleteLegacyTemplate(ctx context.Context, pattern string) error

	// CloseIndices ignores indices that do not exist.
	CloseIndices(ctx context.Context, indices []string) error
	DeleteIndices(ctx context.Context, patterns []string) error
	PutAlias(ctx context.Context, index, alias string, body json.RawMessage) error

	CreateSnapshot(ctx context.Context, repository, name string, req CreateSnapshotRequest) error
	Snapshot(ctx context.Context, repository, name string) (SnapshotInfo, error)
	RestoreSnapshot(ctx context.Context, repository, name string, req RestoreSnapshotRequest) error
	DeleteSnapshot(ctx context.Context, repository, name string) error
}

// SnapshotInfo describes one snapshot of a repository.
type SnapshotInfo struct {
	Snapshot string   `json:"snapshot"`
	State    string   `json:"state"`
	Indices  []string `json:"indices"`
}

// Restorable reports whether the snapshot completed far enough to restore
// from it.
func (s SnapshotInfo) Restorable() bool {
	return s.State == "SUCCESS" || s.State == "PARTIAL"
}

type CreateSnapshotRequest struct {
	Indices            []string
	IncludeGlobalState bool
}

type RestoreSnapshotRequest struct {
	// Indices limits the restore; empty restores every index of the snapshot.
	Indices           []string
	IncludeAliases    bool
	RenamePattern     string
	RenameReplacement string
}

// ResponseError is a non-2xx answer of the cluster.
type ResponseError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: cluster responded %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is makes 404 answers match errors.NotFound.
func (e *ResponseError) Is(target error) bool {
	return e.StatusCode == http.StatusNotFound && target == errors.NotFound
}

// SnapshotFailedError reports a snapshot or restore that the cluster finished
// without success.
type SnapshotFailedError struct {
	Op           string
	Snapshot     string
	State        string
	FailedShards int
}

func (e *SnapshotFailedError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("%s %s: %d shards failed", e.Op, e.Snapshot, e.FailedShards)
	}
	return fmt.Sprintf("%s %s: snapshot state %s, %d shards failed", e.Op, e.Snapshot, e.State, e.FailedShards)
}
