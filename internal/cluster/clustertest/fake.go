// Package clustertest provides an in-memory cluster.Gateway for tests.
package clustertest

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/cluster"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op     string
	Target string
}

// Restore is one recorded snapshot restore.
type Restore struct {
	Snapshot string
	cluster.RestoreSnapshotRequest
}

// Alias is one recorded alias creation.
type Alias struct {
	Index string
	Name  string
	Body  json.RawMessage
}

// Gateway keeps cluster state in memory. Set Fail[op] to make an operation
// return that error; op names are the ones recorded in Calls.
type Gateway struct {
	mu sync.Mutex

	IndexSet     []string
	AliasSet     catalog.AliasMap
	IndexTpls    []catalog.IndexTemplate
	ComponentTpl []catalog.ComponentTemplate
	LegacyTpls   []catalog.LegacyTemplate
	Snapshots    map[string]cluster.SnapshotInfo

	Fail map[string]error

	Calls    []Call
	Restores []Restore
	Aliased  []Alias
}

var _ cluster.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		AliasSet:  catalog.AliasMap{},
		Snapshots: map[string]cluster.SnapshotInfo{},
		Fail:      map[string]error{},
	}
}

// record must be called with mu held.
func (g *Gateway) record(op, target string) error {
	g.Calls = append(g.Calls, Call{Op: op, Target: target})
	if err, ok := g.Fail[op]; ok {
		return err
	}
	return nil
}

var readOps = map[string]bool{
	"indices": true, "aliases": true, "index_templates": true,
	"component_templates": true, "legacy_templates": true, "snapshot": true,
}

// Mutations returns the recorded calls that change cluster state.
func (g *Gateway) Mutations() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.Calls {
		if !readOps[c.Op] {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the names of the recorded calls in order.
func (g *Gateway) Ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.Calls))
	for _, c := range g.Calls {
		out = append(out, c.Op)
	}
	return out
}

// Targets returns the targets recorded for op in order.
func (g *Gateway) Targets(op string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, c := range g.Calls {
		if c.Op == op {
			out = append(out, c.Target)
		}
	}
	return out
}

// Match reports whether name is selected by the comma-free patterns, where
// a leading "-" excludes.
func Match(patterns []string, name string) bool {
	matched := false
	for _, p := range patterns {
		if exclude, ok := strings.CutPrefix(p, "-"); ok {
			if hit, _ := path.Match(exclude, name); hit {
				return false
			}
			continue
		}
		if hit, _ := path.Match(p, name); hit {
			matched = true
		}
	}
	return matched
}

func (g *Gateway) Indices(context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("indices", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), g.IndexSet...), nil
}

func (g *Gateway) Aliases(context.Context) (catalog.AliasMap, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("aliases", ""); err != nil {
		return nil, err
	}
	out := catalog.AliasMap{}
	for k, v := range g.AliasSet {
		out[k] = v
	}
	return out, nil
}

func (g *Gateway) IndexTemplates(context.Context) ([]catalog.IndexTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("index_templates", ""); err != nil {
		return nil, err
	}
	return append([]catalog.IndexTemplate(nil), g.IndexTpls...), nil
}

func (g *Gateway) ComponentTemplates(context.Context) ([]catalog.ComponentTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("component_templates", ""); err != nil {
		return nil, err
	}
	return append([]catalog.ComponentTemplate(nil), g.ComponentTpl...), nil
}

func (g *Gateway) LegacyTemplates(context.Context) ([]catalog.LegacyTemplate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("legacy_templates", ""); err != nil {
		return nil, err
	}
	return append([]catalog.LegacyTemplate(nil), g.LegacyTpls...), nil
}

func (g *Gateway) PutIndexTemplate(_ context.Context, t catalog.IndexTemplate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("put_index_template", t.Name); err != nil {
		return err
	}
	g.IndexTpls = upsert(g.IndexTpls, t)
	return nil
}

func (g *Gateway) PutComponentTemplate(_ context.Context, t catalog.ComponentTemplate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("put_component_template", t.Name); err != nil {
		return err
	}
	g.ComponentTpl = upsert(g.ComponentTpl, t)
	return nil
}

func (g *Gateway) PutLegacyTemplate(_ context.Context, t catalog.LegacyTemplate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("put_legacy_template", t.Name); err != nil {
		return err
	}
	g.LegacyTpls = upsert(g.LegacyTpls, t)
	return nil
}

func upsert[T catalog.TemplateDocument](docs []T, doc T) []T {
	for i, d := range docs {
		if d.Key() == doc.Key() {
			docs[i] = doc
			return docs
		}
	}
	return append(docs, doc)
}

// remove drops documents matching pattern and reports NotFound when none did.
func remove[T catalog.TemplateDocument](docs []T, pattern string) ([]T, error) {
	kept := docs[:0:0]
	for _, d := range docs {
		if !Match([]string{pattern}, d.Key()) {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(docs) {
		return docs, errors.NotFoundf("template %s", pattern)
	}
	return kept, nil
}

func (g *Gateway) DeleteIndexTemplate(_ context.Context, pattern string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete_index_template", pattern); err != nil {
		return err
	}
	var err error
	g.IndexTpls, err = remove(g.IndexTpls, pattern)
	return err
}

func (g *Gateway) DeleteComponentTemplate(_ context.Context, pattern string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete_component_template", pattern); err != nil {
		return err
	}
	var err error
	g.ComponentTpl, err = remove(g.ComponentTpl, pattern)
	return err
}

func (g *Gateway) DeleteLegacyTemplate(_ context.Context, pattern string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete_legacy_template", pattern); err != nil {
		return err
	}
	var err error
	g.LegacyTpls, err = remove(g.LegacyTpls, pattern)
	return err
}

func (g *Gateway) CloseIndices(_ context.Context, indices []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record("close_indices", strings.Join(indices, ","))
}

func (g *Gateway) DeleteIndices(_ context.Context, patterns []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete_indices", strings.Join(patterns, ",")); err != nil {
		return err
	}
	kept := g.IndexSet[:0:0]
	for _, idx := range g.IndexSet {
		if !Match(patterns, idx) {
			kept = append(kept, idx)
		}
	}
	if len(kept) == len(g.IndexSet) {
		return errors.NotFoundf("indices %s", strings.Join(patterns, ","))
	}
	g.IndexSet = kept
	return nil
}

func (g *Gateway) PutAlias(_ context.Context, index, alias string, body json.RawMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("put_alias", index+"/"+alias); err != nil {
		return err
	}
	g.Aliased = append(g.Aliased, Alias{Index: index, Name: alias, Body: body})
	return nil
}

func (g *Gateway) CreateSnapshot(_ context.Context, _ string, name string, req cluster.CreateSnapshotRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("create_snapshot", name); err != nil {
		return err
	}
	g.Snapshots[name] = cluster.SnapshotInfo{
		Snapshot: name,
		State:    "SUCCESS",
		Indices:  append([]string(nil), req.Indices...),
	}
	return nil
}

func (g *Gateway) Snapshot(_ context.Context, repository, name string) (cluster.SnapshotInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("snapshot", name); err != nil {
		return cluster.SnapshotInfo{}, err
	}
	info, ok := g.Snapshots[name]
	if !ok {
		return cluster.SnapshotInfo{}, errors.NotFoundf("snapshot %s in repository %s", name, repository)
	}
	return info, nil
}

func (g *Gateway) RestoreSnapshot(_ context.Context, _ string, name string, req cluster.RestoreSnapshotRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("restore_snapshot", name); err != nil {
		return err
	}
	g.Restores = append(g.Restores, Restore{Snapshot: name, RestoreSnapshotRequest: req})
	return nil
}

func (g *Gateway) DeleteSnapshot(_ context.Context, repository, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("delete_snapshot", name); err != nil {
		return err
	}
	if _, ok := g.Snapshots[name]; !ok {
		return errors.NotFoundf("snapshot %s in repository %s", name, repository)
	}
	delete(g.Snapshots, name)
	return nil
}
