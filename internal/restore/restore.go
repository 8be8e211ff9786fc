// Package restore replays a manifest folder and its snapshot onto the cluster,
// optionally renaming tenants on the way.
package restore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/manifest"
	"github.com/rowjay/search-backup-utility/internal/snapshot"
	"github.com/rowjay/search-backup-utility/internal/tenant"
)

// Request parameterizes one restore run. Without Tenants the whole backup is
// restored and Mapping is ignored.
type Request struct {
	Folder   string
	Snapshot string
	Tenants  []string
	Mapping  tenant.Mapping
	Clean    bool
}

// ValidationError is returned when requested tenants were not part of the
// backup. It matches errors.NotValid.
type ValidationError struct {
	Valid     []string
	Requested []string
}

func (e *ValidationError) Error() string {
	return "Databases are not valid. Valid databases are " + tenant.FormatList(e.Valid)
}

func (e *ValidationError) Is(target error) bool {
	return target == errors.NotValid
}

// Orchestrator runs restores. It holds no state between runs.
type Orchestrator struct {
	gateway   cluster.Gateway
	store     *manifest.Store
	snapshots *snapshot.Action
	log       zerolog.Logger
}

func New(gateway cluster.Gateway, store *manifest.Store, snapshots *snapshot.Action, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		gateway:   gateway,
		store:     store,
		snapshots: snapshots,
		log:       log.With().Str("component", "restore").Logger(),
	}
}

// Run dispatches to Granular or Full depending on req.Tenants.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	if len(req.Tenants) > 0 {
		return o.Granular(ctx, req)
	}
	return o.Full(ctx, req)
}

// Granular restores the requested tenants. Validation happens before any
// cluster call so a rejected request leaves the cluster untouched.
func (o *Orchestrator) Granular(ctx context.Context, req Request) error {
	m, err := o.store.Load(ctx, req.Folder)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	if len(m.Databases) > 0 {
		if missing := tenant.Missing(req.Tenants, m.Databases); len(missing) > 0 {
			return &ValidationError{Valid: m.Databases, Requested: req.Tenants}
		}
	}

	for _, source := range req.Mapping.Sorted() {
		repl, renamed := req.Mapping.Renamed(source)
		switch {
		case !renamed:
		case len(tenant.Missing([]string{source}, req.Tenants)) > 0:
			o.log.Info().Str("tenant", source).Msg("mapping entry ignored, tenant is not restored")
		default:
			o.log.Info().Str("tenant", source).Str("destination", repl).Msg("tenant is restored under a new prefix")
		}
	}

	if req.Clean {
		patterns := make([]string, 0, len(req.Tenants))
		for _, t := range req.Tenants {
			patterns = append(patterns, req.Mapping.Destination(t)+"*")
		}
		if err := o.clean(ctx, patterns); err != nil {
			return err
		}
	}

	if err := o.restoreTemplates(ctx, m, req.Tenants, req.Mapping); err != nil {
		return err
	}

	if len(m.Databases) > 0 && !m.Has(manifest.IndicesFile) {
		o.log.Info().Str("folder", req.Folder).Msg("No indices and aliases to restore")
		return nil
	}

	byTenant := make(map[string][]string, len(req.Tenants))
	for _, t := range req.Tenants {
		if !m.Has(manifest.IndicesFile) {
			byTenant[t] = []string{t}
			continue
		}
		for _, index := range m.Indices {
			if strings.HasPrefix(index, t) {
				byTenant[t] = append(byTenant[t], index)
			}
		}
	}

	var plain []string
	for _, t := range req.Tenants {
		indices := byTenant[t]
		repl, renamed := req.Mapping.Renamed(t)
		if !renamed {
			plain = append(plain, indices...)
			continue
		}
		if len(indices) == 0 {
			o.log.Info().Str("tenant", t).Msg("no indices stored for tenant")
			continue
		}
		closing := make([]string, 0, len(indices))
		for _, index := range indices {
			closing = append(closing, repl+index[len(t):])
		}
		if err := o.closeAndRestore(ctx, req.Snapshot, closing, indices, &snapshot.Rename{Prefix: t, Replacement: repl}); err != nil {
			return err
		}
	}
	if len(plain) > 0 {
		if err := o.closeAndRestore(ctx, req.Snapshot, plain, plain, nil); err != nil {
			return err
		}
	}

	return o.restoreAliases(ctx, m, req.Tenants, req.Mapping)
}

// Full restores every template and every index of the snapshot with their
// aliases.
func (o *Orchestrator) Full(ctx context.Context, req Request) error {
	m, err := o.store.Load(ctx, req.Folder)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if req.Clean {
		if err := o.clean(ctx, []string{"*"}); err != nil {
			return err
		}
	}
	if err := o.restoreTemplates(ctx, m, nil, nil); err != nil {
		return err
	}

	indices, err := o.snapshots.Indices(ctx, req.Snapshot)
	if err != nil {
		return err
	}
	return o.closeAndRestore(ctx, req.Snapshot, indices, nil, nil)
}

func (o *Orchestrator) closeAndRestore(ctx context.Context, name string, closing, indices []string, rename *snapshot.Rename) error {
	o.log.Info().Strs("indices", closing).Msg("These indices will be stopped before restore")
	if err := o.gateway.CloseIndices(ctx, closing); err != nil {
		return fmt.Errorf("close indices: %w", err)
	}
	return o.snapshots.Restore(ctx, name, indices, rename)
}

// clean drops templates and indices matching patterns. Each template
// namespace and the index deletion tolerate a not-found answer on their own.
func (o *Orchestrator) clean(ctx context.Context, patterns []string) error {
	deletes := []struct {
		kind catalog.Kind
		del  func(context.Context, string) error
	}{
		{catalog.KindIndex, o.gateway.DeleteIndexTemplate},
		{catalog.KindComponent, o.gateway.DeleteComponentTemplate},
		{catalog.KindLegacy, o.gateway.DeleteLegacyTemplate},
	}
	for _, pattern := range patterns {
		for _, d := range deletes {
			err := d.del(ctx, pattern)
			if errors.Is(err, errors.NotFound) {
				o.log.Info().Str("kind", string(d.kind)).Str("pattern", pattern).Msg("nothing to clean")
				continue
			}
			if err != nil {
				return fmt.Errorf("clean %s %s: %w", d.kind, pattern, err)
			}
		}
	}

	err := o.gateway.DeleteIndices(ctx, append(append([]string(nil), patterns...), "-.*"))
	if errors.Is(err, errors.NotFound) {
		o.log.Info().Strs("patterns", patterns).Msg("no indices to clean")
		return nil
	}
	if err != nil {
		return fmt.Errorf("clean indices: %w", err)
	}
	return nil
}

func (o *Orchestrator) restoreTemplates(ctx context.Context, m *manifest.Manifest, tenants []string, mapping tenant.Mapping) error {
	if m.Has(manifest.ComponentTemplatesFile) {
		o.log.Info().Msg("Restoring component templates")
		templates, err := scope(m.ComponentTemplates, tenants, mapping)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if err := o.gateway.PutComponentTemplate(ctx, t); err != nil {
				return fmt.Errorf("put component template %s: %w", t.Name, err)
			}
		}
	} else {
		o.log.Info().Msg("No component templates to restore")
	}

	if m.Has(manifest.TemplatesFile) {
		o.log.Info().Msg("Restoring index templates")
		templates, err := scope(m.IndexTemplates, tenants, mapping)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if err := o.gateway.PutIndexTemplate(ctx, t); err != nil {
				return fmt.Errorf("put index template %s: %w", t.Name, err)
			}
		}
	} else {
		o.log.Info().Msg("No index templates to restore")
	}

	if m.Has(manifest.LegacyTemplatesFile) {
		o.log.Info().Msg("Restoring obsolete index templates")
		templates, err := scope(m.LegacyTemplates, tenants, mapping)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if t.Name == catalog.ReservedLegacyTemplate {
				continue
			}
			if err := o.gateway.PutLegacyTemplate(ctx, t); err != nil {
				return fmt.Errorf("put legacy template %s: %w", t.Name, err)
			}
		}
	} else {
		o.log.Info().Msg("No obsolete index templates to restore")
	}
	return nil
}

// scope keeps the templates of tenants and renames those of mapped tenants.
// Without tenants every template is returned unchanged.
func scope[T catalog.Template[T]](docs []T, tenants []string, mapping tenant.Mapping) ([]T, error) {
	if len(tenants) == 0 {
		return docs, nil
	}
	var out []T
	for _, t := range tenants {
		selected := catalog.Select(docs, t)
		if repl, ok := mapping.Renamed(t); ok {
			renamed, err := catalog.RenameAll(selected, t, repl)
			if err != nil {
				return nil, err
			}
			selected = renamed
		}
		out = append(out, selected...)
	}
	return out, nil
}

func (o *Orchestrator) restoreAliases(ctx context.Context, m *manifest.Manifest, tenants []string, mapping tenant.Mapping) error {
	if !m.Has(manifest.AliasesFile) {
		o.log.Info().Msg("No aliases to restore")
		return nil
	}
	for _, t := range tenants {
		aliases := m.Aliases.WithPrefix(t)
		if repl, ok := mapping.Renamed(t); ok {
			aliases = aliases.Rename(t, repl)
		}
		for _, index := range aliases.Indices() {
			entry := aliases[index]
			names := make([]string, 0, len(entry.Aliases))
			for name := range entry.Aliases {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if err := o.gateway.PutAlias(ctx, index, name, entry.Aliases[name]); err != nil {
					return fmt.Errorf("put alias %s on %s: %w", name, index, err)
				}
			}
		}
	}
	return nil
}
