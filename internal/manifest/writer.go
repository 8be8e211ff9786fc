package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rowjay/search-backup-utility/internal/catalog"
	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/tenant"
)

// Writer captures the live cluster state into a manifest folder.
type Writer struct {
	gateway cluster.Gateway
	store   *Store
	log     zerolog.Logger
}

func NewWriter(gateway cluster.Gateway, store *Store, log zerolog.Logger) *Writer {
	return &Writer{gateway: gateway, store: store, log: log.With().Str("component", "backup").Logger()}
}

// Capture reads the cluster state. With tenants set only objects whose name
// starts with one of them are kept; otherwise every template and alias is kept
// and indices starting with "." are dropped.
func (w *Writer) Capture(ctx context.Context, tenants []string) (*Manifest, error) {
	m := &Manifest{}

	w.log.Info().Msg("Backing up templates")
	var err error
	if m.IndexTemplates, err = w.gateway.IndexTemplates(ctx); err != nil {
		return nil, fmt.Errorf("read index templates: %w", err)
	}
	legacy, err := w.gateway.LegacyTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("read legacy templates: %w", err)
	}
	if m.ComponentTemplates, err = w.gateway.ComponentTemplates(ctx); err != nil {
		return nil, fmt.Errorf("read component templates: %w", err)
	}
	for _, t := range legacy {
		if t.Name != catalog.ReservedLegacyTemplate {
			m.LegacyTemplates = append(m.LegacyTemplates, t)
		}
	}

	indices, err := w.gateway.Indices(ctx)
	if err != nil {
		return nil, fmt.Errorf("read indices: %w", err)
	}
	aliases, err := w.gateway.Aliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("read aliases: %w", err)
	}

	if len(tenants) == 0 {
		for _, index := range indices {
			if !strings.HasPrefix(index, ".") {
				m.Indices = append(m.Indices, index)
			}
		}
		m.Aliases = aliases.Only(m.Indices)
		return m, nil
	}

	m.Databases = append([]string(nil), tenants...)
	m.IndexTemplates = selectTenants(m.IndexTemplates, tenants)
	m.ComponentTemplates = selectTenants(m.ComponentTemplates, tenants)
	m.LegacyTemplates = selectTenants(m.LegacyTemplates, tenants)
	for _, index := range indices {
		if tenant.HasAnyPrefix(index, tenants) {
			m.Indices = append(m.Indices, index)
		}
	}
	m.Aliases = aliases.Only(m.Indices)
	return m, nil
}

// Write captures the cluster state and saves it into folder.
func (w *Writer) Write(ctx context.Context, folder string, tenants []string) (*Manifest, error) {
	m, err := w.Capture(ctx, tenants)
	if err != nil {
		return nil, err
	}
	if err := w.store.Save(ctx, folder, m); err != nil {
		return nil, err
	}
	w.log.Info().
		Str("folder", folder).
		Int("indices", len(m.Indices)).
		Int("index_templates", len(m.IndexTemplates)).
		Int("component_templates", len(m.ComponentTemplates)).
		Int("legacy_templates", len(m.LegacyTemplates)).
		Msg("All templates are backed up")
	return m, nil
}

func selectTenants[T catalog.TemplateDocument](docs []T, tenants []string) []T {
	var out []T
	for _, d := range docs {
		if tenant.HasAnyPrefix(d.Key(), tenants) {
			out = append(out, d)
		}
	}
	return out
}
