// Package manifest persists the cluster state captured next to a snapshot:
// tenant list, index list, alias map and the three template collections.
package manifest

import (
	"github.com/rowjay/search-backup-utility/internal/catalog"
)

// File names inside a manifest folder.
const (
	DatabasesFile          = "databases.txt"
	IndicesFile            = "indices.txt"
	AliasesFile            = "aliases.json"
	TemplatesFile          = "templates.json"
	LegacyTemplatesFile    = "obsolete_templates.json"
	ComponentTemplatesFile = "component_templates.json"
)

// Files lists every manifest file in write order.
var Files = []string{
	TemplatesFile,
	LegacyTemplatesFile,
	ComponentTemplatesFile,
	AliasesFile,
	IndicesFile,
	DatabasesFile,
}

// Manifest is the backed-up state of one point in time. It is never modified
// after it is written; a later backup to the same folder replaces it.
type Manifest struct {
	Databases          []string
	Indices            []string
	Aliases            catalog.AliasMap
	IndexTemplates     []catalog.IndexTemplate
	ComponentTemplates []catalog.ComponentTemplate
	LegacyTemplates    []catalog.LegacyTemplate

	present map[string]bool
}

// Has reports whether file was found when the manifest was loaded. For a
// manifest built in memory it reports whether the file would be written.
func (m *Manifest) Has(file string) bool {
	if m.present != nil {
		return m.present[file]
	}
	switch file {
	case DatabasesFile:
		return len(m.Databases) > 0
	case IndicesFile:
		return len(m.Indices) > 0
	case AliasesFile:
		return len(m.Aliases) > 0
	case TemplatesFile:
		return len(m.IndexTemplates) > 0
	case ComponentTemplatesFile:
		return len(m.ComponentTemplates) > 0
	case LegacyTemplatesFile:
		return len(m.LegacyTemplates) > 0
	}
	return false
}

// Granular reports whether the backup was scoped to a tenant subset.
func (m *Manifest) Granular() bool {
	return m.Has(DatabasesFile)
}

func (m *Manifest) markPresent(file string) {
	if m.present == nil {
		m.present = map[string]bool{}
	}
	m.present[file] = true
}
