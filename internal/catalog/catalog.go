// Package catalog models the configuration objects a backup persists next to
// the snapshot: the three template namespaces and the per-index alias map.
//
// Field values that are not tenant scoped are kept as raw JSON so a document
// read from the cluster or a manifest file is written back unchanged apart
// from the renamed references.
package catalog

import (
	"encoding/json"
	"sort"
)

// ReservedLegacyTemplate is never backed up nor restored.
const ReservedLegacyTemplate = "tenant_template"

type Kind string

const (
	KindIndex     Kind = "index_template"
	KindComponent Kind = "component_template"
	KindLegacy    Kind = "legacy_template"
)

// Object is a JSON object with undecoded field values.
type Object map[string]json.RawMessage

func (o Object) clone() Object {
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// TemplateDocument is implemented by IndexTemplate, ComponentTemplate and
// LegacyTemplate only.
type TemplateDocument interface {
	Kind() Kind
	// Key is the name the template is stored under in the cluster.
	Key() string
	isTemplate()
}

// Template is a TemplateDocument that can produce a renamed copy of itself.
type Template[T any] interface {
	TemplateDocument
	Rename(prefix, replacement string) (T, error)
}

// IndexTemplate is one entry of the composable index template list.
type IndexTemplate struct {
	Name string `json:"name"`
	Body Object `json:"index_template"`
}

func (t IndexTemplate) Kind() Kind  { return KindIndex }
func (t IndexTemplate) Key() string { return t.Name }
func (IndexTemplate) isTemplate()   {}

// ComponentTemplate is one entry of the component template list.
type ComponentTemplate struct {
	Name string `json:"name"`
	Body Object `json:"component_template"`
}

func (t ComponentTemplate) Kind() Kind  { return KindComponent }
func (t ComponentTemplate) Key() string { return t.Name }
func (ComponentTemplate) isTemplate()   {}

// LegacyTemplate is a template of the older, non-composable API. It has no
// inline name: the cluster and the manifest key it by name.
type LegacyTemplate struct {
	Name string
	Body Object
}

func (t LegacyTemplate) Kind() Kind  { return KindLegacy }
func (t LegacyTemplate) Key() string { return t.Name }
func (LegacyTemplate) isTemplate()   {}

// LegacyTemplates converts the name-keyed form used on the wire and on disk.
// The result is sorted by name.
func LegacyTemplates(byName map[string]Object) []LegacyTemplate {
	out := make([]LegacyTemplate, 0, len(byName))
	for name, body := range byName {
		out = append(out, LegacyTemplate{Name: name, Body: body})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LegacyTemplatesByName is the inverse of LegacyTemplates.
func LegacyTemplatesByName(templates []LegacyTemplate) map[string]Object {
	out := make(map[string]Object, len(templates))
	for _, t := range templates {
		out[t.Name] = t.Body
	}
	return out
}

// IndexAliases is the alias section of one index.
type IndexAliases struct {
	Aliases map[string]json.RawMessage `json:"aliases"`
}

// AliasMap maps an index name to its aliases.
type AliasMap map[string]IndexAliases

// Indices returns the index names in lexical order.
func (m AliasMap) Indices() []string {
	out := make([]string, 0, len(m))
	for index := range m {
		out = append(out, index)
	}
	sort.Strings(out)
	return out
}

// Only keeps the entries whose index is in indices.
func (m AliasMap) Only(indices []string) AliasMap {
	out := AliasMap{}
	for _, index := range indices {
		if entry, ok := m[index]; ok {
			out[index] = entry
		}
	}
	return out
}
