package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

// Rename replaces the leading prefix of s with replacement. s must start with
// prefix.
func Rename(s, prefix, replacement string) (string, error) {
	if !strings.HasPrefix(s, prefix) {
		return "", errors.NotValidf("renaming %q with prefix %q", s, prefix)
	}
	return replacement + s[len(prefix):], nil
}

// renameIfPrefixed leaves strings without the prefix untouched.
func renameIfPrefixed(s, prefix, replacement string) string {
	if !strings.HasPrefix(s, prefix) {
		return s
	}
	return replacement + s[len(prefix):]
}

// Select returns the documents whose key starts with prefix, in input order.
func Select[T TemplateDocument](docs []T, prefix string) []T {
	var out []T
	for _, doc := range docs {
		if strings.HasPrefix(doc.Key(), prefix) {
			out = append(out, doc)
		}
	}
	return out
}

// RenameAll renames every document. All of them must carry the prefix.
func RenameAll[T Template[T]](docs []T, prefix, replacement string) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		renamed, err := doc.Rename(prefix, replacement)
		if err != nil {
			return nil, err
		}
		out = append(out, renamed)
	}
	return out, nil
}

// Rename rewrites the template name, its index patterns, the component
// templates it is composed of and the alias names of its template section.
func (t IndexTemplate) Rename(prefix, replacement string) (IndexTemplate, error) {
	name, err := Rename(t.Name, prefix, replacement)
	if err != nil {
		return IndexTemplate{}, err
	}
	body := t.Body.clone()
	if err := body.renameList("index_patterns", prefix, replacement); err != nil {
		return IndexTemplate{}, fmt.Errorf("index template %s: %w", t.Name, err)
	}
	if err := body.renameList("composed_of", prefix, replacement); err != nil {
		return IndexTemplate{}, fmt.Errorf("index template %s: %w", t.Name, err)
	}
	if err := body.renameTemplateAliases(prefix, replacement); err != nil {
		return IndexTemplate{}, fmt.Errorf("index template %s: %w", t.Name, err)
	}
	return IndexTemplate{Name: name, Body: body}, nil
}

// Rename rewrites the template name and the alias names of its template
// section.
func (t ComponentTemplate) Rename(prefix, replacement string) (ComponentTemplate, error) {
	name, err := Rename(t.Name, prefix, replacement)
	if err != nil {
		return ComponentTemplate{}, err
	}
	body := t.Body.clone()
	if err := body.renameTemplateAliases(prefix, replacement); err != nil {
		return ComponentTemplate{}, fmt.Errorf("component template %s: %w", t.Name, err)
	}
	return ComponentTemplate{Name: name, Body: body}, nil
}

// Rename rewrites the template name, index patterns, composed_of references
// and alias names. Legacy templates carry their aliases at the top level.
func (t LegacyTemplate) Rename(prefix, replacement string) (LegacyTemplate, error) {
	name, err := Rename(t.Name, prefix, replacement)
	if err != nil {
		return LegacyTemplate{}, err
	}
	body := t.Body.clone()
	if err := body.renameList("index_patterns", prefix, replacement); err != nil {
		return LegacyTemplate{}, fmt.Errorf("legacy template %s: %w", t.Name, err)
	}
	if err := body.renameList("composed_of", prefix, replacement); err != nil {
		return LegacyTemplate{}, fmt.Errorf("legacy template %s: %w", t.Name, err)
	}
	if err := body.renameAliasKeys("aliases", prefix, replacement); err != nil {
		return LegacyTemplate{}, fmt.Errorf("legacy template %s: %w", t.Name, err)
	}
	return LegacyTemplate{Name: name, Body: body}, nil
}

// Rename rewrites the index names and alias names of the entries whose index
// starts with prefix. Other entries and all alias bodies are kept as is.
func (m AliasMap) Rename(prefix, replacement string) AliasMap {
	out := make(AliasMap, len(m))
	for index, entry := range m {
		if !strings.HasPrefix(index, prefix) {
			out[index] = entry
			continue
		}
		out[replacement+index[len(prefix):]] = IndexAliases{
			Aliases: renameKeys(entry.Aliases, prefix, replacement),
		}
	}
	return out
}

// WithPrefix keeps the entries whose index starts with prefix.
func (m AliasMap) WithPrefix(prefix string) AliasMap {
	out := AliasMap{}
	for index, entry := range m {
		if strings.HasPrefix(index, prefix) {
			out[index] = entry
		}
	}
	return out
}

func renameKeys(in map[string]json.RawMessage, prefix, replacement string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for name, body := range in {
		out[renameIfPrefixed(name, prefix, replacement)] = body
	}
	return out
}

func (o Object) renameList(field, prefix, replacement string) error {
	raw, ok := o[field]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	for i, v := range values {
		values[i] = renameIfPrefixed(v, prefix, replacement)
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}
	o[field] = encoded
	return nil
}

// renameAliasKeys treats a missing or null field as an empty alias map.
func (o Object) renameAliasKeys(field, prefix, replacement string) error {
	aliases := map[string]json.RawMessage{}
	if raw, ok := o[field]; ok {
		if err := json.Unmarshal(raw, &aliases); err != nil {
			return fmt.Errorf("decode %s: %w", field, err)
		}
	}
	encoded, err := json.Marshal(renameKeys(aliases, prefix, replacement))
	if err != nil {
		return err
	}
	o[field] = encoded
	return nil
}

// renameTemplateAliases renames template.aliases when the template section
// exists.
func (o Object) renameTemplateAliases(prefix, replacement string) error {
	raw, ok := o["template"]
	if !ok {
		return nil
	}
	var section Object
	if err := json.Unmarshal(raw, &section); err != nil {
		return fmt.Errorf("decode template: %w", err)
	}
	if section == nil {
		return nil
	}
	if err := section.renameAliasKeys("aliases", prefix, replacement); err != nil {
		return err
	}
	encoded, err := json.Marshal(section)
	if err != nil {
		return err
	}
	o["template"] = encoded
	return nil
}
