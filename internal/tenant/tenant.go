// Package tenant handles tenant identifiers and the prefix mapping used to
// rename tenants on restore.
package tenant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

var identifierPattern = regexp.MustCompile(`^[0-9a-zA-Z_-]+$`)

// Mapping maps a source tenant prefix to its destination prefix.
type Mapping map[string]string

// Destination returns the prefix objects of tenant are restored under.
func (m Mapping) Destination(tenant string) string {
	if repl, ok := m[tenant]; ok && repl != "" {
		return repl
	}
	return tenant
}

// Renamed reports whether tenant is restored under another prefix.
func (m Mapping) Renamed(tenant string) (string, bool) {
	repl, ok := m[tenant]
	return repl, ok && repl != ""
}

// ParseList decodes a list literal such as "['db1', 'db2']". JSON arrays and
// a bare comma separated list are accepted as well.
func ParseList(literal string) ([]string, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, nil
	}
	var out []string
	if strings.HasPrefix(literal, "[") {
		if err := yaml.Unmarshal([]byte(literal), &out); err != nil {
			return nil, errors.NotValidf("tenant list %q (%v)", literal, err)
		}
	} else {
		for _, part := range strings.Split(literal, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out, nil
}

// ParseMapping decodes a mapping literal such as "{'db1': 'db2'}" and
// validates every key and value.
func ParseMapping(literal string) (Mapping, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return Mapping{}, nil
	}
	out := Mapping{}
	if err := yaml.Unmarshal([]byte(literal), &out); err != nil {
		return nil, errors.NotValidf("tenant mapping %q (%v)", literal, err)
	}
	for k, v := range out {
		if err := Validate(k); err != nil {
			return nil, err
		}
		if err := Validate(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Validate checks that id only uses the characters allowed in tenant prefixes.
func Validate(id string) error {
	if !identifierPattern.MatchString(id) {
		return errors.NotValidf("tenant identifier %q", id)
	}
	return nil
}

// HasAnyPrefix reports whether name starts with one of prefixes.
func HasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Missing returns the requested tenants that are not in known.
func Missing(requested, known []string) []string {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	var out []string
	for _, r := range requested {
		if _, ok := set[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// FormatList renders ids the way operators see them in backup daemon
// requests: ['a', 'b'].
func FormatList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("'%s'", id)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Sorted returns the mapping keys in lexical order.
func (m Mapping) Sorted() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
