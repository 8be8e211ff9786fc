package catalog

import (
	"encoding/json"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustObject(t *testing.T, raw string) Object {
	t.Helper()
	var o Object
	require.NoError(t, json.Unmarshal([]byte(raw), &o))
	return o
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestRename(t *testing.T) {
	got, err := Rename("tenant1-logs", "tenant1", "tenant2")
	require.NoError(t, err)
	assert.Equal(t, "tenant2-logs", got)

	_, err = Rename("other-logs", "tenant1", "tenant2")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRenameTwiceWithForeignReplacement(t *testing.T) {
	once, err := Rename("tests-1", "tests", "prod")
	require.NoError(t, err)
	_, err = Rename(once, "tests", "prod")
	assert.Error(t, err, "renamed value no longer carries the prefix")
}

func TestIndexTemplateRename(t *testing.T) {
	tpl := IndexTemplate{
		Name: "temporary",
		Body: mustObject(t, `{
			"index_patterns": ["temporary-*"],
			"template": {
				"settings": {"index": {"number_of_shards": "2", "number_of_replicas": "1"}},
				"aliases": {"temporary": {}}
			},
			"composed_of": ["temporary_123", "temporary_321"]
		}`),
	}

	renamed, err := tpl.Rename("temporary", "constant")
	require.NoError(t, err)

	assert.Equal(t, "constant", renamed.Name)
	assert.JSONEq(t, `{
		"index_patterns": ["constant-*"],
		"template": {
			"settings": {"index": {"number_of_shards": "2", "number_of_replicas": "1"}},
			"aliases": {"constant": {}}
		},
		"composed_of": ["constant_123", "constant_321"]
	}`, marshal(t, renamed.Body))

	// the source document is not modified
	assert.Equal(t, "temporary", tpl.Name)
	assert.JSONEq(t, `["temporary-*"]`, string(tpl.Body["index_patterns"]))
}

func TestIndexTemplateRenameKeepsForeignReferences(t *testing.T) {
	tpl := IndexTemplate{
		Name: "db1-main",
		Body: mustObject(t, `{"index_patterns": ["db1-*", "shared-*"], "composed_of": ["common", "db1-mappings"]}`),
	}
	renamed, err := tpl.Rename("db1", "db9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"index_patterns": ["db9-*", "shared-*"], "composed_of": ["common", "db9-mappings"]}`, marshal(t, renamed.Body))
}

func TestIndexTemplateWithoutOptionalFields(t *testing.T) {
	tpl := IndexTemplate{Name: "db1", Body: mustObject(t, `{"priority": 10}`)}
	renamed, err := tpl.Rename("db1", "db2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority": 10}`, marshal(t, renamed.Body))
}

func TestComponentTemplateRename(t *testing.T) {
	tpl := ComponentTemplate{
		Name: "temporary_123",
		Body: mustObject(t, `{
			"template": {
				"settings": {"index": {"number_of_shards": "4"}},
				"aliases": {"temporary8291": {"routing": "shard-1"}}
			}
		}`),
	}

	renamed, err := tpl.Rename("temporary", "constant")
	require.NoError(t, err)

	assert.Equal(t, "constant_123", renamed.Name)
	assert.JSONEq(t, `{
		"template": {
			"settings": {"index": {"number_of_shards": "4"}},
			"aliases": {"constant8291": {"routing": "shard-1"}}
		}
	}`, marshal(t, renamed.Body))
}

func TestComponentTemplateMissingAliasesBecomesEmpty(t *testing.T) {
	tpl := ComponentTemplate{Name: "db1-c", Body: mustObject(t, `{"template": {"settings": {}}}`)}
	renamed, err := tpl.Rename("db1", "db2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"template": {"settings": {}, "aliases": {}}}`, marshal(t, renamed.Body))
}

func TestLegacyTemplateRename(t *testing.T) {
	tpl := LegacyTemplate{
		Name: "testsdsad",
		Body: mustObject(t, `{
			"order": 0,
			"index_patterns": ["testsdsad*"],
			"settings": {"index": {"number_of_shards": "1"}},
			"mappings": {
				"_source": {"enabled": false},
				"properties": {
					"created_at": {"format": "EEE MMM dd HH:mm:ss Z yyyy", "type": "date"},
					"host_name": {"type": "keyword"}
				}
			},
			"aliases": {"testsdsad21": {}}
		}`),
	}

	renamed, err := tpl.Rename("tests", "prod")
	require.NoError(t, err)

	assert.Equal(t, "proddsad", renamed.Name)
	assert.JSONEq(t, `["proddsad*"]`, string(renamed.Body["index_patterns"]))
	assert.JSONEq(t, `{"proddsad21": {}}`, string(renamed.Body["aliases"]))
	for _, field := range []string{"order", "settings", "mappings"} {
		assert.Equal(t, string(tpl.Body[field]), string(renamed.Body[field]), field)
	}
}

func TestLegacyTemplateWithoutAliases(t *testing.T) {
	tpl := LegacyTemplate{Name: "db1", Body: mustObject(t, `{"index_patterns": ["db1*"]}`)}
	renamed, err := tpl.Rename("db1", "db2")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(renamed.Body["aliases"]))
	_, hasComposed := renamed.Body["composed_of"]
	assert.False(t, hasComposed)
}

func TestAliasMapRename(t *testing.T) {
	var aliases AliasMap
	require.NoError(t, json.Unmarshal([]byte(`{
		"db1-logs": {"aliases": {"db1-read": {"filter": {"term": {"a": 1}}}, "global": {}}},
		"db2-logs": {"aliases": {"db2-read": {}}}
	}`), &aliases))

	renamed := aliases.Rename("db1", "copy")

	assert.JSONEq(t, `{
		"copy-logs": {"aliases": {"copy-read": {"filter": {"term": {"a": 1}}}, "global": {}}},
		"db2-logs": {"aliases": {"db2-read": {}}}
	}`, marshal(t, renamed))
}

func TestSelectAndRenameAll(t *testing.T) {
	docs := []ComponentTemplate{
		{Name: "db1-a", Body: Object{}},
		{Name: "db2-a", Body: Object{}},
		{Name: "db1-b", Body: Object{}},
	}
	selected := Select(docs, "db1")
	require.Len(t, selected, 2)

	renamed, err := RenameAll(selected, "db1", "db3")
	require.NoError(t, err)
	assert.Equal(t, "db3-a", renamed[0].Name)
	assert.Equal(t, "db3-b", renamed[1].Name)
}

func TestLegacyTemplatesSorted(t *testing.T) {
	got := LegacyTemplates(map[string]Object{"b": {}, "a": {}})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key())
	assert.Equal(t, KindLegacy, got[0].Kind())
	assert.Len(t, LegacyTemplatesByName(got), 2)
}
