package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, 2*time.Hour, cfg.Global.OperationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Recovery.StateInterval)
	assert.Equal(t, 10*time.Second, cfg.Recovery.RetryInterval)
	assert.Equal(t, 240*time.Second, cfg.Recovery.Timeout)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.False(t, cfg.DBaaS.RecoveryEnabled())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ES_HOST", "opensearch:9200")
	t.Setenv("TLS_HTTP_ENABLED", "true")
	t.Setenv("ES_USERNAME", "admin")
	t.Setenv("SNAPSHOT_REPOSITORY_NAME", "snapshots")
	t.Setenv("DBAAS_ADAPTER_ADDRESS", "http://adapter:8080")
	t.Setenv("DBAAS_AGGREGATOR_REGISTRATION_ADDRESS", "http://aggregator:8080")
	t.Setenv("DBAAS_AGGREGATOR_PHYSICAL_DATABASE_IDENTIFIER", "opensearch-1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "opensearch:9200", cfg.Cluster.Host)
	assert.True(t, cfg.Cluster.TLSEnabled)
	assert.Equal(t, "snapshots", cfg.Snapshot.Repository)
	assert.True(t, cfg.DBaaS.RecoveryEnabled())

	// password missing: no basic auth at all
	_, _, ok := cfg.Cluster.Credentials()
	assert.False(t, ok)
}

func TestLoadLegacyBooleanSpellings(t *testing.T) {
	cases := map[string]bool{
		"yes":   true,
		"1":     true,
		"True":  true,
		"no":    false,
		"false": false,
		"":      false,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("TLS_HTTP_ENABLED", value)
			t.Setenv("SBU_RESTORE_CLEAN", value)

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, want, cfg.Cluster.TLSEnabled)
			assert.Equal(t, want, cfg.Restore.Clean)
		})
	}
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ES_HOST", "legacy:9200")
	t.Setenv("SBU_CLUSTER_HOST", "primary:9200")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "primary:9200", cfg.Cluster.Host)
}

func TestLoadEncryptedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	plain := filepath.Join(dir, "sbu.yaml")
	require.NoError(t, os.WriteFile(plain, []byte("snapshot:\n  repository: vault\nrecovery:\n  timeout: 30s\n"), 0o600))

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	encrypted := filepath.Join(dir, "sbu.yaml.enc")
	require.NoError(t, EncryptConfigFile(plain, encrypted, key))
	t.Setenv("SBU_CONFIG_KEY", key)

	cfg, err := Load(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "vault", cfg.Snapshot.Repository)
	assert.Equal(t, 30*time.Second, cfg.Recovery.Timeout)
}

func TestEndpointCredentials(t *testing.T) {
	user, pass, ok := Endpoint{Username: "u", Password: "p"}.Credentials()
	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	_, _, ok = Endpoint{Username: "u"}.Credentials()
	assert.False(t, ok)
}

func TestEncryptConfigFileGuards(t *testing.T) {
	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	plain := filepath.Join(dir, "sbu.yaml")
	require.NoError(t, os.WriteFile(plain, []byte("cluster: [unterminated\n"), 0o600))

	assert.ErrorContains(t, EncryptConfigFile(plain, plain, key), "refusing to overwrite")
	assert.ErrorContains(t, EncryptConfigFile(plain, filepath.Join(dir, "out.yaml"), key), "must end in")
	assert.ErrorContains(t, EncryptConfigFile(plain, filepath.Join(dir, "sbu.yaml.enc"), key), "parse config")
	_, err := os.Stat(filepath.Join(dir, "sbu.yaml.enc"))
	assert.True(t, os.IsNotExist(err))
}
