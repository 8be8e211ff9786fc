package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/search-backup-utility/internal/cryptoutil"
	"github.com/rowjay/search-backup-utility/internal/util"
)

const (
	envPrefix = "SBU"
)

// legacyEnv binds configuration keys to the environment variables the
// backup daemon sets for its scripts.
var legacyEnv = map[string]string{
	"cluster.host":               "ES_HOST",
	"cluster.tls_enabled":        "TLS_HTTP_ENABLED",
	"cluster.username":           "ES_USERNAME",
	"cluster.password":           "ES_PASSWORD",
	"cluster.ca_cert_path":       "ROOT_CA_CERTIFICATE",
	"snapshot.repository":        "SNAPSHOT_REPOSITORY_NAME",
	"dbaas.adapter.address":      "DBAAS_ADAPTER_ADDRESS",
	"dbaas.adapter.username":     "DBAAS_ADAPTER_USERNAME",
	"dbaas.adapter.password":     "DBAAS_ADAPTER_PASSWORD",
	"dbaas.aggregator.address":   "DBAAS_AGGREGATOR_REGISTRATION_ADDRESS",
	"dbaas.aggregator.username":  "DBAAS_AGGREGATOR_REGISTRATION_USERNAME",
	"dbaas.aggregator.password":  "DBAAS_AGGREGATOR_REGISTRATION_PASSWORD",
	"dbaas.physical_database_id": "DBAAS_AGGREGATOR_PHYSICAL_DATABASE_IDENTIFIER",
}

// boolKeys accept the same spellings as command line flags ("yes", "t", "1").
var boolKeys = []string{
	"cluster.tls_enabled",
	"restore.clean",
	"restore.skip_users_recovery",
	"manifest.encryption",
	"storage.s3.use_ssl",
	"storage.s3.force_path_style",
	"storage.s3.tls_insecure_skip",
}

// Load reads configuration from a file (optionally encrypted), env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)
	if err := bindEnv(vp); err != nil {
		return nil, err
	}

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			vp.SetConfigType(configTypeFromPath(resolved))
			key := os.Getenv("SBU_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but SBU_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	normalizeBools(vp)

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func bindEnv(vp *viper.Viper) error {
	for key, legacy := range legacyEnv {
		own := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := vp.BindEnv(key, own, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func normalizeBools(vp *viper.Viper) {
	for _, key := range boolKeys {
		if vp.IsSet(key) {
			vp.Set(key, util.ParseBool(vp.GetString(key)))
		}
	}
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("SBU_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"sbu.yaml",
		"sbu.yml",
		"sbu.toml",
		"sbu.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "sbu")
		for _, c := range append(candidates, "sbu.yaml.enc", "sbu.yml.enc", "sbu.toml.enc") {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch filepath.Ext(trimmed) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.operation_timeout", "2h")
	vp.SetDefault("cluster.request_timeout", "60s")
	vp.SetDefault("backup.retry_count", 1)
	vp.SetDefault("backup.retry_backoff", "10s")
	vp.SetDefault("manifest.compression", "none")
	vp.SetDefault("storage.backend", "local")
	vp.SetDefault("storage.local.path", "")
	vp.SetDefault("dbaas.ca_cert_path", "/certs/dbaas-adapter/ca.crt")
	vp.SetDefault("recovery.state_interval", "5s")
	vp.SetDefault("recovery.retry_interval", "10s")
	vp.SetDefault("recovery.timeout", "240s")
	vp.SetDefault("security.min_tls_version", "1.2")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.RetryBackoff == 0 {
		cfg.Backup.RetryBackoff = 10 * time.Second
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 2 * time.Hour
	}
	if cfg.Recovery.StateInterval == 0 {
		cfg.Recovery.StateInterval = 5 * time.Second
	}
	if cfg.Recovery.RetryInterval == 0 {
		cfg.Recovery.RetryInterval = 10 * time.Second
	}
	if cfg.Recovery.Timeout == 0 {
		cfg.Recovery.Timeout = 240 * time.Second
	}
	cfg.Manifest.Compression = strings.ToLower(cfg.Manifest.Compression)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}

func expandEnv(cfg *Config) {
	cfg.Cluster.Username = os.ExpandEnv(cfg.Cluster.Username)
	cfg.Cluster.Password = os.ExpandEnv(cfg.Cluster.Password)
	cfg.Manifest.EncryptionKey = os.ExpandEnv(cfg.Manifest.EncryptionKey)
	cfg.Storage.S3.AccessKey = os.ExpandEnv(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = os.ExpandEnv(cfg.Storage.S3.SecretKey)
	cfg.Storage.S3.SessionToken = os.ExpandEnv(cfg.Storage.S3.SessionToken)
	cfg.DBaaS.Adapter.Password = os.ExpandEnv(cfg.DBaaS.Adapter.Password)
	cfg.DBaaS.Aggregator.Password = os.ExpandEnv(cfg.DBaaS.Aggregator.Password)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
