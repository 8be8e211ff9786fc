package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Cluster       ClusterConfig       `mapstructure:"cluster"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Restore       RestoreConfig       `mapstructure:"restore"`
	Manifest      ManifestConfig      `mapstructure:"manifest"`
	Storage       StorageConfig       `mapstructure:"storage"`
	DBaaS         DBaaSConfig         `mapstructure:"dbaas"`
	Recovery      RecoveryConfig      `mapstructure:"recovery"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Security      SecurityConfig      `mapstructure:"security"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockDir          string        `mapstructure:"lock_dir"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
}

// ClusterConfig locates the search cluster.
type ClusterConfig struct {
	Host           string        `mapstructure:"host"` // host:port
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	CACertPath     string        `mapstructure:"ca_cert_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SnapshotConfig struct {
	Repository string `mapstructure:"repository"`
}

type BackupConfig struct {
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type RestoreConfig struct {
	Clean             bool `mapstructure:"clean"`
	SkipUsersRecovery bool `mapstructure:"skip_users_recovery"`
}

// ManifestConfig controls how manifest files are stored at rest.
type ManifestConfig struct {
	Compression   string `mapstructure:"compression"` // none, gzip, zstd
	Encryption    bool   `mapstructure:"encryption"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // local, s3
	Local   LocalStore `mapstructure:"local"`
	S3      S3Store    `mapstructure:"s3"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

// DBaaSConfig points at the services that own user credentials. Leaving an
// address or the physical database id empty disables user recovery.
type DBaaSConfig struct {
	Adapter            Endpoint `mapstructure:"adapter"`
	Aggregator         Endpoint `mapstructure:"aggregator"`
	PhysicalDatabaseID string   `mapstructure:"physical_database_id"`
	CACertPath         string   `mapstructure:"ca_cert_path"`
}

type Endpoint struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RecoveryConfig tunes the user recovery poller.
type RecoveryConfig struct {
	StateInterval time.Duration `mapstructure:"state_interval"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}

type SecurityConfig struct {
	MinTLSVersion string `mapstructure:"min_tls_version"` // 1.2 or 1.3
}

// Credentials returns the basic auth pair only when both parts are set.
func (e Endpoint) Credentials() (string, string, bool) {
	if e.Username == "" || e.Password == "" {
		return "", "", false
	}
	return e.Username, e.Password, true
}

// Credentials returns the basic auth pair only when both parts are set.
func (c ClusterConfig) Credentials() (string, string, bool) {
	return Endpoint{Username: c.Username, Password: c.Password}.Credentials()
}

// RecoveryEnabled reports whether both DBaaS services and the physical
// database are configured.
func (d DBaaSConfig) RecoveryEnabled() bool {
	return d.Adapter.Address != "" && d.Aggregator.Address != "" && d.PhysicalDatabaseID != ""
}
