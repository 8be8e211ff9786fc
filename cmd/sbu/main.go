package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rowjay/search-backup-utility/internal/app"
	"github.com/rowjay/search-backup-utility/internal/cluster"
	"github.com/rowjay/search-backup-utility/internal/config"
	"github.com/rowjay/search-backup-utility/internal/logging"
	"github.com/rowjay/search-backup-utility/internal/notify"
	"github.com/rowjay/search-backup-utility/internal/recovery"
	"github.com/rowjay/search-backup-utility/internal/storage"
	"github.com/rowjay/search-backup-utility/internal/tenant"
	"github.com/rowjay/search-backup-utility/internal/util"
	"github.com/rowjay/search-backup-utility/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	ClusterHost   string
	Repository    string
	Storage       string
	LocalPath     string
	S3Endpoint    string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string
	S3UseSSL      string
	S3PathStyle   string
	Compression   string
	EncryptionKey string
	LockDir       string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:          "sbu",
		Short:        "Multi-tenant backup and restore for OpenSearch clusters",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.ClusterHost, "host", "", "Cluster address (host:port)")
	rootCmd.PersistentFlags().StringVar(&overrides.Repository, "repository", "", "Snapshot repository name")
	rootCmd.PersistentFlags().StringVar(&overrides.Storage, "storage", "", "Manifest storage backend (local, s3)")
	rootCmd.PersistentFlags().StringVar(&overrides.LocalPath, "storage-path", "", "Local storage root")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	rootCmd.PersistentFlags().StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.Compression, "compression", "", "Manifest compression (none, gzip, zstd)")
	rootCmd.PersistentFlags().StringVar(&overrides.EncryptionKey, "encryption-key", "", "Manifest encryption key (base64 or hex)")
	rootCmd.PersistentFlags().StringVar(&overrides.LockDir, "lock-dir", "", "Directory holding operation lock files")

	rootCmd.AddCommand(newBackupCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newEvictCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newBackupCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var dbs string
	var retry int

	cmd := &cobra.Command{
		Use:   "backup <folder>",
		Short: "Write the manifest folder and snapshot the selected indices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := tenant.ParseList(dbs)
			if err != nil {
				return err
			}
			appSvc, err := newApp(root, overrides)
			if err != nil {
				return err
			}
			if retry > 0 {
				appSvc.Cfg.Backup.RetryCount = retry
			}
			_, err = appSvc.Backup(cmd.Context(), app.BackupOptions{Folder: args[0], Tenants: tenants})
			return err
		},
	}
	cmd.Flags().StringVarP(&dbs, "dbs", "d", "", "Databases to back up, e.g. \"['db1', 'db2']\"")
	cmd.Flags().IntVar(&retry, "retry", 0, "Backup attempts")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var dbs string
	var dbmap string
	var clean string
	var skipRecovery string

	cmd := &cobra.Command{
		Use:   "restore <folder>",
		Short: "Restore templates, indices and aliases from a manifest folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := tenant.ParseList(dbs)
			if err != nil {
				return err
			}
			mapping, err := tenant.ParseMapping(dbmap)
			if err != nil {
				return err
			}
			appSvc, err := newApp(root, overrides)
			if err != nil {
				return err
			}
			opts := app.RestoreOptions{
				Folder:            args[0],
				Tenants:           tenants,
				Mapping:           mapping,
				Clean:             appSvc.Cfg.Restore.Clean,
				SkipUsersRecovery: appSvc.Cfg.Restore.SkipUsersRecovery,
			}
			if cmd.Flags().Changed("clean") {
				opts.Clean = util.ParseBool(clean)
			}
			if cmd.Flags().Changed("skip-users-recovery") {
				opts.SkipUsersRecovery = util.ParseBool(skipRecovery)
			}
			return appSvc.Restore(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&dbs, "dbs", "d", "", "Databases to restore, e.g. \"['db1', 'db2']\"")
	cmd.Flags().StringVarP(&dbmap, "dbmap", "m", "", "Database renames, e.g. \"{'db1': 'db5'}\"")
	cmd.Flags().StringVar(&clean, "clean", "false", "Delete existing templates and indices of the restored databases first")
	cmd.Flags().StringVar(&skipRecovery, "skip-users-recovery", "false", "Do not recover user credentials after restore")
	cmd.Flags().Lookup("clean").NoOptDefVal = "true"
	cmd.Flags().Lookup("skip-users-recovery").NoOptDefVal = "true"
	return cmd
}

func newEvictCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <folder>",
		Short: "Delete a backup snapshot and its manifest folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, err := newApp(root, overrides)
			if err != nil {
				return err
			}
			return appSvc.Evict(cmd.Context(), args[0])
		},
	}
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <folder>",
		Short: "List the databases of a granular backup or the indices of a full one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appSvc, err := newApp(root, overrides)
			if err != nil {
				return err
			}
			items, err := appSvc.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), item)
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// newApp loads the configuration and wires the cluster client, the manifest
// storage, user recovery and notifications.
func newApp(root *rootFlags, overrides *overrideFlags) (*app.App, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	gateway, err := cluster.New(cfg.Cluster, cfg.Security, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	poller, err := recovery.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, gateway, store, poller, logger, notify.FromConfig(cfg.Notifications))
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if overrides.LockDir != "" {
		cfg.Global.LockDir = overrides.LockDir
	}

	if overrides.ClusterHost != "" {
		cfg.Cluster.Host = overrides.ClusterHost
	}
	if overrides.Repository != "" {
		cfg.Snapshot.Repository = overrides.Repository
	}

	if overrides.Storage != "" {
		cfg.Storage.Backend = overrides.Storage
	}
	if overrides.LocalPath != "" {
		cfg.Storage.Local.Path = overrides.LocalPath
	}
	if overrides.S3Endpoint != "" {
		cfg.Storage.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Storage.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Storage.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Storage.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Storage.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Storage.S3.UseSSL = util.ParseBool(overrides.S3UseSSL)
	}
	if overrides.S3PathStyle != "" {
		cfg.Storage.S3.ForcePathStyle = util.ParseBool(overrides.S3PathStyle)
	}

	if overrides.Compression != "" {
		cfg.Manifest.Compression = overrides.Compression
	}
	if overrides.EncryptionKey != "" {
		cfg.Manifest.EncryptionKey = overrides.EncryptionKey
		cfg.Manifest.Encryption = true
	}

	cfg.Manifest.Compression = strings.ToLower(cfg.Manifest.Compression)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}
