package storage

import (
	"strings"

	"github.com/juju/errors"

	"github.com/rowjay/search-backup-utility/internal/config"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// New opens the manifest storage named by cfg.Backend. The local backend is
// the default; with an empty root, folders are taken as filesystem paths.
func New(cfg config.StorageConfig) (Storage, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case BackendLocal, "":
		return NewLocal(cfg.Local.Path), nil
	case BackendS3:
		var missing []string
		if cfg.S3.Endpoint == "" {
			missing = append(missing, "endpoint")
		}
		if cfg.S3.Bucket == "" {
			missing = append(missing, "bucket")
		}
		if len(missing) > 0 {
			return nil, errors.NotValidf("s3 storage without %s", strings.Join(missing, " and "))
		}
		return NewS3(cfg.S3)
	default:
		return nil, errors.NotSupportedf("storage backend %q", backend)
	}
}
