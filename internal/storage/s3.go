package storage

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"

	"github.com/juju/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rowjay/search-backup-utility/internal/config"
)

type S3 struct {
	Client *minio.Client
	Bucket string
}

func NewS3(cfg config.S3Store) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	lookup := minio.BucketLookupDNS
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: cfg.Bucket}, nil
}

// objectKey drops the leading slash of absolute folder paths.
func objectKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func (s *S3) Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error {
	opts := minio.PutObjectOptions{UserMetadata: metadata}
	_, err := s.Client.PutObject(ctx, s.Bucket, objectKey(key), reader, size, opts)
	return err
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject only fails on first read, so existence is checked upfront.
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotFoundf("object %s", key)
	}
	return s.Client.GetObject(ctx, s.Bucket, objectKey(key), minio.GetObjectOptions{})
}

func (s *S3) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.Client.StatObject(ctx, s.Bucket, objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return ObjectInfo{}, errors.NotFoundf("object %s", key)
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: stat.Size, Modified: stat.LastModified, ETag: stat.ETag, Metadata: stat.UserMetadata}, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	listPrefix := objectKey(prefix)
	if listPrefix != "" && !strings.HasSuffix(listPrefix, "/") {
		listPrefix += "/"
	}
	ch := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: listPrefix, Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, obj.Err
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified, ETag: obj.ETag})
	}
	return infos, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, objectKey(key), minio.RemoveObjectOptions{})
}

func (s *S3) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, errors.NotFoundf("folder %s", prefix)
	}
	for i, obj := range objects {
		if err := s.Client.RemoveObject(ctx, s.Bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Client.StatObject(ctx, s.Bucket, objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
