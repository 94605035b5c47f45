package accessibility

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectClient is the subset of the object storage client used by MinioBackend
type ObjectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ObjectStorageConfig holds the connection settings of the object storage
type ObjectStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Timeout   time.Duration
}

type minioClientWrapper struct {
	*minio.Client
}

func (c *minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucketName, objectName, opts)
}

// NewObjectClient connects to an S3-compatible object storage
func NewObjectClient(cfg ObjectStorageConfig) (ObjectClient, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &minioClientWrapper{Client: client}, nil
}

// MinioBackend stores documents as objects in a bucket, under a prefix
type MinioBackend struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewMinioBackend returns a MinioBackend, creating the bucket if it is missing
func NewMinioBackend(ctx context.Context, client ObjectClient, bucket, prefix string) (*MinioBackend, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioBackend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (b *MinioBackend) objectName(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

// Load reads the document stored under key
func (b *MinioBackend) Load(ctx context.Context, key string) ([]byte, error) {
	object, err := b.client.GetObject(ctx, b.bucket, b.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateObjectError(err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, translateObjectError(err)
	}
	return data, nil
}

// Store writes the document under key
func (b *MinioBackend) Store(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.objectName(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// Keys lists the stored documents
func (b *MinioBackend) Keys(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if b.prefix != "" {
		opts.Prefix = b.prefix + "/"
	}
	keys := []string{}
	for object := range b.client.ListObjects(ctx, b.bucket, opts) {
		if object.Err != nil {
			return nil, object.Err
		}
		name := path.Base(object.Key)
		if strings.HasPrefix(name, "access_") && strings.HasSuffix(name, ".json") {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func translateObjectError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrDocumentNotFound
	}
	return err
}
