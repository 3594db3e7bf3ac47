// Package backup uploads store snapshots to S3 (or an S3-compatible
// endpoint) and restores them.
package backup

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/warent/proxycop/internal/errors"
)

// ErrNoSnapshots is returned by Latest when the prefix holds no snapshot.
var ErrNoSnapshots = stderrors.New("no snapshots")

const (
	keyPrefix  = "proxycop-"
	keySuffix  = ".db"
	timeLayout = "20060102T150405Z"
)

// S3API is the subset of *s3.Client used for backups.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Snapshotter writes and loads a full copy of the store. *store.Store
// implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) error
}

// Object describes a stored snapshot.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Backup moves snapshots between a store and a bucket.
type Backup struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Backup.
type Option func(*Backup)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backup) {
		b.logger = logger
	}
}

// WithClock sets the time source used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(b *Backup) {
		b.now = now
	}
}

// New creates a Backup writing to bucket under prefix.
func New(client S3API, bucket, prefix string, opts ...Option) *Backup {
	b := &Backup{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default().With("component", "backup")
	}
	return b
}

// Upload snapshots src and stores it under a timestamped key, which is
// returned.
func (b *Backup) Upload(ctx context.Context, src Snapshotter) (string, error) {
	var buf bytes.Buffer
	if err := src.Snapshot(ctx, &buf); err != nil {
		return "", errors.New(errors.CodeBackupFailed).WithDetail("snapshot the store").Wrap(err)
	}

	now := b.now().UTC()
	key := b.prefix + keyPrefix + now.Format(timeLayout) + keySuffix
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"snapshot-time": now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", errors.New(errors.CodeBackupFailed).
			WithDetail("upload s3://%s/%s", b.bucket, key).
			Wrap(err)
	}

	b.logger.Info("snapshot uploaded", "bucket", b.bucket, "key", key, "bytes", buf.Len())
	return key, nil
}

// List returns the snapshots under the prefix, oldest first.
func (b *Backup) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix + keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.New(errors.CodeBackupFailed).
				WithDetail("list s3://%s/%s", b.bucket, b.prefix).
				Wrap(err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, keySuffix) {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	// Keys embed the UTC timestamp, so lexical order is chronological.
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Latest returns the key of the newest snapshot.
func (b *Backup) Latest(ctx context.Context) (string, error) {
	objects, err := b.List(ctx)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", ErrNoSnapshots
	}
	return objects[len(objects)-1].Key, nil
}

// Download loads the snapshot at key into dst. An empty key restores the
// newest snapshot.
func (b *Backup) Download(ctx context.Context, key string, dst Snapshotter) (string, error) {
	if key == "" {
		latest, err := b.Latest(ctx)
		if err != nil {
			return "", errors.New(errors.CodeRestoreFailed).Wrap(err)
		}
		key = latest
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", errors.New(errors.CodeRestoreFailed).
			WithDetail("download s3://%s/%s", b.bucket, key).
			Wrap(err)
	}
	defer out.Body.Close()

	if err := dst.Restore(ctx, out.Body); err != nil {
		return "", errors.New(errors.CodeRestoreFailed).WithDetail("load %s", key).Wrap(err)
	}
	b.logger.Info("snapshot restored", "bucket", b.bucket, "key", key)
	return key, nil
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	Region string

	// Endpoint overrides the S3 endpoint (MinIO, R2, ...). Path-style
	// addressing is used when set.
	Endpoint string

	// Credentials defaults to the AWS_* environment variables.
	Credentials aws.CredentialsProvider
}

// NewClient creates an S3 client.
func NewClient(cfg ClientConfig) *s3.Client {
	creds := cfg.Credentials
	if creds == nil {
		creds = EnvCredentials(os.LookupEnv)
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// EnvCredentials reads AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN.
func EnvCredentials(lookup func(string) (string, bool)) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, _ := lookup("AWS_ACCESS_KEY_ID")
		secret, _ := lookup("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		token, _ := lookup("AWS_SESSION_TOKEN")
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "environment",
		}, nil
	})
}
