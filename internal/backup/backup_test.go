package backup

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/store"
)

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(strings.TrimPrefix(k, aws.ToString(in.Bucket)+"/")),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	return out, nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		tm, _ := time.Parse(time.RFC3339, ts)
		return tm
	}
}

func TestUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()

	src := openStore(t)
	src.SetBlacklist(ctx, []string{"reddit.com"})
	src.SetURLConfig(ctx, "news.ycombinator.com", store.URLConfig{Cooldown: 1})

	b := New(client, "backups", "snapshots/", WithClock(fixedClock("2026-10-18T09:30:00Z")))
	key, err := b.Upload(ctx, src)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := "snapshots/proxycop-20261018T093000Z.db"; key != want {
		t.Errorf("key = %q, want %q", key, want)
	}

	dst := openStore(t)
	got, err := b.Download(ctx, "", dst)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got != key {
		t.Errorf("Download() restored %q, want %q", got, key)
	}
	if ok, _ := dst.IsBlacklisted(ctx, "reddit.com"); !ok {
		t.Error("restored store lost the blacklist")
	}
	if cfg, err := dst.URLConfig(ctx, "news.ycombinator.com"); err != nil || cfg.Cooldown != 1 {
		t.Errorf("restored URLConfig = %+v, %v", cfg, err)
	}
}

func TestListAndLatest(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	src := openStore(t)

	for _, ts := range []string{"2026-10-18T09:30:00Z", "2026-10-17T23:00:00Z", "2026-10-18T10:00:00Z"} {
		b := New(client, "backups", "p/", WithClock(fixedClock(ts)))
		if _, err := b.Upload(ctx, src); err != nil {
			t.Fatal(err)
		}
	}
	client.objects["backups/p/notes.txt"] = []byte("ignored")

	b := New(client, "backups", "p/")
	objects, err := b.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(objects))
	}
	if objects[0].Key != "p/proxycop-20261017T230000Z.db" {
		t.Errorf("oldest = %q", objects[0].Key)
	}

	latest, err := b.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != "p/proxycop-20261018T100000Z.db" {
		t.Errorf("Latest() = %q", latest)
	}
}

func TestLatestEmpty(t *testing.T) {
	b := New(newFakeS3(), "backups", "p/")
	if _, err := b.Latest(context.Background()); !stderrors.Is(err, ErrNoSnapshots) {
		t.Errorf("Latest() error = %v, want ErrNoSnapshots", err)
	}

	_, err := b.Download(context.Background(), "", openStore(t))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.CodeRestoreFailed {
		t.Errorf("Download() error = %v, want %s", err, errors.CodeRestoreFailed)
	}
}

func TestUploadFailure(t *testing.T) {
	client := newFakeS3()
	client.putErr = stderrors.New("access denied")

	_, err := New(client, "backups", "").Upload(context.Background(), openStore(t))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.CodeBackupFailed {
		t.Fatalf("Upload() error = %v, want %s", err, errors.CodeBackupFailed)
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error %q does not carry the cause", err)
	}
}

func TestEnvCredentials(t *testing.T) {
	env := map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKID",
		"AWS_SECRET_ACCESS_KEY": "secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	creds, err := EnvCredentials(lookup).Retrieve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "secret" || creds.SessionToken != "" {
		t.Errorf("credentials = %+v", creds)
	}

	delete(env, "AWS_SECRET_ACCESS_KEY")
	if _, err := EnvCredentials(lookup).Retrieve(context.Background()); err == nil {
		t.Error("Retrieve() without a secret should fail")
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(ClientConfig{Region: "eu-west-1", Endpoint: "http://localhost:9000"})
	opts := c.Options()
	if opts.Region != "eu-west-1" {
		t.Errorf("Region = %q", opts.Region)
	}
	if aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" || !opts.UsePathStyle {
		t.Errorf("endpoint options = %v, %v", aws.ToString(opts.BaseEndpoint), opts.UsePathStyle)
	}
}
