package s3store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct {
	data     []byte
	modified time.Time
	meta     map[string]string
}

// fakeS3 keeps objects of one bucket in memory.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]*object
	pageSize int
	now      time.Time
	err      error
	pages    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string]*object),
		pageSize: 2,
		now:      time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.pages++

	prefix := aws.ToString(in.Prefix)
	var keys []string
	prefixes := map[string]bool{}
	for k := range f.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, aws.ToString(in.Delimiter)); in.Delimiter != nil && i >= 0 {
			prefixes[prefix+rest[:i+1]] = true
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, k := range keys[start:end] {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			LastModified: aws.Time(obj.modified),
			Size:         aws.Int64(int64(len(obj.data))),
		})
	}
	for p := range prefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(p)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = &object{data: data, modified: f.now, meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{LastModified: aws.Time(obj.modified), Metadata: obj.meta}, nil
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.ErrorIs(t, err, ErrNoBucket)
}

func TestList(t *testing.T) {
	fake := newFakeS3()
	for _, k := range []string{
		"alice/SteamGridSync/10p.png",
		"alice/SteamGridSync/20p.png",
		"alice/SteamGridSync/30_hero.jpg",
		"alice/SteamGridSync/old/40p.png",
		"alice/SteamShortcutGridSync/50p.png",
	} {
		fake.objects[k] = &object{data: []byte(k), modified: fake.now}
	}
	c := NewWithAPI(fake, "grids")

	entries, err := c.List(context.Background(), "/alice/SteamGridSync")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.True(t, entries["30_hero.jpg"].ModTime.Equal(fake.now))
	assert.NotContains(t, entries, "old/40p.png")
	assert.Equal(t, 2, fake.pages)

	entries, err = c.List(context.Background(), "/bob/SteamGridSync")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutGetDeleteModTime(t *testing.T) {
	fake := newFakeS3()
	c := NewWithAPI(fake, "grids")
	ctx := context.Background()
	p := "/alice/SteamGridSync/440p.png"

	require.NoError(t, c.Put(ctx, p, []byte("poster"), time.Unix(1_700_000_000, 0)))
	obj := fake.objects["alice/SteamGridSync/440p.png"]
	require.NotNil(t, obj)
	assert.Equal(t, "1700000000", obj.meta[metaMtime])

	// the store reports the server time, which is what List returns too
	mt, err := c.ModTime(ctx, p)
	require.NoError(t, err)
	assert.True(t, mt.Equal(fake.now))

	data, err := c.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "poster", string(data))

	require.NoError(t, c.Delete(ctx, p))
	_, err = c.Get(ctx, p)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = c.ModTime(ctx, p)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &types.NoSuchKey{}, remote.ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, remote.ErrUnauthorized},
		{"bad key id", &smithy.GenericAPIError{Code: "InvalidAccessKeyId"}, remote.ErrUnauthorized},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, remote.ErrTransient},
		{"network", io.ErrUnexpectedEOF, remote.ErrTransient},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("get", "/a", tt.err), tt.want)
		})
	}
}

func TestAccessDeniedIsFatal(t *testing.T) {
	fake := newFakeS3()
	fake.err = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	c := NewWithAPI(fake, "grids")

	_, err := c.List(context.Background(), "/alice/SteamGridSync")
	assert.True(t, remote.IsFatal(err))
}
