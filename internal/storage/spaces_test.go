package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory s3API.
type fakeS3 struct {
	objects     map[string][]byte
	modified    map[string]time.Time
	pageSize    int
	listErr     error
	deleteCalls [][]string
	deleteErr   error
	failKeys    map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, modified: map[string]time.Time{}, pageSize: 1000, failKeys: map[string]bool{}}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if len(k) >= len(aws.ToString(in.Prefix)) && k[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			keys = append(keys, k)
		}
	}
	sortStrings(keys)

	start := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(*in.ContinuationToken, "%d", &start)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(f.modified[k]),
		})
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	var keys []string
	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		k := aws.ToString(id.Key)
		keys = append(keys, k)
		if f.failKeys[k] {
			out.Errors = append(out.Errors, s3types.Error{Key: id.Key, Message: aws.String("AccessDenied")})
			continue
		}
		delete(f.objects, k)
	}
	f.deleteCalls = append(f.deleteCalls, keys)
	return out, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func TestSpacesClient_ListPaginatesAndSkipsMarkers(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	uploaded := time.Date(2026, 2, 13, 3, 2, 0, 0, time.UTC)
	for _, k := range []string{
		"nightly/node-1/a/a_20260211.tar.gz",
		"nightly/node-1/a/a_20260212.tar.gz",
		"nightly/node-1/a/a_20260213.tar.gz",
		"nightly/node-1/a/",
	} {
		fake.objects[k] = []byte("x")
		fake.modified[k] = uploaded
	}
	fake.objects["nightly/node-2/b/b_20260213.tar.gz"] = []byte("y")

	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	objects, err := c.List(context.Background(), "nightly/node-1/a/")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	assert.Equal(t, "nightly/node-1/a/a_20260211.tar.gz", objects[0].Path)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), objects[0].Date)
	assert.Equal(t, uploaded, objects[2].Date)
	assert.Equal(t, int64(1), objects[2].Size)
}

func TestSpacesClient_ListError(t *testing.T) {
	fake := newFakeS3()
	fake.listErr = errors.New("503 SlowDown")

	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	_, err := c.List(context.Background(), "nightly/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SlowDown")
}

func TestSpacesClient_UploadDownload(t *testing.T) {
	fake := newFakeS3()
	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	dir := t.TempDir()

	src := filepath.Join(dir, "a.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0600))
	require.NoError(t, c.Upload(context.Background(), src, "nightly/n/a/a_20260213.tar.gz"))
	assert.Equal(t, []byte("archive"), fake.objects["nightly/n/a/a_20260213.tar.gz"])

	dst := filepath.Join(dir, "scratch", "a.tar.gz")
	require.NoError(t, c.Download(context.Background(), "nightly/n/a/a_20260213.tar.gz", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("archive"), got)
}

func TestSpacesClient_DownloadMissing(t *testing.T) {
	c := newSpacesClient(zerolog.Nop(), newFakeS3(), "backups")
	dst := filepath.Join(t.TempDir(), "missing.tar.gz")

	err := c.Download(context.Background(), "nightly/n/a/missing.tar.gz", dst)
	require.Error(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSpacesClient_UploadMissingFile(t *testing.T) {
	c := newSpacesClient(zerolog.Nop(), newFakeS3(), "backups")
	err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSpacesClient_RemoveManyBatches(t *testing.T) {
	fake := newFakeS3()
	var keys []string
	for i := 0; i < 2500; i++ {
		k := fmt.Sprintf("nightly/n/a/obj%04d", i)
		fake.objects[k] = []byte("x")
		keys = append(keys, k)
	}

	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	require.NoError(t, c.RemoveMany(context.Background(), keys))

	require.Len(t, fake.deleteCalls, 3)
	assert.Len(t, fake.deleteCalls[0], 1000)
	assert.Len(t, fake.deleteCalls[1], 1000)
	assert.Len(t, fake.deleteCalls[2], 500)
	assert.Empty(t, fake.objects)
}

func TestSpacesClient_RemoveManyReportsKeyErrors(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a"] = []byte("x")
	fake.objects["b"] = []byte("x")
	fake.failKeys["b"] = true

	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	err := c.RemoveMany(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete b: AccessDenied")
	assert.NotContains(t, fake.objects, "a")
}

func TestSpacesClient_Remove(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a"] = []byte("x")

	c := newSpacesClient(zerolog.Nop(), fake, "backups")
	require.NoError(t, c.Remove(context.Background(), "a"))
	assert.Empty(t, fake.objects)
}
