package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type fakeObjects struct {
	puts    map[string][]byte
	deleted []string
	putErr  error
	delErr  error
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a bounded context")
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.delErr != nil {
		return nil, f.delErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func fileHeader(t *testing.T, field, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File[field][0]
}

func TestStage_WritesAndRemoves(t *testing.T) {
	dir := t.TempDir()

	f, err := Stage(fileHeader(t, "avatar", "../../me photo.png", pngBytes), dir)
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(f.Path))
	require.True(t, strings.HasSuffix(f.Path, "me_photo.png"))
	require.Equal(t, "image/png", f.ContentType)
	require.Equal(t, int64(len(pngBytes)), f.Size)

	got, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	require.Equal(t, pngBytes, got)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove(), "second remove is a no-op")
	_, err = os.Stat(f.Path)
	require.True(t, os.IsNotExist(err))
}

func TestStageImage_RejectsText(t *testing.T) {
	dir := t.TempDir()

	_, err := StageImage(fileHeader(t, "avatar", "notes.txt", []byte("hello world")), dir)
	require.ErrorIs(t, err, ErrNotImage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected file must not stay on disk")
}

func TestStagedFile_NilRemove(t *testing.T) {
	var f *StagedFile
	require.NoError(t, f.Remove())
}

func TestS3Store_UploadAndDelete(t *testing.T) {
	api := &fakeObjects{}
	store := newS3Store(api, "bucket", "uploaded_files", "https://cdn.example.com/bucket/", time.Second)
	store.now = func() time.Time { return time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) }

	path := filepath.Join(t.TempDir(), "123-a.PNG")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	asset, err := store.Upload(context.Background(), path, "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(asset.Key, "uploaded_files/2026/03/04/"))
	require.True(t, strings.HasSuffix(asset.Key, ".png"))
	require.Equal(t, "https://cdn.example.com/bucket/"+asset.Key, asset.URL)
	require.Equal(t, pngBytes, api.puts[asset.Key])
	require.Equal(t, asset.Key, store.KeyFromURL(asset.URL))

	require.NoError(t, store.Delete(context.Background(), asset.Key))
	require.Equal(t, []string{asset.Key}, api.deleted)
	require.NoError(t, store.Delete(context.Background(), ""))
	require.Len(t, api.deleted, 1)
}

func TestS3Store_UploadError(t *testing.T) {
	api := &fakeObjects{putErr: errors.New("boom")}
	store := newS3Store(api, "bucket", "f", "http://minio:9000/bucket", time.Second)

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	_, err := store.Upload(context.Background(), path, "")
	require.ErrorContains(t, err, "boom")
}

func TestKeyFromURL_Foreign(t *testing.T) {
	store := newS3Store(&fakeObjects{}, "bucket", "f", "http://minio:9000/bucket", time.Second)
	require.Equal(t, "", store.KeyFromURL("https://elsewhere.example/x.png"))
	require.Equal(t, "", store.KeyFromURL(""))
}
