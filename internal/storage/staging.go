package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotImage is returned when an image field receives another kind of file.
var ErrNotImage = errors.New("file is not an image")

// StagedFile is a multipart upload copied to local disk.  It must be removed
// on every exit path; Remove is idempotent and nil-safe so callers can
// simply defer it.
type StagedFile struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64

	once sync.Once
}

// Remove deletes the staged file from disk.
func (f *StagedFile) Remove() error {
	if f == nil {
		return nil
	}
	var err error
	f.once.Do(func() {
		if rmErr := os.Remove(f.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}

// IsImage reports whether the sniffed content type is an image.
func (f *StagedFile) IsImage() bool {
	return f != nil && strings.HasPrefix(f.ContentType, "image/")
}

// Stage copies fh into dir under a unique name
// (<unix-millis>-<sanitized original name>) and sniffs its content type.
func Stage(fh *multipart.FileHeader, dir string) (*StagedFile, error) {
	if fh == nil {
		return nil, errors.New("no file")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(dir, fmt.Sprintf("%d-*%s", time.Now().UnixMilli(), sanitizeName(fh.Filename)))
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	staged := &StagedFile{Path: dst.Name(), Filename: fh.Filename}

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = dst.Close()
		_ = staged.Remove()
		return nil, fmt.Errorf("read upload: %w", err)
	}
	staged.ContentType = http.DetectContentType(head[:n])

	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head[:n]), src))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = staged.Remove()
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	staged.Size = written
	return staged, nil
}

// StageImage is Stage plus a content check; non-images are removed
// immediately and reported as ErrNotImage.
func StageImage(fh *multipart.FileHeader, dir string) (*StagedFile, error) {
	f, err := Stage(fh, dir)
	if err != nil {
		return nil, err
	}
	if !f.IsImage() {
		_ = f.Remove()
		return nil, ErrNotImage
	}
	return f, nil
}

func sanitizeName(name string) string {
	base := filepath.Base(name)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 64 {
		s = s[len(s)-64:]
	}
	return s
}
