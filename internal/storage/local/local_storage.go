// Package local stores uploads on the local file system.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"certmap/internal/domain"
	"certmap/internal/port"
)

type localStorage struct {
	root string
}

// NewLocalStorage creates a file-system ObjectStorage rooted at dir.
func NewLocalStorage(dir string) (port.ObjectStorage, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &localStorage{root: root}, nil
}

// path resolves key under root and rejects keys that escape it.
func (s *localStorage) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p == s.root || !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return p, nil
}

func (s *localStorage) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	p, err := s.path(input.Key)
	if err != nil {
		return nil, fmt.Errorf("localStorage.Upload: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("localStorage.Upload mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("localStorage.Upload create: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), contextReader{ctx: ctx, r: input.Body}); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("localStorage.Upload write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("localStorage.Upload close: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, fmt.Errorf("localStorage.Upload rename: %w", err)
	}

	return &port.UploadOutput{
		Location: p,
		ETag:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *localStorage) Download(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, fmt.Errorf("localStorage.Download: %w", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("localStorage.Download %s: %w", key, domain.ErrInputNotFound)
		}
		return nil, fmt.Errorf("localStorage.Download: %w", err)
	}
	return data, nil
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return fmt.Errorf("localStorage.Delete: %w", err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("localStorage.Delete: %w", err)
	}
	return nil
}

// GetPresignedURL returns "" since local files are streamed by the API.
func (s *localStorage) GetPresignedURL(ctx context.Context, key string) (string, error) {
	return "", nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
