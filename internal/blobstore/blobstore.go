// Package blobstore keeps photo bytes outside the database. Objects are
// addressed by slash-separated keys and identified by their BLAKE3
// digest.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned by Open and Delete for unknown keys.
	ErrNotFound = errors.New("blobstore: object not found")
	// ErrInvalidKey is returned for keys that are empty, absolute or
	// escape the store root.
	ErrInvalidKey = errors.New("blobstore: invalid key")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
	// Digest is the hex BLAKE3-256 digest, set by Put.
	Digest string
}

// Store is the blob storage used for captured photos.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateKey checks that key is a clean relative slash path.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key || key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// FSStore stores objects as files below Root.
type FSStore struct {
	Root string
}

// NewFSStore creates root if needed and returns a store over it.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &FSStore{Root: root}, nil
}

func (s *FSStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)), nil
}

// Put writes data under key. The file is written to a temporary name
// and renamed so readers never see a partial object.
func (s *FSStore) Put(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return Object{}, fmt.Errorf("put %s: %w", key, err)
	}

	return Object{
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Digest:      Digest(data),
	}, nil
}

// Open returns a reader for key. The content type is derived from the
// key extension.
func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Object{}, fmt.Errorf("stat %s: %w", key, err)
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, Object{Key: key, Size: info.Size(), ContentType: ct}, nil
}

// Delete removes key.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
