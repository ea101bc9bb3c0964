package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ObjectPath returns the storage path of an upload: the identity, then the
// upload time in Unix milliseconds joined to the original file name.
func ObjectPath(identity, name string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document.pdf"
	}
	return identity + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + base
}

// DiskBlobStore keeps objects as files under a root directory.
type DiskBlobStore struct {
	root    string
	baseURL string
}

// NewDiskBlobStore creates root if needed. baseURL prefixes public locations.
func NewDiskBlobStore(root, baseURL string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &DiskBlobStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are stored under.
func (s *DiskBlobStore) Root() string {
	return s.root
}

// resolve maps a reference to a file path, rejecting references that escape root.
func (s *DiskBlobStore) resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if clean == "/" {
		return "", fmt.Errorf("invalid object reference %q", ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Upload writes content at p and returns its reference. Existing objects are not overwritten.
func (s *DiskBlobStore) Upload(ctx context.Context, p string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/"), nil
}

// PublicURL returns the location the object is served from.
func (s *DiskBlobStore) PublicURL(ref string) string {
	parts := strings.Split(ref, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return s.baseURL + "/files/" + strings.Join(parts, "/")
}

// Download returns the object's bytes.
func (s *DiskBlobStore) Download(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", ref, ErrNotFound)
	}
	return data, err
}

// Delete removes the object.
func (s *DiskBlobStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("object %s: %w", ref, ErrNotFound)
		}
		return err
	}
	return nil
}
