package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BackupSuffix names the sibling file holding the pre-repair original.
const BackupSuffix = ".backup"

var (
	// ErrInvalidName is returned for names that would escape the storage directory.
	ErrInvalidName = errors.New("storage: invalid artifact name")
	// ErrNotFound is returned when the artifact file does not exist.
	ErrNotFound = errors.New("storage: artifact not found")
)

// LocalStore keeps recording artifacts as opaque files under one directory.
type LocalStore struct {
	dir       string
	publicURL string
	newName   func() string
}

// NewLocalStore creates dir when missing. publicURL is the base that
// artifact names are appended to when building storage URLs.
func NewLocalStore(dir, publicURL string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		newName:   func() string { return uuid.NewString() },
	}, nil
}

// Save streams r into a freshly named file with extension ext. The file only
// becomes visible under its final name once fully written.
func (s *LocalStore) Save(ctx context.Context, ext string, r io.Reader) (string, int64, error) {
	ext = normalizeExt(ext)
	name := s.newName() + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("storage: write artifact: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("storage: commit artifact: %w", err)
	}
	return name, size, nil
}

// Path returns the absolute location of the named artifact.
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// URL returns the public URL of the named artifact.
func (s *LocalStore) URL(name string) string {
	return s.publicURL + "/" + url.PathEscape(filepath.Base(name))
}

// BackupURL returns the public URL of the pre-repair copy.
func (s *LocalStore) BackupURL(name string) string {
	return s.URL(filepath.Base(name) + BackupSuffix)
}

// Stat reports the size of the named artifact.
func (s *LocalStore) Stat(name string) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	info, err := os.Stat(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the artifact and its backup. Missing files are ignored.
func (s *LocalStore) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	for _, p := range []string{s.Path(name), s.Path(name) + BackupSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// Dir returns the storage root, used for static serving.
func (s *LocalStore) Dir() string {
	return s.dir
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext[1:], `./\`) {
		return ".mp4"
	}
	return ext
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
