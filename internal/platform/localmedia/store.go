package localmedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// Store keeps objects on local disk under Dir and serves them from BaseURL.
// It stands in for the GCS bucket in development and tests.
type Store struct {
	log     *logger.Logger
	dir     string
	baseURL string
}

func New(log *logger.Logger, dir, baseURL string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local media dir required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve local media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}
	return &Store{
		log:     log.With("service", "LocalMediaStore"),
		dir:     abs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path maps key to a file under Dir, refusing keys that escape it.
func (s *Store) Path(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("empty object key")
	}
	p := filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !strings.HasPrefix(p, s.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes media dir", key)
	}
	return p, nil
}

// Put writes r to a temp file and renames it into place so readers never see
// a partial object.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write object %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close object %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("commit object %q: %w", key, err)
	}
	s.log.Debug("stored object", "key", key, "content_type", contentType)
	return s.PublicURL(key), nil
}

// Delete removes key. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (s *Store) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}
