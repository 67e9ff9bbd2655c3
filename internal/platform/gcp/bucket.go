package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// Bucket stores rendered audio in one GCS bucket and hands out public URLs.
type Bucket struct {
	log           *logger.Logger
	client        *storage.Client
	mode          ObjectStorageMode
	emulatorHost  string
	name          string
	cdnDomain     string
	publicBaseURL string
}

func NewBucket(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (*Bucket, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	b := newBucket(log, cfg)
	b.client = client
	b.log.Info("Object storage initialized",
		"mode", cfg.Mode,
		"bucket", cfg.Bucket,
		"emulator_host", cfg.EmulatorHost,
		"public_base_url", b.publicBaseURL,
	)
	return b, nil
}

func newBucket(log *logger.Logger, cfg ObjectStorageConfig) *Bucket {
	publicBase := cfg.PublicBaseURL
	if publicBase == "" && cfg.IsEmulatorMode() {
		publicBase = cfg.EmulatorHost
	}
	return &Bucket{
		log:           log.With("service", "AudioBucket"),
		mode:          cfg.Mode,
		emulatorHost:  strings.TrimRight(cfg.EmulatorHost, "/"),
		name:          cfg.Bucket,
		cdnDomain:     cfg.CDNDomain,
		publicBaseURL: strings.TrimRight(publicBase, "/"),
	}
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		// the storage client picks the emulator endpoint up from the environment
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

// Put writes r under key and returns the object's public URL.
func (b *Bucket) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer %q: %w", key, err)
	}
	return b.PublicURL(key), nil
}

// Delete removes key. A missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := b.client.Bucket(b.name).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %q in bucket %q: %w", key, b.name, err)
	}
	return nil
}

func (b *Bucket) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", b.cdnDomain, key)
	}
	if b.mode == ObjectStorageModeGCSEmulator {
		base := b.publicBaseURL
		if base == "" {
			base = b.emulatorHost
		}
		if base != "" {
			return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(b.name), url.PathEscape(key))
		}
	}
	if b.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", b.publicBaseURL, b.name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}

func (b *Bucket) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
