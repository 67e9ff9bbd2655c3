package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/convolab-backend/internal/platform/envutil"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// ObjectStorageConfig selects between real GCS and a fake-gcs-server style
// emulator. Bucket names the single audio bucket.
type ObjectStorageConfig struct {
	Mode          ObjectStorageMode
	EmulatorHost  string
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

type ObjectStorageConfigError struct {
	Field string
	Value string
	Cause error
}

func (e *ObjectStorageConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Field {
	case "OBJECT_STORAGE_MODE":
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Value, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	case "STORAGE_EMULATOR_HOST":
		if e.Value == "" {
			return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ObjectStorageModeGCSEmulator)
		}
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.Value)
	case "AUDIO_GCS_BUCKET_NAME":
		return "missing env var AUDIO_GCS_BUCKET_NAME"
	default:
		return fmt.Sprintf("invalid %s=%q", e.Field, e.Value)
	}
}

func (e *ObjectStorageConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveObjectStorageConfigFromEnv reads OBJECT_STORAGE_MODE. An unset mode
// with STORAGE_EMULATOR_HOST present selects the emulator.
func ResolveObjectStorageConfigFromEnv() (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		Bucket:        envutil.String("AUDIO_GCS_BUCKET_NAME", ""),
		CDNDomain:     envutil.String("AUDIO_CDN_DOMAIN", ""),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
	}
	raw := envutil.String("OBJECT_STORAGE_MODE", "")
	switch mode := ObjectStorageMode(strings.ToLower(raw)); mode {
	case "":
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &ObjectStorageConfigError{Field: "OBJECT_STORAGE_MODE", Value: raw}
	}
	return cfg, ValidateObjectStorageConfig(cfg)
}

func ValidateObjectStorageConfig(cfg ObjectStorageConfig) error {
	switch cfg.Mode {
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
	default:
		return &ObjectStorageConfigError{Field: "OBJECT_STORAGE_MODE", Value: string(cfg.Mode)}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return &ObjectStorageConfigError{Field: "AUDIO_GCS_BUCKET_NAME"}
	}
	if cfg.PublicBaseURL != "" && !isAbsoluteURL(cfg.PublicBaseURL) {
		return &ObjectStorageConfigError{Field: "OBJECT_STORAGE_PUBLIC_BASE_URL", Value: cfg.PublicBaseURL}
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}
	if cfg.EmulatorHost == "" || !isAbsoluteURL(cfg.EmulatorHost) {
		return &ObjectStorageConfigError{Field: "STORAGE_EMULATOR_HOST", Value: cfg.EmulatorHost}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
