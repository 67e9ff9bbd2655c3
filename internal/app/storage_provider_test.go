package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/convolab-backend/internal/platform/gcp"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

func TestClassifyStorageProviderBootstrapErrorInvalidConfig(t *testing.T) {
	srcErr := &gcp.ObjectStorageConfigError{Field: "STORAGE_EMULATOR_HOST"}
	err := classifyStorageProviderBootstrapError(ObjectStoreGCS, gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCSEmulator}, srcErr)

	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%q", StorageProviderBootstrapErrorInvalidConfig, got.Code)
	}
	if !errors.Is(err, srcErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestClassifyStorageProviderBootstrapErrorConnectFailed(t *testing.T) {
	err := classifyStorageProviderBootstrapError(ObjectStoreGCS, gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, errors.New("dial tcp: refused"))
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%v", StorageProviderBootstrapErrorConnectFailed, err)
	}
	if got.Mode != string(gcp.ObjectStorageModeGCS) {
		t.Fatalf("mode: want=%q got=%q", gcp.ObjectStorageModeGCS, got.Mode)
	}
}

func TestResolveObjectStoreLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{ObjectStore: ObjectStoreLocal, LocalMediaDir: dir, LocalMediaBaseURL: "http://localhost:8080/media"}
	st, err := resolveObjectStore(context.Background(), logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("resolveObjectStore: %v", err)
	}
	if st.mediaDir == "" || st.store == nil {
		t.Fatalf("local store not wired: %+v", st)
	}
	url, err := st.store.Put(context.Background(), "courses/x/audio/j/1.00.wav", "audio/wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/media/") {
		t.Fatalf("url: got=%q", url)
	}
}

func TestResolveObjectStoreUnknown(t *testing.T) {
	_, err := resolveObjectStore(context.Background(), logger.Nop(), Config{ObjectStore: "s3"})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorInvalidStore {
		t.Fatalf("code: want=%q got=%v", StorageProviderBootstrapErrorInvalidStore, err)
	}
}

func TestResolveObjectStoreGCSMissingBucket(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("AUDIO_GCS_BUCKET_NAME", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	_, err := resolveObjectStore(context.Background(), logger.Nop(), Config{ObjectStore: ObjectStoreGCS})
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) || got.Code != StorageProviderBootstrapErrorInvalidConfig {
		t.Fatalf("code: want=%q got=%v", StorageProviderBootstrapErrorInvalidConfig, err)
	}
}
