package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/convolab-backend/internal/platform/gcp"
	"github.com/yungbote/convolab-backend/internal/platform/localmedia"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

var newBucket = gcp.NewBucket

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidStore  StorageProviderBootstrapErrorCode = "invalid_store"
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Store string
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s store=%q mode=%q): %v", e.Code, e.Store, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// objectStore is what the app holds on to: the store plus, for the local
// store, the directory the router serves under /media.
type objectStore struct {
	store    services.ObjectStore
	mediaDir string
	close    func() error
}

func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg Config) (objectStore, error) {
	log.Info("Selecting object store", "store", cfg.ObjectStore)
	switch cfg.ObjectStore {
	case ObjectStoreLocal:
		st, err := localmedia.New(log, cfg.LocalMediaDir, cfg.LocalMediaBaseURL)
		if err != nil {
			return objectStore{}, &StorageProviderBootstrapError{
				Code:  StorageProviderBootstrapErrorInvalidConfig,
				Store: cfg.ObjectStore,
				Cause: err,
			}
		}
		return objectStore{store: st, mediaDir: st.Dir(), close: func() error { return nil }}, nil
	case ObjectStoreGCS:
		storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
		if err != nil {
			classified := classifyStorageProviderBootstrapError(cfg.ObjectStore, storageCfg, err)
			log.Error("Object store config invalid", "mode", storageCfg.Mode, "error", classified)
			return objectStore{}, classified
		}
		bucket, err := newBucket(ctx, log, storageCfg)
		if err != nil {
			classified := classifyStorageProviderBootstrapError(cfg.ObjectStore, storageCfg, err)
			log.Error("Object store bootstrap failed",
				"mode", storageCfg.Mode,
				"emulator_host", storageCfg.EmulatorHost,
				"error", classified,
			)
			return objectStore{}, classified
		}
		return objectStore{store: bucket, close: bucket.Close}, nil
	default:
		return objectStore{}, &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorInvalidStore,
			Store: cfg.ObjectStore,
			Cause: fmt.Errorf("unsupported OBJECT_STORE %q (allowed: %q, %q)", cfg.ObjectStore, ObjectStoreGCS, ObjectStoreLocal),
		}
	}
}

func classifyStorageProviderBootstrapError(store string, storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		code = StorageProviderBootstrapErrorInvalidConfig
	}
	return &StorageProviderBootstrapError{
		Code:  code,
		Store: store,
		Mode:  string(storageCfg.Mode),
		Cause: err,
	}
}
