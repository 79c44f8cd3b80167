package remote

import (
	"context"
	"fmt"

	"github.com/rapidoc/docsync/internal/config"
	"github.com/rapidoc/docsync/internal/database"
	"github.com/rapidoc/docsync/internal/storage"
	"github.com/rapidoc/docsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Open builds the Store selected by cfg.Store.Backend, wrapped in a MinIO
// archive when MINIO_ENDPOINT is configured. The returned func releases the
// underlying clients.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	var (
		store   Store
		release = func() {}
	)
	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		store = NewMemoryStore()
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
		}
		store = NewRedisStore(client, cfg.Store.KeyPrefix)
		release = func() { _ = client.Close() }
	case config.BackendMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			return nil, nil, err
		}
		store = NewMongoStore(client.Database(cfg.MongoDB.Database).Collection(cfg.Store.Collection))
		release = func() { _ = client.Disconnect(context.Background()) }
	case config.BackendFirestore:
		client, err := database.ConnectFirestore(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		store = NewFirestoreStore(client, cfg.Store.Collection)
		release = func() { _ = client.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	logger.Infof("remote store backend: %s", cfg.Store.Backend)

	if cfg.MinIO.Endpoint != "" {
		archive, err := storage.NewSnapshotArchive(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			logger.Infof("archiving snapshots to minio bucket %s", cfg.MinIO.Bucket)
			return WithArchive(store, archive), release, nil
		}
	}
	return store, release, nil
}
