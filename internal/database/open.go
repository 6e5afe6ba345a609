package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// OpenStore STORE_DRIVER 에 맞는 저장소 연결
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, zlog *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case store.DriverPostgres:
		db, err := ConnectDB(ctx, cfg, zlog)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(db, zlog), nil

	case store.DriverMongo:
		var st *store.MongoStore
		err := Retry(ctx, cfg.ConnectAttempts, cfg.ConnectDelay, zlog, func() error {
			var err error
			st, err = store.NewMongoStore(ctx, store.MongoConfig{
				URI:         cfg.MongoURI,
				Database:    cfg.MongoDatabase,
				MaxPoolSize: uint64(max(cfg.MongoPoolSize, 0)),
			}, zlog)
			return err
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	case store.DriverMemory:
		zlog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
