package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/cache"
	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/database"
	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/logger"
	"github.com/vishal-tambi/white-board-collabration-app/internal/server"
	"github.com/vishal-tambi/white-board-collabration-app/internal/storage"
)

func main() {
	// 설정 로드
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	zlog := logger.New(cfg.Log.Level, cfg.Log.Development)
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()

	// 저장소 연결 (필수)
	st, err := database.OpenStore(ctx, cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("store connection failed", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			zlog.Warn("store close failed", zap.Error(err))
		}
	}()
	zlog.Info("store ready", zap.String("driver", st.Kind()))

	deps := server.Deps{Store: st, Logger: zlog}

	// Redis 캐시 (선택, 실패 시 캐시 없이 동작)
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			RoomTTL:  cfg.Redis.RoomTTL,
		}, zlog)
		if err != nil {
			zlog.Warn("redis unavailable, continuing without room cache", zap.Error(err))
		} else {
			deps.Cache = rc
			defer rc.Close()
		}
	}

	// MinIO 스냅샷 이미지 저장소 (선택, 실패 시 인라인 저장)
	if cfg.Storage.Enabled() {
		images, err := storage.NewImageStore(ctx, storage.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			PresignExpiry: cfg.Storage.PresignExpiry,
		}, zlog)
		if err != nil {
			zlog.Warn("object storage unavailable, snapshots stored inline", zap.Error(err))
		} else {
			deps.Images = images
		}
	}

	// NATS 활동 피드 (선택)
	if cfg.NATS.Enabled() {
		pub, err := events.NewNATSPublisher(events.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.ClientName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, zlog)
		if err != nil {
			zlog.Warn("nats unavailable, activity feed disabled", zap.Error(err))
		} else {
			deps.NATS = pub
			defer pub.Close()
		}
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, deps)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		zlog.Error("server stopped", zap.Error(err))
	}
}
