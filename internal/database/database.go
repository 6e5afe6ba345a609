package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// PoolConfig 커넥션 풀 설정
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open DSN 으로 GORM 연결 수립
func Open(dsn string, zlog *zap.Logger, pool ...PoolConfig) (*gorm.DB, error) {
	// GORM 로거 설정
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	// TranslateError: 중복 키를 gorm.ErrDuplicatedKey 로 변환
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	p := PoolConfig{MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: time.Hour}
	if len(pool) > 0 {
		p = pool[0]
	}
	sqlDB.SetMaxIdleConns(p.MaxIdleConns)
	sqlDB.SetMaxOpenConns(p.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(p.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	zlog.Info("database connected", zap.Int("maxOpenConns", p.MaxOpenConns))
	return db, nil
}

// ConnectDB 설정 기반 연결 (재시도 포함) 후 마이그레이션
func ConnectDB(ctx context.Context, cfg config.DatabaseConfig, zlog *zap.Logger) (*gorm.DB, error) {
	pool := PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	var db *gorm.DB
	err := Retry(ctx, cfg.ConnectAttempts, cfg.ConnectDelay, zlog, func() error {
		var err error
		db, err = Open(cfg.DSN(), zlog, pool)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate AutoMigrate - 테이블 스키마 자동 업데이트
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Room{},
		&model.Stroke{},
		&model.Shape{},
		&model.Snapshot{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Retry 시작 시 저장소 연결 재시도 (attempts 회, delay 간격)
func Retry(ctx context.Context, attempts int, delay time.Duration, zlog *zap.Logger, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		zlog.Warn("connection attempt failed",
			zap.Int("attempt", i),
			zap.Int("of", attempts),
			zap.Error(err),
		)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
