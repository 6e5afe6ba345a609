package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// Options Redis 연결 설정
type Options struct {
	Addr     string
	Password string
	DB       int
	RoomTTL  time.Duration
}

// RedisClient 이미 EnsureRoom 된 룸의 설정 캐시
type RedisClient struct {
	client  *redis.Client
	roomTTL time.Duration
	log     *zap.Logger
}

// NewRedisClient 새 Redis 클라이언트 생성
func NewRedisClient(ctx context.Context, opts Options, log *zap.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	ttl := opts.RoomTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	log = log.With(zap.String("component", "cache"))
	log.Info("redis connected", zap.String("addr", opts.Addr))
	return &RedisClient{client: client, roomTTL: ttl, log: log}, nil
}

func roomKey(roomID string) string {
	return "whiteboard:room:" + roomID + ":settings"
}

// LookupRoom 캐시된 룸 설정 조회 (없으면 ok=false)
func (r *RedisClient) LookupRoom(ctx context.Context, roomID string) (model.RoomSettings, bool, error) {
	var settings model.RoomSettings

	data, err := r.client.Get(ctx, roomKey(roomID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return settings, false, nil
	case err != nil:
		return settings, false, err
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		// 깨진 값은 없는 것으로 취급하고 다시 EnsureRoom
		r.log.Warn("corrupt room cache entry", zap.String("roomId", roomID), zap.Error(err))
		return settings, false, nil
	}
	return settings, true, nil
}

// RememberRoom 룸 설정 기록 (TTL 이 지나면 다시 EnsureRoom)
func (r *RedisClient) RememberRoom(ctx context.Context, roomID string, settings model.RoomSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, roomKey(roomID), data, r.roomTTL).Err()
}

// ForgetRoom 룸 기록 삭제
func (r *RedisClient) ForgetRoom(ctx context.Context, roomID string) error {
	return r.client.Del(ctx, roomKey(roomID)).Err()
}

// Health Redis 상태 확인
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close Redis 연결 종료
func (r *RedisClient) Close() error {
	return r.client.Close()
}
