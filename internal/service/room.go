package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/presence"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

const (
	roomIDLength   = 10
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	createAttempts = 3
)

// RoomStore 룸 서비스가 필요로 하는 저장소 기능
type RoomStore interface {
	store.Gateway
	store.RoomStore
}

// RoomCache 룸 설정 캐시 (선택)
type RoomCache interface {
	RememberRoom(ctx context.Context, roomID string, settings model.RoomSettings) error
}

// RoomInfo 룸 조회 결과
type RoomInfo struct {
	Room        model.Room
	IsNew       bool
	ActiveUsers int
}

// RoomService 룸 생성/조회 및 획 관리
type RoomService struct {
	store    RoomStore
	shapes   store.ShapeGateway
	registry *presence.Registry
	cache    RoomCache
	defaults model.RoomSettings
	newID    func() (string, error)
	log      *zap.Logger
}

// NewRoomService RoomService 생성. shapes 와 cache 는 nil 허용
func NewRoomService(st RoomStore, shapes store.ShapeGateway, registry *presence.Registry, cache RoomCache, defaults model.RoomSettings, log *zap.Logger) *RoomService {
	if registry == nil {
		registry = presence.NewRegistry()
	}
	return &RoomService{
		store:    st,
		shapes:   shapes,
		registry: registry,
		cache:    cache,
		defaults: defaults,
		newID:    NewRoomID,
		log:      log.With(zap.String("component", "rooms")),
	}
}

// NewRoomID URL 안전 문자로 된 10자 랜덤 ID 생성
func NewRoomID() (string, error) {
	buf := make([]byte, roomIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	// 64 글자 알파벳이므로 하위 6비트만 사용해도 편향이 없다
	for i, b := range buf {
		buf[i] = roomIDAlphabet[b&63]
	}
	return string(buf), nil
}

// CreateRoom 새 룸 생성 (id 충돌 시 재시도)
func (s *RoomService) CreateRoom(ctx context.Context) (model.Room, error) {
	var lastErr error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return model.Room{}, err
		}

		room, err := s.store.CreateRoom(ctx, model.Room{RoomID: id, Settings: s.defaults})
		if err == nil {
			s.remember(ctx, room)
			s.log.Info("room created", zap.String("roomId", room.RoomID))
			return room, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return model.Room{}, fmt.Errorf("create room: %w", err)
		}
		lastErr = err
		s.log.Warn("room id collision, retrying", zap.String("roomId", id), zap.Int("attempt", attempt))
	}
	return model.Room{}, fmt.Errorf("create room after %d attempts: %w", createAttempts, lastErr)
}

// GetRoom 룸 조회 (없으면 기본 설정으로 생성)
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (RoomInfo, error) {
	room, created, err := s.store.EnsureRoom(ctx, roomID, s.defaults)
	if err != nil {
		return RoomInfo{}, err
	}
	if created {
		s.remember(ctx, room)
	}
	return RoomInfo{
		Room:        room,
		IsNew:       created,
		ActiveUsers: s.registry.Count(roomID),
	}, nil
}

// ListRooms 최근 생성된 룸 목록
func (s *RoomService) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	return s.store.ListRooms(ctx, limit)
}

// ListStrokes 룸의 획 목록 (timestamp 오름차순)
func (s *RoomService) ListStrokes(ctx context.Context, roomID string) ([]model.Stroke, error) {
	return s.store.ListStrokes(ctx, roomID)
}

// ClearStrokes 룸의 저장된 획(과 도형) 전체 삭제
func (s *RoomService) ClearStrokes(ctx context.Context, roomID string) (int64, error) {
	n, err := s.store.DeleteAllStrokes(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("clear strokes: %w", err)
	}
	if s.shapes != nil {
		if _, err := s.shapes.DeleteAllShapes(ctx, roomID); err != nil {
			return n, fmt.Errorf("clear shapes: %w", err)
		}
	}
	s.log.Info("strokes cleared", zap.String("roomId", roomID), zap.Int64("strokes", n))
	return n, nil
}

func (s *RoomService) remember(ctx context.Context, room model.Room) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RememberRoom(ctx, room.RoomID, room.Settings); err != nil {
		s.log.Debug("room cache write failed", zap.String("roomId", room.RoomID), zap.Error(err))
	}
}
