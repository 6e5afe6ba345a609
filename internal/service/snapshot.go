package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/storage"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

var (
	ErrMissingSnapshotFields = errors.New("missing required fields: roomId and imageData")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrInvalidDataURL        = errors.New("invalid data url")
)

// ImageStore 스냅샷 이미지 오브젝트 저장소
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

// SnapshotInput 스냅샷 생성 요청
type SnapshotInput struct {
	RoomID    string
	ImageData string
	Name      string
	Metadata  model.SnapshotMetadata
}

// SnapshotView 클라이언트에 내려주는 스냅샷 (dataUrl 은 인라인 데이터 또는 presigned URL)
type SnapshotView struct {
	ID        string                  `json:"id"`
	DataURL   string                  `json:"dataUrl"`
	Timestamp int64                   `json:"timestamp"`
	Name      string                  `json:"name,omitempty"`
	RoomID    string                  `json:"roomId,omitempty"`
	Metadata  *model.SnapshotMetadata `json:"metadata,omitempty"`
}

// SnapshotService 스냅샷 저장/조회
type SnapshotService struct {
	store     store.SnapshotStore
	images    ImageStore
	publisher events.Publisher
	log       *zap.Logger
}

// NewSnapshotService SnapshotService 생성. images 가 nil 이면 이미지를 행에 인라인 저장
func NewSnapshotService(st store.SnapshotStore, images ImageStore, publisher events.Publisher, log *zap.Logger) *SnapshotService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &SnapshotService{
		store:     st,
		images:    images,
		publisher: publisher,
		log:       log.With(zap.String("component", "snapshots")),
	}
}

// Create 스냅샷 저장
func (s *SnapshotService) Create(ctx context.Context, in SnapshotInput) (model.Snapshot, error) {
	if in.RoomID == "" || in.ImageData == "" {
		return model.Snapshot{}, ErrMissingSnapshotFields
	}

	snap := model.Snapshot{
		RoomID:   in.RoomID,
		Name:     in.Name,
		Metadata: in.Metadata,
	}
	if key, ok := s.upload(ctx, in.RoomID, in.ImageData); ok {
		snap.ImageKey = key
	} else {
		snap.ImageData = in.ImageData
	}

	if err := s.store.CreateSnapshot(ctx, &snap); err != nil {
		if snap.ImageKey != "" {
			s.removeObject(ctx, snap.ImageKey)
		}
		return model.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	s.publisher.Publish(events.Activity{
		Kind:   events.KindSnapshotCreated,
		RoomID: snap.RoomID,
		At:     snap.Timestamp,
	})
	s.log.Info("snapshot saved",
		zap.String("roomId", snap.RoomID),
		zap.String("id", snap.ID),
		zap.Bool("objectStorage", snap.ImageKey != ""),
	)
	return snap, nil
}

// upload 오브젝트 저장소에 이미지 업로드. 실패하면 인라인 저장으로 대체
func (s *SnapshotService) upload(ctx context.Context, roomID, imageData string) (string, bool) {
	if s.images == nil {
		return "", false
	}
	contentType, data, err := DecodeDataURL(imageData)
	if err != nil {
		s.log.Debug("snapshot is not a data url, storing inline", zap.String("roomId", roomID), zap.Error(err))
		return "", false
	}

	key := storage.ObjectKey(roomID, extensionFor(contentType))
	if err := s.images.Put(ctx, key, data, contentType); err != nil {
		s.log.Warn("snapshot upload failed, storing inline", zap.String("roomId", roomID), zap.Error(err))
		return "", false
	}
	return key, true
}

// List 룸의 스냅샷 목록 (최신순)
func (s *SnapshotService) List(ctx context.Context, roomID string, limit int) ([]SnapshotView, error) {
	snaps, err := s.store.ListSnapshots(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]SnapshotView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, SnapshotView{
			ID:        snap.ID,
			DataURL:   s.dataURL(ctx, snap),
			Timestamp: snap.Timestamp,
			Name:      snap.Name,
		})
	}
	return views, nil
}

// Get 단일 스냅샷 조회
func (s *SnapshotService) Get(ctx context.Context, id string) (SnapshotView, error) {
	snap, err := s.store.GetSnapshot(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return SnapshotView{}, ErrSnapshotNotFound
	}
	if err != nil {
		return SnapshotView{}, err
	}
	meta := snap.Metadata
	return SnapshotView{
		ID:        snap.ID,
		DataURL:   s.dataURL(ctx, snap),
		Timestamp: snap.Timestamp,
		Name:      snap.Name,
		RoomID:    snap.RoomID,
		Metadata:  &meta,
	}, nil
}

// Delete 스냅샷 삭제 (저장된 오브젝트는 best-effort 로 제거)
func (s *SnapshotService) Delete(ctx context.Context, id string) error {
	snap, err := s.store.DeleteSnapshot(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSnapshotNotFound
	}
	if err != nil {
		return err
	}
	if snap.ImageKey != "" {
		s.removeObject(ctx, snap.ImageKey)
	}
	return nil
}

// Prune 룸의 최신 스냅샷 keep개만 남기고 삭제. keep은 store.MaxSnapshotLimit
// 미만이어야 한다.
func (s *SnapshotService) Prune(ctx context.Context, roomID string, keep int) (int, error) {
	if keep < 0 || keep >= store.MaxSnapshotLimit {
		return 0, fmt.Errorf("keep must be between 0 and %d", store.MaxSnapshotLimit-1)
	}

	removed := 0
	for {
		snaps, err := s.store.ListSnapshots(ctx, roomID, store.MaxSnapshotLimit)
		if err != nil {
			return removed, err
		}
		if len(snaps) <= keep {
			return removed, nil
		}
		for _, snap := range snaps[keep:] {
			if err := s.Delete(ctx, snap.ID); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
				return removed, err
			}
			removed++
		}
	}
}

func (s *SnapshotService) dataURL(ctx context.Context, snap model.Snapshot) string {
	if snap.ImageKey == "" || s.images == nil {
		return snap.ImageData
	}
	url, err := s.images.PresignedURL(ctx, snap.ImageKey)
	if err != nil {
		s.log.Warn("presign failed", zap.String("id", snap.ID), zap.Error(err))
		return ""
	}
	return url
}

func (s *SnapshotService) removeObject(ctx context.Context, key string) {
	if s.images == nil {
		return
	}
	if err := s.images.Remove(ctx, key); err != nil {
		s.log.Warn("snapshot object removal failed", zap.String("key", key), zap.Error(err))
	}
}

// DecodeDataURL base64 "data:<type>;base64,<payload>" URL 파싱
func DecodeDataURL(s string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	contentType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return contentType, data, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return "bin"
	}
}
