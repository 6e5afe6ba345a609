package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// PostgresStore GORM 기반 저장소
type PostgresStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewPostgresStore 열린 GORM 연결을 감싼다. 스키마는 database.Migrate로 이미
// 마이그레이션되어 있어야 한다.
func NewPostgresStore(db *gorm.DB, log *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log.With(zap.String("component", "store"), zap.String("driver", DriverPostgres))}
}

func (s *PostgresStore) Kind() string { return DriverPostgres }

// DB 유지보수 도구용 원본 연결
func (s *PostgresStore) DB() *gorm.DB { return s.db }

func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// =============================================================================
// Gateway
// =============================================================================

func (s *PostgresStore) EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (model.Room, bool, error) {
	room := model.Room{RoomID: roomID, Settings: defaults}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "room_id"}}, DoNothing: true}).
		Create(&room)
	if res.Error != nil {
		return model.Room{}, false, fmt.Errorf("ensure room %s: %w", roomID, res.Error)
	}
	if res.RowsAffected == 1 {
		s.log.Info("room created", zap.String("roomId", roomID))
		return room, true, nil
	}

	var existing model.Room
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&existing).Error; err != nil {
		return model.Room{}, false, fmt.Errorf("load room %s: %w", roomID, translate(err, ErrNotFound))
	}
	return existing, false, nil
}

func (s *PostgresStore) AppendStroke(ctx context.Context, stroke model.Stroke) error {
	stroke.ID = 0
	if err := s.db.WithContext(ctx).Create(&stroke).Error; err != nil {
		return translate(err, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendPointToStroke(ctx context.Context, roomID, strokeID string, point model.Point) error {
	raw, err := json.Marshal([]model.Point{point})
	if err != nil {
		return err
	}

	// jsonb 배열 끝에 포인트 추가
	res := s.db.WithContext(ctx).
		Model(&model.Stroke{}).
		Where("room_id = ? AND stroke_id = ?", roomID, strokeID).
		Update("points", gorm.Expr("points || ?::jsonb", string(raw)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStrokeNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteStroke(ctx context.Context, roomID, strokeID string) error {
	return s.db.WithContext(ctx).
		Where("room_id = ? AND stroke_id = ?", roomID, strokeID).
		Delete(&model.Stroke{}).Error
}

func (s *PostgresStore) DeleteAllStrokes(ctx context.Context, roomID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&model.Stroke{})
	return res.RowsAffected, res.Error
}

func (s *PostgresStore) ListStrokes(ctx context.Context, roomID string) ([]model.Stroke, error) {
	strokes := make([]model.Stroke, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC, id ASC").
		Find(&strokes).Error
	return strokes, err
}

// =============================================================================
// ShapeGateway
// =============================================================================

func (s *PostgresStore) AppendShape(ctx context.Context, shape model.Shape) error {
	shape.ID = 0
	return translate(s.db.WithContext(ctx).Create(&shape).Error, ErrNotFound)
}

func (s *PostgresStore) UpdateShapeEnd(ctx context.Context, roomID, shapeID string, end model.Point) error {
	raw, err := json.Marshal(end)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&model.Shape{}).
		Where("room_id = ? AND shape_id = ?", roomID, shapeID).
		Update("end_point", gorm.Expr("?::jsonb", string(raw)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrShapeNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAllShapes(ctx context.Context, roomID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&model.Shape{})
	return res.RowsAffected, res.Error
}

func (s *PostgresStore) ListShapes(ctx context.Context, roomID string) ([]model.Shape, error) {
	shapes := make([]model.Shape, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC, id ASC").
		Find(&shapes).Error
	return shapes, err
}

// =============================================================================
// RoomStore
// =============================================================================

func (s *PostgresStore) CreateRoom(ctx context.Context, room model.Room) (model.Room, error) {
	room.ID = 0
	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		return model.Room{}, translate(err, ErrNotFound)
	}
	return room, nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (model.Room, error) {
	var room model.Room
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	return room, translate(err, ErrNotFound)
}

func (s *PostgresStore) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	rooms := make([]model.Room, 0)
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rooms).Error
	return rooms, err
}

// =============================================================================
// SnapshotStore
// =============================================================================

func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.Timestamp == 0 {
		snap.Timestamp = time.Now().UnixMilli()
	}
	return translate(s.db.WithContext(ctx).Create(snap).Error, ErrNotFound)
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]model.Snapshot, error) {
	snaps := make([]model.Snapshot, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp DESC, created_at DESC").
		Limit(ClampLimit(limit)).
		Find(&snaps).Error
	return snaps, err
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&snap).Error
	return snap, translate(err, ErrNotFound)
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&snap).Error; err != nil {
			return err
		}
		return tx.Delete(&snap).Error
	})
	if err != nil {
		return model.Snapshot{}, translate(err, ErrNotFound)
	}
	return snap, nil
}

// =============================================================================
// Maintenance
// =============================================================================

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Room{}).Count(&st.Rooms).Error; err != nil {
		return st, err
	}
	if err := db.Model(&model.Stroke{}).Count(&st.Strokes).Error; err != nil {
		return st, err
	}
	if err := db.Model(&model.Shape{}).Count(&st.Shapes).Error; err != nil {
		return st, err
	}
	if err := db.Model(&model.Snapshot{}).Count(&st.Snapshots).Error; err != nil {
		return st, err
	}
	return st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
