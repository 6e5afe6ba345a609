// Package store 룸, 획 히스토리, 도형, 스냅샷 저장
//
// 획과 도형의 키는 (roomId, elementId)이다. 와이어에는 요소 ID만 있으므로
// 호출자는 항상 바인딩된 룸을 함께 넘긴다.
package store

import (
	"context"
	"errors"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrStrokeNotFound = errors.New("stroke not found")
	ErrShapeNotFound  = errors.New("shape not found")
	ErrDuplicate      = errors.New("duplicate key")
)

// 저장소 드라이버 이름
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Gateway 협업 엔진이 사용하는 영구 저장소. append가 반환된 뒤의 ListStrokes는
// 그 결과를 반드시 포함한다.
type Gateway interface {
	// EnsureRoom 룸 조회, 없으면 기본값으로 생성. created는 이번 호출이 만들었는지 여부
	EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (room model.Room, created bool, err error)
	AppendStroke(ctx context.Context, stroke model.Stroke) error
	// AppendPointToStroke 획이 아직 보이지 않으면 ErrStrokeNotFound
	AppendPointToStroke(ctx context.Context, roomID, strokeID string, point model.Point) error
	// DeleteStroke 멱등 (없는 획 삭제는 에러 아님)
	DeleteStroke(ctx context.Context, roomID, strokeID string) error
	DeleteAllStrokes(ctx context.Context, roomID string) (int64, error)
	// ListStrokes timestamp 오름차순, 같으면 삽입 순
	ListStrokes(ctx context.Context, roomID string) ([]model.Stroke, error)
}

// ShapeGateway 도형 히스토리 사용 시 도형 저장
type ShapeGateway interface {
	AppendShape(ctx context.Context, shape model.Shape) error
	UpdateShapeEnd(ctx context.Context, roomID, shapeID string, end model.Point) error
	DeleteAllShapes(ctx context.Context, roomID string) (int64, error)
	ListShapes(ctx context.Context, roomID string) ([]model.Shape, error)
}

// RoomStore 룸 HTTP 엔드포인트용 저장소
type RoomStore interface {
	// CreateRoom ID가 이미 있으면 ErrDuplicate
	CreateRoom(ctx context.Context, room model.Room) (model.Room, error)
	GetRoom(ctx context.Context, roomID string) (model.Room, error)
	ListRooms(ctx context.Context, limit int) ([]model.Room, error)
}

// SnapshotStore 스냅샷 HTTP 엔드포인트용 저장소
type SnapshotStore interface {
	// CreateSnapshot snap.ID가 비어 있으면 ID 할당
	CreateSnapshot(ctx context.Context, snap *model.Snapshot) error
	// ListSnapshots 최신순
	ListSnapshots(ctx context.Context, roomID string, limit int) ([]model.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (model.Snapshot, error)
	// DeleteSnapshot 삭제된 행 반환, 없으면 ErrNotFound
	DeleteSnapshot(ctx context.Context, id string) (model.Snapshot, error)
}

// Stats 행 수 요약
type Stats struct {
	Rooms     int64 `json:"rooms"`
	Strokes   int64 `json:"strokes"`
	Shapes    int64 `json:"shapes"`
	Snapshots int64 `json:"snapshots"`
}

// Store 전체 저장소 백엔드
type Store interface {
	Gateway
	ShapeGateway
	RoomStore
	SnapshotStore

	Kind() string
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

const (
	DefaultSnapshotLimit = 20
	MaxSnapshotLimit     = 100
)

// ClampLimit 스냅샷 조회 limit 정규화
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSnapshotLimit
	}
	if limit > MaxSnapshotLimit {
		return MaxSnapshotLimit
	}
	return limit
}
