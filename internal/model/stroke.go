package model

import (
	"time"
)

// Point 캔버스 좌표 (pressure 는 0~1, 선택)
type Point struct {
	X        float64  `json:"x" bson:"x"`
	Y        float64  `json:"y" bson:"y"`
	Pressure *float64 `json:"pressure,omitempty" bson:"pressure,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Stroke 화이트보드 획 데이터
// 포인트 순서가 곧 그리기 순서이며, (room_id, stroke_id) 로 식별한다.
type Stroke struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-" bson:"-"`
	RoomID    string    `gorm:"size:64;not null;uniqueIndex:idx_room_stroke,priority:1;index:idx_room_timestamp,priority:1" json:"-" bson:"roomId"`
	StrokeID  string    `gorm:"size:128;not null;uniqueIndex:idx_room_stroke,priority:2" json:"id" bson:"strokeId"`
	UserID    string    `gorm:"size:128;not null" json:"userId,omitempty" bson:"userId"`
	Points    []Point   `gorm:"type:jsonb;serializer:json;not null" json:"points" bson:"points"`
	Color     string    `gorm:"size:32;not null;default:'#000000'" json:"color" bson:"color"`
	Size      float64   `gorm:"not null;default:8" json:"size" bson:"size"`
	Tool      Tool      `gorm:"size:16;not null;default:'pen'" json:"tool" bson:"tool"`
	Timestamp int64     `gorm:"not null;index:idx_room_timestamp,priority:2" json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-" bson:"createdAt"`
}

func (Stroke) TableName() string {
	return "strokes"
}

// ApplyDefaults 비어 있는 필드에 기본값 적용
func (s *Stroke) ApplyDefaults() {
	if s.Color == "" {
		s.Color = DefaultStrokeColor
	}
	if s.Size <= 0 {
		s.Size = DefaultStrokeSize
	}
	if s.Tool == "" {
		s.Tool = DefaultTool
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	if s.Points == nil {
		s.Points = []Point{}
	}
}

// Clone 포인트 슬라이스까지 복사
func (s Stroke) Clone() Stroke {
	points := make([]Point, len(s.Points))
	copy(points, s.Points)
	s.Points = points
	return s
}
