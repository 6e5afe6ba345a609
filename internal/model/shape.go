package model

import "time"

// Shape 도형 (rectangle/circle/arrow/line)
// 기본적으로 실시간 중계만 하고, SESSION_PERSIST_SHAPES 가 켜진 경우에만 저장한다.
type Shape struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"-" bson:"-"`
	RoomID      string    `gorm:"size:64;not null;uniqueIndex:idx_room_shape,priority:1;index:idx_shape_room_timestamp,priority:1" json:"-" bson:"roomId"`
	ShapeID     string    `gorm:"size:128;not null;uniqueIndex:idx_room_shape,priority:2" json:"id" bson:"shapeId"`
	UserID      string    `gorm:"size:128;not null" json:"userId,omitempty" bson:"userId"`
	Kind        ShapeKind `gorm:"size:16;not null" json:"shapeType" bson:"shapeType"`
	Start       Point     `gorm:"column:start_point;type:jsonb;serializer:json;not null" json:"start" bson:"start"`
	End         Point     `gorm:"column:end_point;type:jsonb;serializer:json;not null" json:"end" bson:"end"`
	Color       string    `gorm:"size:32;not null" json:"color" bson:"color"`
	StrokeWidth float64   `gorm:"not null" json:"strokeWidth" bson:"strokeWidth"`
	FillColor   string    `gorm:"size:32" json:"fillColor,omitempty" bson:"fillColor,omitempty"`
	Timestamp   int64     `gorm:"not null;index:idx_shape_room_timestamp,priority:2" json:"timestamp" bson:"timestamp"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-" bson:"createdAt"`
}

func (Shape) TableName() string {
	return "shapes"
}
