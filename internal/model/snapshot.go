package model

import "time"

// SnapshotMetadata 캡처 시점의 통계
type SnapshotMetadata struct {
	UserCount   *int `json:"userCount,omitempty" bson:"userCount,omitempty"`
	StrokeCount *int `json:"strokeCount,omitempty" bson:"strokeCount,omitempty"`
}

// Snapshot 캔버스 래스터 이미지 스냅샷
// 이미지는 ImageData(인라인 data URL) 또는 ImageKey(오브젝트 스토리지 키) 중 하나에 담긴다.
type Snapshot struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	RoomID    string           `gorm:"size:64;not null;index:idx_snapshot_room_timestamp,priority:1" json:"roomId" bson:"roomId"`
	ImageData string           `gorm:"type:text" json:"-" bson:"imageData,omitempty"`
	ImageKey  string           `gorm:"size:255" json:"-" bson:"imageKey,omitempty"`
	Name      string           `gorm:"size:255" json:"name,omitempty" bson:"name,omitempty"`
	Metadata  SnapshotMetadata `gorm:"type:jsonb;serializer:json" json:"metadata" bson:"metadata"`
	Timestamp int64            `gorm:"not null;index:idx_snapshot_room_timestamp,priority:2,sort:desc" json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"-" bson:"createdAt"`
}

func (Snapshot) TableName() string {
	return "snapshots"
}
