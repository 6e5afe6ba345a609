package model

import "time"

// RoomSettings 룸 설정
type RoomSettings struct {
	MaxUsers  int  `gorm:"column:max_users;not null;default:50" json:"maxUsers" bson:"maxUsers"`
	IsPrivate bool `gorm:"column:is_private;not null;default:false" json:"isPrivate" bson:"isPrivate"`
}

// Room 화이트보드 룸 (URL 접근 시 자동 생성, 명시적으로 삭제되지 않음)
type Room struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"-" bson:"-"`
	RoomID    string       `gorm:"size:64;uniqueIndex;not null" json:"roomId" bson:"roomId"`
	Settings  RoomSettings `gorm:"embedded" json:"settings" bson:"settings"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}

func (Room) TableName() string {
	return "rooms"
}

// Cursor 커서 좌표
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RoomUser 룸에 접속한 사용자 (presence 레코드, 영속화하지 않음)
type RoomUser struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Cursor *Cursor `json:"cursor,omitempty"`
}

// Clone 내부 커서 포인터까지 복사
func (u RoomUser) Clone() RoomUser {
	if u.Cursor != nil {
		c := *u.Cursor
		u.Cursor = &c
	}
	return u
}
