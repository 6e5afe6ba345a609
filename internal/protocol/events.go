package protocol

import (
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// EventType 이벤트의 와이어 이름
type EventType string

// 클라이언트 -> 서버 이벤트
const (
	EventRoomJoin     EventType = "room:join"
	EventRoomLeave    EventType = "room:leave"
	EventStrokeStart  EventType = "stroke:start"
	EventStrokeUpdate EventType = "stroke:update"
	EventStrokeEnd    EventType = "stroke:end"
	EventStrokeDelete EventType = "stroke:delete"
	EventCanvasClear  EventType = "canvas:clear"
	EventCanvasUndo   EventType = "canvas:undo"
	EventCanvasRedo   EventType = "canvas:redo"
	EventCursorMove   EventType = "cursor:move"
	EventShapeStart   EventType = "shape:start"
	EventShapeUpdate  EventType = "shape:update"
	EventShapeEnd     EventType = "shape:end"
)

// 서버 -> 클라이언트 이벤트
const (
	EventRoomJoined    EventType = "room:joined"
	EventUserJoined    EventType = "room:user-joined"
	EventUserLeft      EventType = "room:user-left"
	EventStrokeStarted EventType = "stroke:started"
	EventStrokeUpdated EventType = "stroke:updated"
	EventStrokeEnded   EventType = "stroke:ended"
	EventStrokeDeleted EventType = "stroke:deleted"
	EventCanvasCleared EventType = "canvas:cleared"
	EventCanvasStrokes EventType = "canvas:strokes"
	EventCanvasShapes  EventType = "canvas:shapes"
	EventCursorMoved   EventType = "cursor:moved"
	EventShapeStarted  EventType = "shape:started"
	EventShapeUpdated  EventType = "shape:updated"
	EventShapeEnded    EventType = "shape:ended"
	EventError         EventType = "error"
)

func (t EventType) String() string {
	return string(t)
}

// Event 디코딩된 클라이언트 이벤트. 구현 목록은 Decode가 아는 것으로 닫혀 있다.
type Event interface {
	Type() EventType
	Room() string
	sealed()
}

// RoomRef 클라이언트 이벤트가 가리키는 룸
type RoomRef struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

// Room 대상 룸 ID
func (r RoomRef) Room() string { return r.RoomID }

func (RoomRef) sealed() {}

// UserInfo 입장 시 클라이언트가 밝히는 사용자 정보
type UserInfo struct {
	ID    string `json:"id" validate:"required,max=128"`
	Name  string `json:"name" validate:"max=200"`
	Color string `json:"color" validate:"max=32"`
}

// StrokeData 와이어 상의 획
type StrokeData struct {
	ID        string        `json:"id" validate:"required,max=128"`
	Points    []model.Point `json:"points" validate:"max=100000,dive"`
	Color     string        `json:"color" validate:"max=32"`
	Size      float64       `json:"size" validate:"gte=0,lte=1000"`
	Tool      model.Tool    `json:"tool" validate:"omitempty,oneof=pen eraser select"`
	Timestamp int64         `json:"timestamp" validate:"gte=0"`
}

// ShapeData 와이어 상의 도형
type ShapeData struct {
	ID          string          `json:"id" validate:"required,max=128"`
	ShapeType   model.ShapeKind `json:"shapeType" validate:"required,oneof=rectangle circle arrow line"`
	Start       model.Point     `json:"start"`
	End         model.Point     `json:"end"`
	Color       string          `json:"color" validate:"max=32"`
	StrokeWidth float64         `json:"strokeWidth" validate:"gte=0,lte=1000"`
	FillColor   string          `json:"fillColor,omitempty" validate:"max=32"`
	Timestamp   int64           `json:"timestamp" validate:"gte=0"`
}

type JoinRoom struct {
	RoomRef
	User *UserInfo `json:"user" validate:"required"`
}

type LeaveRoom struct {
	RoomRef
}

type StrokeStart struct {
	RoomRef
	Stroke *StrokeData `json:"stroke" validate:"required"`
}

type StrokeUpdate struct {
	RoomRef
	StrokeID string       `json:"strokeId" validate:"required,max=128"`
	Point    *model.Point `json:"point" validate:"required"`
}

type StrokeEnd struct {
	RoomRef
	StrokeID string `json:"strokeId" validate:"required,max=128"`
}

type StrokeDelete struct {
	RoomRef
	StrokeID string `json:"strokeId" validate:"required,max=128"`
}

type CanvasClear struct {
	RoomRef
}

type CanvasUndo struct {
	RoomRef
}

type CanvasRedo struct {
	RoomRef
}

type CursorMove struct {
	RoomRef
	Cursor *model.Cursor `json:"cursor" validate:"required"`
}

type ShapeStart struct {
	RoomRef
	Shape *ShapeData `json:"shape" validate:"required"`
}

type ShapeUpdate struct {
	RoomRef
	ShapeID  string       `json:"shapeId" validate:"required,max=128"`
	EndPoint *model.Point `json:"endPoint" validate:"required"`
}

type ShapeEnd struct {
	RoomRef
	ShapeID string `json:"shapeId" validate:"required,max=128"`
}

func (*JoinRoom) Type() EventType     { return EventRoomJoin }
func (*LeaveRoom) Type() EventType    { return EventRoomLeave }
func (*StrokeStart) Type() EventType  { return EventStrokeStart }
func (*StrokeUpdate) Type() EventType { return EventStrokeUpdate }
func (*StrokeEnd) Type() EventType    { return EventStrokeEnd }
func (*StrokeDelete) Type() EventType { return EventStrokeDelete }
func (*CanvasClear) Type() EventType  { return EventCanvasClear }
func (*CanvasUndo) Type() EventType   { return EventCanvasUndo }
func (*CanvasRedo) Type() EventType   { return EventCanvasRedo }
func (*CursorMove) Type() EventType   { return EventCursorMove }
func (*ShapeStart) Type() EventType   { return EventShapeStart }
func (*ShapeUpdate) Type() EventType  { return EventShapeUpdate }
func (*ShapeEnd) Type() EventType     { return EventShapeEnd }

// ToModel 와이어 획을 roomID, userID 소유의 저장 레코드로 변환 (기본값 적용)
func (s StrokeData) ToModel(roomID, userID string) model.Stroke {
	points := make([]model.Point, len(s.Points))
	copy(points, s.Points)

	st := model.Stroke{
		RoomID:    roomID,
		StrokeID:  s.ID,
		UserID:    userID,
		Points:    points,
		Color:     s.Color,
		Size:      s.Size,
		Tool:      s.Tool,
		Timestamp: s.Timestamp,
	}
	st.ApplyDefaults()
	return st
}

// StrokeFromModel 저장된 획을 와이어 형식으로 변환
func StrokeFromModel(s model.Stroke) StrokeData {
	return StrokeData{
		ID:        s.StrokeID,
		Points:    s.Points,
		Color:     s.Color,
		Size:      s.Size,
		Tool:      s.Tool,
		Timestamp: s.Timestamp,
	}
}

// ToModel 와이어 도형을 저장 레코드로 변환
func (s ShapeData) ToModel(roomID, userID string) model.Shape {
	return model.Shape{
		RoomID:      roomID,
		ShapeID:     s.ID,
		UserID:      userID,
		Kind:        s.ShapeType,
		Start:       s.Start,
		End:         s.End,
		Color:       s.Color,
		StrokeWidth: s.StrokeWidth,
		FillColor:   s.FillColor,
		Timestamp:   s.Timestamp,
	}
}

// ShapeFromModel 저장된 도형을 와이어 형식으로 변환
func ShapeFromModel(s model.Shape) ShapeData {
	return ShapeData{
		ID:          s.ShapeID,
		ShapeType:   s.Kind,
		Start:       s.Start,
		End:         s.End,
		Color:       s.Color,
		StrokeWidth: s.StrokeWidth,
		FillColor:   s.FillColor,
		Timestamp:   s.Timestamp,
	}
}
