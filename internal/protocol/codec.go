package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope 양방향 공통 프레임 형식
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message 서버가 보내는 이벤트
type Message struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Decode 클라이언트 프레임을 구체 이벤트로 파싱한다. 모르는 이벤트는
// ErrUnknownEvent, 잘못된 JSON은 ErrInvalidPayload.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev, err := newEvent(env.Type)
	if err != nil {
		return nil, err
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, fmt.Errorf("%w: missing payload for %s", ErrInvalidPayload, env.Type)
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return ev, nil
}

func newEvent(t EventType) (Event, error) {
	switch t {
	case EventRoomJoin:
		return &JoinRoom{}, nil
	case EventRoomLeave:
		return &LeaveRoom{}, nil
	case EventStrokeStart:
		return &StrokeStart{}, nil
	case EventStrokeUpdate:
		return &StrokeUpdate{}, nil
	case EventStrokeEnd:
		return &StrokeEnd{}, nil
	case EventStrokeDelete:
		return &StrokeDelete{}, nil
	case EventCanvasClear:
		return &CanvasClear{}, nil
	case EventCanvasUndo:
		return &CanvasUndo{}, nil
	case EventCanvasRedo:
		return &CanvasRedo{}, nil
	case EventCursorMove:
		return &CursorMove{}, nil
	case EventShapeStart:
		return &ShapeStart{}, nil
	case EventShapeUpdate:
		return &ShapeUpdate{}, nil
	case EventShapeEnd:
		return &ShapeEnd{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, t)
}

// Encode 클라이언트 이벤트를 프레임으로 직렬화 (Go 클라이언트, 테스트용)
func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}

// Marshal 서버 이벤트 직렬화
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// =============================================================================
// 서버 이벤트 생성 함수
// =============================================================================

func Joined(users []model.RoomUser) Message {
	if users == nil {
		users = []model.RoomUser{}
	}
	return Message{Type: EventRoomJoined, Payload: map[string]any{"users": users}}
}

func UserJoined(user model.RoomUser) Message {
	return Message{Type: EventUserJoined, Payload: map[string]any{"user": user}}
}

func UserLeft(userID string) Message {
	return Message{Type: EventUserLeft, Payload: map[string]any{"userId": userID}}
}

func StrokeStarted(userID string, stroke StrokeData) Message {
	return Message{Type: EventStrokeStarted, Payload: map[string]any{"userId": userID, "stroke": stroke}}
}

func StrokeUpdated(userID, strokeID string, point model.Point) Message {
	return Message{Type: EventStrokeUpdated, Payload: map[string]any{"userId": userID, "strokeId": strokeID, "point": point}}
}

func StrokeEnded(userID, strokeID string) Message {
	return Message{Type: EventStrokeEnded, Payload: map[string]any{"userId": userID, "strokeId": strokeID}}
}

func StrokeDeleted(userID, strokeID string) Message {
	return Message{Type: EventStrokeDeleted, Payload: map[string]any{"userId": userID, "strokeId": strokeID}}
}

func CanvasCleared(userID string) Message {
	return Message{Type: EventCanvasCleared, Payload: map[string]any{"userId": userID}}
}

// CanvasStrokes 입장 시 히스토리 동기화. strokes는 timestamp 순으로 정렬되어
// 있어야 한다.
func CanvasStrokes(strokes []model.Stroke) Message {
	out := make([]StrokeData, len(strokes))
	for i, s := range strokes {
		out[i] = StrokeFromModel(s)
	}
	return Message{Type: EventCanvasStrokes, Payload: map[string]any{"strokes": out}}
}

func CanvasShapes(shapes []model.Shape) Message {
	out := make([]ShapeData, len(shapes))
	for i, s := range shapes {
		out[i] = ShapeFromModel(s)
	}
	return Message{Type: EventCanvasShapes, Payload: map[string]any{"shapes": out}}
}

func CursorMoved(userID string, cursor model.Cursor) Message {
	return Message{Type: EventCursorMoved, Payload: map[string]any{"userId": userID, "cursor": cursor}}
}

func ShapeStarted(userID string, shape ShapeData) Message {
	return Message{Type: EventShapeStarted, Payload: map[string]any{"userId": userID, "shape": shape}}
}

func ShapeUpdated(userID, shapeID string, end model.Point) Message {
	return Message{Type: EventShapeUpdated, Payload: map[string]any{"userId": userID, "shapeId": shapeID, "endPoint": end}}
}

func ShapeEnded(userID, shapeID string) Message {
	return Message{Type: EventShapeEnded, Payload: map[string]any{"userId": userID, "shapeId": shapeID}}
}

func Error(message string) Message {
	return Message{Type: EventError, Payload: map[string]any{"message": message}}
}
