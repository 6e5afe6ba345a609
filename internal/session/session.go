package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// State WebSocket 연결 상태
type State int

const (
	StateConnected    State = iota // 연결됨 (룸 없음)
	StateInRoom                    // 룸 참여 중
	StateDisconnected              // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Binding 세션에 바인딩된 룸/사용자 정보
type Binding struct {
	RoomID string
	User   model.RoomUser
}

// Session 클라이언트 세션 (Thread-Safe)
// Connected -> InRoom -> Connected ... -> Disconnected 순서로만 전이한다.
type Session struct {
	ID          string
	ConnectedAt time.Time

	mu       sync.RWMutex
	state    State
	binding  Binding
	events   uint64
	joinedAt time.Time
}

// New 새 세션 생성
func New() *Session {
	return &Session{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		state:       StateConnected,
	}
}

// State 현재 상태 조회
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Bind 룸 참여 (Connected -> InRoom)
// 이미 룸에 있거나 연결이 종료된 경우 false 를 반환한다.
func (s *Session) Bind(roomID string, user model.RoomUser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return false
	}
	s.state = StateInRoom
	s.binding = Binding{RoomID: roomID, User: user.Clone()}
	s.joinedAt = time.Now()
	return true
}

// Unbind 룸 이탈 (InRoom -> Connected)
// 이전 바인딩과 함께 실제로 룸에 있었는지 여부를 반환한다.
func (s *Session) Unbind() (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInRoom {
		return Binding{}, false
	}
	b := s.binding
	s.binding = Binding{}
	s.state = StateConnected
	return b, true
}

// Close 연결 종료 (-> Disconnected, 멱등)
// 종료 시점에 룸에 있었다면 해당 바인딩을 반환한다.
func (s *Session) Close() (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return Binding{}, false
	}
	b, inRoom := s.binding, s.state == StateInRoom
	s.binding = Binding{}
	s.state = StateDisconnected
	return b, inRoom
}

// Binding 현재 바인딩 조회
func (s *Session) Binding() (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateInRoom {
		return Binding{}, false
	}
	return s.binding, true
}

// RoomID 현재 룸 ID (없으면 빈 문자열)
func (s *Session) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.binding.RoomID
}

// UserID 바인딩된 사용자 ID (없으면 빈 문자열)
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.binding.User.ID
}

// CountEvent 수신 이벤트 수 증가
func (s *Session) CountEvent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events++
	return s.events
}

// Stats 세션 통계
func (s *Session) Stats() (events uint64, joinedAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.events, s.joinedAt
}
