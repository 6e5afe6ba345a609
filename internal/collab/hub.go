package collab

import (
	"sync"

	"go.uber.org/zap"
)

// Frame 룸 단위로 전달되는 직렬화된 이벤트
type Frame struct {
	Room string
	// Seq 저장 대상 이벤트의 순번 (저장하지 않는 이벤트는 0)
	Seq  uint64
	Data []byte
}

// Subscriber 룸 라이브 이벤트 수신자
type Subscriber interface {
	ID() string
	// Deliver는 블로킹하면 안 된다
	Deliver(f Frame)
}

// Hub 룸별 브로드캐스트 그룹 관리. 그룹은 첫 구독 시 생성되고 마지막
// 구독자가 나가면 제거된다.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
	log   *zap.Logger
}

// NewHub 빈 Hub 생성
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Subscriber),
		log:   log,
	}
}

// Subscribe 룸 그룹에 구독자 추가
func (h *Hub) Subscribe(roomID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]Subscriber)
		h.rooms[roomID] = group
		h.log.Debug("broadcast group created", zap.String("roomId", roomID))
	}
	group[s.ID()] = s
}

// Unsubscribe 구독 해제, 비면 그룹 제거
func (h *Hub) Unsubscribe(roomID, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, subscriberID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
		h.log.Debug("broadcast group removed", zap.String("roomId", roomID))
	}
}

// Broadcast f.Room 구독자 중 except를 제외한 모두에게 전달. except가 비어
// 있으면 전원에게 보낸다. 전달은 잠금 밖에서 일어나므로 수신자는 f.Room으로
// 자신의 현재 룸을 다시 확인해야 한다.
func (h *Hub) Broadcast(f Frame, except string) int {
	h.mu.RLock()
	group := h.rooms[f.Room]
	targets := make([]Subscriber, 0, len(group))
	for id, s := range group {
		if id == except {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Deliver(f)
	}
	return len(targets)
}

// Size 룸 구독자 수
func (h *Hub) Size(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[roomID])
}

// Rooms 활성 브로드캐스트 그룹 수
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms)
}
