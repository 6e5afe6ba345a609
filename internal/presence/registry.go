package presence

import (
	"sort"
	"sync"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

// Registry 룸별 접속 사용자와 마지막 커서 위치. 프로세스 로컬이며 재시작
// 후에는 클라이언트 재입장으로 다시 채워진다.
//
// 룸 키는 멤버가 한 명 이상일 때만 존재한다
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]model.RoomUser
}

// NewRegistry 빈 Registry 생성
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]model.RoomUser),
	}
}

// AddUser 룸에 사용자 추가 (있으면 덮어씀). 추가 후 멤버 수를 반환한다.
func (r *Registry) AddUser(roomID string, user model.RoomUser) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]model.RoomUser)
		r.rooms[roomID] = members
	}
	members[user.ID] = user.Clone()
	return len(members)
}

// RemoveUser 룸에서 사용자 제거, 비면 룸 항목도 제거. 있었는지 여부를 반환한다.
func (r *Registry) RemoveUser(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// ListUsers 사용자 ID 순으로 정렬된 멤버 복사본 (없는 룸은 빈 슬라이스)
func (r *Registry) ListUsers(roomID string) []model.RoomUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	users := make([]model.RoomUser, 0, len(members))
	for _, u := range members {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// UpdateCursor 기존 멤버의 커서 저장. 입장/퇴장과 겹친 커서 이동은 흔하므로
// 모르는 룸이나 사용자는 무시한다.
func (r *Registry) UpdateCursor(roomID, userID string, cursor model.Cursor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	u, ok := members[userID]
	if !ok {
		return false
	}
	c := cursor
	u.Cursor = &c
	members[userID] = u
	return true
}

// RoomExists 멤버가 있는 룸인지 확인
func (r *Registry) RoomExists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID]
	return ok
}

// Count 룸 멤버 수
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// Stats 활성 룸 수와 접속 사용자 수
func (r *Registry) Stats() (rooms, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.rooms {
		users += len(members)
	}
	return len(r.rooms), users
}
