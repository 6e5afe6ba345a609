package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
)

type strokeEntry struct {
	seq    uint64
	stroke model.Stroke
}

type shapeEntry struct {
	seq   uint64
	shape model.Shape
}

// MemoryStore 프로세스 메모리 저장소 (테스트, STORE_DRIVER=memory 개발용)
type MemoryStore struct {
	mu        sync.RWMutex
	seq       uint64
	rooms     map[string]model.Room
	strokes   map[string]map[string]*strokeEntry
	shapes    map[string]map[string]*shapeEntry
	snapshots map[string]model.Snapshot
}

// NewMemoryStore 빈 MemoryStore 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]model.Room),
		strokes:   make(map[string]map[string]*strokeEntry),
		shapes:    make(map[string]map[string]*shapeEntry),
		snapshots: make(map[string]model.Snapshot),
	}
}

func (m *MemoryStore) Kind() string { return DriverMemory }

func (m *MemoryStore) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// =============================================================================
// Gateway
// =============================================================================

func (m *MemoryStore) EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (model.Room, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[roomID]; ok {
		return room, false, nil
	}
	now := time.Now()
	room := model.Room{RoomID: roomID, Settings: defaults, CreatedAt: now, UpdatedAt: now}
	m.rooms[roomID] = room
	return room, true, nil
}

func (m *MemoryStore) AppendStroke(ctx context.Context, stroke model.Stroke) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.strokes[stroke.RoomID]
	if !ok {
		room = make(map[string]*strokeEntry)
		m.strokes[stroke.RoomID] = room
	}
	if _, exists := room[stroke.StrokeID]; exists {
		return ErrDuplicate
	}
	stroke = stroke.Clone()
	stroke.CreatedAt = time.Now()
	room[stroke.StrokeID] = &strokeEntry{seq: m.nextSeq(), stroke: stroke}
	return nil
}

func (m *MemoryStore) AppendPointToStroke(ctx context.Context, roomID, strokeID string, point model.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.strokes[roomID][strokeID]
	if !ok {
		return ErrStrokeNotFound
	}
	entry.stroke.Points = append(entry.stroke.Points, point)
	return nil
}

func (m *MemoryStore) DeleteStroke(ctx context.Context, roomID, strokeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.strokes[roomID]; ok {
		delete(room, strokeID)
		if len(room) == 0 {
			delete(m.strokes, roomID)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteAllStrokes(ctx context.Context, roomID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.strokes[roomID]))
	delete(m.strokes, roomID)
	return n, nil
}

func (m *MemoryStore) ListStrokes(ctx context.Context, roomID string) ([]model.Stroke, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := make([]*strokeEntry, 0, len(m.strokes[roomID]))
	for _, e := range m.strokes[roomID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stroke.Timestamp != entries[j].stroke.Timestamp {
			return entries[i].stroke.Timestamp < entries[j].stroke.Timestamp
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]model.Stroke, len(entries))
	for i, e := range entries {
		out[i] = e.stroke.Clone()
	}
	m.mu.RUnlock()
	return out, nil
}

// =============================================================================
// ShapeGateway
// =============================================================================

func (m *MemoryStore) AppendShape(ctx context.Context, shape model.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.shapes[shape.RoomID]
	if !ok {
		room = make(map[string]*shapeEntry)
		m.shapes[shape.RoomID] = room
	}
	if _, exists := room[shape.ShapeID]; exists {
		return ErrDuplicate
	}
	shape.CreatedAt = time.Now()
	room[shape.ShapeID] = &shapeEntry{seq: m.nextSeq(), shape: shape}
	return nil
}

func (m *MemoryStore) UpdateShapeEnd(ctx context.Context, roomID, shapeID string, end model.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.shapes[roomID][shapeID]
	if !ok {
		return ErrShapeNotFound
	}
	entry.shape.End = end
	return nil
}

func (m *MemoryStore) DeleteAllShapes(ctx context.Context, roomID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.shapes[roomID]))
	delete(m.shapes, roomID)
	return n, nil
}

func (m *MemoryStore) ListShapes(ctx context.Context, roomID string) ([]model.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*shapeEntry, 0, len(m.shapes[roomID]))
	for _, e := range m.shapes[roomID] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].shape.Timestamp != entries[j].shape.Timestamp {
			return entries[i].shape.Timestamp < entries[j].shape.Timestamp
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]model.Shape, len(entries))
	for i, e := range entries {
		out[i] = e.shape
	}
	return out, nil
}

// =============================================================================
// RoomStore
// =============================================================================

func (m *MemoryStore) CreateRoom(ctx context.Context, room model.Room) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.RoomID]; exists {
		return model.Room{}, ErrDuplicate
	}
	now := time.Now()
	room.CreatedAt, room.UpdatedAt = now, now
	m.rooms[room.RoomID] = room
	return room, nil
}

func (m *MemoryStore) GetRoom(ctx context.Context, roomID string) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return model.Room{}, ErrNotFound
	}
	return room, nil
}

func (m *MemoryStore) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]model.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

// =============================================================================
// SnapshotStore
// =============================================================================

func (m *MemoryStore) CreateSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if _, exists := m.snapshots[snap.ID]; exists {
		return ErrDuplicate
	}
	if snap.Timestamp == 0 {
		snap.Timestamp = time.Now().UnixMilli()
	}
	snap.CreatedAt = time.Now()
	m.snapshots[snap.ID] = *snap
	return nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Snapshot, 0)
	for _, s := range m.snapshots {
		if s.RoomID == roomID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[id]
	if !ok {
		return model.Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) DeleteSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snapshots[id]
	if !ok {
		return model.Snapshot{}, ErrNotFound
	}
	delete(m.snapshots, id)
	return s, nil
}

// =============================================================================
// Maintenance
// =============================================================================

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Rooms: int64(len(m.rooms)), Snapshots: int64(len(m.snapshots))}
	for _, room := range m.strokes {
		st.Strokes += int64(len(room))
	}
	for _, room := range m.shapes {
		st.Shapes += int64(len(room))
	}
	return st, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close(context.Context) error { return nil }
