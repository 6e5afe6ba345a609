// Package collab 룸 단위 협업 엔진 (presence, 드로잉 이벤트 브로드캐스트,
// 저장, 입장 시 동기화)
package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/presence"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// Conn 클라이언트 연결의 전송 계층
type Conn interface {
	// Send 텍스트 프레임을 큐에 넣는다. 블로킹하지 않으며 false는 버려졌다는 뜻
	Send(data []byte) bool
	Close() error
}

// RoomCache 이미 있는 룸을 기억해 입장 시 EnsureRoom을 건너뛴다
type RoomCache interface {
	LookupRoom(ctx context.Context, roomID string) (model.RoomSettings, bool, error)
	RememberRoom(ctx context.Context, roomID string, settings model.RoomSettings) error
}

// Options 엔진 설정. rate가 0이면 제한 없음
type Options struct {
	PersistTimeout   time.Duration
	PersistQueueSize int
	PointRetryDelay  time.Duration
	EventRate        float64
	EventBurst       int
	CursorRate       float64
	StrictIdentity   bool
	PersistShapes    bool
	DefaultMaxUsers  int
}

// DefaultOptions 설정 기본값과 동일한 옵션
func DefaultOptions() Options {
	return Options{
		PersistTimeout:   2 * time.Second,
		PersistQueueSize: 1024,
		PointRetryDelay:  50 * time.Millisecond,
		EventRate:        200,
		EventBurst:       400,
		CursorRate:       30,
		DefaultMaxUsers:  model.DefaultMaxUsers,
	}
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = d.PersistTimeout
	}
	if o.PersistQueueSize <= 0 {
		o.PersistQueueSize = d.PersistQueueSize
	}
	if o.PointRetryDelay <= 0 {
		o.PointRetryDelay = d.PointRetryDelay
	}
	if o.DefaultMaxUsers <= 0 {
		o.DefaultMaxUsers = d.DefaultMaxUsers
	}
}

// Deps 엔진 의존성. Store만 필수
type Deps struct {
	Registry  *presence.Registry
	Store     store.Gateway
	Shapes    store.ShapeGateway
	Cache     RoomCache
	Publisher events.Publisher
	Validator *protocol.Validator
	Logger    *zap.Logger
}

// Stats 엔진 상태 요약
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Users       int `json:"users"`
}

// Engine 모든 연결이 공유하는 상태
type Engine struct {
	opts      Options
	registry  *presence.Registry
	store     store.Gateway
	shapes    store.ShapeGateway
	cache     RoomCache
	publisher events.Publisher
	validator *protocol.Validator
	hub       *Hub
	log       *zap.Logger

	// 저장 이벤트 순번. 룸 잠금 안에서만 증가한다
	seq atomic.Uint64

	mu    sync.Mutex
	peers map[string]*Peer
	rooms map[string]*room
	wg    sync.WaitGroup
}

// NewEngine 엔진 생성. 빠진 선택 의존성은 기본 구현으로 채운다
func NewEngine(deps Deps, opts Options) *Engine {
	opts.normalize()

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "collab"))

	if deps.Registry == nil {
		deps.Registry = presence.NewRegistry()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Validator == nil {
		deps.Validator = protocol.NewValidator()
	}
	if deps.Shapes == nil {
		if sg, ok := deps.Store.(store.ShapeGateway); ok {
			deps.Shapes = sg
		}
	}
	if deps.Shapes == nil && opts.PersistShapes {
		log.Warn("shape persistence requested but store has no shape support")
		opts.PersistShapes = false
	}

	return &Engine{
		opts:      opts,
		registry:  deps.Registry,
		store:     deps.Store,
		shapes:    deps.Shapes,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		validator: deps.Validator,
		hub:       NewHub(log),
		log:       log,
		peers:     make(map[string]*Peer),
		rooms:     make(map[string]*room),
	}
}

// Registry HTTP 계층 등 읽기 전용 소비자를 위한 presence
func (e *Engine) Registry() *presence.Registry { return e.registry }

// Connect 새 연결 등록
func (e *Engine) Connect(conn Conn) *Peer {
	p := newPeer(e, conn)

	e.mu.Lock()
	e.peers[p.ID()] = p
	e.wg.Add(1)
	e.mu.Unlock()

	e.log.Debug("peer connected", zap.String("sessionId", p.ID()))
	return p
}

func (e *Engine) release(p *Peer) {
	e.mu.Lock()
	if _, ok := e.peers[p.ID()]; ok {
		delete(e.peers, p.ID())
		e.wg.Done()
	}
	e.mu.Unlock()
}

// Stats 현재 연결/룸/사용자 수
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	conns := len(e.peers)
	e.mu.Unlock()

	rooms, users := e.registry.Stats()
	return Stats{Connections: conns, Rooms: rooms, Users: users}
}

// Shutdown 모든 전송을 닫고 피어 정리(퇴장 알림, 저장 드레인)가 끝나거나
// ctx가 끝날 때까지 기다린다
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	peers := make([]*Peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) publish(kind events.Kind, roomID, userID, strokeID string) {
	e.publisher.Publish(events.Activity{
		Kind:     kind,
		RoomID:   roomID,
		UserID:   userID,
		StrokeID: strokeID,
		At:       time.Now().UnixMilli(),
	})
}

func (e *Engine) broadcast(roomID string, msg protocol.Message, except string) {
	data, err := msg.Marshal()
	if err != nil {
		e.log.Error("marshal broadcast", zap.String("type", msg.Type.String()), zap.Error(err))
		return
	}
	e.hub.Broadcast(Frame{Room: roomID, Data: data}, except)
}

// ensureRoom 캐시 우선으로 룸 설정 조회, 없으면 저장소에서 보장
func (e *Engine) ensureRoom(ctx context.Context, roomID string) (model.RoomSettings, error) {
	if e.cache != nil {
		settings, ok, err := e.cache.LookupRoom(ctx, roomID)
		if err != nil {
			e.log.Debug("room cache lookup failed", zap.String("roomId", roomID), zap.Error(err))
		} else if ok {
			return settings, nil
		}
	}

	defaults := model.DefaultRoomSettings()
	defaults.MaxUsers = e.opts.DefaultMaxUsers

	rec, _, err := e.store.EnsureRoom(ctx, roomID, defaults)
	if err != nil {
		return model.RoomSettings{}, err
	}
	if e.cache != nil {
		if err := e.cache.RememberRoom(ctx, roomID, rec.Settings); err != nil {
			e.log.Debug("room cache write failed", zap.String("roomId", roomID), zap.Error(err))
		}
	}
	return rec.Settings, nil
}
