package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vishal-tambi/white-board-collabration-app/internal/events"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/session"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// Peer 연결 하나의 엔진 참여 상태. HandleMessage와 Close는 연결의 읽기
// 고루틴 하나에서만 호출해야 한다.
type Peer struct {
	engine  *Engine
	conn    Conn
	session *session.Session
	log     *zap.Logger

	// room은 바인딩 동안 잡고 있는 룸 참조, lastRoom과 lastTask는 Flush와
	// Close가 기다릴 대상
	roomMu   sync.Mutex
	room     *room
	lastRoom *room
	lastTask *Task

	limiter       *rate.Limiter
	cursorLimiter *rate.Limiter
	lastRateError time.Time

	// 입장 동기화 중 도착한 라이브 이벤트는 히스토리 전송 후로 미룬다
	syncMu  sync.Mutex
	syncing bool
	pending []Frame

	closeOnce sync.Once
}

func newPeer(e *Engine, conn Conn) *Peer {
	sess := session.New()
	log := e.log.With(zap.String("sessionId", sess.ID))

	return &Peer{
		engine:        e,
		conn:          conn,
		session:       sess,
		log:           log,
		limiter:       newLimiter(e.opts.EventRate, e.opts.EventBurst),
		cursorLimiter: newLimiter(e.opts.CursorRate, int(e.opts.CursorRate)),
	}
}

func newLimiter(r float64, burst int) *rate.Limiter {
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

// ID 세션 ID (브로드캐스트 구독자 ID 겸용)
func (p *Peer) ID() string { return p.session.ID }

// Session 연결의 세션 상태
func (p *Peer) Session() *session.Session { return p.session }

// Deliver Subscriber 구현. 지금 바인딩된 룸이 아닌 프레임은 버린다.
func (p *Peer) Deliver(f Frame) {
	if f.Room != p.session.RoomID() {
		p.log.Debug("dropping frame for previous room", zap.String("roomId", f.Room))
		return
	}

	p.syncMu.Lock()
	if p.syncing {
		p.pending = append(p.pending, f)
		p.syncMu.Unlock()
		return
	}
	p.syncMu.Unlock()
	p.write(f.Data)
}

func (p *Peer) write(data []byte) {
	if !p.conn.Send(data) {
		p.log.Debug("outbound frame dropped")
	}
}

func (p *Peer) beginSync() {
	p.syncMu.Lock()
	p.syncing = true
	p.pending = nil
	p.syncMu.Unlock()
}

// endSync 보류한 라이브 이벤트를 내보낸다. seq가 cutoff 이하인 저장 이벤트는
// 이미 히스토리에 들어 있으므로 버린다. flush가 false면 모두 버린다.
func (p *Peer) endSync(flush bool, cutoff uint64) {
	p.syncMu.Lock()
	pending := p.pending
	p.pending = nil
	if flush {
		// 순서 유지를 위해 잠금 안에서 전송
		for _, f := range pending {
			if f.Seq != 0 && f.Seq <= cutoff {
				continue
			}
			p.write(f.Data)
		}
	}
	p.syncing = false
	p.syncMu.Unlock()
}

func (p *Peer) send(msg protocol.Message) {
	data, err := msg.Marshal()
	if err != nil {
		p.log.Error("marshal message", zap.String("type", msg.Type.String()), zap.Error(err))
		return
	}
	p.write(data)
}

func (p *Peer) sendError(message string) {
	p.send(protocol.Error(message))
}

// Flush 마지막으로 참여한 룸의 저장 큐가 비워질 때까지 대기
func (p *Peer) Flush(ctx context.Context) error {
	p.roomMu.Lock()
	r := p.lastRoom
	p.roomMu.Unlock()

	if r == nil {
		return nil
	}
	return r.persist.Flush(ctx)
}

func (p *Peer) holdRoom(r *room) {
	p.roomMu.Lock()
	p.room, p.lastRoom = r, r
	p.roomMu.Unlock()
}

func (p *Peer) dropRoom() *room {
	p.roomMu.Lock()
	defer p.roomMu.Unlock()

	r := p.room
	p.room = nil
	return r
}

func (p *Peer) currentRoom() *room {
	p.roomMu.Lock()
	defer p.roomMu.Unlock()

	return p.room
}

// emit 현재 룸으로 브로드캐스트하고 run이 있으면 룸 큐에 저장 작업을 넣는다
func (p *Peer) emit(msg protocol.Message, except, task string, run func(ctx context.Context) error) {
	r := p.currentRoom()
	if r == nil {
		return
	}
	if t := r.emit(msg, except, task, run); t != nil {
		p.roomMu.Lock()
		p.lastTask = t
		p.roomMu.Unlock()
	}
}

// HandleMessage 클라이언트 프레임 하나를 디코딩, 검증, 처리한다. 전송
// 계층에는 에러를 돌려주지 않고 클라이언트에 error 이벤트로 알린다.
func (p *Peer) HandleMessage(ctx context.Context, raw []byte) {
	if p.session.State() == session.StateDisconnected {
		return
	}

	ev, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEvent) {
			p.sendError(msgUnknownEvent)
		} else {
			p.sendError(err.Error())
		}
		return
	}
	p.Dispatch(ctx, ev)
}

// Dispatch 디코딩된 이벤트 처리
func (p *Peer) Dispatch(ctx context.Context, ev protocol.Event) {
	p.session.CountEvent()

	if !p.allow(ev) {
		return
	}
	if err := p.engine.validator.Validate(ev); err != nil {
		p.sendError(err.Error())
		return
	}

	switch e := ev.(type) {
	case *protocol.JoinRoom:
		p.join(ctx, e)
	case *protocol.LeaveRoom:
		p.leave(e)
	case *protocol.StrokeStart:
		p.strokeStart(e)
	case *protocol.StrokeUpdate:
		p.strokeUpdate(e)
	case *protocol.StrokeEnd:
		p.strokeEnd(e)
	case *protocol.StrokeDelete:
		p.strokeDelete(e)
	case *protocol.CanvasClear:
		p.canvasClear(e)
	case *protocol.CanvasUndo:
		p.history(e)
	case *protocol.CanvasRedo:
		p.history(e)
	case *protocol.CursorMove:
		p.cursorMove(e)
	case *protocol.ShapeStart:
		p.shapeStart(e)
	case *protocol.ShapeUpdate:
		p.shapeUpdate(e)
	case *protocol.ShapeEnd:
		p.shapeEnd(e)
	default:
		p.log.Warn("unhandled event", zap.String("type", ev.Type().String()))
	}
}

// allow 연결별 rate limiter 적용
func (p *Peer) allow(ev protocol.Event) bool {
	if _, ok := ev.(*protocol.CursorMove); ok && !p.cursorLimiter.Allow() {
		return false
	}
	if p.limiter.Allow() {
		return true
	}
	if now := time.Now(); now.Sub(p.lastRateError) >= time.Second {
		p.lastRateError = now
		p.sendError(msgRateLimited)
	}
	return false
}

// bound 엄격 이벤트용 바인딩 확인. 미바인딩이거나 다른 룸이면 클라이언트에
// 에러를 보낸다.
func (p *Peer) bound(roomID string) (session.Binding, bool) {
	b, ok := p.session.Binding()
	if !ok {
		p.sendError(msgNotAuthenticated)
		return b, false
	}
	if b.RoomID != roomID {
		p.sendError(msgNotInRoom)
		return b, false
	}
	return b, true
}

// boundSoft 미바인딩이면 조용히 무시하는 이벤트용 (StrictIdentity면 에러).
// 룸 불일치는 항상 버린다.
func (p *Peer) boundSoft(roomID string) (session.Binding, bool) {
	b, ok := p.session.Binding()
	if !ok {
		if p.engine.opts.StrictIdentity {
			p.sendError(msgNotAuthenticated)
		}
		return b, false
	}
	if b.RoomID != roomID {
		p.log.Debug("dropping event for foreign room",
			zap.String("boundRoom", b.RoomID),
			zap.String("roomId", roomID),
		)
		return b, false
	}
	return b, true
}

// =============================================================================
// Membership
// =============================================================================

func (p *Peer) join(ctx context.Context, e *protocol.JoinRoom) {
	// 다른 룸에 있으면 먼저 나간다
	if b, ok := p.session.Unbind(); ok {
		p.leaveRoom(b)
	}

	roomID := e.RoomID
	user := model.RoomUser{ID: e.User.ID, Name: e.User.Name, Color: e.User.Color}

	// (a) 세션 바인딩
	r := p.engine.acquireRoom(roomID)
	if !p.session.Bind(roomID, user) {
		p.engine.releaseRoom(r)
		return
	}
	p.holdRoom(r)

	// (b) 브로드캐스트 그룹 구독, (c) presence 등록
	p.beginSync()
	p.engine.hub.Subscribe(roomID, p)
	count := p.engine.registry.AddUser(roomID, user)

	rollback := func(message string, err error) {
		p.engine.registry.RemoveUser(roomID, user.ID)
		p.engine.hub.Unsubscribe(roomID, p.ID())
		p.session.Unbind()
		p.endSync(false, 0)
		if r := p.dropRoom(); r != nil {
			p.engine.releaseRoom(r)
		}
		p.log.Warn("join failed",
			zap.String("roomId", roomID),
			zap.String("userId", user.ID),
			zap.Error(err),
		)
		p.sendError(message)
	}

	// (d) 룸 보장 (없으면 기본 설정으로 생성). 룸 큐 밖에서 실행해 다른
	// 멤버의 쓰기를 막지 않는다.
	ensureCtx, cancel := context.WithTimeout(ctx, p.engine.opts.PersistTimeout)
	settings, err := p.engine.ensureRoom(ensureCtx, roomID)
	cancel()
	if err != nil {
		rollback(msgJoinFailed, err)
		return
	}
	if settings.MaxUsers > 0 && count > settings.MaxUsers {
		rollback(msgRoomFull, ErrRoomFull)
		return
	}

	// (f) 히스토리 조회. 앞서 큐에 들어간 쓰기가 모두 반영된 뒤 읽는다.
	var (
		strokes []model.Stroke
		shapes  []model.Shape
	)
	persistShapes := p.engine.opts.PersistShapes
	cutoff, err := r.snapshot(ctx, "loadHistory", func(ctx context.Context) error {
		var err error
		if strokes, err = p.engine.store.ListStrokes(ctx, roomID); err != nil {
			return err
		}
		if persistShapes {
			shapes, err = p.engine.shapes.ListShapes(ctx, roomID)
		}
		return err
	})
	if err != nil {
		rollback(msgJoinFailed, err)
		return
	}

	// (e) 멤버 목록, (f) 히스토리 전송 (본인에게만)
	p.send(protocol.Joined(p.engine.registry.ListUsers(roomID)))
	p.send(protocol.CanvasStrokes(strokes))
	if persistShapes {
		p.send(protocol.CanvasShapes(shapes))
	}
	p.endSync(true, cutoff)

	// (g) 다른 멤버에게 입장 알림
	p.engine.broadcast(roomID, protocol.UserJoined(user), p.ID())
	p.engine.publish(events.KindUserJoined, roomID, user.ID, "")

	p.log.Info("user joined",
		zap.String("roomId", roomID),
		zap.String("userId", user.ID),
		zap.Int("members", count),
		zap.Int("strokes", len(strokes)),
	)
}

func (p *Peer) leave(e *protocol.LeaveRoom) {
	b, ok := p.session.Binding()
	if !ok || b.RoomID != e.RoomID {
		return
	}
	if b, ok := p.session.Unbind(); ok {
		p.leaveRoom(b)
	}
}

// leaveRoom 명시적 퇴장, 재입장 시 암묵적 퇴장, 연결 종료가 공유하는 정리
// 경로. 마지막 멤버였다면 룸 저장 큐를 드레인한다.
func (p *Peer) leaveRoom(b session.Binding) {
	p.engine.registry.RemoveUser(b.RoomID, b.User.ID)
	p.engine.hub.Unsubscribe(b.RoomID, p.ID())
	p.engine.broadcast(b.RoomID, protocol.UserLeft(b.User.ID), p.ID())
	p.engine.publish(events.KindUserLeft, b.RoomID, b.User.ID, "")

	if r := p.dropRoom(); r != nil {
		p.engine.releaseRoom(r)
	}

	p.log.Info("user left", zap.String("roomId", b.RoomID), zap.String("userId", b.User.ID))
}

// Close 전송 종료 처리. 암묵적 퇴장 후 이 연결이 넣은 저장 작업이 끝날 때까지
// 기다린다. 여러 번 호출해도 안전하다.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		if b, inRoom := p.session.Close(); inRoom {
			p.leaveRoom(b)
		}

		p.roomMu.Lock()
		last := p.lastTask
		p.roomMu.Unlock()
		if last != nil {
			<-last.Done()
		}
		p.engine.release(p)

		count, joinedAt := p.session.Stats()
		p.log.Debug("peer closed",
			zap.Uint64("events", count),
			zap.Time("joinedAt", joinedAt),
			zap.Duration("connected", time.Since(p.session.ConnectedAt)),
		)
	})
}

// =============================================================================
// Strokes
// =============================================================================

func (p *Peer) strokeStart(e *protocol.StrokeStart) {
	b, ok := p.bound(e.RoomID)
	if !ok {
		return
	}

	stroke := e.Stroke.ToModel(b.RoomID, b.User.ID)
	p.emit(protocol.StrokeStarted(b.User.ID, protocol.StrokeFromModel(stroke)), p.ID(),
		"appendStroke", func(ctx context.Context) error {
			return p.engine.store.AppendStroke(ctx, stroke)
		})
	p.engine.publish(events.KindStrokeStarted, b.RoomID, b.User.ID, stroke.StrokeID)
}

func (p *Peer) strokeUpdate(e *protocol.StrokeUpdate) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}

	point := *e.Point
	strokeID, retryDelay := e.StrokeID, p.engine.opts.PointRetryDelay
	p.emit(protocol.StrokeUpdated(b.User.ID, strokeID, point), p.ID(),
		"appendPoint", func(ctx context.Context) error {
			err := p.engine.store.AppendPointToStroke(ctx, b.RoomID, strokeID, point)
			if !errors.Is(err, store.ErrStrokeNotFound) {
				return err
			}
			// 다른 인스턴스가 쓴 start가 아직 보이지 않을 수 있으므로 한 번만 재시도
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			return p.engine.store.AppendPointToStroke(ctx, b.RoomID, strokeID, point)
		})
}

func (p *Peer) strokeEnd(e *protocol.StrokeEnd) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}
	p.emit(protocol.StrokeEnded(b.User.ID, e.StrokeID), p.ID(), "", nil)
}

func (p *Peer) strokeDelete(e *protocol.StrokeDelete) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}

	strokeID := e.StrokeID
	p.emit(protocol.StrokeDeleted(b.User.ID, strokeID), p.ID(),
		"deleteStroke", func(ctx context.Context) error {
			return p.engine.store.DeleteStroke(ctx, b.RoomID, strokeID)
		})
	p.engine.publish(events.KindStrokeDeleted, b.RoomID, b.User.ID, strokeID)
}

func (p *Peer) canvasClear(e *protocol.CanvasClear) {
	b, ok := p.bound(e.RoomID)
	if !ok {
		return
	}

	// 보낸 사람 포함 전체에게
	persistShapes := p.engine.opts.PersistShapes
	p.emit(protocol.CanvasCleared(b.User.ID), "",
		"clearCanvas", func(ctx context.Context) error {
			n, err := p.engine.store.DeleteAllStrokes(ctx, b.RoomID)
			if err != nil {
				return err
			}
			if persistShapes {
				if _, err := p.engine.shapes.DeleteAllShapes(ctx, b.RoomID); err != nil {
					return err
				}
			}
			p.log.Info("canvas cleared", zap.String("roomId", b.RoomID), zap.Int64("strokes", n))
			return nil
		})
	p.engine.publish(events.KindCanvasCleared, b.RoomID, b.User.ID, "")
}

// history undo/redo 처리. 클라이언트 로컬 동작이라 서버는 기록만 한다.
func (p *Peer) history(ev protocol.Event) {
	b, ok := p.bound(ev.Room())
	if !ok {
		return
	}
	p.log.Debug("history event",
		zap.String("type", ev.Type().String()),
		zap.String("roomId", b.RoomID),
		zap.String("userId", b.User.ID),
	)
}

// =============================================================================
// Cursor
// =============================================================================

func (p *Peer) cursorMove(e *protocol.CursorMove) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}

	cursor := *e.Cursor
	p.engine.registry.UpdateCursor(b.RoomID, b.User.ID, cursor)
	p.emit(protocol.CursorMoved(b.User.ID, cursor), p.ID(), "", nil)
}

// =============================================================================
// Shapes
// =============================================================================

func (p *Peer) shapeStart(e *protocol.ShapeStart) {
	b, ok := p.bound(e.RoomID)
	if !ok {
		return
	}

	msg := protocol.ShapeStarted(b.User.ID, *e.Shape)
	if !p.engine.opts.PersistShapes {
		p.emit(msg, p.ID(), "", nil)
		return
	}

	shape := e.Shape.ToModel(b.RoomID, b.User.ID)
	if shape.Timestamp == 0 {
		shape.Timestamp = time.Now().UnixMilli()
	}
	p.emit(msg, p.ID(), "appendShape", func(ctx context.Context) error {
		return p.engine.shapes.AppendShape(ctx, shape)
	})
}

func (p *Peer) shapeUpdate(e *protocol.ShapeUpdate) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}

	end := *e.EndPoint
	msg := protocol.ShapeUpdated(b.User.ID, e.ShapeID, end)
	if !p.engine.opts.PersistShapes {
		p.emit(msg, p.ID(), "", nil)
		return
	}

	shapeID := e.ShapeID
	p.emit(msg, p.ID(), "updateShape", func(ctx context.Context) error {
		return p.engine.shapes.UpdateShapeEnd(ctx, b.RoomID, shapeID, end)
	})
}

func (p *Peer) shapeEnd(e *protocol.ShapeEnd) {
	b, ok := p.boundSoft(e.RoomID)
	if !ok {
		return
	}
	p.emit(protocol.ShapeEnded(b.User.ID, e.ShapeID), p.ID(), "", nil)
}
