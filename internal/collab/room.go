package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
)

// room 룸 하나의 쓰기 순서를 관리한다. 누가 보냈든 같은 룸의 저장 작업은
// 하나의 큐에서 브로드캐스트 순서대로 실행된다.
type room struct {
	id      string
	engine  *Engine
	persist *Persister

	// seq 할당, 브로드캐스트, 큐 제출을 한 단위로 묶는다
	mu sync.Mutex

	// refs, closing은 engine.mu로 보호
	refs    int
	closing bool
	gone    chan struct{}
}

// acquireRoom 룸 상태를 참조한다. 직전 상태가 드레인 중이면 끝날 때까지
// 기다려 이전 쓰기가 새 쓰기보다 먼저 끝나도록 한다.
func (e *Engine) acquireRoom(roomID string) *room {
	e.mu.Lock()
	for {
		r, ok := e.rooms[roomID]
		if !ok {
			r = &room{
				id:      roomID,
				engine:  e,
				persist: NewPersister(e.opts.PersistQueueSize, e.opts.PersistTimeout, e.log.With(zap.String("roomId", roomID))),
				gone:    make(chan struct{}),
			}
			e.rooms[roomID] = r
		}
		if !r.closing {
			r.refs++
			e.mu.Unlock()
			return r
		}
		e.mu.Unlock()
		<-r.gone
		e.mu.Lock()
	}
}

// releaseRoom 참조 해제. 마지막 참조였다면 남은 저장 작업을 모두 실행한 뒤
// 반환한다.
func (e *Engine) releaseRoom(r *room) {
	e.mu.Lock()
	r.refs--
	if r.refs > 0 {
		e.mu.Unlock()
		return
	}
	r.closing = true
	e.mu.Unlock()

	r.persist.Close()

	e.mu.Lock()
	if e.rooms[r.id] == r {
		delete(e.rooms, r.id)
	}
	e.mu.Unlock()
	close(r.gone)
}

// emit 브로드캐스트 후 저장 작업을 룸 큐에 넣는다. 두 단계가 같은 잠금 안에
// 있으므로 큐 순서와 seq 순서가 일치한다. run이 nil이면 저장 없이 보내고 nil을 반환한다.
func (r *room) emit(msg protocol.Message, except, task string, run func(ctx context.Context) error) *Task {
	data, err := msg.Marshal()
	if err != nil {
		r.engine.log.Error("marshal broadcast", zap.String("type", msg.Type.String()), zap.Error(err))
		return nil
	}

	if run == nil {
		r.engine.hub.Broadcast(Frame{Room: r.id, Data: data}, except)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.engine.seq.Add(1)
	r.engine.hub.Broadcast(Frame{Room: r.id, Seq: seq, Data: data}, except)
	return r.persist.Submit(task, r.id, run)
}

// snapshot 지금까지 브로드캐스트된 저장 이벤트가 모두 반영된 시점에 read를
// 실행한다. 반환된 cutoff 이하의 seq는 read 결과에 포함되어 있다.
func (r *room) snapshot(ctx context.Context, task string, read func(ctx context.Context) error) (uint64, error) {
	r.mu.Lock()
	cutoff := r.engine.seq.Load()
	t := r.persist.Submit(task, r.id, read)
	r.mu.Unlock()

	return cutoff, t.Wait(ctx)
}
