package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 저장 호출 하나. Err가 정해진 뒤 Done이 닫힌다.
type Task struct {
	Name string
	Room string
	Run  func(ctx context.Context) error

	err  error
	done chan struct{}
}

func newTask(name, room string, run func(ctx context.Context) error) *Task {
	return &Task{Name: name, Room: room, Run: run, done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done 작업이 실행되거나 거부되면 닫힌다
func (t *Task) Done() <-chan struct{} { return t.done }

// Err 작업 결과 (Done이 닫힌 뒤에만 유효)
func (t *Task) Err() error { return t.err }

// Wait 작업 완료 또는 ctx 종료까지 대기
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Persister 룸 하나의 저장 작업을 제출 순서대로 실행한다. 작업마다 별도
// 타임아웃이 있고 실패는 로그만 남기고 다음 작업으로 넘어간다.
type Persister struct {
	queue   chan *Task
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	exited chan struct{}
}

// NewPersister 워커 고루틴 시작
func NewPersister(size int, timeout time.Duration, log *zap.Logger) *Persister {
	if size <= 0 {
		size = 1
	}
	p := &Persister{
		queue:   make(chan *Task, size),
		timeout: timeout,
		log:     log,
		exited:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Submit 블로킹 없이 큐에 넣는다. 큐가 가득 차면 ErrQueueFull, 닫혔으면
// ErrPersisterClosed로 즉시 완료된다.
func (p *Persister) Submit(name, room string, run func(ctx context.Context) error) *Task {
	t := newTask(name, room, run)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		t.finish(ErrPersisterClosed)
		return t
	}
	select {
	case p.queue <- t:
	default:
		p.log.Warn("persistence queue full, dropping task",
			zap.String("task", name),
			zap.String("roomId", room),
		)
		t.finish(ErrQueueFull)
	}
	return t
}

// Do 제출 후 결과 대기
func (p *Persister) Do(ctx context.Context, name, room string, run func(ctx context.Context) error) error {
	return p.Submit(name, room, run).Wait(ctx)
}

// Flush 호출 전에 제출된 작업이 모두 끝날 때까지 대기
func (p *Persister) Flush(ctx context.Context) error {
	err := p.Do(ctx, "flush", "", func(context.Context) error { return nil })
	if errors.Is(err, ErrPersisterClosed) {
		select {
		case <-p.exited:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close 새 작업을 받지 않는다. 이미 큐에 있는 작업은 실행되며 모두 끝난 뒤
// 반환한다.
func (p *Persister) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	<-p.exited
}

func (p *Persister) run() {
	defer close(p.exited)

	for t := range p.queue {
		p.exec(t)
	}
}

func (p *Persister) exec(t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err := t.Run(ctx)
	if err != nil {
		p.log.Warn("persistence task failed",
			zap.String("task", t.Name),
			zap.String("roomId", t.Room),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	t.finish(err)
}
