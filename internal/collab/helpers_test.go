package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// fakeConn 보낸 프레임을 기록하는 연결
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	onClose func()
}

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	if !already && onClose != nil {
		go onClose()
	}
	return nil
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Type, err)
	}
}

// drain 지금까지 받은 프레임을 반환하고 비운다
func (c *fakeConn) drain(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	raw := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]frame, len(raw))
	for i, data := range raw {
		if err := json.Unmarshal(data, &out[i]); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
	}
	return out
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func expectTypes(t *testing.T, frames []frame, want ...string) {
	t.Helper()
	got := types(frames)
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func expectError(t *testing.T, frames []frame, message string) {
	t.Helper()
	expectTypes(t, frames, "error")
	var p struct {
		Message string `json:"message"`
	}
	frames[0].decode(t, &p)
	if p.Message != message {
		t.Fatalf("error message = %q, want %q", p.Message, message)
	}
}

func msg(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func joinMsg(t *testing.T, room, userID string) []byte {
	return msg(t, "room:join", map[string]any{
		"roomId": room,
		"user":   map[string]any{"id": userID, "name": "User " + userID, "color": "#123456"},
	})
}

type harness struct {
	t      *testing.T
	engine *Engine
	store  store.Store
}

func newHarness(t *testing.T, st store.Store, mutate func(*Options)) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	opts := DefaultOptions()
	opts.EventRate, opts.CursorRate = 0, 0
	if mutate != nil {
		mutate(&opts)
	}
	e := NewEngine(Deps{Store: st, Logger: zap.NewNop()}, opts)
	return &harness{t: t, engine: e, store: st}
}

// connect 피어와 전송 생성. 피어는 테스트 정리 시 닫힌다.
func (h *harness) connect() (*Peer, *fakeConn) {
	c := &fakeConn{}
	p := h.engine.Connect(c)
	c.onClose = p.Close
	h.t.Cleanup(p.Close)
	return p, c
}

// joined 연결 후 룸 입장, 입장 프레임은 버린다
func (h *harness) joined(room, userID string) (*Peer, *fakeConn) {
	h.t.Helper()
	p, c := h.connect()
	p.HandleMessage(context.Background(), joinMsg(h.t, room, userID))
	frames := c.drain(h.t)
	if len(frames) == 0 || frames[0].Type != "room:joined" {
		h.t.Fatalf("join %s/%s failed: %v", room, userID, types(frames))
	}
	return p, c
}

func flush(t *testing.T, peers ...*Peer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range peers {
		if err := p.Flush(ctx); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
