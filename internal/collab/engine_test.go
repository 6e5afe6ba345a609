package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/protocol"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

func TestJoinLeaveEndToEnd(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	const room = "abc1234567"

	// U1이 빈 룸에 입장
	p1, c1 := h.connect()
	p1.HandleMessage(ctx, joinMsg(t, room, "u1"))
	frames := c1.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes")

	var joined struct {
		Users []model.RoomUser `json:"users"`
	}
	frames[0].decode(t, &joined)
	if len(joined.Users) != 1 || joined.Users[0].ID != "u1" {
		t.Fatalf("users = %+v, want [u1]", joined.Users)
	}
	var history struct {
		Strokes []protocol.StrokeData `json:"strokes"`
	}
	frames[1].decode(t, &history)
	if history.Strokes == nil || len(history.Strokes) != 0 {
		t.Fatalf("strokes = %+v, want empty array", history.Strokes)
	}

	// U1이 획 시작
	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": room,
		"stroke": map[string]any{
			"id": "s1", "points": []map[string]any{{"x": 0, "y": 0}},
			"color": "#000", "size": 8, "tool": "pen", "timestamp": 1000,
		},
	}))
	flush(t, p1)

	// U2 입장, U1과 획이 보여야 한다
	p2, c2 := h.connect()
	p2.HandleMessage(ctx, joinMsg(t, room, "u2"))
	frames = c2.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes")
	frames[0].decode(t, &joined)
	if len(joined.Users) != 2 || joined.Users[0].ID != "u1" || joined.Users[1].ID != "u2" {
		t.Fatalf("users = %+v, want [u1 u2]", joined.Users)
	}
	frames[1].decode(t, &history)
	if len(history.Strokes) != 1 || history.Strokes[0].ID != "s1" || len(history.Strokes[0].Points) != 1 {
		t.Fatalf("strokes = %+v", history.Strokes)
	}
	if s := history.Strokes[0]; s.Color != "#000" || s.Size != 8 || s.Tool != model.ToolPen || s.Timestamp != 1000 {
		t.Fatalf("stroke fields not preserved: %+v", s)
	}

	frames = c1.drain(t)
	expectTypes(t, frames, "room:user-joined")
	var uj struct {
		User model.RoomUser `json:"user"`
	}
	frames[0].decode(t, &uj)
	if uj.User.ID != "u2" || uj.User.Name != "User u2" {
		t.Fatalf("user-joined = %+v", uj.User)
	}

	// U1이 점 추가
	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": room, "strokeId": "s1", "point": map[string]any{"x": 5, "y": 5},
	}))
	frames = c2.drain(t)
	expectTypes(t, frames, "stroke:updated")
	var upd struct {
		UserID   string      `json:"userId"`
		StrokeID string      `json:"strokeId"`
		Point    model.Point `json:"point"`
	}
	frames[0].decode(t, &upd)
	if upd.UserID != "u1" || upd.StrokeID != "s1" || upd.Point.X != 5 || upd.Point.Y != 5 {
		t.Fatalf("stroke:updated = %+v", upd)
	}
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("sender should not receive its own update: %v", types(got))
	}

	// U1 연결 종료
	p1.Close()
	frames = c2.drain(t)
	expectTypes(t, frames, "room:user-left")
	var left struct {
		UserID string `json:"userId"`
	}
	frames[0].decode(t, &left)
	if left.UserID != "u1" {
		t.Fatalf("user-left = %+v", left)
	}
	users := h.engine.Registry().ListUsers(room)
	if len(users) != 1 || users[0].ID != "u2" {
		t.Fatalf("registry = %+v, want [u2]", users)
	}

	flush(t, p2)
	strokes, _ := h.store.ListStrokes(ctx, room)
	if len(strokes) != 1 || len(strokes[0].Points) != 2 {
		t.Fatalf("persisted = %+v, want s1 with 2 points", strokes)
	}
}

func TestJoinHistoryOrderedByTimestamp(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, s := range []model.Stroke{
		{RoomID: "r", StrokeID: "late", Timestamp: 300},
		{RoomID: "r", StrokeID: "early", Timestamp: 100},
		{RoomID: "r", StrokeID: "mid", Timestamp: 200},
	} {
		s.ApplyDefaults()
		if err := st.AppendStroke(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	h := newHarness(t, st, nil)
	p, c := h.connect()
	p.HandleMessage(ctx, joinMsg(t, "r", "u1"))
	frames := c.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes")

	var history struct {
		Strokes []protocol.StrokeData `json:"strokes"`
	}
	frames[1].decode(t, &history)
	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if history.Strokes[i].ID != id {
			t.Fatalf("history order = %+v, want %v", history.Strokes, want)
		}
	}
}

func TestJoinSyncPrecedesLiveEvents(t *testing.T) {
	gate := make(chan struct{})
	st := &gatedStore{MemoryStore: store.NewMemoryStore(), gate: gate, gateRoom: "r"}
	h := newHarness(t, st, nil)
	ctx := context.Background()

	// 첫 입장은 게이트를 통과시킨다
	p1, c1 := h.connect()
	go func() { gate <- struct{}{} }()
	p1.HandleMessage(ctx, joinMsg(t, "r", "u1"))
	c1.drain(t)

	p2, c2 := h.connect()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p2.HandleMessage(ctx, joinMsg(t, "r", "u2"))
	}()

	// p2는 구독된 상태로 EnsureRoom에서 대기 중
	waitFor(t, func() bool { return h.engine.hub.Size("r") == 2 })
	p1.HandleMessage(ctx, msg(t, "cursor:move", map[string]any{
		"roomId": "r", "cursor": map[string]any{"x": 1, "y": 2},
	}))

	gate <- struct{}{}
	<-done

	expectTypes(t, c2.drain(t), "room:joined", "canvas:strokes", "cursor:moved")
}

func TestJoinSyncSkipsUpdatesAlreadyInHistory(t *testing.T) {
	gate := make(chan struct{})
	st := &gatedStore{MemoryStore: store.NewMemoryStore(), gate: gate, gateRoom: "r"}
	h := newHarness(t, st, nil)
	ctx := context.Background()

	p1, c1 := h.connect()
	go func() { gate <- struct{}{} }()
	p1.HandleMessage(ctx, joinMsg(t, "r", "u1"))
	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r",
		"stroke": map[string]any{
			"id": "s1", "timestamp": 1,
			"points": []any{map[string]any{"x": 1, "y": 1}},
		},
	}))
	flush(t, p1)
	c1.drain(t)

	p2, c2 := h.connect()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p2.HandleMessage(ctx, joinMsg(t, "r", "u2"))
	}()

	// p2는 구독된 상태로 EnsureRoom에서 대기 중이고, 그 사이 저장된 점은
	// 히스토리에 포함된다
	waitFor(t, func() bool { return h.engine.hub.Size("r") == 2 })
	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": "r", "strokeId": "s1", "point": map[string]any{"x": 5, "y": 5},
	}))
	flush(t, p1)

	gate <- struct{}{}
	<-done

	frames := c2.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes")
	var history struct {
		Strokes []protocol.StrokeData `json:"strokes"`
	}
	frames[1].decode(t, &history)
	if len(history.Strokes) != 1 || len(history.Strokes[0].Points) != 2 {
		t.Fatalf("history = %+v, want s1 with 2 points", history.Strokes)
	}

	// 동기화 이후의 점은 그대로 전달된다
	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": "r", "strokeId": "s1", "point": map[string]any{"x": 6, "y": 6},
	}))
	expectTypes(t, c2.drain(t), "stroke:updated")
}

func TestFIFOPerSender(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r",
		"stroke": map[string]any{"id": "A", "points": []any{}, "timestamp": 1},
	}))
	const n = 50
	for i := 1; i <= n; i++ {
		p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
			"roomId": "r", "strokeId": "A", "point": map[string]any{"x": i, "y": 0},
		}))
	}
	p1.HandleMessage(ctx, msg(t, "stroke:end", map[string]any{"roomId": "r", "strokeId": "A"}))

	frames := c2.drain(t)
	if len(frames) != n+2 || frames[0].Type != "stroke:started" || frames[n+1].Type != "stroke:ended" {
		t.Fatalf("unexpected frames %v", types(frames))
	}
	for i := 1; i <= n; i++ {
		var upd struct {
			Point model.Point `json:"point"`
		}
		frames[i].decode(t, &upd)
		if upd.Point.X != float64(i) {
			t.Fatalf("update %d arrived out of order (x=%v)", i, upd.Point.X)
		}
	}

	flush(t, p1)
	strokes, _ := h.store.ListStrokes(ctx, "r")
	if len(strokes) != 1 || len(strokes[0].Points) != n {
		t.Fatalf("persisted %+v", strokes)
	}
	for i, pt := range strokes[0].Points {
		if pt.X != float64(i+1) {
			t.Fatalf("persisted point %d out of order", i)
		}
	}
}

func TestCanvasClearReachesSender(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")
	p2, c2 := h.joined("r", "u2")
	c1.drain(t)

	for i := 0; i < 3; i++ {
		p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
			"roomId": "r", "stroke": map[string]any{"id": fmt.Sprintf("s%d", i), "timestamp": i + 1},
		}))
	}
	flush(t, p1)
	c2.drain(t)

	p2.HandleMessage(ctx, msg(t, "canvas:clear", map[string]any{"roomId": "r"}))
	for _, c := range []*fakeConn{c1, c2} {
		frames := c.drain(t)
		expectTypes(t, frames, "canvas:cleared")
		var p struct {
			UserID string `json:"userId"`
		}
		frames[0].decode(t, &p)
		if p.UserID != "u2" {
			t.Fatalf("cleared by %q, want u2", p.UserID)
		}
	}

	flush(t, p2)
	if strokes, _ := h.store.ListStrokes(ctx, "r"); len(strokes) != 0 {
		t.Fatalf("%d strokes remain after clear", len(strokes))
	}
}

func TestClearWaitsForOtherSendersPendingAppend(t *testing.T) {
	st := &heldStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	h := newHarness(t, st, func(o *Options) { o.PersistTimeout = 5 * time.Second })
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")
	p2, c2 := h.joined("r", "u2")
	c1.drain(t)

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	select {
	case <-st.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("AppendStroke never started")
	}

	// u1의 저장이 끝나기 전에 u2가 캔버스를 지운다
	p2.HandleMessage(ctx, msg(t, "canvas:clear", map[string]any{"roomId": "r"}))
	expectTypes(t, c2.drain(t), "stroke:started", "canvas:cleared")
	expectTypes(t, c1.drain(t), "canvas:cleared")

	close(st.release)
	flush(t, p1, p2)

	if strokes, _ := h.store.ListStrokes(ctx, "r"); len(strokes) != 0 {
		t.Fatalf("cleared stroke came back: %+v", strokes)
	}
	if ops := st.recorded(); len(ops) != 2 || ops[0] != "append:s1" || ops[1] != "clear" {
		t.Fatalf("store saw %v, want [append:s1 clear]", ops)
	}
}

func TestRoomQueueDrainsWithLastMember(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, _ := h.joined("solo", "u1")

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "solo", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	p1.Close()

	if strokes, _ := h.store.ListStrokes(ctx, "solo"); len(strokes) != 1 {
		t.Fatalf("strokes after close = %+v", strokes)
	}
	h.engine.mu.Lock()
	n := len(h.engine.rooms)
	h.engine.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d room queues left after last member", n)
	}

	// 같은 룸에 다시 들어오면 새 큐가 열린다
	p2, _ := h.joined("solo", "u2")
	p2.HandleMessage(ctx, msg(t, "stroke:delete", map[string]any{"roomId": "solo", "strokeId": "s1"}))
	flush(t, p2)
	if strokes, _ := h.store.ListStrokes(ctx, "solo"); len(strokes) != 0 {
		t.Fatalf("strokes after delete = %+v", strokes)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")
	c1.drain(t)

	for i := 0; i < 2; i++ {
		p1.HandleMessage(ctx, msg(t, "stroke:delete", map[string]any{"roomId": "r", "strokeId": "ghost"}))
	}
	flush(t, p1)

	expectTypes(t, c2.drain(t), "stroke:deleted", "stroke:deleted")
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("sender got %v", types(got))
	}
}

func TestCrossRoomIsolation(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, c1 := h.joined("room-a", "u1")
	_, c2 := h.joined("room-b", "u2")

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "room-a", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	if got := c2.drain(t); len(got) != 0 {
		t.Fatalf("room-b received %v", types(got))
	}

	// 바인딩되지 않은 룸으로 보낸 이벤트
	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "room-b", "stroke": map[string]any{"id": "s2", "timestamp": 2},
	}))
	expectError(t, c1.drain(t), "Not in room")

	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": "room-b", "strokeId": "s1", "point": map[string]any{"x": 1, "y": 1},
	}))
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("soft event for foreign room should be dropped silently, got %v", types(got))
	}
	if got := c2.drain(t); len(got) != 0 {
		t.Fatalf("room-b received %v", types(got))
	}

	flush(t, p1)
	if b, _ := h.store.ListStrokes(ctx, "room-b"); len(b) != 0 {
		t.Fatalf("room-b persisted %+v", b)
	}
	if a, _ := h.store.ListStrokes(ctx, "room-a"); len(a) != 1 || len(a[0].Points) != 0 {
		t.Fatalf("room-a persisted %+v", a)
	}
}

func TestUnboundEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("strict events report", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		p, c := h.connect()
		p.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
			"roomId": "r", "stroke": map[string]any{"id": "s1"},
		}))
		expectError(t, c.drain(t), "Not authenticated")
		p.HandleMessage(ctx, msg(t, "canvas:clear", map[string]any{"roomId": "r"}))
		expectError(t, c.drain(t), "Not authenticated")
	})

	softEvents := func(t *testing.T) [][]byte {
		return [][]byte{
			msg(t, "stroke:update", map[string]any{"roomId": "r", "strokeId": "s1", "point": map[string]any{"x": 1, "y": 1}}),
			msg(t, "stroke:end", map[string]any{"roomId": "r", "strokeId": "s1"}),
			msg(t, "stroke:delete", map[string]any{"roomId": "r", "strokeId": "s1"}),
			msg(t, "cursor:move", map[string]any{"roomId": "r", "cursor": map[string]any{"x": 1, "y": 1}}),
			msg(t, "shape:update", map[string]any{"roomId": "r", "shapeId": "sh", "endPoint": map[string]any{"x": 1, "y": 1}}),
			msg(t, "shape:end", map[string]any{"roomId": "r", "shapeId": "sh"}),
		}
	}

	t.Run("soft events ignored", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		_, other := h.joined("r", "u2")
		p, c := h.connect()
		for _, raw := range softEvents(t) {
			p.HandleMessage(ctx, raw)
		}
		if got := c.drain(t); len(got) != 0 {
			t.Fatalf("unbound sender got %v", types(got))
		}
		if got := other.drain(t); len(got) != 0 {
			t.Fatalf("room received %v", types(got))
		}
	})

	t.Run("strict identity reports soft events", func(t *testing.T) {
		h := newHarness(t, nil, func(o *Options) { o.StrictIdentity = true })
		p, c := h.connect()
		events := softEvents(t)
		for _, raw := range events {
			p.HandleMessage(ctx, raw)
		}
		frames := c.drain(t)
		if len(frames) != len(events) {
			t.Fatalf("got %v, want %d errors", types(frames), len(events))
		}
		for _, f := range frames {
			expectError(t, []frame{f}, "Not authenticated")
		}
	})
}

func TestValidationAndUnknownEvents(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p, c := h.connect()

	p.HandleMessage(ctx, msg(t, "room:join", map[string]any{"roomId": "r"}))
	frames := c.drain(t)
	expectTypes(t, frames, "error")
	if p.Session().State().String() != "connected" {
		t.Fatalf("state = %s after invalid join", p.Session().State())
	}

	p.HandleMessage(ctx, msg(t, "room:join", map[string]any{"roomId": "bad room!", "user": map[string]any{"id": "u"}}))
	expectTypes(t, c.drain(t), "error")

	p.HandleMessage(ctx, msg(t, "laser:point", map[string]any{"roomId": "r"}))
	expectError(t, c.drain(t), "Unknown event")

	p.HandleMessage(ctx, []byte("{not json"))
	expectTypes(t, c.drain(t), "error")

	if h.engine.Registry().RoomExists("r") {
		t.Fatal("invalid events must not touch presence")
	}
}

func TestJoinDefaultsIdentity(t *testing.T) {
	h := newHarness(t, nil, nil)
	p, c := h.connect()
	p.HandleMessage(context.Background(), msg(t, "room:join", map[string]any{
		"roomId": "r",
		"user":   map[string]any{"id": "u1", "name": "  <b>Ada</b>  "},
	}))
	frames := c.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes")

	var joined struct {
		Users []model.RoomUser `json:"users"`
	}
	frames[0].decode(t, &joined)
	u := joined.Users[0]
	if u.Name != "Ada" {
		t.Fatalf("name = %q, want sanitised Ada", u.Name)
	}
	if u.Color == "" || u.Color[0] != '#' {
		t.Fatalf("color = %q, want generated hex", u.Color)
	}
}

func TestJoinFailureRollsBack(t *testing.T) {
	st := &faultyStore{MemoryStore: store.NewMemoryStore()}
	st.ensureErr = errors.New("db down")
	h := newHarness(t, st, nil)
	p, c := h.connect()

	p.HandleMessage(context.Background(), joinMsg(t, "r", "u1"))
	expectError(t, c.drain(t), "Failed to join room")

	if h.engine.Registry().RoomExists("r") {
		t.Fatal("failed join left presence behind")
	}
	if h.engine.hub.Size("r") != 0 {
		t.Fatal("failed join left a subscription behind")
	}
	if _, ok := p.Session().Binding(); ok {
		t.Fatal("failed join left the session bound")
	}

	// 연결은 유지되고 재시도할 수 있다
	st.setEnsureErr(nil)
	p.HandleMessage(context.Background(), joinMsg(t, "r", "u1"))
	expectTypes(t, c.drain(t), "room:joined", "canvas:strokes")
}

func TestRoomCapacity(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.DefaultMaxUsers = 1 })
	ctx := context.Background()
	_, c1 := h.joined("r", "u1")

	p2, c2 := h.connect()
	p2.HandleMessage(ctx, joinMsg(t, "r", "u2"))
	expectError(t, c2.drain(t), "Room is full")

	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("member was told about a rejected joiner: %v", types(got))
	}
	users := h.engine.Registry().ListUsers("r")
	if len(users) != 1 || users[0].ID != "u1" {
		t.Fatalf("registry = %+v", users)
	}
}

func TestSecondJoinLeavesFirstRoom(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, _ := h.joined("room-a", "u1")
	_, watcher := h.joined("room-a", "u2")

	p1.HandleMessage(ctx, joinMsg(t, "room-b", "u1"))

	expectTypes(t, watcher.drain(t), "room:user-left")
	reg := h.engine.Registry()
	if users := reg.ListUsers("room-a"); len(users) != 1 || users[0].ID != "u2" {
		t.Fatalf("room-a = %+v", users)
	}
	if users := reg.ListUsers("room-b"); len(users) != 1 || users[0].ID != "u1" {
		t.Fatalf("room-b = %+v", users)
	}
	if b, _ := p1.Session().Binding(); b.RoomID != "room-b" {
		t.Fatalf("bound to %q", b.RoomID)
	}
}

func TestFrameForPreviousRoomIsDropped(t *testing.T) {
	h := newHarness(t, nil, nil)
	p1, c1 := h.joined("room-a", "u1")
	p1.HandleMessage(context.Background(), joinMsg(t, "room-b", "u1"))
	c1.drain(t)

	data, err := protocol.StrokeStarted("u2", protocol.StrokeData{ID: "late"}).Marshal()
	if err != nil {
		t.Fatal(err)
	}

	// room-a 브로드캐스트가 구독 해제 전에 대상을 복사한 뒤 늦게 도착한 경우
	p1.Deliver(Frame{Room: "room-a", Seq: 1, Data: data})
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("room-b member got room-a frame: %v", types(got))
	}

	p1.Deliver(Frame{Room: "room-b", Data: data})
	expectTypes(t, c1.drain(t), "stroke:started")
}

func TestLeaveThenDisconnectIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")

	p1.HandleMessage(ctx, msg(t, "room:leave", map[string]any{"roomId": "r"}))
	expectTypes(t, c2.drain(t), "room:user-left")

	p1.HandleMessage(ctx, msg(t, "room:leave", map[string]any{"roomId": "r"}))
	p1.Close()
	p1.Close()
	if got := c2.drain(t); len(got) != 0 {
		t.Fatalf("extra notifications: %v", types(got))
	}

	solo, _ := h.joined("solo", "u3")
	solo.Close()
	if h.engine.Registry().RoomExists("solo") {
		t.Fatal("room should disappear with its last member")
	}
}

func TestCursorMoveUpdatesPresence(t *testing.T) {
	h := newHarness(t, nil, nil)
	p1, _ := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")

	p1.HandleMessage(context.Background(), msg(t, "cursor:move", map[string]any{
		"roomId": "r", "cursor": map[string]any{"x": 10, "y": 20},
	}))

	frames := c2.drain(t)
	expectTypes(t, frames, "cursor:moved")
	for _, u := range h.engine.Registry().ListUsers("r") {
		if u.ID == "u1" && (u.Cursor == nil || u.Cursor.X != 10 || u.Cursor.Y != 20) {
			t.Fatalf("cursor not stored: %+v", u)
		}
	}
}

func TestUndoRedoAreLogOnly(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")
	c1.drain(t)

	p1.HandleMessage(ctx, msg(t, "canvas:undo", map[string]any{"roomId": "r"}))
	p1.HandleMessage(ctx, msg(t, "canvas:redo", map[string]any{"roomId": "r"}))
	if got := append(c1.drain(t), c2.drain(t)...); len(got) != 0 {
		t.Fatalf("undo/redo produced %v", types(got))
	}
}

func TestPersistenceFailureDoesNotBlockBroadcast(t *testing.T) {
	st := &faultyStore{MemoryStore: store.NewMemoryStore(), appendErr: errors.New("disk full")}
	h := newHarness(t, st, nil)
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")
	c1.drain(t)

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	expectTypes(t, c2.drain(t), "stroke:started")

	flush(t, p1)
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("persistence failure surfaced to client: %v", types(got))
	}
}

func TestSlowStoreTimesOut(t *testing.T) {
	st := &slowStore{MemoryStore: store.NewMemoryStore()}
	h := newHarness(t, st, func(o *Options) { o.PersistTimeout = 300 * time.Millisecond })
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")

	start := time.Now()
	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	if time.Since(start) > 150*time.Millisecond {
		t.Fatal("HandleMessage waited on persistence")
	}
	expectTypes(t, c2.drain(t), "stroke:started")

	flush(t, p1)
	if atomic.LoadInt32(&st.cancelled) != 1 {
		t.Fatal("stuck write was not cancelled by the timeout")
	}
}

func TestAppendPointRetriesOnce(t *testing.T) {
	st := &faultyStore{MemoryStore: store.NewMemoryStore(), missingPoints: 1}
	h := newHarness(t, st, func(o *Options) { o.PointRetryDelay = time.Millisecond })
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")

	p1.HandleMessage(ctx, msg(t, "stroke:start", map[string]any{
		"roomId": "r", "stroke": map[string]any{"id": "s1", "timestamp": 1},
	}))
	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": "r", "strokeId": "s1", "point": map[string]any{"x": 1, "y": 1},
	}))
	flush(t, p1)

	if got := atomic.LoadInt32(&st.pointCalls); got != 2 {
		t.Fatalf("AppendPointToStroke calls = %d, want 2", got)
	}
	strokes, _ := st.ListStrokes(ctx, "r")
	if len(strokes) != 1 || len(strokes[0].Points) != 1 {
		t.Fatalf("point not persisted after retry: %+v", strokes)
	}
}

func TestUpdateForUnknownStrokeIsHarmless(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.PointRetryDelay = time.Millisecond })
	ctx := context.Background()
	p1, c1 := h.joined("r", "u1")

	p1.HandleMessage(ctx, msg(t, "stroke:update", map[string]any{
		"roomId": "r", "strokeId": "nope", "point": map[string]any{"x": 1, "y": 1},
	}))
	flush(t, p1)
	if got := c1.drain(t); len(got) != 0 {
		t.Fatalf("got %v", types(got))
	}
	if p1.Session().State().String() != "in_room" {
		t.Fatal("connection state changed")
	}
}

func TestShapesRelayOnlyByDefault(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")
	_, c2 := h.joined("r", "u2")

	p1.HandleMessage(ctx, msg(t, "shape:start", map[string]any{
		"roomId": "r",
		"shape": map[string]any{
			"id": "sh1", "shapeType": "circle",
			"start": map[string]any{"x": 0, "y": 0}, "end": map[string]any{"x": 0, "y": 0},
			"color": "#f00", "strokeWidth": 2, "timestamp": 5,
		},
	}))
	p1.HandleMessage(ctx, msg(t, "shape:update", map[string]any{
		"roomId": "r", "shapeId": "sh1", "endPoint": map[string]any{"x": 9, "y": 9},
	}))
	p1.HandleMessage(ctx, msg(t, "shape:end", map[string]any{"roomId": "r", "shapeId": "sh1"}))
	expectTypes(t, c2.drain(t), "shape:started", "shape:updated", "shape:ended")

	flush(t, p1)
	if shapes, _ := h.store.ListShapes(ctx, "r"); len(shapes) != 0 {
		t.Fatalf("shapes persisted with persistence off: %+v", shapes)
	}
}

func TestShapePersistence(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.PersistShapes = true })
	ctx := context.Background()
	p1, _ := h.joined("r", "u1")

	p1.HandleMessage(ctx, msg(t, "shape:start", map[string]any{
		"roomId": "r",
		"shape": map[string]any{
			"id": "sh1", "shapeType": "rectangle",
			"start": map[string]any{"x": 1, "y": 1}, "end": map[string]any{"x": 1, "y": 1},
			"color": "#0f0", "strokeWidth": 3, "timestamp": 7,
		},
	}))
	p1.HandleMessage(ctx, msg(t, "shape:update", map[string]any{
		"roomId": "r", "shapeId": "sh1", "endPoint": map[string]any{"x": 40, "y": 30},
	}))
	flush(t, p1)

	p2, c2 := h.connect()
	p2.HandleMessage(ctx, joinMsg(t, "r", "u2"))
	frames := c2.drain(t)
	expectTypes(t, frames, "room:joined", "canvas:strokes", "canvas:shapes")
	var payload struct {
		Shapes []protocol.ShapeData `json:"shapes"`
	}
	frames[2].decode(t, &payload)
	if len(payload.Shapes) != 1 || payload.Shapes[0].End.X != 40 || payload.Shapes[0].ShapeType != model.ShapeRectangle {
		t.Fatalf("shapes = %+v", payload.Shapes)
	}

	p2.HandleMessage(ctx, msg(t, "canvas:clear", map[string]any{"roomId": "r"}))
	flush(t, p2)
	if shapes, _ := h.store.ListShapes(ctx, "r"); len(shapes) != 0 {
		t.Fatalf("clear left shapes: %+v", shapes)
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.EventRate, o.EventBurst = 0.001, 1 })
	ctx := context.Background()
	p, c := h.connect()

	p.HandleMessage(ctx, joinMsg(t, "r", "u1"))
	expectTypes(t, c.drain(t), "room:joined", "canvas:strokes")

	for i := 0; i < 5; i++ {
		p.HandleMessage(ctx, msg(t, "canvas:clear", map[string]any{"roomId": "r"}))
	}
	expectError(t, c.drain(t), "Rate limit exceeded")
}

func TestPresenceUnderConcurrentJoinLeave(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _ := h.connect()
			p.HandleMessage(ctx, joinMsg(t, "busy", fmt.Sprintf("u%02d", i)))
			if i%2 == 0 {
				p.Close()
			}
		}(i)
	}
	wg.Wait()

	if got := h.engine.Registry().Count("busy"); got != 10 {
		t.Fatalf("registry count = %d, want 10", got)
	}
	if got := h.engine.hub.Size("busy"); got != 10 {
		t.Fatalf("subscribers = %d, want 10", got)
	}
}

func TestShutdownClosesPeers(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.joined("r", "u1")
	h.joined("r", "u2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.engine.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if st := h.engine.Stats(); st.Connections != 0 || st.Rooms != 0 {
		t.Fatalf("stats after shutdown = %+v", st)
	}
}

// =============================================================================
// 저장소 대역
// =============================================================================

type faultyStore struct {
	*store.MemoryStore

	mu            sync.Mutex
	ensureErr     error
	appendErr     error
	missingPoints int32
	pointCalls    int32
}

func (s *faultyStore) setEnsureErr(err error) {
	s.mu.Lock()
	s.ensureErr = err
	s.mu.Unlock()
}

func (s *faultyStore) EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (model.Room, bool, error) {
	s.mu.Lock()
	err := s.ensureErr
	s.mu.Unlock()
	if err != nil {
		return model.Room{}, false, err
	}
	return s.MemoryStore.EnsureRoom(ctx, roomID, defaults)
}

func (s *faultyStore) AppendStroke(ctx context.Context, stroke model.Stroke) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.AppendStroke(ctx, stroke)
}

func (s *faultyStore) AppendPointToStroke(ctx context.Context, roomID, strokeID string, point model.Point) error {
	if atomic.AddInt32(&s.pointCalls, 1) <= atomic.LoadInt32(&s.missingPoints) {
		return store.ErrStrokeNotFound
	}
	return s.MemoryStore.AppendPointToStroke(ctx, roomID, strokeID, point)
}

// slowStore AppendStroke가 데드라인 전에 끝나지 않는다
type slowStore struct {
	*store.MemoryStore
	cancelled int32
}

func (s *slowStore) AppendStroke(ctx context.Context, _ model.Stroke) error {
	<-ctx.Done()
	atomic.StoreInt32(&s.cancelled, 1)
	return ctx.Err()
}

// gatedStore 테스트가 풀어 줄 때까지 gateRoom의 EnsureRoom을 막는다
type gatedStore struct {
	*store.MemoryStore
	gate     chan struct{}
	gateRoom string
}

func (s *gatedStore) EnsureRoom(ctx context.Context, roomID string, defaults model.RoomSettings) (model.Room, bool, error) {
	if roomID == s.gateRoom {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return model.Room{}, false, ctx.Err()
		}
	}
	return s.MemoryStore.EnsureRoom(ctx, roomID, defaults)
}

// heldStore release가 닫힐 때까지 AppendStroke를 막고 쓰기 도착 순서를 기록한다
type heldStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}

	mu  sync.Mutex
	ops []string
}

func (s *heldStore) record(op string) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

func (s *heldStore) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *heldStore) AppendStroke(ctx context.Context, stroke model.Stroke) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.record("append:" + stroke.StrokeID)
	return s.MemoryStore.AppendStroke(ctx, stroke)
}

func (s *heldStore) DeleteAllStrokes(ctx context.Context, roomID string) (int64, error) {
	s.record("clear")
	return s.MemoryStore.DeleteAllStrokes(ctx, roomID)
}
