// Package storetest 모든 store.Store 드라이버가 지켜야 할 동작
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// Factory 비어 있는 새 저장소 반환. 정리는 factory 책임
type Factory func(t *testing.T) store.Store

// Run 주어진 드라이버로 저장소 계약 검증
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("EnsureRoomCreatesOnce", func(t *testing.T) { testEnsureRoom(t, newStore(t)) })
	t.Run("StrokeLifecycle", func(t *testing.T) { testStrokeLifecycle(t, newStore(t)) })
	t.Run("AppendPointUnknownStroke", func(t *testing.T) { testAppendPointUnknown(t, newStore(t)) })
	t.Run("DeleteStrokeIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("StrokeOrdering", func(t *testing.T) { testStrokeOrdering(t, newStore(t)) })
	t.Run("RoomIsolation", func(t *testing.T) { testRoomIsolation(t, newStore(t)) })
	t.Run("ConcurrentPointAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("Shapes", func(t *testing.T) { testShapes(t, newStore(t)) })
	t.Run("Rooms", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("Snapshots", func(t *testing.T) { testSnapshots(t, newStore(t)) })
}

func roomName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func stroke(room, id string, ts int64, pts ...model.Point) model.Stroke {
	if pts == nil {
		pts = []model.Point{}
	}
	return model.Stroke{
		RoomID:    room,
		StrokeID:  id,
		UserID:    "u1",
		Points:    pts,
		Color:     "#ff0000",
		Size:      4,
		Tool:      model.ToolPen,
		Timestamp: ts,
	}
}

func testEnsureRoom(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("ensure")

	r, created, err := s.EnsureRoom(ctx, room, model.DefaultRoomSettings())
	if err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if !created {
		t.Fatal("first EnsureRoom should report created")
	}
	if r.RoomID != room || r.Settings.MaxUsers != model.DefaultMaxUsers {
		t.Fatalf("unexpected room: %+v", r)
	}

	r, created, err = s.EnsureRoom(ctx, room, model.RoomSettings{MaxUsers: 3})
	if err != nil {
		t.Fatalf("EnsureRoom again: %v", err)
	}
	if created {
		t.Fatal("second EnsureRoom should not report created")
	}
	if r.Settings.MaxUsers != model.DefaultMaxUsers {
		t.Fatalf("existing settings overwritten: %+v", r.Settings)
	}
}

func testStrokeLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("life")

	if err := s.AppendStroke(ctx, stroke(room, "s1", 100, model.Point{X: 0, Y: 0})); err != nil {
		t.Fatalf("AppendStroke: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.AppendPointToStroke(ctx, room, "s1", model.Point{X: float64(i), Y: float64(i)}); err != nil {
			t.Fatalf("AppendPointToStroke %d: %v", i, err)
		}
	}

	strokes, err := s.ListStrokes(ctx, room)
	if err != nil {
		t.Fatalf("ListStrokes: %v", err)
	}
	if len(strokes) != 1 {
		t.Fatalf("expected 1 stroke, got %d", len(strokes))
	}
	got := strokes[0]
	if got.StrokeID != "s1" || got.Color != "#ff0000" || got.Size != 4 || got.Tool != model.ToolPen {
		t.Fatalf("unexpected stroke: %+v", got)
	}
	if len(got.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(got.Points))
	}
	for i, p := range got.Points {
		if p.X != float64(i) {
			t.Fatalf("point %d out of order: %+v", i, p)
		}
	}

	if err := s.AppendStroke(ctx, stroke(room, "s1", 200)); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate AppendStroke: got %v, want ErrDuplicate", err)
	}

	if err := s.DeleteStroke(ctx, room, "s1"); err != nil {
		t.Fatalf("DeleteStroke: %v", err)
	}
	strokes, _ = s.ListStrokes(ctx, room)
	if len(strokes) != 0 {
		t.Fatalf("expected no strokes after delete, got %d", len(strokes))
	}
}

func testAppendPointUnknown(t *testing.T, s store.Store) {
	err := s.AppendPointToStroke(context.Background(), roomName("unknown"), "missing", model.Point{X: 1, Y: 1})
	if !errors.Is(err, store.ErrStrokeNotFound) {
		t.Fatalf("got %v, want ErrStrokeNotFound", err)
	}
}

func testDeleteIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("idem")
	if err := s.DeleteStroke(ctx, room, "never-existed"); err != nil {
		t.Fatalf("delete unknown stroke: %v", err)
	}
	_ = s.AppendStroke(ctx, stroke(room, "s1", 1))
	for i := 0; i < 2; i++ {
		if err := s.DeleteStroke(ctx, room, "s1"); err != nil {
			t.Fatalf("delete #%d: %v", i, err)
		}
	}
	n, err := s.DeleteAllStrokes(ctx, room)
	if err != nil || n != 0 {
		t.Fatalf("DeleteAllStrokes on empty room: n=%d err=%v", n, err)
	}
}

func testStrokeOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("order")

	// 같은 timestamp 는 삽입 순서
	inputs := []model.Stroke{
		stroke(room, "c", 300),
		stroke(room, "a", 100),
		stroke(room, "b1", 200),
		stroke(room, "b2", 200),
	}
	for _, st := range inputs {
		if err := s.AppendStroke(ctx, st); err != nil {
			t.Fatalf("AppendStroke %s: %v", st.StrokeID, err)
		}
	}

	strokes, err := s.ListStrokes(ctx, room)
	if err != nil {
		t.Fatalf("ListStrokes: %v", err)
	}
	want := []string{"a", "b1", "b2", "c"}
	if len(strokes) != len(want) {
		t.Fatalf("expected %d strokes, got %d", len(want), len(strokes))
	}
	for i, id := range want {
		if strokes[i].StrokeID != id {
			t.Fatalf("position %d: got %s, want %s", i, strokes[i].StrokeID, id)
		}
	}
}

func testRoomIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	r1, r2 := roomName("iso1"), roomName("iso2")

	// 다른 룸에 같은 stroke id 허용
	if err := s.AppendStroke(ctx, stroke(r1, "same", 1)); err != nil {
		t.Fatalf("AppendStroke r1: %v", err)
	}
	if err := s.AppendStroke(ctx, stroke(r2, "same", 1)); err != nil {
		t.Fatalf("AppendStroke r2: %v", err)
	}
	if err := s.AppendPointToStroke(ctx, r1, "same", model.Point{X: 9, Y: 9}); err != nil {
		t.Fatalf("AppendPointToStroke: %v", err)
	}

	n, err := s.DeleteAllStrokes(ctx, r1)
	if err != nil || n != 1 {
		t.Fatalf("DeleteAllStrokes r1: n=%d err=%v", n, err)
	}
	left, _ := s.ListStrokes(ctx, r2)
	if len(left) != 1 || len(left[0].Points) != 0 {
		t.Fatalf("room r2 was touched: %+v", left)
	}
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("conc")
	const strokes, points = 4, 25

	for i := 0; i < strokes; i++ {
		if err := s.AppendStroke(ctx, stroke(room, fmt.Sprintf("s%d", i), int64(i))); err != nil {
			t.Fatalf("AppendStroke: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < strokes; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < points; j++ {
				if err := s.AppendPointToStroke(ctx, room, id, model.Point{X: float64(j)}); err != nil {
					t.Errorf("AppendPointToStroke %s: %v", id, err)
					return
				}
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()

	list, err := s.ListStrokes(ctx, room)
	if err != nil {
		t.Fatalf("ListStrokes: %v", err)
	}
	for _, st := range list {
		if len(st.Points) != points {
			t.Fatalf("stroke %s lost points: %d", st.StrokeID, len(st.Points))
		}
		for j, p := range st.Points {
			if p.X != float64(j) {
				t.Fatalf("stroke %s point %d out of order", st.StrokeID, j)
			}
		}
	}
}

func testShapes(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("shape")

	sh := model.Shape{
		RoomID:      room,
		ShapeID:     "sh1",
		UserID:      "u1",
		Kind:        model.ShapeRectangle,
		Start:       model.Point{X: 1, Y: 1},
		End:         model.Point{X: 1, Y: 1},
		Color:       "#00ff00",
		StrokeWidth: 2,
		Timestamp:   10,
	}
	if err := s.AppendShape(ctx, sh); err != nil {
		t.Fatalf("AppendShape: %v", err)
	}
	if err := s.UpdateShapeEnd(ctx, room, "sh1", model.Point{X: 50, Y: 60}); err != nil {
		t.Fatalf("UpdateShapeEnd: %v", err)
	}
	if err := s.UpdateShapeEnd(ctx, room, "nope", model.Point{}); !errors.Is(err, store.ErrShapeNotFound) {
		t.Fatalf("UpdateShapeEnd unknown: got %v", err)
	}

	shapes, err := s.ListShapes(ctx, room)
	if err != nil {
		t.Fatalf("ListShapes: %v", err)
	}
	if len(shapes) != 1 || shapes[0].End.X != 50 || shapes[0].End.Y != 60 || shapes[0].Kind != model.ShapeRectangle {
		t.Fatalf("unexpected shapes: %+v", shapes)
	}

	n, err := s.DeleteAllShapes(ctx, room)
	if err != nil || n != 1 {
		t.Fatalf("DeleteAllShapes: n=%d err=%v", n, err)
	}
}

func testRooms(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("room")

	created, err := s.CreateRoom(ctx, model.Room{RoomID: room, Settings: model.RoomSettings{MaxUsers: 5, IsPrivate: true}})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
	if _, err := s.CreateRoom(ctx, model.Room{RoomID: room, Settings: model.DefaultRoomSettings()}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate CreateRoom: got %v", err)
	}

	got, err := s.GetRoom(ctx, room)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.Settings.MaxUsers != 5 || !got.Settings.IsPrivate {
		t.Fatalf("settings not stored: %+v", got.Settings)
	}
	if _, err := s.GetRoom(ctx, roomName("missing")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetRoom missing: got %v", err)
	}

	rooms, err := s.ListRooms(ctx, 0)
	if err != nil || len(rooms) == 0 {
		t.Fatalf("ListRooms: n=%d err=%v", len(rooms), err)
	}
}

func testSnapshots(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := roomName("snap")
	now := time.Now().UnixMilli()

	var ids []string
	for i := 0; i < 3; i++ {
		snap := &model.Snapshot{
			RoomID:    room,
			ImageData: "data:image/png;base64,AAAA",
			Name:      fmt.Sprintf("snap-%d", i),
			Timestamp: now + int64(i),
		}
		if err := s.CreateSnapshot(ctx, snap); err != nil {
			t.Fatalf("CreateSnapshot: %v", err)
		}
		if snap.ID == "" {
			t.Fatal("CreateSnapshot did not assign an id")
		}
		ids = append(ids, snap.ID)
	}

	list, err := s.ListSnapshots(ctx, room, 2)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Fatalf("expected newest first with limit, got %+v", list)
	}

	got, err := s.GetSnapshot(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got.Name != "snap-0" || got.ImageData == "" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	deleted, err := s.DeleteSnapshot(ctx, ids[0])
	if err != nil || deleted.ID != ids[0] {
		t.Fatalf("DeleteSnapshot: %+v err=%v", deleted, err)
	}
	if _, err := s.DeleteSnapshot(ctx, ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second DeleteSnapshot: got %v", err)
	}
	if _, err := s.GetSnapshot(ctx, ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetSnapshot after delete: got %v", err)
	}
}
