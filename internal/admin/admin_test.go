package admin

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/model"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

func useStore(t *testing.T, mem *store.MemoryStore) {
	t.Helper()
	prev := openStore
	openStore = func(context.Context, config.DatabaseConfig, *zap.Logger) (store.Store, error) {
		return mem, nil
	}
	t.Cleanup(func() { openStore = prev })
	t.Setenv("MINIO_ENDPOINT", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--driver", "memory"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, mem *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"room000001", "room000002"} {
		if _, _, err := mem.EnsureRoom(ctx, id, model.DefaultRoomSettings()); err != nil {
			t.Fatal(err)
		}
	}
	for i, id := range []string{"s1", "s2", "s3"} {
		s := model.Stroke{RoomID: "room000001", StrokeID: id, Timestamp: int64(i)}
		s.ApplyDefaults()
		if err := mem.AppendStroke(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		snap := &model.Snapshot{RoomID: "room000001", ImageData: "data:image/png;base64,AA", Timestamp: int64(1000 + i)}
		if err := mem.CreateSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckDB(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, mem)
	useStore(t, mem)

	out, err := run(t, "check-db")
	if err != nil {
		t.Fatalf("check-db: %v", err)
	}
	for _, want := range []string{"memory reachable", "rooms:     2", "strokes:   3", "snapshots: 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRoomsList(t *testing.T) {
	mem := store.NewMemoryStore()
	useStore(t, mem)

	out, err := run(t, "rooms", "list", "--limit", "5")
	if err != nil || !strings.Contains(out, "no rooms") {
		t.Fatalf("empty list = %q, %v", out, err)
	}

	seed(t, mem)
	out, err = run(t, "rooms", "list", "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(out, "maxUsers=50"); lines != 1 {
		t.Fatalf("printed %d rooms:\n%s", lines, out)
	}
}

func TestStrokesClear(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, mem)
	useStore(t, mem)

	out, err := run(t, "strokes", "clear", "room000001")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "removed 3 strokes") {
		t.Fatalf("output = %q", out)
	}
	if left, _ := mem.ListStrokes(context.Background(), "room000001"); len(left) != 0 {
		t.Fatalf("%d strokes remain", len(left))
	}

	if _, err := run(t, "strokes", "clear", "bad/id"); err == nil {
		t.Fatal("expected invalid room id error")
	}
}

func TestSnapshotsPrune(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, mem)
	useStore(t, mem)

	out, err := run(t, "snapshots", "prune", "room000001", "--keep", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pruned 3 snapshots") {
		t.Fatalf("output = %q", out)
	}

	left, _ := mem.ListSnapshots(context.Background(), "room000001", 0)
	if len(left) != 2 || left[0].Timestamp != 1004 || left[1].Timestamp != 1003 {
		t.Fatalf("remaining = %+v", left)
	}

	if _, err := run(t, "snapshots", "prune", "room000001", "--keep", "500"); err == nil {
		t.Fatal("expected error for keep out of range")
	}
}
