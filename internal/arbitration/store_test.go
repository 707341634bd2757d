package arbitration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := &State{
		ControllerClientID: "client_a",
		PendingRequests: []ControllerRequest{
			{ClientID: "client_b", RequesterName: "Ben", RequestTime: time.Now().UTC().Truncate(time.Millisecond)},
		},
		Epoch: 7,
	}
	if err := store.Save(ctx, "sess_1", st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("expected a snapshot")
	}
	if got.ControllerClientID != "client_a" || got.Epoch != 7 {
		t.Errorf("snapshot mismatch: %+v", got)
	}
	if len(got.PendingRequests) != 1 || got.PendingRequests[0].ClientID != "client_b" {
		t.Errorf("pending requests mismatch: %+v", got.PendingRequests)
	}
}

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load(context.Background(), "sess_missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil snapshot, got %+v", got)
	}
}

func TestStore_DeleteDropsSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "sess_1", &State{ControllerClientID: "client_a", Epoch: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "sess_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := store.Load(ctx, "sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Error("expected snapshot gone after delete")
	}
}
