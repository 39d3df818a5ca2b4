package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/manpreetbhatti/codesync/backend/internal/room"
)

type listingStore interface {
	Store
	Lister
}

func setupSQLite(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "codesync-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	s, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create sqlite store: %v", err)
	}

	cleanup := func() {
		s.Close()
		os.RemoveAll(tmpDir)
	}
	return s, cleanup
}

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { rdb.Close() })

	return NewRedisStore(rdb, DefaultKeyPrefix, 0), mr
}

func allStores(t *testing.T) map[string]listingStore {
	t.Helper()

	sqliteStore, cleanup := setupSQLite(t)
	t.Cleanup(cleanup)
	redisStore, _ := setupRedis(t)

	return map[string]listingStore{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func sampleRoom() *room.Room {
	return &room.Room{
		Code:     "x = 1\n",
		Language: "python",
		Participants: []room.Participant{
			{ID: "c", Name: "Carol"},
			{ID: "a", Name: "Alice"},
			{ID: "b", Name: "Bob"},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleRoom()
			if err := s.Set(ctx, "r1", want); err != nil {
				t.Fatalf("Failed to set room: %v", err)
			}

			got, err := s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Failed to get room: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Round trip mismatch:\n got  %+v\n want %+v", got, want)
			}
		})
	}
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()

	for name, s := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != nil {
				t.Errorf("Expected absent room, got %+v", got)
			}
		})
	}
}

func TestOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, "r1", sampleRoom()); err != nil {
				t.Fatalf("Failed to set room: %v", err)
			}

			updated := sampleRoom()
			updated.Code = "y = 2\n"
			updated.Participants = updated.Participants[:1]
			if err := s.Set(ctx, "r1", updated); err != nil {
				t.Fatalf("Failed to overwrite room: %v", err)
			}

			got, err := s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Failed to get room: %v", err)
			}
			if got.Code != "y = 2\n" || len(got.Participants) != 1 {
				t.Errorf("Overwrite not visible: %+v", got)
			}

			if err := s.Delete(ctx, "r1"); err != nil {
				t.Fatalf("Failed to delete room: %v", err)
			}
			got, err = s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != nil {
				t.Error("Deleted room should not exist")
			}

			// Deleting twice is fine
			if err := s.Delete(ctx, "r1"); err != nil {
				t.Errorf("Second delete should succeed, got %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()

	for name, s := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"room-a", "room-b", "room-c"} {
				if err := s.Set(ctx, id, sampleRoom()); err != nil {
					t.Fatalf("Failed to set room: %v", err)
				}
			}

			ids, err := s.List(ctx)
			if err != nil {
				t.Fatalf("Failed to list rooms: %v", err)
			}
			if len(ids) != 3 {
				t.Fatalf("Expected 3 rooms, got %v", ids)
			}
			seen := make(map[string]bool)
			for _, id := range ids {
				seen[id] = true
			}
			for _, id := range []string{"room-a", "room-b", "room-c"} {
				if !seen[id] {
					t.Errorf("Expected %s in list %v", id, ids)
				}
			}
		})
	}
}

func TestNilParticipantsEncodeAsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, "r1", &room.Room{Code: "", Language: "css"}); err != nil {
		t.Fatalf("Failed to set room: %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if got.Participants == nil || len(got.Participants) != 0 {
		t.Errorf("Expected empty participant slice, got %#v", got.Participants)
	}
}

func TestRedisKeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedis(t)

	if err := s.Set(ctx, "r1", sampleRoom()); err != nil {
		t.Fatalf("Failed to set room: %v", err)
	}
	if !mr.Exists("room:r1") {
		t.Errorf("Expected key room:r1, have %v", mr.Keys())
	}
}

func TestRedisBareKeys(t *testing.T) {
	ctx := context.Background()
	_, mr := setupRedis(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "", 0)

	mr.Set("legacy", `{"code":"x","language":"python","participants":[]}`)
	got, err := s.Get(ctx, "legacy")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if got == nil || got.Code != "x" || got.Language != "python" {
		t.Errorf("Expected room stored under its bare id, got %+v", got)
	}

	if err := s.Set(ctx, "r1", sampleRoom()); err != nil {
		t.Fatalf("Failed to set room: %v", err)
	}
	if !mr.Exists("r1") {
		t.Errorf("Expected key r1, have %v", mr.Keys())
	}
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	_, mr := setupRedis(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "test:", time.Hour)

	if err := s.Set(ctx, "r1", sampleRoom()); err != nil {
		t.Fatalf("Failed to set room: %v", err)
	}
	if ttl := mr.TTL("test:r1"); ttl != time.Hour {
		t.Errorf("Expected ttl 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Error("Expired room should be absent")
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedis(t)
	mr.Close()

	if _, err := s.Get(ctx, "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Get: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Set(ctx, "r1", sampleRoom()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Set: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Delete(ctx, "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Delete: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSQLiteUnavailable(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupSQLite(t)
	defer cleanup()
	s.Close()

	if _, err := s.Get(ctx, "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Get: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Set(ctx, "r1", sampleRoom()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Set: expected ErrStoreUnavailable, got %v", err)
	}
}
