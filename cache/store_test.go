package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, DefaultStoreConfig(), nil)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "board:p1:t1", []byte(`{"projectId":"p1"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mr.TTL("board:p1:t1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	data, ok := store.Get(ctx, "board:p1:t1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"projectId":"p1"}` {
		t.Fatalf("unexpected payload: %s", data)
	}

	if err := store.Delete(ctx, "board:p1:t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.Get(ctx, "board:p1:t1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRedisStoreGetMissNeverErrors(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok := store.Get(context.Background(), "board:missing:none"); ok {
		t.Fatal("expected miss on empty store")
	}
}

func TestRedisStoreSetZeroTTLIsNoop(t *testing.T) {
	store, mr := newTestStore(t)
	if err := store.Set(context.Background(), "board:p1:none", []byte("x"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if mr.Exists("board:p1:none") {
		t.Fatal("zero TTL entry should not be written")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	if _, ok := store.Get(ctx, "board:p1:t1"); ok {
		t.Fatal("expected miss when store is down")
	}
	if err := store.Set(ctx, "board:p1:t1", []byte("x"), time.Minute); err == nil {
		t.Fatal("expected set error when store is down")
	}
	if err := store.Delete(ctx, "board:p1:t1"); err == nil {
		t.Fatal("expected delete error when store is down")
	}
	if h := store.Health(ctx); h.Reachable {
		t.Fatal("expected unreachable health")
	}
}

func TestRedisStoreDeletePattern(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	seed := map[string]string{
		"board:p1:t1":   "a",
		"board:p1:t2":   "b",
		"board:p2:none": "c",
		"categories:p1": "d",
		"users:u1":      "e",
	}
	for k, v := range seed {
		if err := mr.Set(k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	deleted, err := store.DeletePattern(ctx, "board:*")
	if err != nil {
		t.Fatalf("delete pattern: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deletions, got %d", deleted)
	}
	for _, k := range []string{"board:p1:t1", "board:p1:t2", "board:p2:none"} {
		if mr.Exists(k) {
			t.Fatalf("expected %s to be deleted", k)
		}
	}
	if !mr.Exists("categories:p1") || !mr.Exists("users:u1") {
		t.Fatal("unrelated keys must survive a pattern delete")
	}
}

func TestRedisStoreDeleteProjectBoards(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	seed := map[string]string{
		"board:p1:t1":   "a",
		"board:p1:none": "b",
		"board:p2:t1":   "c",
		"categories:p1": "d",
	}
	for k, v := range seed {
		if err := mr.Set(k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	deleted, err := store.DeletePattern(ctx, ProjectBoardsPattern("p1"))
	if err != nil {
		t.Fatalf("delete pattern: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", deleted)
	}
	if mr.Exists("board:p1:t1") || mr.Exists("board:p1:none") {
		t.Fatal("all p1 boards should be deleted")
	}
	if !mr.Exists("board:p2:t1") || !mr.Exists("categories:p1") {
		t.Fatal("other projects and entity types must survive")
	}
}

func TestRedisStoreDeletePatternRejectsUnknownPattern(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := mr.Set("users:u1", "x"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mr.Set("board:p1:t1", "y"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := store.DeletePattern(ctx, "users:*")
	if !errors.Is(err, ErrPatternNotAllowed) {
		t.Fatalf("expected ErrPatternNotAllowed, got %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected zero deletions, got %d", deleted)
	}
	if !mr.Exists("users:u1") || !mr.Exists("board:p1:t1") {
		t.Fatal("store contents must be unchanged after a rejected pattern")
	}
}

func TestRedisStoreHealth(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := mr.Set("board:p1:t1", "a"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mr.Set("categories:p1", "b"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := store.Health(ctx)
	if !h.Reachable {
		t.Fatal("expected reachable store")
	}
	if h.KeyCount != 2 {
		t.Fatalf("expected 2 keys, got %d", h.KeyCount)
	}
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"
	if got := parseUsedMemory(info); got != 1048576 {
		t.Fatalf("unexpected used_memory: %d", got)
	}
	if got := parseUsedMemory("# Memory\r\n"); got != 0 {
		t.Fatalf("expected 0 for missing field, got %d", got)
	}
}
