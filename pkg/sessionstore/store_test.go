package sessionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nachtfalke/wiki-action-client/pkg/session"
)

// setupTestRedis connects to a local Redis for unit tests; the integration
// suite covers the same paths against a containerized instance.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testSnapshot() *session.Snapshot {
	return &session.Snapshot{
		BaseURL: "https://wiki.example.org/w/api.php",
		Cookies: []session.Cookie{{Name: "wikiSession", Value: "s3cret", Path: "/"}},
		Tokens:  map[session.TokenKind]string{session.TokenCSRF: "tok+\\"},
		Identity: &session.Identity{
			Name:       "Bot",
			Rights:     []string{"edit", "apihighlimits"},
			HighLimits: true,
		},
		TakenAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with nil redis client")
		}
	}()
	NewStore(nil, 0, zerolog.Nop())
}

func TestStore_SaveLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, 0, zerolog.Nop())
	ctx := context.Background()

	want := testSnapshot()
	if err := store.Save(ctx, "bot-account", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "bot-account")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.BaseURL != want.BaseURL {
		t.Errorf("base url = %q", got.BaseURL)
	}
	if got.Tokens[session.TokenCSRF] != "tok+\\" {
		t.Errorf("csrf token = %q", got.Tokens[session.TokenCSRF])
	}
	if got.Identity == nil || !got.Identity.HighLimits {
		t.Errorf("identity = %+v", got.Identity)
	}
	if len(got.Cookies) != 1 || got.Cookies[0].Value != "s3cret" {
		t.Errorf("cookies = %+v", got.Cookies)
	}
}

func TestStore_SaveNilSnapshot(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, 0, zerolog.Nop())

	if err := store.Save(context.Background(), "key", nil); err == nil {
		t.Error("Expected error for nil snapshot")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, 0, zerolog.Nop())

	_, err := store.Load(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, 0, zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, "bot-account", testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "bot-account"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "bot-account"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := store.Delete(ctx, "bot-account"); err != nil {
		t.Errorf("Delete (missing): %v", err)
	}
}

func TestStore_TTLApplied(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, "bot-account", testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ttl, err := client.TTL(ctx, keyPrefix+"bot-account").Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}
}
