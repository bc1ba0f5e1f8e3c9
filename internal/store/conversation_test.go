package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeFetcher struct {
	msgs []domain.Message
	err  error
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, limit int) ([]domain.Message, error) {
	return f.msgs, f.err
}

func TestConversation_AppendAndMessages(t *testing.T) {
	c := NewConversation(Config{Session: "test", Local: newTestSQLite(t), Logger: testLogger()})
	ctx := context.Background()

	snap := c.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "hello"})
	if len(snap) != 1 {
		t.Fatalf("expected 1 message in returned snapshot, got %d", len(snap))
	}

	c.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "hi"})
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" || msgs[1].Text != "hi" {
		t.Fatalf("insertion order not preserved: %+v", msgs)
	}
}

func TestConversation_TimestampsMonotonic(t *testing.T) {
	c := NewConversation(Config{Session: "test", Local: newTestSQLite(t), Logger: testLogger()})
	ctx := context.Background()

	late := time.Now().UTC()
	c.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "a", Timestamp: late})
	// Deliberately older timestamp: must be clamped, not reordered.
	c.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "b", Timestamp: late.Add(-time.Hour)})

	msgs := c.Messages()
	if msgs[1].Timestamp.Before(msgs[0].Timestamp) {
		t.Fatalf("timestamps not monotonic: %v then %v", msgs[0].Timestamp, msgs[1].Timestamp)
	}
}

func TestConversation_RoundTripUnderRemoteFailure(t *testing.T) {
	sqlite := newTestSQLite(t)
	ctx := context.Background()

	c := NewConversation(Config{Session: "test", Local: sqlite, Logger: testLogger()})
	c.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "persisted"})
	c.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "also persisted"})

	// Fresh store over the same database, remote down.
	reloaded := NewConversation(Config{
		Session: "test",
		Local:   sqlite,
		Remote:  &fakeFetcher{err: errors.New("network unreachable")},
		Logger:  testLogger(),
	})
	if err := reloaded.Load(ctx, 100); err != nil {
		t.Fatalf("load: %v", err)
	}

	msgs := reloaded.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(msgs))
	}
	if msgs[0].Text != "persisted" || msgs[1].Text != "also persisted" {
		t.Fatalf("snapshot not equal to last persisted state: %+v", msgs)
	}
}

func TestConversation_RemoteHistoryAuthoritative(t *testing.T) {
	sqlite := newTestSQLite(t)
	ctx := context.Background()

	stale := NewConversation(Config{Session: "test", Local: sqlite, Logger: testLogger()})
	stale.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "stale local"})

	remote := &fakeFetcher{msgs: []domain.Message{
		{Role: domain.RoleUser, Text: "remote truth", Timestamp: time.Now().UTC()},
	}}
	c := NewConversation(Config{Session: "test", Local: sqlite, Remote: remote, Logger: testLogger()})
	if err := c.Load(ctx, 100); err != nil {
		t.Fatalf("load: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Text != "remote truth" {
		t.Fatalf("remote history should supersede local snapshot, got %+v", msgs)
	}

	// The remote result must also have been persisted locally.
	snap, err := sqlite.Snapshot(ctx, "test")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 1 || snap[0].Text != "remote truth" {
		t.Fatalf("remote history not persisted locally: %+v", snap)
	}
}

func TestConversation_Since(t *testing.T) {
	c := NewConversation(Config{Session: "test", Local: newTestSQLite(t), Logger: testLogger()})
	ctx := context.Background()

	c.Append(ctx, domain.Message{Role: domain.RoleUser, Text: "one"})
	mark := c.Len()
	c.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "two"})
	c.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "three"})

	turn := c.Since(mark)
	if len(turn) != 2 || turn[0].Text != "two" || turn[1].Text != "three" {
		t.Fatalf("Since returned wrong slice: %+v", turn)
	}
}

func TestSQLiteStore_PersistOverwrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := []domain.Message{{Role: domain.RoleUser, Text: "a", Timestamp: time.Now().UTC()}}
	if err := s.Persist(ctx, "test", first); err != nil {
		t.Fatalf("persist: %v", err)
	}

	second := []domain.Message{
		{Role: domain.RoleUser, Text: "a", Timestamp: time.Now().UTC()},
		{Role: domain.RoleAssistant, Text: "b", Timestamp: time.Now().UTC()},
	}
	if err := s.Persist(ctx, "test", second); err != nil {
		t.Fatalf("persist: %v", err)
	}

	snap, err := s.Snapshot(ctx, "test")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected overwritten snapshot of 2, got %d (no duplication allowed)", len(snap))
	}
}
