// Package store holds the conversation transcript: an append-only in-memory
// log backed by a durable SQLite snapshot, rehydrated from the remote
// authoritative history when the network allows.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidbot/internal/domain"
)

// Conversation is the session-wide message log. Appends are in-memory first
// with a best-effort durable write after each one; persistence failures are
// logged, never block the append.
type Conversation struct {
	session string
	local   domain.SnapshotStore
	remote  domain.HistoryFetcher
	logger  *slog.Logger

	mu       sync.RWMutex
	messages []domain.Message
}

type Config struct {
	Session string
	Local   domain.SnapshotStore
	Remote  domain.HistoryFetcher // optional; nil means local-only
	Logger  *slog.Logger
}

func NewConversation(cfg Config) *Conversation {
	if cfg.Session == "" {
		cfg.Session = "local"
	}
	return &Conversation{
		session: cfg.Session,
		local:   cfg.Local,
		remote:  cfg.Remote,
		logger:  cfg.Logger,
	}
}

// Load rehydrates the transcript. The remote history is authoritative; when
// it is unreachable the last durable local snapshot is used instead and a
// degraded-mode notice is logged.
func (c *Conversation) Load(ctx context.Context, fetchLimit int) error {
	if c.remote != nil {
		msgs, err := c.remote.FetchHistory(ctx, fetchLimit)
		if err == nil {
			c.mu.Lock()
			c.messages = msgs
			c.mu.Unlock()
			c.persist(ctx)
			c.logger.Info("history loaded from remote", "messages", len(msgs))
			return nil
		}
		c.logger.Warn("offline mode: using local cache only", "err", err)
	}

	msgs, err := c.local.Snapshot(ctx, c.session)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.messages = msgs
	c.mu.Unlock()
	c.logger.Info("history loaded from local snapshot", "messages", len(msgs))
	return nil
}

// Append adds a message to the log and returns the updated snapshot. The
// timestamp is clamped so the log stays monotonically non-decreasing.
func (c *Conversation) Append(ctx context.Context, msg domain.Message) []domain.Message {
	c.mu.Lock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if n := len(c.messages); n > 0 {
		if last := c.messages[n-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.persist(ctx)
	return c.Messages()
}

// Messages returns a copy of the current transcript.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the current transcript length.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Since returns a copy of the messages appended at or after index n.
func (c *Conversation) Since(n int) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n > len(c.messages) {
		n = len(c.messages)
	}
	out := make([]domain.Message, len(c.messages)-n)
	copy(out, c.messages[n:])
	return out
}

// persist writes the whole snapshot to the durable store. Best effort: a
// failed write leaves the in-memory log intact and is only logged.
func (c *Conversation) persist(ctx context.Context) {
	c.mu.RLock()
	snapshot := make([]domain.Message, len(c.messages))
	copy(snapshot, c.messages)
	c.mu.RUnlock()

	if err := c.local.Persist(ctx, c.session, snapshot); err != nil {
		c.logger.Warn("failed to persist conversation snapshot", "err", err)
	}
}
