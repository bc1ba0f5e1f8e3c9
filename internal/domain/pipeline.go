package domain

import (
	"context"
	"io"
)

// Clarification is the remote clarifier's answer for an utterance the local
// shortcut matcher could not resolve.
type Clarification struct {
	Decision Decision
	Message  string
	Options  []string
}

// Pipeline is the remote media-processing backend, consumed as an opaque
// capability. Every method is a single in-flight blocking request; only
// FetchHistory is safe to retry.
type Pipeline interface {
	FetchHistory(ctx context.Context, limit int) ([]Message, error)
	Upload(ctx context.Context, filename string, data io.Reader) (AssetRef, error)
	Clarify(ctx context.Context, text string) (Clarification, error)
	Transcribe(ctx context.Context, asset AssetRef) (string, error)
	Detect(ctx context.Context, asset AssetRef) ([]string, error)
	Generate(ctx context.Context, asset AssetRef, kind ReportKind) (string, error)
}

// HistoryFetcher is the read-side slice of Pipeline the conversation store
// needs for startup rehydration.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, limit int) ([]Message, error)
}

// SnapshotStore persists the whole conversation snapshot durably. Persist
// overwrites the previous snapshot for the session; Snapshot returns the last
// persisted one.
type SnapshotStore interface {
	Persist(ctx context.Context, session string, msgs []Message) error
	Snapshot(ctx context.Context, session string) ([]Message, error)
	Close() error
}

// Channel is a user-facing conversation surface (CLI, Telegram, ...). Start
// blocks until ctx is cancelled.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
