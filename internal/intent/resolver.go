package intent

import (
	"context"
	"log/slog"

	"vidbot/internal/domain"
	"vidbot/internal/metrics"
)

// OfflineClarifyMessage is surfaced when the remote clarifier cannot be
// reached. No retry; the user re-submits.
const OfflineClarifyMessage = "Clarify request failed (offline mode)."

// Clarifier is the remote clarification capability.
type Clarifier interface {
	Clarify(ctx context.Context, text string) (domain.Clarification, error)
}

// Resolver turns an utterance into a decision plus the assistant message that
// must be appended before any pipeline action runs.
type Resolver struct {
	matcher   *Matcher
	clarifier Clarifier
	logger    *slog.Logger
}

func NewResolver(matcher *Matcher, clarifier Clarifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		matcher:   matcher,
		clarifier: clarifier,
		logger:    logger,
	}
}

// Resolve runs the shortcut matcher first; a local match is authoritative and
// no remote call is made, keeping the common path offline-capable. Otherwise
// a single clarify request is issued. Remote failure or an unrecognized wire
// decision resolves to unresolved.
func (r *Resolver) Resolve(ctx context.Context, text string) (domain.Decision, string) {
	if d, ok := r.matcher.Match(text); ok {
		r.logger.Debug("shortcut matched", "decision", string(d))
		metrics.ShortcutsTotal.Inc()
		return d, ShortcutMessage(d)
	}

	result, err := r.clarifier.Clarify(ctx, text)
	if err != nil {
		r.logger.Warn("clarify request failed", "err", err)
		metrics.ClarifyFailures.Inc()
		return domain.DecisionUnresolved, OfflineClarifyMessage
	}

	// The clarifier never legitimately answers "unresolved"; seeing it here
	// means the wire value was unrecognized.
	if result.Decision == domain.DecisionUnresolved {
		r.logger.Warn("clarifier returned unrecognized decision")
	}
	return result.Decision, result.Message
}
