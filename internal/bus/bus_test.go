package bus

import (
	"log/slog"
	"os"
	"testing"

	"vidbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestBus_PublishSubscribe_FIFO(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	b.Publish(domain.InboundMessage{Channel: "cli", Content: "first"})
	b.Publish(domain.InboundMessage{Channel: "cli", Content: "second"})
	b.Publish(domain.InboundMessage{Channel: "cli", Content: "third"})

	in := b.Subscribe()
	for _, want := range []string{"first", "second", "third"} {
		got := <-in
		if got.Content != want {
			t.Fatalf("expected %q, got %q", want, got.Content)
		}
	}
}

func TestBus_OutboundRouting(t *testing.T) {
	b := New(10, testLogger())
	defer b.Close()

	var got string
	b.OnOutbound("cli", func(msg domain.OutboundMessage) {
		got = msg.Content
	})

	b.SendOutbound(domain.OutboundMessage{Channel: "cli", Content: "hello"})
	if got != "hello" {
		t.Fatalf("expected outbound delivery, got %q", got)
	}

	// Unknown channel must not panic.
	b.SendOutbound(domain.OutboundMessage{Channel: "nope", Content: "x"})
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := New(10, testLogger())
	b.Close()

	// Must not panic.
	b.Publish(domain.InboundMessage{Channel: "cli", Content: "late"})
}
