// Package channel hosts the user-facing surfaces. Every channel turns its
// native transport into InboundMessages on the bus and renders the engine's
// OutboundMessages back; none of them know anything about the pipeline.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidbot/internal/domain"
)

// Uploader pushes a local media file into the pipeline. The CLI needs it for
// the /upload command; replies still arrive over the bus.
type Uploader interface {
	Upload(ctx context.Context, filename string, data io.Reader) (domain.AssetRef, error)
}

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus      domain.MessageBus
	uploader Uploader
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Uploader Uploader
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		uploader: cfg.Uploader,
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until context is cancelled.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		c.stopThinking()
		_, _ = fmt.Fprintln(c.out, "\r\033[K") // Clear spinner line
		_, _ = fmt.Fprintln(c.out, "--- vidbot ---")
		_, _ = fmt.Fprintln(c.out, msg.Content)
		_, _ = fmt.Fprintln(c.out, "--------------")
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintln(c.out, "vidbot CLI. Type a message, /upload <file.mp4> to send a video, /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		if path, ok := strings.CutPrefix(line, "/upload "); ok {
			c.handleUpload(ctx, strings.TrimSpace(path))
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}

		c.startThinking()
		c.bus.Publish(domain.InboundMessage{
			Channel:  "cli",
			ChatID:   "direct",
			SenderID: "user",
			Content:  line,
		})
	}
}

func (c *CLI) handleUpload(ctx context.Context, path string) {
	if path == "" {
		_, _ = fmt.Fprintln(c.out, "Usage: /upload <file.mp4>")
		return
	}
	if !strings.EqualFold(filepath.Ext(path), ".mp4") {
		_, _ = fmt.Fprintln(c.out, "Only .mp4 files are accepted.")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		_, _ = fmt.Fprintf(c.out, "Cannot open %s: %v\n", path, err)
		return
	}
	defer f.Close()

	asset, err := c.uploader.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		c.logger.Warn("cli upload failed", "file", path, "err", err)
		_, _ = fmt.Fprintln(c.out, "Upload failed.")
		return
	}
	_, _ = fmt.Fprintf(c.out, "Uploaded %s\n", asset.Name)
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.thinkStop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Working...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }
