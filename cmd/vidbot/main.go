package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vidbot/internal/agent"
	"vidbot/internal/bus"
	"vidbot/internal/channel"
	"vidbot/internal/config"
	"vidbot/internal/gateway"
	"vidbot/internal/intent"
	"vidbot/internal/pipeline"
	"vidbot/internal/store"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "vidbot",
		Short: "vidbot: conversational front-end for a video-processing pipeline",
		Long:  "vidbot chats over CLI, Telegram, or HTTP; uploads videos to a remote pipeline and drives transcription, object detection, and report generation.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.vidbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// setupLogger rebuilds the global logger from config: level, and a log file
// when one is configured. Falls back to stderr on any file problem.
func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := io.Writer(os.Stderr)
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err == nil {
			if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				out = f
			} else {
				logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
			}
		}
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", cfg.General.Workspace)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vidbot " + version)
		},
	}
}

// runtime bundles the wired-together engine for the chat and serve commands.
type runtime struct {
	cfg      *config.Config
	bus      *bus.InMemoryBus
	snapshot *store.SQLiteStore
	conv     *store.Conversation
	client   *pipeline.Client
	engine   *agent.Orchestrator
}

func (r *runtime) close() {
	r.bus.Close()
	if err := r.snapshot.Close(); err != nil {
		logger.Warn("closing snapshot store", "err", err)
	}
}

// buildRuntime wires config → pipeline client → conversation → orchestrator.
// Rehydrates the transcript before returning; remote failure degrades to the
// local snapshot.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, err
	}

	manifest, err := pipeline.LoadManifest(cfg.Pipeline.ManifestPath, logger)
	if err != nil {
		return nil, fmt.Errorf("capability manifest: %w", err)
	}

	client := pipeline.NewClient(pipeline.Config{
		BaseURL:        cfg.Pipeline.BaseURL,
		Manifest:       manifest,
		ClarifyTimeout: time.Duration(cfg.Pipeline.ClarifyTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		Logger:         logger,
	})

	snapshot, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	conv := store.NewConversation(store.Config{
		Session: cfg.History.Session,
		Local:   snapshot,
		Remote:  client,
		Logger:  logger,
	})
	if err := conv.Load(ctx, cfg.History.FetchLimit); err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}

	messageBus := bus.New(100, logger)

	engine := agent.New(agent.Config{
		Pipeline:     client,
		Conversation: conv,
		Resolver:     intent.NewResolver(intent.NewMatcher(), client, logger),
		Bus:          messageBus,
		Logger:       logger,
	})

	return &runtime{
		cfg:      cfg,
		bus:      messageBus,
		snapshot: snapshot,
		conv:     conv,
		client:   client,
		engine:   engine,
	}, nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	setupLogger(cfg)

	if !cfg.Channels.CLI.Enabled {
		return fmt.Errorf("cli channel is disabled in config (channels.cli.enabled)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	go rt.engine.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{
		Uploader: rt.engine,
		Logger:   logger,
	})
	return cliCh.Start(ctx, rt.bus)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot (Telegram + HTTP gateway)",
		Long:  "Starts all enabled channels and the turn engine. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	go rt.engine.Run(ctx)

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Uploader:  rt.engine,
			Logger:    logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, rt.bus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	var httpGw *gateway.Server
	if cfg.Gateway.Enabled {
		if err := os.MkdirAll(cfg.Gateway.ArtifactsDir, 0o755); err != nil {
			return err
		}
		httpGw = gateway.NewServer(gateway.ServerConfig{
			Host:            cfg.Gateway.Host,
			Port:            cfg.Gateway.Port,
			ArtifactsDir:    cfg.Gateway.ArtifactsDir,
			Version:         version,
			UploadMaxBytes:  cfg.Pipeline.UploadMaxBytes,
			MetricsEnabled:  cfg.Metrics.Enabled,
			MetricsEndpoint: cfg.Metrics.Endpoint,
			Engine:          rt.engine,
			History:         rt.conv,
			Logger:          logger,
		})
		go func() {
			if err := httpGw.Start(); err != nil {
				logger.Error("http gateway error", "err", err)
			}
		}()
	}

	logger.Info("vidbot started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			_ = telegramCh.Stop()
		}
		if httpGw != nil {
			_ = httpGw.Shutdown(shutdownCtx)
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			manifest, err := pipeline.LoadManifest(cfg.Pipeline.ManifestPath, logger)
			if err != nil {
				return err
			}
			client := pipeline.NewClient(pipeline.Config{
				BaseURL:        cfg.Pipeline.BaseURL,
				Manifest:       manifest,
				RequestTimeout: 5 * time.Second,
				Logger:         logger,
			})

			msgs, err := client.FetchHistory(ctx, 1)
			if err != nil {
				logger.Info("pipeline", "baseUrl", cfg.Pipeline.BaseURL, "reachable", false, "err", err)
			} else {
				logger.Info("pipeline", "baseUrl", cfg.Pipeline.BaseURL, "reachable", true, "history", len(msgs))
			}
			return nil
		},
	}
}
