// Package gateway is the local HTTP surface of the bot: one-shot chat turns,
// video uploads, transcript reads, and artifact downloads for non-interactive
// clients.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host            string
	Port            int
	ArtifactsDir    string
	Version         string
	UploadMaxBytes  int64 // 0 means unlimited
	MetricsEnabled  bool
	MetricsEndpoint string
	Engine          Engine
	History         HistoryReader
	Logger          *slog.Logger
	StartTime       time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       0, // video uploads can be slow
			WriteTimeout:      0, // turns and downloads can be slow
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP gateway", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP gateway")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
