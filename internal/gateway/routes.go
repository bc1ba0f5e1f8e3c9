package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vidbot/internal/domain"
	"vidbot/internal/metrics"
)

const defaultHistoryLimit = 100

// Engine is the turn engine surface the gateway drives.
type Engine interface {
	HandleUtterance(ctx context.Context, text string) []domain.Message
	Upload(ctx context.Context, filename string, data io.Reader) (domain.AssetRef, error)
}

// HistoryReader exposes the conversation transcript for reads.
type HistoryReader interface {
	Messages() []domain.Message
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.MetricsEnabled {
		endpoint := cfg.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.Get(endpoint, metrics.Collector.Handler())
	}

	r.Post("/chat", chatHandler(cfg))
	r.Post("/upload", uploadHandler(cfg))
	r.Get("/history", historyHandler(cfg))
	r.Get("/download/{filename}", downloadHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

// chatHandler runs one full turn and returns the messages it appended. The
// engine serializes turns, so a request arriving mid-turn simply waits.
func chatHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			WriteError(w, http.StatusBadRequest, "message is required", "BAD_REQUEST")
			return
		}

		// A turn never cancels once a remote call is in flight; the
		// transcript must record the real outcome even if this client is
		// gone by then.
		turn := cfg.Engine.HandleUtterance(context.WithoutCancel(r.Context()), req.Message)
		WriteJSON(w, http.StatusOK, ChatResponse{Messages: MessagesToResponse(turn)})
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.UploadMaxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.UploadMaxBytes)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit), "TOO_LARGE")
				return
			}
			WriteError(w, http.StatusBadRequest, "multipart field 'file' is required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".mp4") {
			WriteError(w, http.StatusBadRequest, "only .mp4 files are accepted", "BAD_REQUEST")
			return
		}

		asset, err := cfg.Engine.Upload(r.Context(), filepath.Base(header.Filename), file)
		if err != nil {
			WriteError(w, http.StatusBadGateway, "upload failed", "UPSTREAM_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, UploadResponse{FileName: asset.Name})
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		msgs := cfg.History.Messages()
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{Messages: MessagesToResponse(msgs)})
	}
}

// downloadHandler serves generated reports from the artifacts directory. The
// filename is flattened to its base so the route cannot escape the directory.
func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(chi.URLParam(r, "filename"))
		if name == "." || name == string(filepath.Separator) {
			WriteError(w, http.StatusBadRequest, "filename required", "BAD_REQUEST")
			return
		}

		path := filepath.Join(cfg.ArtifactsDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			WriteError(w, http.StatusNotFound, "artifact not found", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeFile(w, r, path)
	}
}
