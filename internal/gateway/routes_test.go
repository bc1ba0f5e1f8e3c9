package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidbot/internal/domain"
)

type fakeEngine struct {
	turn       []domain.Message
	uploaded   []string
	uploadErr  error
	sawTurnCtx context.Context
}

func (f *fakeEngine) HandleUtterance(ctx context.Context, text string) []domain.Message {
	f.sawTurnCtx = ctx
	return f.turn
}

func (f *fakeEngine) Upload(ctx context.Context, filename string, data io.Reader) (domain.AssetRef, error) {
	f.uploaded = append(f.uploaded, filename)
	if f.uploadErr != nil {
		return domain.AssetRef{}, f.uploadErr
	}
	return domain.AssetRef{Name: "a1b2c3_" + filename}, nil
}

type fakeHistory struct {
	msgs []domain.Message
}

func (f *fakeHistory) Messages() []domain.Message { return f.msgs }

func testConfig(t *testing.T, engine *fakeEngine, history *fakeHistory) ServerConfig {
	t.Helper()
	return ServerConfig{
		ArtifactsDir: t.TempDir(),
		Version:      "test",
		Engine:       engine,
		History:      history,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime:    time.Now(),
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestChatHandler(t *testing.T) {
	engine := &fakeEngine{turn: []domain.Message{
		{Role: domain.RoleUser, Text: "pdf"},
		{Role: domain.RoleAssistant, Text: "Report ready: artifacts/demo.pdf"},
	}}
	cfg := testConfig(t, engine, &fakeHistory{})

	body := strings.NewReader(`{"message":"pdf"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", body)

	chatHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeJSONBody(t, rr)
	msgs, ok := resp["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", resp["messages"])
	}

	// The report outcome must carry a download annotation.
	last := msgs[1].(map[string]any)
	artifact, ok := last["artifact"].(map[string]any)
	if !ok {
		t.Fatalf("missing artifact annotation: %v", last)
	}
	if artifact["download_url"] != "/download/demo.pdf" || artifact["kind"] != "pdf" {
		t.Fatalf("unexpected artifact: %v", artifact)
	}
}

func TestChatHandler_ClientDisconnectDoesNotCancelTurn(t *testing.T) {
	engine := &fakeEngine{turn: []domain.Message{{Role: domain.RoleUser, Text: "pdf"}}}
	cfg := testConfig(t, engine, &fakeHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // client already gone

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"pdf"}`))
	req = req.WithContext(ctx)

	chatHandler(cfg).ServeHTTP(rr, req)

	if engine.sawTurnCtx == nil {
		t.Fatal("engine was never invoked")
	}
	if err := engine.sawTurnCtx.Err(); err != nil {
		t.Fatalf("turn context must survive client disconnect, got %v", err)
	}
}

func TestChatHandler_EmptyMessage(t *testing.T) {
	cfg := testConfig(t, &fakeEngine{}, &fakeHistory{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"   "}`))

	chatHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func multipartBody(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("video bytes")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	engine := &fakeEngine{}
	cfg := testConfig(t, engine, &fakeHistory{})

	body, contentType := multipartBody(t, "demo.mp4")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	uploadHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	if resp["file_name"] != "a1b2c3_demo.mp4" {
		t.Fatalf("unexpected file_name: %v", resp["file_name"])
	}
	if len(engine.uploaded) != 1 || engine.uploaded[0] != "demo.mp4" {
		t.Fatalf("engine received %v", engine.uploaded)
	}
}

func TestUploadHandler_EnforcesMaxBytes(t *testing.T) {
	engine := &fakeEngine{}
	cfg := testConfig(t, engine, &fakeHistory{})
	cfg.UploadMaxBytes = 64 // smaller than the multipart envelope itself

	body, contentType := multipartBody(t, "demo.mp4")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	uploadHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status code = %d, want %d: %s", rr.Code, http.StatusRequestEntityTooLarge, rr.Body.String())
	}
	if len(engine.uploaded) != 0 {
		t.Fatalf("oversized upload must not reach the engine, got %v", engine.uploaded)
	}
}

func TestUploadHandler_RejectsNonMP4(t *testing.T) {
	engine := &fakeEngine{}
	cfg := testConfig(t, engine, &fakeHistory{})

	body, contentType := multipartBody(t, "report.pdf")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	uploadHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if len(engine.uploaded) != 0 {
		t.Fatalf("engine must not see rejected files, got %v", engine.uploaded)
	}
}

func TestHistoryHandler_Limit(t *testing.T) {
	history := &fakeHistory{}
	for i := 0; i < 10; i++ {
		history.msgs = append(history.msgs, domain.Message{Role: domain.RoleUser, Text: "m"})
	}
	cfg := testConfig(t, &fakeEngine{}, history)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history?limit=3", nil)

	historyHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	resp := decodeJSONBody(t, rr)
	if msgs := resp["messages"].([]any); len(msgs) != 3 {
		t.Fatalf("expected last 3 messages, got %d", len(msgs))
	}
}

func TestHistoryHandler_BadLimit(t *testing.T) {
	cfg := testConfig(t, &fakeEngine{}, &fakeHistory{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil)

	historyHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDownloadHandler(t *testing.T) {
	cfg := testConfig(t, &fakeEngine{}, &fakeHistory{})
	if err := os.WriteFile(filepath.Join(cfg.ArtifactsDir, "demo.pdf"), []byte("pdf bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(cfg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download/demo.pdf", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "pdf bytes" {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/download/missing.pdf", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing artifact: status code = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestMetricsRoute_GatedByConfig(t *testing.T) {
	cfg := testConfig(t, &fakeEngine{}, &fakeHistory{})

	cfg.MetricsEnabled = false
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	NewRouter(cfg).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("disabled metrics: status code = %d, want %d", rr.Code, http.StatusNotFound)
	}

	cfg.MetricsEnabled = true
	cfg.MetricsEndpoint = "/internal/metrics"
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	NewRouter(cfg).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("enabled metrics: status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "vidbot_uptime_seconds") {
		t.Fatalf("exposition output missing uptime metric:\n%s", rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	cfg := testConfig(t, &fakeEngine{}, &fakeHistory{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	healthHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	resp := decodeJSONBody(t, rr)
	if resp["status"] != "ok" {
		t.Fatalf("unexpected health response: %v", resp)
	}
}
