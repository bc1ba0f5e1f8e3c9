package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"vidbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, Logger: testLogger()})
	return c, srv
}

func TestClient_FetchHistory(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "50" {
			t.Errorf("limit not forwarded: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"messages":[{"role":"user","text":"hi","timestamp":"2025-01-02T03:04:05Z"}]}`)
	}))

	msgs, err := c.FetchHistory(context.Background(), 50)
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser || msgs[0].Text != "hi" {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestClient_FetchHistory_RetriesServerError(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"messages":[]}`)
	}))

	if _, err := c.FetchHistory(context.Background(), 10); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestClient_Upload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "demo.mp4" {
			t.Errorf("filename not forwarded: %s", hdr.Filename)
		}
		body, _ := io.ReadAll(f)
		if string(body) != "fake video bytes" {
			t.Errorf("body not streamed: %q", body)
		}
		fmt.Fprint(w, `{"file_name":"abc123_demo.mp4","saved_path":"uploads/abc123_demo.mp4"}`)
	}))

	asset, err := c.Upload(context.Background(), "demo.mp4", strings.NewReader("fake video bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if asset.Name != "abc123_demo.mp4" {
		t.Fatalf("unexpected asset name: %q", asset.Name)
	}
}

func TestClient_Upload_ServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "only .mp4 allowed", http.StatusBadRequest)
	}))

	_, err := c.Upload(context.Background(), "demo.avi", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for rejected upload")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.IsRetryable() {
		t.Error("4xx must not be retryable")
	}
}

func TestClient_Clarify(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "make a report" {
			t.Errorf("query not forwarded: %q", got)
		}
		fmt.Fprint(w, `{"decision":"ask_generate_format","message":"Would you like the report in PDF or PowerPoint (PPTX) format?","options":["PDF","PPTX","Both"]}`)
	}))

	result, err := c.Clarify(context.Background(), "make a report")
	if err != nil {
		t.Fatalf("clarify: %v", err)
	}
	if result.Decision != domain.DecisionAskFormat {
		t.Fatalf("legacy wire decision not normalized: %s", result.Decision)
	}
	if len(result.Options) != 3 {
		t.Fatalf("options dropped: %+v", result.Options)
	}
}

func TestClient_Clarify_UnknownDecision(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"decision":"do_a_dance","message":"ok"}`)
	}))

	result, err := c.Clarify(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("clarify: %v", err)
	}
	if result.Decision != domain.DecisionUnresolved {
		t.Fatalf("unknown decision must map to unresolved, got %s", result.Decision)
	}
}

func TestClient_Clarify_MissingFields(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"decision":"transcribe"}`)
	}))

	if _, err := c.Clarify(context.Background(), "x"); err == nil {
		t.Fatal("expected error for clarify response without message")
	}
}

func TestClient_TranscribeDetectGenerate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			fmt.Fprint(w, `{"transcript":"hello world"}`)
		case "/detect":
			fmt.Fprint(w, `{"objects":["car","tree"]}`)
		case "/generate":
			if r.URL.Query().Get("report_type") != "pptx" {
				t.Errorf("report_type not forwarded: %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{"report_path":"artifacts/demo.pptx"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	asset := domain.AssetRef{Name: "demo.mp4"}
	ctx := context.Background()

	transcript, err := c.Transcribe(ctx, asset)
	if err != nil || transcript != "hello world" {
		t.Fatalf("transcribe: %q, %v", transcript, err)
	}

	objects, err := c.Detect(ctx, asset)
	if err != nil || len(objects) != 2 {
		t.Fatalf("detect: %v, %v", objects, err)
	}

	path, err := c.Generate(ctx, asset, domain.ReportPPTX)
	if err != nil || path != "artifacts/demo.pptx" {
		t.Fatalf("generate: %q, %v", path, err)
	}
}

func TestClient_Generate_MissingPath(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	if _, err := c.Generate(context.Background(), domain.AssetRef{Name: "demo.mp4"}, domain.ReportPDF); err == nil {
		t.Fatal("expected error for generate response without report_path")
	}
}
