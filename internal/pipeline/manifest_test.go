package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadManifest_Missing(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	if err != nil {
		t.Fatalf("missing manifest should not error: %v", err)
	}
	if got := m.BaseURL(CapTranscribe, "http://fallback"); got != "http://fallback" {
		t.Fatalf("empty manifest must fall back, got %q", got)
	}
}

func TestLoadManifest_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	content := `
services:
  transcribe:
    baseUrl: http://127.0.0.1:50051
    timeoutSeconds: 300
  clarify:
    timeoutSeconds: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path, testLogger())
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}

	if got := m.BaseURL(CapTranscribe, "http://fallback"); got != "http://127.0.0.1:50051" {
		t.Errorf("transcribe baseUrl override lost: %q", got)
	}
	if got := m.BaseURL(CapDetect, "http://fallback"); got != "http://fallback" {
		t.Errorf("detect should use fallback: %q", got)
	}
	if got := m.Timeout(CapTranscribe, time.Minute); got != 300*time.Second {
		t.Errorf("transcribe timeout override lost: %v", got)
	}
	if got := m.Timeout(CapClarify, 5*time.Second); got != 3*time.Second {
		t.Errorf("clarify timeout override lost: %v", got)
	}
	// baseUrl unset for clarify: fall back
	if got := m.BaseURL(CapClarify, "http://fallback"); got != "http://fallback" {
		t.Errorf("clarify baseUrl should fall back: %q", got)
	}
}

func TestLoadManifest_UnknownService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	if err := os.WriteFile(path, []byte("services:\n  teleport:\n    baseUrl: http://x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path, testLogger()); err == nil {
		t.Fatal("expected error for unknown service name")
	}
}
