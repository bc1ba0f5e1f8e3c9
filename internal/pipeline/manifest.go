package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Capability names accepted in a manifest.
const (
	CapHistory    = "history"
	CapUpload     = "upload"
	CapClarify    = "clarify"
	CapTranscribe = "transcribe"
	CapDetect     = "detect"
	CapGenerate   = "generate"
)

// ServiceSpec overrides where a single capability lives. Unset fields fall
// back to the client defaults.
type ServiceSpec struct {
	BaseURL        string `yaml:"baseUrl,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// Manifest declares per-capability endpoint overrides. The backend usually
// fronts every capability behind one base URL, but deployments that run the
// agents as separate services can point each capability somewhere else.
type Manifest struct {
	Services map[string]ServiceSpec `yaml:"services"`
}

// LoadManifest reads a capabilities manifest from a YAML file. A missing path
// yields an empty manifest, not an error.
func LoadManifest(path string, logger *slog.Logger) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("capability manifest does not exist, using defaults", "path", path)
		return &Manifest{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse capability manifest %s: %w", path, err)
	}

	for name := range m.Services {
		switch name {
		case CapHistory, CapUpload, CapClarify, CapTranscribe, CapDetect, CapGenerate:
		default:
			return nil, fmt.Errorf("capability manifest %s: unknown service %q", path, name)
		}
	}

	logger.Info("loaded capability manifest", "path", path, "services", len(m.Services))
	return &m, nil
}

// BaseURL returns the endpoint for a capability, or fallback when the
// manifest has no override.
func (m *Manifest) BaseURL(capability, fallback string) string {
	if m == nil || m.Services == nil {
		return fallback
	}
	if spec, ok := m.Services[capability]; ok && spec.BaseURL != "" {
		return spec.BaseURL
	}
	return fallback
}

// Timeout returns the request timeout for a capability, or fallback when the
// manifest has no override.
func (m *Manifest) Timeout(capability string, fallback time.Duration) time.Duration {
	if m == nil || m.Services == nil {
		return fallback
	}
	if spec, ok := m.Services[capability]; ok && spec.TimeoutSeconds > 0 {
		return time.Duration(spec.TimeoutSeconds) * time.Second
	}
	return fallback
}
