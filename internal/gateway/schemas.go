package gateway

import (
	"path/filepath"
	"time"

	"vidbot/internal/domain"
	"vidbot/internal/report"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type UploadResponse struct {
	FileName string `json:"file_name"`
}

// MessageResponse is one transcript entry on the wire. Messages that carry a
// report path get an artifact annotation with a download link.
type MessageResponse struct {
	Role      string            `json:"role"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	Artifact  *ArtifactResponse `json:"artifact,omitempty"`
}

type ArtifactResponse struct {
	FileName    string `json:"file_name"`
	Kind        string `json:"kind"`
	DownloadURL string `json:"download_url"`
}

func MessageToResponse(msg domain.Message) MessageResponse {
	resp := MessageResponse{
		Role:      msg.Role,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
	if artifact, ok := report.ExtractFromMessage(msg); ok {
		name := filepath.Base(artifact.Path)
		resp.Artifact = &ArtifactResponse{
			FileName:    name,
			Kind:        string(artifact.Kind),
			DownloadURL: "/download/" + name,
		}
	}
	return resp
}

func MessagesToResponse(msgs []domain.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageToResponse(m)
	}
	return out
}
