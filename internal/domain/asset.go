package domain

import "fmt"

// AssetRef identifies the currently uploaded media asset. At most one is
// active per session; a new successful upload overwrites it.
type AssetRef struct {
	Name string `json:"name"`
}

// ReportKind is a generated report format.
type ReportKind string

const (
	ReportPDF  ReportKind = "pdf"
	ReportPPTX ReportKind = "pptx"
)

// ReportArtifact is a downloadable reference derived from message text. It is
// never persisted; the extractor recomputes it on demand.
type ReportArtifact struct {
	Path string     `json:"path"`
	Kind ReportKind `json:"kind"`
}

// PreconditionError reports an action that requires an asset before any
// remote call is issued. It is recovered locally and surfaced as a chat
// message, never propagated out of the turn.
type PreconditionError struct {
	Action Decision
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("action %s requires an uploaded asset", e.Action)
}
