// Package intent resolves free-text utterances into pipeline decisions: a
// local keyword shortcut first, a remote clarifier as fallback.
package intent

import (
	"strings"

	"vidbot/internal/domain"
)

// Matcher is the local shortcut classifier. It only commits to a decision for
// unambiguous report-format answers; everything else escalates to the remote
// clarifier.
type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match inspects text for the fixed report-format vocabulary
// {pdf, ppt, pptx, powerpoint, both}. The checks are ordered, first match
// wins:
//
//  1. "pdf" without "ppt" → generate_pdf
//  2. "ppt" or "powerpoint" → generate_pptx ("ppt" overrides a pdf mention,
//     resolving inputs like "pdf and pptx")
//  3. "both" → generate_both (checked last so an explicit format word never
//     loses to an accidental "both" substring)
//
// Returns false when no keyword is present; the caller must escalate.
func (m *Matcher) Match(text string) (domain.Decision, bool) {
	lower := strings.ToLower(text)

	hasPDF := strings.Contains(lower, "pdf")
	hasPPT := strings.Contains(lower, "ppt") || strings.Contains(lower, "powerpoint")

	switch {
	case hasPDF && !strings.Contains(lower, "ppt"):
		return domain.DecisionGeneratePDF, true
	case hasPPT:
		return domain.DecisionGeneratePPTX, true
	case strings.Contains(lower, "both"):
		return domain.DecisionGenerateBoth, true
	}
	return "", false
}

// ShortcutMessage is the assistant acknowledgement for a locally matched
// decision, mirroring what the remote clarifier would have said.
func ShortcutMessage(d domain.Decision) string {
	switch d {
	case domain.DecisionGeneratePDF:
		return "Generating PDF report..."
	case domain.DecisionGeneratePPTX:
		return "Generating PowerPoint report..."
	case domain.DecisionGenerateBoth:
		return "Generating both PDF and PowerPoint reports..."
	}
	return ""
}
