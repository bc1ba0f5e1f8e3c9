// Package report derives downloadable artifact references from message text.
package report

import (
	"regexp"
	"strings"

	"vidbot/internal/domain"
)

// artifactPattern matches a generated-report path inside message text: an
// artifacts directory segment followed by a filename ending in .pdf or .pptx.
// Both path separators are accepted since the generator may run on Windows.
var artifactPattern = regexp.MustCompile(`(?i)artifacts[\\/](.+\.(pdf|pptx))`)

// Extract scans text for an embedded report path and returns the derived
// artifact. Pure and idempotent; the stored message is never altered. Returns
// false when the text carries no artifact path.
func Extract(text string) (domain.ReportArtifact, bool) {
	m := artifactPattern.FindStringSubmatch(text)
	if m == nil {
		return domain.ReportArtifact{}, false
	}

	kind := domain.ReportPDF
	if strings.EqualFold(m[2], "pptx") {
		kind = domain.ReportPPTX
	}
	return domain.ReportArtifact{Path: m[1], Kind: kind}, true
}

// ExtractFromMessage is Extract applied to a stored message.
func ExtractFromMessage(msg domain.Message) (domain.ReportArtifact, bool) {
	return Extract(msg.Text)
}
