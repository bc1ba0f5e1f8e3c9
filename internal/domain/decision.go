package domain

// Decision is the resolved pipeline action for a single utterance. It is a
// closed set: anything a remote clarifier sends outside this set collapses to
// DecisionUnresolved.
type Decision string

const (
	DecisionTranscribe   Decision = "transcribe"
	DecisionDetect       Decision = "detect"
	DecisionGeneratePDF  Decision = "generate_pdf"
	DecisionGeneratePPTX Decision = "generate_pptx"
	DecisionGenerateBoth Decision = "generate_both"
	DecisionAskFormat    Decision = "ask_format"
	DecisionUnresolved   Decision = "unresolved"
)

// ParseDecision maps a wire value to a Decision. Unknown values map to
// DecisionUnresolved so the set stays closed under future clarifier growth.
// "ask_generate_format" and "clarify" are legacy wire spellings still emitted
// by older clarifier deployments.
func ParseDecision(s string) Decision {
	switch s {
	case "transcribe":
		return DecisionTranscribe
	case "detect":
		return DecisionDetect
	case "generate_pdf":
		return DecisionGeneratePDF
	case "generate_pptx":
		return DecisionGeneratePPTX
	case "generate_both":
		return DecisionGenerateBoth
	case "ask_format", "ask_generate_format", "clarify":
		return DecisionAskFormat
	default:
		return DecisionUnresolved
	}
}

// IsAction reports whether the decision triggers a remote pipeline call (and
// therefore requires an uploaded asset).
func (d Decision) IsAction() bool {
	switch d {
	case DecisionTranscribe, DecisionDetect, DecisionGeneratePDF, DecisionGeneratePPTX, DecisionGenerateBoth:
		return true
	}
	return false
}
