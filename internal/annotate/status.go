package annotate

import (
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
)

// incompleteReasoningThreshold is the length, in characters, past which
// unterminated reasoning text is treated as truncated rather than simply
// verbose (Open Question #2 resolution, SPEC_FULL.md §11).
const incompleteReasoningThreshold = 900

// unavailabilityPhrases are reasoning statements that explain why a field
// has no value, distinguishing a deliberate empty annotation (success)
// from one that trails off mid-thought (incomplete).
var unavailabilityPhrases = []string{
	"not stated", "not mentioned", "not specified", "not available",
	"not reported", "unknown", "cannot be determined", "no information",
}

// determineStatus applies spec.md §4.E.2 step 8: error beats incomplete
// beats success; an empty annotation backed by an explicit
// unavailability statement in the reasoning is still success.
func determineStatus(r model.AnnotationResult) model.Status {
	if strings.HasPrefix(r.AnnotationText, "ERROR:") {
		return model.StatusError
	}

	reasoning := strings.TrimSpace(r.Reasoning)
	if looksTruncated(reasoning) {
		return model.StatusIncomplete
	}

	if strings.TrimSpace(r.AnnotationText) == "" {
		lower := strings.ToLower(reasoning)
		for _, phrase := range unavailabilityPhrases {
			if strings.Contains(lower, phrase) {
				return model.StatusSuccess
			}
		}
	}

	return model.StatusSuccess
}

func looksTruncated(reasoning string) bool {
	if reasoning == "" {
		return false
	}
	if len(reasoning) > incompleteReasoningThreshold {
		return true
	}
	return strings.HasSuffix(reasoning, "...") || strings.HasSuffix(reasoning, "…")
}
