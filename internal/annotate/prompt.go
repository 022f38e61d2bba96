package annotate

import (
	"strings"

	"github.com/clinicalpipe/annotator/internal/model"
	"github.com/clinicalpipe/annotator/internal/prompts"
)

// jsonContractPreamble is the canonical JSON-contract wrapper spec.md
// §4.E.2 step 2 requires for Structured prompts: exact field names and
// meanings, the standardized "Not applicable" absence phrase, and the
// extracted_from_text/derived_from_csv date contract. Ported in spirit
// from original_source/backend/lib/prompt_wrapper.py's
// wrap_prompt_with_json_format, generalized from that file's single
// "### Input:" insertion heuristic to an unconditional append, since the
// adapted templates no longer carry a fixed section layout.
const jsonContractPreamble = `
# Output Format (JSON)
You MUST output a JSON object with exactly these fields:
{
  "evidence": "the exact literal phrase or sentence from the note supporting this annotation, or empty string if none",
  "reasoning": "a brief (2-3 sentence) explanation of the logic used to map the note's language to the final value",
  "final_output": "the final annotation text, following the template format given above",
  "is_negated": false,
  "date": {"date_value": "DD/MM/YYYY", "source": "extracted_from_text", "csv_date": null}
}

Field rules:
- If the required information is not stated in the note, set final_output to the standardized phrase "Not applicable"
  (prefixed with the template's label when the template uses a "Label: value" format), and never a placeholder
  template like "[select value]".
- date.source must be "extracted_from_text" when a date is found in the note text, or "derived_from_csv" with
  date.csv_date populated when no date is stated in the note and a CSV date is supplied below.
- is_negated is true when the annotation reflects an explicit negation ("no evidence of", "ruled out", "absence of", ...).
Output ONLY the JSON object: no markdown fences, no commentary before or after it.
`

// assemblePrompt substitutes {note} and {fewshots}, and, for Structured
// templates, appends the JSON-contract preamble (spec.md §4.E.2 steps 1-2).
func assemblePrompt(template, noteText string, examples []model.FewShotExample, classification prompts.Classification, csvDate string) string {
	out := strings.ReplaceAll(template, "{note}", noteText)
	out = strings.ReplaceAll(out, "{fewshots}", renderFewshots(examples))

	if classification != prompts.Structured {
		return out
	}

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n")
	b.WriteString(jsonContractPreamble)
	if csvDate != "" {
		b.WriteString("\nCSV Date: " + csvDate + "\n")
	}
	return b.String()
}

func renderFewshots(examples []model.FewShotExample) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Examples\n")
	for i, ex := range examples {
		b.WriteString("Example ")
		b.WriteString(itoa(i + 1))
		b.WriteString(":\nNote: ")
		b.WriteString(ex.NoteText)
		b.WriteString("\nAnnotation: ")
		b.WriteString(ex.GoldAnnotation)
		b.WriteString("\n\n")
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// csvDateFor returns the note's CSV date for embedding in the prompt, or
// "" when the note has none.
func csvDateFor(note model.Note) string {
	return note.Date
}
