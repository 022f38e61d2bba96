package annotate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/clinicalpipe/annotator/internal/model"
)

// findEvidenceSpan locates the evidence string inside the note text using
// a three-strategy stack, each strategy tried only after the previous one
// fails to find a match (spec.md §4.E.2 step 5):
//  1. exact, case-insensitive substring search.
//  2. accent/whitespace-normalized search, with the match's normalized
//     offsets mapped back onto the original string.
//  3. first-word anchor: locate the evidence's first word, then check the
//     following run of text contains the rest of the evidence loosely.
func findEvidenceSpan(noteText, evidence, promptType string) (model.EvidenceSpan, bool) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" || len(evidence) < 2 {
		return model.EvidenceSpan{}, false
	}

	if start, end, ok := exactCaseInsensitive(noteText, evidence); ok {
		return model.EvidenceSpan{Start: start, End: end, Text: noteText[start:end], PromptType: promptType}, true
	}

	if start, end, ok := normalizedSearch(noteText, evidence); ok {
		return model.EvidenceSpan{Start: start, End: end, Text: noteText[start:end], PromptType: promptType}, true
	}

	if start, end, ok := firstWordAnchor(noteText, evidence); ok {
		return model.EvidenceSpan{Start: start, End: end, Text: noteText[start:end], PromptType: promptType}, true
	}

	return model.EvidenceSpan{}, false
}

func exactCaseInsensitive(haystack, needle string) (int, int, bool) {
	idx := strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(needle), true
}

// normalizeForSearch strips accents, case, and collapses whitespace while
// recording, for every rune it keeps, the byte offset it came from in the
// original string — that map is what lets the caller translate a match
// found in the normalized text back into original-string offsets.
func normalizeForSearch(s string) (normalized string, originalOffsets []int) {
	var b strings.Builder
	lastWasSpace := true // treat leading whitespace as already-collapsed
	for i, r := range s {
		r = stripAccent(r)
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
				originalOffsets = append(originalOffsets, i)
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(unicode.ToLower(r))
		originalOffsets = append(originalOffsets, i)
		lastWasSpace = false
	}
	return b.String(), originalOffsets
}

// stripAccent folds the handful of accented Latin characters that show up
// in clinical Spanish/Basque notes (the corpus this pipeline was built
// for) down to their unaccented form.
func stripAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	case 'ñ':
		return 'n'
	case 'ç':
		return 'c'
	default:
		return r
	}
}

func normalizedSearch(noteText, evidence string) (int, int, bool) {
	normNote, offsets := normalizeForSearch(noteText)
	normEvidence, _ := normalizeForSearch(evidence)
	if normEvidence == "" {
		return 0, 0, false
	}
	idx := strings.Index(normNote, normEvidence)
	if idx < 0 {
		return 0, 0, false
	}
	endIdx := idx + len(normEvidence) - 1
	if idx >= len(offsets) || endIdx >= len(offsets) {
		return 0, 0, false
	}
	start := offsets[idx]
	// end offset is exclusive: one past the last matched original rune's
	// start, extended to that rune's byte width.
	_, size := utf8.DecodeRuneInString(noteText[offsets[endIdx]:])
	end := offsets[endIdx] + size
	return start, end, true
}

// firstWordAnchor anchors on the evidence's first word (>=4 chars, to
// avoid anchoring on stopwords) and accepts the following span if it
// loosely contains the rest of the evidence's significant words.
func firstWordAnchor(noteText, evidence string) (int, int, bool) {
	words := strings.Fields(evidence)
	if len(words) == 0 {
		return 0, 0, false
	}
	anchor := ""
	for _, w := range words {
		if len(w) >= 4 {
			anchor = w
			break
		}
	}
	if anchor == "" {
		anchor = words[0]
	}

	lowerNote := strings.ToLower(noteText)
	idx := strings.Index(lowerNote, strings.ToLower(anchor))
	if idx < 0 {
		return 0, 0, false
	}

	windowEnd := idx + len(anchor) + len(evidence) + 40
	if windowEnd > len(noteText) {
		windowEnd = len(noteText)
	}
	window := noteText[idx:windowEnd]

	matched := 0
	significant := 0
	for _, w := range words {
		if len(w) < 4 {
			continue
		}
		significant++
		if strings.Contains(strings.ToLower(window), strings.ToLower(w)) {
			matched++
		}
	}
	if significant == 0 || float64(matched)/float64(significant) < 0.6 {
		return 0, 0, false
	}

	end := idx + len(window)
	if end > len(noteText) {
		end = len(noteText)
	}
	return idx, end, true
}
