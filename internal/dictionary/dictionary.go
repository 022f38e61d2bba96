// Package dictionary indexes the ICD-O-3 diagnosis code table for fast
// lookup and fuzzy candidate ranking. It mirrors the four-index design of
// the original CSV indexer: an exact Query-code index, a Morphology index,
// a Topography index, and a normalized-NAME index, combined into a
// multi-strategy scored matcher.
package dictionary

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// Row is one diagnosis-code row, keyed by column name so new CSV columns
// don't require a schema change.
type Row map[string]string

func (r Row) get(col string) string { return strings.TrimSpace(r[col]) }

// Candidate is one ranked match returned by Resolve/FindTopCandidates.
type Candidate struct {
	Row    Row
	Score  float64
	Method string
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Index is a loaded, queryable ICD-O-3 dictionary. Safe for concurrent
// read access once Load has returned; Load itself is one-shot.
type Index struct {
	path string

	mu       sync.RWMutex
	loaded   bool
	rows     []Row
	byQuery  map[string]Row
	byMorph  map[string][]Row
	byTopo   map[string][]Row
	byName   map[string][]Row
}

// New constructs an Index bound to a CSV path. Load must be called before
// any lookup method is used.
func New(csvPath string) *Index {
	return &Index{
		path:    csvPath,
		byQuery: map[string]Row{},
		byMorph: map[string][]Row{},
		byTopo:  map[string][]Row{},
		byName:  map[string][]Row{},
	}
}

// Load reads the CSV and builds all four indexes. It is idempotent: a
// second call is a no-op returning the prior result.
func (idx *Index) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.loaded {
		return nil
	}

	f, err := os.Open(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Wrap(apperr.Unavailable, "diagnosis code CSV not found", err)
		}
		return apperr.Wrap(apperr.Unavailable, "failed to open diagnosis code CSV", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "diagnosis code CSV has no header", err)
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return apperr.Wrap(apperr.Unavailable, "failed to parse diagnosis code CSV", err)
		}
		row := Row{}
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		idx.index(row)
	}

	idx.loaded = true
	return nil
}

func (idx *Index) index(row Row) {
	idx.rows = append(idx.rows, row)

	if q := row.get("Query"); q != "" {
		idx.byQuery[q] = row
	}
	if m := row.get("Morphology"); m != "" {
		idx.byMorph[m] = append(idx.byMorph[m], row)
	}
	if t := row.get("Topography"); t != "" {
		idx.byTopo[t] = append(idx.byTopo[t], row)
	}
	if n := row.get("NAME"); n != "" {
		if norm := normalize(n); norm != "" {
			idx.byName[norm] = append(idx.byName[norm], row)
		}
	}
}

func normalize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(strings.ToLower(text), " "))
}

// Query bundles the fields a match can be attempted against; any subset may
// be populated.
type Query struct {
	HistologyText   string
	TopographyText  string
	MorphologyCode  string
	TopographyCode  string
	QueryCode       string
}

// Resolve runs the five-strategy match in priority order and returns the
// first strategy that produces a hit, mirroring the original indexer's
// find_matching_code.
func (idx *Index) Resolve(q Query) (Row, float64, string) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if q.QueryCode != "" {
		if row, ok := idx.byQuery[q.QueryCode]; ok {
			return row, 1.0, "exact"
		}
	}

	if q.MorphologyCode != "" && q.TopographyCode != "" {
		for _, row := range idx.byMorph[q.MorphologyCode] {
			if row.get("Topography") == q.TopographyCode {
				return row, 0.9, "combined"
			}
		}
	}

	if q.MorphologyCode != "" && q.TopographyText != "" {
		if best := bestSubstringMatch(idx.byMorph[q.MorphologyCode], normalize(q.TopographyText)); best != nil {
			return best, 0.7, "morphology_text"
		}
	}

	if q.HistologyText != "" || q.TopographyText != "" {
		terms := []string{}
		if q.HistologyText != "" {
			terms = append(terms, normalize(q.HistologyText))
		}
		if q.TopographyText != "" {
			terms = append(terms, normalize(q.TopographyText))
		}
		for _, term := range terms {
			if term == "" {
				continue
			}
			for name, rows := range idx.byName {
				if strings.Contains(name, term) || strings.Contains(term, name) {
					return rows[0], 0.5, "text"
				}
			}
		}
	}

	if q.MorphologyCode != "" {
		if rows := idx.byMorph[q.MorphologyCode]; len(rows) > 0 {
			return rows[0], 0.3, "partial_morphology"
		}
	}
	if q.TopographyCode != "" {
		if rows := idx.byTopo[q.TopographyCode]; len(rows) > 0 {
			return rows[0], 0.3, "partial_topography"
		}
	}

	return nil, 0.0, "no_match"
}

func bestSubstringMatch(candidates []Row, searchNorm string) Row {
	if len(candidates) == 0 || searchNorm == "" {
		return nil
	}
	var best Row
	bestScore := 0.0
	for _, c := range candidates {
		name := strings.ToLower(c.get("NAME"))
		if name == "" || !strings.Contains(name, searchNorm) {
			continue
		}
		score := float64(len(searchNorm)) / float64(len(name))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

// fuzzyRatio approximates difflib.SequenceMatcher.ratio using normalized
// Levenshtein distance: 1 - distance/max(len(a), len(b)).
func fuzzyRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// scoreTextSimilarity scores searchText against candidateText on the
// fuzzy scale used by the morphology/topography ranking strategies.
func scoreTextSimilarity(searchText, candidateText string) float64 {
	if searchText == "" || candidateText == "" {
		return 0
	}
	s, t := normalize(searchText), normalize(candidateText)
	if s == "" || t == "" {
		return 0
	}
	if strings.Contains(t, s) {
		return 0.85 + 0.1*float64(len(s))/float64(len(t))
	}
	if strings.Contains(s, t) {
		return 0.75 + 0.1*float64(len(t))/float64(len(s))
	}
	return fuzzyRatio(s, t) * 0.7
}

// FindTopCandidates ranks up to n candidate rows across all five
// strategies, deduplicated by Query code and sorted by score descending.
func (idx *Index) FindTopCandidates(q Query, n int) []Candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byKey := map[string]Candidate{}
	add := func(key string, row Row, score float64, method string) {
		if key == "" {
			return
		}
		if existing, ok := byKey[key]; ok && existing.Score >= score {
			return
		}
		byKey[key] = Candidate{Row: row, Score: score, Method: method}
	}

	if q.QueryCode != "" {
		if row, ok := idx.byQuery[q.QueryCode]; ok {
			add(q.QueryCode, row, 1.0, "exact")
		}
	}

	if q.MorphologyCode != "" && q.TopographyCode != "" {
		for _, row := range idx.byMorph[q.MorphologyCode] {
			if row.get("Topography") == q.TopographyCode {
				add(row.get("Query"), row, 0.9, "combined")
			}
		}
	}

	if q.MorphologyCode != "" {
		for _, row := range idx.byMorph[q.MorphologyCode] {
			key := row.get("Query")
			if _, exists := byKey[key]; exists {
				continue
			}
			score := 0.6
			if q.TopographyText != "" {
				if s := 0.6 + scoreTextSimilarity(q.TopographyText, row.get("NAME"))*0.15; s > score {
					score = s
				}
			}
			if score > 0.75 {
				score = 0.75
			}
			add(key, row, score, "morphology")
		}
	}

	if q.TopographyCode != "" {
		for _, row := range idx.byTopo[q.TopographyCode] {
			key := row.get("Query")
			if _, exists := byKey[key]; exists {
				continue
			}
			score := 0.5
			if q.HistologyText != "" {
				if s := 0.5 + scoreTextSimilarity(q.HistologyText, row.get("NAME"))*0.15; s > score {
					score = s
				}
			}
			if score > 0.65 {
				score = 0.65
			}
			add(key, row, score, "topography")
		}
	}

	var terms []string
	if q.HistologyText != "" {
		terms = append(terms, q.HistologyText)
	}
	if q.TopographyText != "" {
		terms = append(terms, q.TopographyText)
	}
	for _, term := range terms {
		for _, row := range idx.rows {
			key := row.get("Query")
			if key == "" {
				continue
			}
			textScore := scoreTextSimilarity(term, row.get("NAME"))
			if textScore < 0.3 {
				continue
			}
			final := 0.3 + textScore*0.3
			if final > 0.6 {
				final = 0.6
			}
			add(key, row, final, "text")
		}
	}

	out := make([]Candidate, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// SearchResult is one row returned by SearchByText.
type SearchResult struct {
	QueryCode      string
	MorphologyCode string
	TopographyCode string
	Name           string
	MatchScore     float64
}

// SearchByText is the free-text code/name search behind the lookup UI.
func (idx *Index) SearchByText(query string, morphologyFilter, topographyFilter string, limit int) []SearchResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	queryLower := strings.ToLower(query)
	queryNorm := normalize(query)

	var results []SearchResult
	seen := map[string]bool{}

	for _, row := range idx.rows {
		code := row.get("Query")
		morph := row.get("Morphology")
		topo := row.get("Topography")
		name := row.get("NAME")

		if code == "" || seen[code] {
			continue
		}
		if morphologyFilter != "" && !strings.HasPrefix(morph, morphologyFilter) {
			continue
		}
		if topographyFilter != "" && !strings.HasPrefix(topo, topographyFilter) {
			continue
		}

		score := 0.0
		switch {
		case strings.ToLower(code) == queryLower:
			score = 1.0
		case strings.ToLower(morph) == queryLower || strings.ToLower(topo) == queryLower:
			score = 0.95
		case strings.Contains(strings.ToLower(code), queryLower):
			score = 0.85
		case strings.Contains(strings.ToLower(morph), queryLower) || strings.Contains(strings.ToLower(topo), queryLower):
			score = 0.8
		default:
			nameLower := strings.ToLower(name)
			nameNorm := normalize(name)
			switch {
			case queryLower == nameLower:
				score = 0.9
			case strings.HasPrefix(nameLower, queryLower):
				score = 0.75
			case strings.Contains(nameLower, queryLower) && len(name) > 0:
				score = 0.5 + 0.2*float64(len(query))/float64(len(name))
			case queryNorm != "" && strings.Contains(nameNorm, queryNorm) && len(nameNorm) > 0:
				score = 0.45 + 0.15*float64(len(queryNorm))/float64(len(nameNorm))
			default:
				qWords := wordSet(queryLower)
				nWords := wordSet(nameLower)
				if len(qWords) > 0 {
					common := 0
					for w := range qWords {
						if nWords[w] {
							common++
						}
					}
					if common > 0 {
						score = 0.3 * float64(common) / float64(len(qWords))
					}
				}
			}
		}

		if score > 0 {
			seen[code] = true
			results = append(results, SearchResult{
				QueryCode: code, MorphologyCode: morph, TopographyCode: topo,
				Name: name, MatchScore: score,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].MatchScore > results[j].MatchScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// ValidationResult reports whether a morphology+topography pair is a
// recognized combination.
type ValidationResult struct {
	Valid            bool
	QueryCode        string
	Name             string
	MorphologyValid  bool
	TopographyValid  bool
}

// ValidateCombination checks whether morphology+topography names a
// recognized code, trying the exact composite key first and then scanning
// the morphology index for a row naming the same topography.
func (idx *Index) ValidateCombination(morphology, topography string) ValidationResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	morphology = strings.TrimSpace(morphology)
	topography = strings.TrimSpace(topography)

	_, morphOK := idx.byMorph[morphology]
	_, topoOK := idx.byTopo[topography]

	if morphology != "" && topography != "" {
		combined := morphology + "-" + topography
		if row, ok := idx.byQuery[combined]; ok {
			return ValidationResult{true, combined, row.get("NAME"), true, true}
		}
		for _, row := range idx.byMorph[morphology] {
			if row.get("Topography") == topography {
				return ValidationResult{true, row.get("Query"), row.get("NAME"), true, true}
			}
		}
	}

	return ValidationResult{Valid: false, MorphologyValid: morphOK, TopographyValid: topoOK}
}

// TopographyOption is one row in a TopographiesFor/MorphologiesFor listing.
type TopographyOption struct {
	Code      string
	QueryCode string
	Name      string
}

// TopographiesFor lists the distinct topography codes valid for a
// morphology code, sorted alphabetically.
func (idx *Index) TopographiesFor(morphology string, limit int) []TopographyOption {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	morphology = strings.TrimSpace(morphology)
	if morphology == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []TopographyOption
	for _, row := range idx.byMorph[morphology] {
		topo := row.get("Topography")
		if topo == "" || seen[topo] {
			continue
		}
		seen[topo] = true
		out = append(out, TopographyOption{Code: topo, QueryCode: row.get("Query"), Name: row.get("NAME")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MorphologiesFor lists the distinct morphology codes valid for a
// topography code, sorted alphabetically.
func (idx *Index) MorphologiesFor(topography string, limit int) []TopographyOption {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	topography = strings.TrimSpace(topography)
	if topography == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []TopographyOption
	for _, row := range idx.byTopo[topography] {
		morph := row.get("Morphology")
		if morph == "" || seen[morph] {
			continue
		}
		seen[morph] = true
		out = append(out, TopographyOption{Code: morph, QueryCode: row.get("Query"), Name: row.get("NAME")})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of loaded rows, for health/readiness reporting.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.rows)
}
