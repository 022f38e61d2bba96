package llmclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONCandidateFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"evidence\": \"tumor 3cm\", \"reasoning\": \"ok\"}\n```\nThanks."
	candidate := extractJSONCandidate(raw)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(candidate), &out))
	assert.Equal(t, "tumor 3cm", out["evidence"])
}

func TestExtractJSONCandidateBalancedObjectNoFence(t *testing.T) {
	raw := `Sure, the output is {"evidence": "left breast", "final_output": "positive"} done.`
	candidate := extractJSONCandidate(raw)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(candidate), &out))
	assert.Equal(t, "left breast", out["evidence"])
}

func TestExtractJSONCandidateNestedBraces(t *testing.T) {
	raw := `{"evidence": "x", "meta": {"nested": true}}`
	candidate := extractJSONCandidate(raw)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(candidate), &out))
	assert.Equal(t, "x", out["evidence"])
}

func TestExtractJSONCandidateArrayTakesFirstElement(t *testing.T) {
	raw := `[{"evidence": "first"}, {"evidence": "second"}]`
	candidate := extractJSONCandidate(raw)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(candidate), &out))
	assert.Equal(t, "first", out["evidence"])
}

func TestSynthesizeFromTextFindsKnownFields(t *testing.T) {
	raw := `evidence: "tumor noted in left breast"
reasoning: "directly stated in the note"
final_output: "positive"`

	data, ok := synthesizeFromText(raw)
	require.True(t, ok)

	var out map[string]string
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "positive", out["final_output"])
}

func TestSynthesizeFromTextNoRecognizableFields(t *testing.T) {
	_, ok := synthesizeFromText("the weather is nice today")
	assert.False(t, ok)
}

func TestParsePromLineStripsLabels(t *testing.T) {
	name, value, ok := parsePromLine(`vllm:num_requests_running{model="m"} 4`)
	require.True(t, ok)
	assert.Equal(t, "vllm:num_requests_running", name)
	assert.Equal(t, 4.0, value)
}

func TestParsePromLineIgnoresMalformed(t *testing.T) {
	_, _, ok := parsePromLine("not a metric line")
	assert.False(t, ok)
}
