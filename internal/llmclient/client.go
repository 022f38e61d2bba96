// Package llmclient talks to an OpenAI-compatible inference endpoint
// (a self-hosted vLLM server, in the deployment this pipeline targets).
// Generation and structured generation go through the go-openai client
// used elsewhere in the corpus for the same Chat Completions wire format;
// availability/model-listing/metrics scraping are hand-rolled net/http
// since go-openai has no client surface for either.
package llmclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/logging"
)

// Config is the single configuration record named in spec.md §4.D.
type Config struct {
	Endpoint   string
	ModelName  string
	TimeoutSec int
}

// Model is one entry in ListModels' result.
type Model struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}

// Metrics projects the known Prometheus keys this system cares about.
type Metrics struct {
	GPUBytesUsed    *float64
	GPUBytesTotal   *float64
	ActiveRequests  *float64
	ThroughputTokPS *float64
}

// GenerateResult is the {raw, normalized} pair generate() returns.
type GenerateResult struct {
	Raw        string
	Normalized string
}

// Client is the LLM Client component.
type Client struct {
	mu        sync.RWMutex
	cfg       Config
	oai       *openai.Client
	http      *http.Client
	tokenizer *tiktoken.Tiktoken
	log       *logrus.Entry
}

// New constructs a Client from a Config. Call Reset to reload configuration
// at runtime without recreating collaborators that hold no state.
func New(cfg Config) *Client {
	c := &Client{log: logging.For("llmclient")}
	c.apply(cfg)
	return c
}

func (c *Client) apply(cfg Config) {
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 30
	}
	oaiCfg := openai.DefaultConfig("unused")
	oaiCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/") + "/v1"

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.oai = openai.NewClientWithConfig(oaiCfg)
	c.http = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		c.tokenizer = enc
	}
}

// Reset reloads configuration, per spec.md §4.D's "refreshable via a
// reset() call".
func (c *Client) Reset(cfg Config) { c.apply(cfg) }

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// CountTokens estimates the token count of text with the cl100k_base
// tokenizer, falling back to a whitespace word count when the tokenizer
// could not be loaded.
func (c *Client) CountTokens(text string) int {
	c.mu.RLock()
	tok := c.tokenizer
	c.mu.RUnlock()
	if tok == nil {
		return len(strings.Fields(text))
	}
	return len(tok.Encode(text, nil, nil))
}

// Available performs a short-timeout HEAD/GET against /v1/models.
func (c *Client) Available(ctx context.Context) (bool, string) {
	cfg := c.config()
	url := strings.TrimRight(cfg.Endpoint, "/") + "/v1/models"

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("unexpected status %d", resp.StatusCode)
}

// ListModels returns the models the endpoint currently exposes.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	cfg := c.config()
	resp, err := c.oai.ListModels(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to list models", err)
	}
	out := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, Model{ID: m.ID, IsActive: m.ID == cfg.ModelName})
	}
	return out, nil
}

// Metrics scrapes GET /metrics and projects the Prometheus-text lines this
// system understands; gauges the endpoint does not export stay nil, and an
// unreachable endpoint or a non-200 response returns an Unavailable error.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	cfg := c.config()
	url := strings.TrimRight(cfg.Endpoint, "/") + "/metrics"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metrics{}, apperr.Wrap(apperr.Unavailable, "failed to build metrics request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Metrics{}, apperr.Wrap(apperr.Unavailable, "metrics endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Metrics{}, apperr.New(apperr.Unavailable, fmt.Sprintf("metrics endpoint returned %d", resp.StatusCode))
	}

	var m Metrics
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := parsePromLine(line)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(name, "gpu_cache_usage") || strings.Contains(name, "gpu_memory_used"):
			m.GPUBytesUsed = floatPtr(value)
		case strings.Contains(name, "gpu_memory_total"):
			m.GPUBytesTotal = floatPtr(value)
		case strings.Contains(name, "num_requests_running") || strings.Contains(name, "active_requests"):
			m.ActiveRequests = floatPtr(value)
		case strings.Contains(name, "generation_tokens_total") || strings.Contains(name, "throughput"):
			m.ThroughputTokPS = floatPtr(value)
		}
	}
	return m, nil
}

func floatPtr(v float64) *float64 { return &v }

// parsePromLine splits a Prometheus text-format line into its metric name
// (labels stripped) and value.
func parsePromLine(line string) (string, float64, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", 0, false
	}
	name := parts[0]
	if idx := strings.Index(name, "{"); idx >= 0 {
		name = name[:idx]
	}
	value, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return "", 0, false
	}
	return name, value, true
}

// GenerateOptions configures a single generate call.
type GenerateOptions struct {
	MaxTokens      int
	Temperature    float32
	ReturnLogprobs bool
}

// Generate runs one deterministic-by-default completion.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (GenerateResult, error) {
	cfg := c.config()
	req := openai.ChatCompletionRequest{
		Model:       cfg.ModelName,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.ReturnLogprobs {
		req.LogProbs = true
	}

	resp, err := c.oai.CreateChatCompletion(ctx, req)
	if err != nil {
		c.log.WithError(err).Warn("chat completion request failed")
		return GenerateResult{}, apperr.Wrap(apperr.Unavailable, "LLM generation failed", err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, apperr.New(apperr.AnnotationFailure, "LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	return GenerateResult{Raw: raw, Normalized: strings.TrimSpace(raw)}, nil
}

// SchemaFor reflects a Go struct into a JSON schema, keeping the contract
// passed to generate_structured in lockstep with the Go type it decodes
// into.
func SchemaFor(v any) (string, error) {
	r := &jsonschema.Reflector{ExpandedStruct: true, RequiredFromJSONSchemaTags: true}
	schema := r.Reflect(v)
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "failed to encode JSON schema", err)
	}
	return string(data), nil
}

// GenerateStructured requests a JSON object matching schema and decodes it
// into out, falling back to heuristic extraction (fenced block, first
// matching object, array-first-element, or field-by-field synthesis) when
// the endpoint does not constrain output to the schema.
func (c *Client) GenerateStructured(ctx context.Context, prompt, schema string, out any) (raw string, err error) {
	enhanced := buildStructuredPrompt(prompt, schema)
	result, genErr := c.Generate(ctx, enhanced, GenerateOptions{MaxTokens: 2048})
	if genErr != nil {
		return "", genErr
	}
	raw = result.Raw

	cleaned := extractJSONCandidate(raw)
	if jsonErr := json.Unmarshal([]byte(cleaned), out); jsonErr == nil {
		return raw, nil
	}

	if synthesized, ok := synthesizeFromText(raw); ok {
		if jsonErr := json.Unmarshal(synthesized, out); jsonErr == nil {
			return raw, nil
		}
	}

	return raw, apperr.New(apperr.AnnotationFailure, "could not extract structured output from LLM response")
}

func buildStructuredPrompt(prompt, schema string) string {
	var b strings.Builder
	b.WriteString(prompt)
	if schema != "" {
		b.WriteString("\n\nIMPORTANT: You must respond with valid JSON that exactly matches this schema:\nSchema:\n")
		b.WriteString(schema)
	} else {
		b.WriteString("\n\nIMPORTANT: You must respond with valid JSON matching the expected structure.")
	}
	b.WriteString("\n\nCRITICAL: Return ONLY the JSON object. No text, no explanations, no markdown.")
	return b.String()
}
