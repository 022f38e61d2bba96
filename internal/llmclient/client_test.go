package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaultTimeout(t *testing.T) {
	c := New(Config{Endpoint: "http://localhost:8000", ModelName: "test-model"})
	assert.Equal(t, 30, c.config().TimeoutSec)
}

func TestResetReplacesConfig(t *testing.T) {
	c := New(Config{Endpoint: "http://localhost:8000", ModelName: "a"})
	c.Reset(Config{Endpoint: "http://localhost:9000", ModelName: "b", TimeoutSec: 5})
	cfg := c.config()
	assert.Equal(t, "b", cfg.ModelName)
	assert.Equal(t, 5, cfg.TimeoutSec)
}

func TestCountTokensFallsBackWithoutTokenizer(t *testing.T) {
	c := &Client{}
	n := c.CountTokens("one two three")
	assert.Equal(t, 3, n)
}

func TestSchemaForReflectsStruct(t *testing.T) {
	type contract struct {
		Evidence string `json:"evidence"`
	}
	schema, err := SchemaFor(contract{})
	assert := assert.New(t)
	assert.NoError(err)
	assert.Contains(schema, "evidence")
}
