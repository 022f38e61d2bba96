package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPipe(t *testing.T) {
	assert.Equal(t, []string{"gender-int: male", "biopsygrading-int: G2"}, splitPipe("gender-int: male | biopsygrading-int: G2"))
	assert.Nil(t, splitPipe(""))
}

func TestSplitKeyValue(t *testing.T) {
	key, value, ok := splitKeyValue("gender-int: male")
	assert.True(t, ok)
	assert.Equal(t, "gender-int", key)
	assert.Equal(t, "male", value)

	_, _, ok = splitKeyValue("no colon here")
	assert.False(t, ok)
}

func TestEqualFoldTrim(t *testing.T) {
	assert.True(t, equalFoldTrim(" Gender-INT ", "gender-int"))
	assert.False(t, equalFoldTrim("gender-int", "biopsygrading-int"))
}
