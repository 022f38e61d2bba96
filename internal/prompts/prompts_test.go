package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalpipe/annotator/internal/model"
)

func fileFuture() time.Time {
	return time.Now().Add(time.Hour)
}

func writeCenter(t *testing.T, root, center, json string) {
	t.Helper()
	dir := filepath.Join(root, center)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.json"), []byte(json), 0o644))
}

func TestLoadSuffixesKeysByCenter(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{"biopsygrading": {"template": "Extract grading. {{note_original_text}}"}}`)
	writeCenter(t, root, "HUS", `{"biopsygrading": {"template": "Extract grading. {{note_original_text}}"}}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	_, err := lib.Get("biopsygrading-fbk")
	require.NoError(t, err)
	_, err = lib.Get("biopsygrading-hus")
	require.NoError(t, err)
}

func TestAdaptRewritesPlaceholders(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{
		"k": {"template": "Note: {{note_original_text}}\nExamples: {few_shot_examples}\n{static_samples}\nDone{{annotation}}"}
	}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	tmpl, err := lib.Get("k-fbk")
	require.NoError(t, err)
	assert.Contains(t, tmpl.Template.Text, "{note}")
	assert.Contains(t, tmpl.Template.Text, "{fewshots}")
	assert.NotContains(t, tmpl.Template.Text, "{static_samples}")
	assert.NotContains(t, tmpl.Template.Text, "{{annotation}}")
}

func TestGetUnknownPromptType(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	_, err := lib.Get("nonexistent-fbk")
	assert.Error(t, err)
}

func TestClassifySimpleVsStructured(t *testing.T) {
	assert.Equal(t, Simple, Classify("Extract the tumor size from the note."))
	assert.Equal(t, Structured, Classify("Return a JSON object with reasoning and evidence fields."))
}

func TestPutThenGetRoundTrips(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	require.NoError(t, lib.Put("FBK", "newkey", model.Template{Text: "hello {note}"}))

	tmpl, err := lib.Get("newkey-fbk")
	require.NoError(t, err)
	assert.Equal(t, "hello {note}", tmpl.Template.Text)
}

func TestRenameAndDelete(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{"old": {"template": "t"}}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	require.NoError(t, lib.Rename("FBK", "old", "renamed"))
	_, err := lib.Get("renamed-fbk")
	require.NoError(t, err)
	_, err = lib.Get("old-fbk")
	assert.Error(t, err)

	require.NoError(t, lib.Delete("FBK", "renamed"))
	_, err = lib.Get("renamed-fbk")
	assert.Error(t, err)
}

func TestReloadIfChangedPicksUpEdits(t *testing.T) {
	root := t.TempDir()
	writeCenter(t, root, "FBK", `{"k": {"template": "v1"}}`)

	lib := New(root)
	require.NoError(t, lib.Load())

	writeCenter(t, root, "FBK", `{"k": {"template": "v2"}}`)
	require.NoError(t, os.Chtimes(filepath.Join(root, "FBK", "prompts.json"), fileFuture(), fileFuture()))
	require.NoError(t, lib.ReloadIfChanged())

	tmpl, err := lib.Get("k-fbk")
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Template.Text)
}
