package api

import (
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clinicalpipe/annotator/internal/model"
)

// ListPrompts returns every loaded prompt type.
func (d *Deps) ListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prompt_types": d.Prompts.All()})
}

// GetPrompt returns one prompt's adapted template.
func (d *Deps) GetPrompt(c *gin.Context) {
	tmpl, err := d.Prompts.Get(c.Param("promptType"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// PutPrompt creates or updates a prompt in its center's prompts.json.
func (d *Deps) PutPrompt(c *gin.Context) {
	promptType := c.Param("promptType")
	center, bareKey, ok := d.splitPromptType(promptType)
	if !ok {
		badRequest(c, "prompt type must be suffixed with a known center, e.g. \"gender-int\"")
		return
	}

	var req model.Template
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := d.Prompts.Put(center, bareKey, req); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt_type": promptType})
}

// RenamePrompt moves a prompt to a new bare key within the same center.
func (d *Deps) RenamePrompt(c *gin.Context) {
	promptType := c.Param("promptType")
	center, bareKey, ok := d.splitPromptType(promptType)
	if !ok {
		badRequest(c, "prompt type must be suffixed with a known center, e.g. \"gender-int\"")
		return
	}
	var req struct {
		NewKey string `json:"new_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := d.Prompts.Rename(center, bareKey, req.NewKey); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt_type": req.NewKey + "-" + strings.ToLower(center)})
}

// DeletePrompt removes a prompt from its center.
func (d *Deps) DeletePrompt(c *gin.Context) {
	promptType := c.Param("promptType")
	center, bareKey, ok := d.splitPromptType(promptType)
	if !ok {
		badRequest(c, "prompt type must be suffixed with a known center, e.g. \"gender-int\"")
		return
	}
	if err := d.Prompts.Delete(center, bareKey); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateCenter creates an empty center directory with its own prompts.json.
func (d *Deps) CreateCenter(c *gin.Context) {
	center := c.Param("center")
	if err := d.Prompts.CreateCenter(center); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "center": center})
}

// ListPromptCenters lists every center subdirectory under the prompts root.
// prompts.Library has no notion of "all centers" once loaded (it only
// indexes by fully-suffixed prompt type), so this walks the configured
// prompts directory directly rather than widening that package's surface
// for a single listing endpoint.
func (d *Deps) ListPromptCenters(c *gin.Context) {
	entries, err := os.ReadDir(d.Config.PromptsDir)
	if err != nil {
		fail(c, err)
		return
	}
	var centers []string
	for _, e := range entries {
		if e.IsDir() {
			centers = append(centers, e.Name())
		}
	}
	sort.Strings(centers)
	c.JSON(http.StatusOK, gin.H{"centers": centers})
}

// splitPromptType recovers the (center, bareKey) pair from a fully
// suffixed prompt type. The suffix is "-" + lowercase(center), and center
// directory names may contain hyphens themselves, so this matches against
// the centers actually present on disk rather than just splitting on the
// last "-".
func (d *Deps) splitPromptType(promptType string) (center, bareKey string, ok bool) {
	entries, err := os.ReadDir(d.Config.PromptsDir)
	if err != nil {
		return "", "", false
	}
	lower := strings.ToLower(promptType)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		suffix := "-" + strings.ToLower(e.Name())
		if strings.HasSuffix(lower, suffix) {
			cut := len(promptType) - len(suffix)
			return e.Name(), promptType[:cut], true
		}
	}
	return "", "", false
}
