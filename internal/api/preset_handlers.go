package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type presetRequest struct {
	Name              string              `json:"name"`
	Center            string              `json:"center"`
	ReportTypeMapping map[string][]string `json:"report_type_mapping"`
	Description       string              `json:"description"`
}

// ListPresets returns every saved preset.
func (d *Deps) ListPresets(c *gin.Context) {
	presets, err := d.Presets.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presets": presets})
}

// CreatePreset saves a new (name, center, mapping) tuple.
func (d *Deps) CreatePreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Name == "" || req.Center == "" {
		badRequest(c, "name and center are required")
		return
	}
	p, err := d.Presets.Create(req.Name, req.Center, req.ReportTypeMapping, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetPreset fetches one preset by ID.
func (d *Deps) GetPreset(c *gin.Context) {
	p, err := d.Presets.Get(c.Param("presetID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePreset partially overwrites a preset's fields: blank/nil request
// fields leave the stored value untouched, matching presets.Store.Update.
func (d *Deps) UpdatePreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := d.Presets.Update(c.Param("presetID"), req.Name, req.Center, req.ReportTypeMapping, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePreset removes a preset.
func (d *Deps) DeletePreset(c *gin.Context) {
	if err := d.Presets.Delete(c.Param("presetID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
