package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func queryLimit(c *gin.Context, fallback int) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// ICDO3Search runs a free-text ICD-O-3 lookup, optionally narrowed to a
// morphology or topography code, mirroring the original /icdo3/search
// route.
func (d *Deps) ICDO3Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "missing required query parameter \"q\"")
		return
	}
	results := d.Dictionary.SearchByText(query, c.Query("morphology"), c.Query("topography"), queryLimit(c, 25))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ICDO3Validate checks whether a morphology+topography pair names a valid
// combination in the dictionary.
func (d *Deps) ICDO3Validate(c *gin.Context) {
	morphology := c.Query("morphology")
	topography := c.Query("topography")
	if morphology == "" || topography == "" {
		badRequest(c, "missing required query parameters \"morphology\" and \"topography\"")
		return
	}
	c.JSON(http.StatusOK, d.Dictionary.ValidateCombination(morphology, topography))
}

// ICDO3Topographies lists the topography codes compatible with a given
// morphology code, for populating the combine-codes UI.
func (d *Deps) ICDO3Topographies(c *gin.Context) {
	morphology := c.Query("morphology")
	if morphology == "" {
		badRequest(c, "missing required query parameter \"morphology\"")
		return
	}
	c.JSON(http.StatusOK, gin.H{"topographies": d.Dictionary.TopographiesFor(morphology, queryLimit(c, 50))})
}

// ICDO3Morphologies lists the morphology codes compatible with a given
// topography code.
func (d *Deps) ICDO3Morphologies(c *gin.Context) {
	topography := c.Query("topography")
	if topography == "" {
		badRequest(c, "missing required query parameter \"topography\"")
		return
	}
	c.JSON(http.StatusOK, gin.H{"morphologies": d.Dictionary.MorphologiesFor(topography, queryLimit(c, 50))})
}
