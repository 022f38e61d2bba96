package api

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// fail writes err as a JSON error body under the status code its Kind maps
// to (apperr.HTTPStatus), matching the FastAPI HTTPException shape the
// original routes returned: {"error": "..."}.
func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(apperr.KindOf(err)), gin.H{"error": err.Error()})
}

// badRequest reports a locally-detected input error (bad JSON body, missing
// query param) that never passed through an apperr.Error.
func badRequest(c *gin.Context, msg string) {
	c.JSON(400, gin.H{"error": msg})
}
