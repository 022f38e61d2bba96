package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// SessionExporter fetches a session's validated annotations as label CSV,
// the "continue_from_session" job shape's first step (spec.md §4.H shape
// 5: "pull validated annotations from a Session (via the HTTP interface
// of the Session Store)"). Grounded on original_source/pipeline/api/app.py's
// run_continue_pipeline_task, which GETs NLP_BACKEND_URL +
// "/api/sessions/{id}/export" from an external NLP backend; here the
// Session Store is this module's own component, so the default
// implementation below talks to the local API over loopback HTTP rather
// than a separate service, but through the same narrow interface.
type SessionExporter interface {
	ExportLabelCSV(ctx context.Context, sessionID string) (Table, error)
}

// httpSessionExporter hits a configured base URL's /api/sessions/{id}/export
// endpoint, mirroring the original's requests.get call.
type httpSessionExporter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSessionExporter builds a SessionExporter against baseURL (e.g.
// "http://localhost:8080", this server's own address, or NLP_BACKEND_URL
// when the validation UI runs elsewhere).
func NewHTTPSessionExporter(baseURL string) SessionExporter {
	return &httpSessionExporter{baseURL: baseURL, client: &http.Client{Timeout: 60 * time.Second}}
}

func (h *httpSessionExporter) ExportLabelCSV(ctx context.Context, sessionID string) (Table, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/export", h.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Table{}, apperr.Wrap(apperr.Unavailable, "failed to build session export request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Table{}, apperr.Wrap(apperr.Unavailable, "NLP backend unavailable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Table{}, apperr.New(apperr.Unavailable, fmt.Sprintf("failed to fetch validated NLP data: %s", string(body)))
	}
	return ReadTableCSV(resp.Body)
}
