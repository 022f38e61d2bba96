// Package api is the External Interface component: a gin HTTP server that
// exposes every session, annotation, job, preset, and prompt operation the
// other internal packages implement, the same route-group-per-resource
// shape as the teacher's planner/server.go.
package api

import (
	"github.com/clinicalpipe/annotator/internal/annotate"
	"github.com/clinicalpipe/annotator/internal/config"
	"github.com/clinicalpipe/annotator/internal/dictionary"
	"github.com/clinicalpipe/annotator/internal/export"
	"github.com/clinicalpipe/annotator/internal/fewshot"
	"github.com/clinicalpipe/annotator/internal/jobs"
	"github.com/clinicalpipe/annotator/internal/llmclient"
	"github.com/clinicalpipe/annotator/internal/presets"
	"github.com/clinicalpipe/annotator/internal/prompts"
	"github.com/clinicalpipe/annotator/internal/session"
)

// Deps bundles every collaborator a handler may need. One Deps is built at
// startup and shared by all requests; every field is safe for concurrent
// use on its own.
type Deps struct {
	Config       *config.Config
	Sessions     *session.Store
	Prompts      *prompts.Library
	Fewshots     *fewshot.Store
	Dictionary   *dictionary.Index
	LLM          *llmclient.Client
	Engine       *annotate.Engine
	Jobs         *jobs.Runtime
	Presets      *presets.Store
	CodeResolver *export.CodeResolver // optional: when nil, values without a value_code_mappings hit export as UNRESOLVED::<value>

	reportTypeMappings *reportTypeMappingStore
}

// NewDeps wires the given collaborators into a Deps ready for NewRouter.
// reportTypeMappingsPath is the JSON file backing the center-scoped
// report-type mapping endpoints; it lives alongside the sessions directory.
func NewDeps(cfg *config.Config, sessions *session.Store, promptLib *prompts.Library, fewshots *fewshot.Store, dict *dictionary.Index, llm *llmclient.Client, engine *annotate.Engine, jobRuntime *jobs.Runtime, presetStore *presets.Store, codeResolver *export.CodeResolver, reportTypeMappingsPath string) *Deps {
	return &Deps{
		Config:              cfg,
		Sessions:            sessions,
		Prompts:             promptLib,
		Fewshots:            fewshots,
		Dictionary:          dict,
		LLM:                 llm,
		Engine:              engine,
		Jobs:                jobRuntime,
		Presets:             presetStore,
		CodeResolver:        codeResolver,
		reportTypeMappings:  newReportTypeMappingStore(reportTypeMappingsPath),
	}
}
