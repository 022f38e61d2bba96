package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinicalpipe/annotator/internal/annotate"
	"github.com/clinicalpipe/annotator/internal/api"
	"github.com/clinicalpipe/annotator/internal/config"
	"github.com/clinicalpipe/annotator/internal/dictionary"
	"github.com/clinicalpipe/annotator/internal/export"
	"github.com/clinicalpipe/annotator/internal/fewshot"
	"github.com/clinicalpipe/annotator/internal/jobs"
	"github.com/clinicalpipe/annotator/internal/llmclient"
	"github.com/clinicalpipe/annotator/internal/logging"
	"github.com/clinicalpipe/annotator/internal/presets"
	"github.com/clinicalpipe/annotator/internal/prompts"
	"github.com/clinicalpipe/annotator/internal/session"
)

// serveCmd starts the HTTP server: the External Interface component wired
// against every other collaborator built fresh at process start, mirroring
// the teacher planner's serverCmd.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the annotation pipeline HTTP server",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	log := logging.For("main")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}
	if err := os.MkdirAll(cfg.SessionsDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create sessions directory")
	}

	sessions := session.New(cfg.SessionsDir)

	promptLib := prompts.New(cfg.PromptsDir)
	if err := promptLib.Load(); err != nil {
		log.WithError(err).Warn("prompt library failed to load; starting with an empty set")
	}

	fewshots := fewshot.New(cfg.FewShotPath)

	dict := dictionary.New(cfg.DictionaryCSVPath)
	if err := dict.Load(); err != nil {
		log.WithError(err).Warn("dictionary index failed to load; resolution will return no candidates")
	}

	llm := llmclient.New(llmclient.Config{
		Endpoint:   cfg.LLM.Endpoint,
		ModelName:  cfg.LLM.ModelName,
		TimeoutSec: cfg.LLM.TimeoutSec,
	})

	engine := annotate.New(llm, promptLib, fewshots, dict, annotate.Config{
		MaxConcurrency: cfg.VLLMConcurrency,
	})

	presetStore := presets.New(cfg.DataDir + "/presets.json")

	var codeResolver *export.CodeResolver
	if cr, err := export.LoadCodeResolver(cfg.DataDir + "/id2codes_dict.json"); err != nil {
		log.WithError(err).Warn("code resolver dictionary not available; coded export will mark values unresolved")
	} else {
		codeResolver = cr
	}

	statusStore, err := jobs.NewStore(cfg.StatusDBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open job status store")
	}
	resultStore, err := jobs.NewResultStore(cfg.ResultsDBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open job results store")
	}

	selfExe, err := os.Executable()
	if err != nil {
		log.WithError(err).Fatal("failed to resolve executable path for stage subprocess re-exec")
	}
	supervisor := jobs.NewSupervisor(selfExe)

	jobWorkDir := cfg.DataDir + "/jobs"
	if err := os.MkdirAll(jobWorkDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create job scratch directory")
	}
	newExecutor := func(jobID string) jobs.StageExecutor {
		jobDir := jobWorkDir + "/" + jobID
		if err := os.MkdirAll(jobDir, 0o755); err != nil {
			log.WithError(err).WithField("job_id", jobID).Error("failed to create job scratch subdirectory; stage I/O will use the shared directory")
			jobDir = jobWorkDir
		}
		return jobs.NewSubprocessExecutor(supervisor, jobID, jobDir)
	}

	selfBaseURL := fmt.Sprintf("http://127.0.0.1:%s", cfg.Port)
	sessionExporter := jobs.NewHTTPSessionExporter(selfBaseURL)

	jobRuntime := jobs.NewRuntime(statusStore, resultStore, newExecutor, supervisor, sessionExporter, cfg.DataDir)

	deps := api.NewDeps(cfg, sessions, promptLib, fewshots, dict, llm, engine, jobRuntime, presetStore, codeResolver, cfg.DataDir+"/report_type_mappings.json")
	router := api.NewRouter(deps)

	addr := ":" + cfg.Port
	log.WithField("addr", addr).Info("annotator server listening")
	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
