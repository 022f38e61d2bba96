package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// RunWorkerMain is the body of the hidden "__run-stage" subcommand: it
// reads a stageSpec written by a subprocessExecutor, performs exactly one
// stage operation using the same Default* stage implementations the
// in-process executor uses, writes its output table(s), and reports
// success/failure as a single JSON line on stdout (the one-shot result
// queue named in spec.md §4.H). It returns the process exit code the
// caller (cmd/annotator) should use.
func RunWorkerMain(specPath string) int {
	data, err := os.ReadFile(specPath)
	if err != nil {
		return reportFailure(fmt.Sprintf("failed to read stage spec: %v", err))
	}
	var spec stageSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return reportFailure(fmt.Sprintf("malformed stage spec: %v", err))
	}

	ctx := context.Background()
	exec := NewLocalExecutor(nil, nil, nil, nil)

	switch spec.Op {
	case "link":
		in, err := ReadTableFile(spec.InputPath)
		if err != nil {
			return reportFailure(err.Error())
		}
		out, err := exec.RunLink(ctx, in)
		if err != nil {
			return reportFailure(err.Error())
		}
		if err := WriteTableFile(spec.OutputPath, out); err != nil {
			return reportFailure(err.Error())
		}
	case "qc":
		in, err := ReadTableFile(spec.InputPath)
		if err != nil {
			return reportFailure(err.Error())
		}
		out, err := exec.RunQC(ctx, in, spec.DiseaseType)
		if err != nil {
			return reportFailure(err.Error())
		}
		if err := WriteTableFile(spec.OutputPath, out); err != nil {
			return reportFailure(err.Error())
		}
	case "fill_metadata":
		in, err := ReadTableFile(spec.InputPath)
		if err != nil {
			return reportFailure(err.Error())
		}
		if _, err := exec.RunFill(ctx, in, spec.OutputPath); err != nil {
			return reportFailure(err.Error())
		}
	case "process_texts":
		structured, err := ReadTableFile(spec.InputPath)
		if err != nil {
			return reportFailure(err.Error())
		}
		freeText, err := ReadTableFile(spec.FreeTextPath)
		if err != nil {
			return reportFailure(err.Error())
		}
		processed, llm, err := exec.RunProcessTexts(ctx, structured, freeText, spec.DiseaseType)
		if err != nil {
			return reportFailure(err.Error())
		}
		if err := WriteTableFile(spec.OutputPath, processed); err != nil {
			return reportFailure(err.Error())
		}
		if len(llm.Columns) > 0 {
			if err := WriteTableFile(spec.LLMOutPath, llm); err != nil {
				return reportFailure(err.Error())
			}
		}
	default:
		return reportFailure("unknown stage op: " + spec.Op)
	}

	return reportSuccess()
}

func reportSuccess() int {
	_ = json.NewEncoder(os.Stdout).Encode(oneShotResult{OK: true})
	return 0
}

func reportFailure(msg string) int {
	_ = json.NewEncoder(os.Stdout).Encode(oneShotResult{OK: false, Error: msg})
	return 1
}
