package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinicalpipe/annotator/internal/jobs"
)

// runStageCmd is the hidden re-exec target jobs.Supervisor.Run shells out
// to for every stage invocation (spec.md §4.H's "separate OS process" per
// job stage). It is never meant to be typed by an operator.
var runStageCmd = &cobra.Command{
	Use:    "__run-stage [spec-path]",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code := jobs.RunWorkerMain(args[0])
		if code != 0 {
			fmt.Fprintf(os.Stderr, "stage failed with exit code %d\n", code)
		}
		os.Exit(code)
	},
}
