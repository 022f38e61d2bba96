// Command annotator is the clinical-note annotation pipeline orchestrator's
// external entry point: an HTTP server plus a hidden re-exec subcommand the
// Job Runtime's Supervisor uses for OS-process stage isolation, styled
// after the teacher planner's single root.go + server.go cobra layout.
package main

func main() {
	Execute()
}
