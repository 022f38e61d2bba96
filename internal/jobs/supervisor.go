package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/clinicalpipe/annotator/internal/apperr"
)

// Supervisor spawns one stage invocation per call as a separate OS process
// in its own process group, escalating a cancellation request from a
// graceful SIGTERM to a hard SIGKILL, and guarantees the child is reaped.
// Grounded on original_source/pipeline/api/app.py's
// `multiprocessing.Process` + psutil SIGTERM→SIGKILL escalation, expressed
// with `os/exec` + `syscall.SysProcAttr{Setpgid: true}` per SPEC_FULL.md's
// Component H design.
type Supervisor struct {
	binPath       string // self re-exec target, spec.md's hidden subcommand
	gracefulWait  time.Duration

	mu      sync.Mutex
	running map[string]*procHandle // jobID -> currently in-flight child
}

type procHandle struct {
	cmd  *exec.Cmd
	pgid int
}

// NewSupervisor constructs a Supervisor that re-execs binPath with the
// hidden "__run-stage" subcommand for every stage invocation.
func NewSupervisor(binPath string) *Supervisor {
	return &Supervisor{binPath: binPath, gracefulWait: 3 * time.Second, running: map[string]*procHandle{}}
}

// oneShotResult is the single JSON line a stage child writes to stdout on
// exit — the Go analogue of the original's `mp.Queue.put(("ok"|"err", _))`.
type oneShotResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Run executes one stage spec file as a child process tied to jobID,
// blocking until it exits or ctx is cancelled. On ctx cancellation it
// signals the process group gracefully, waits gracefulWait, then kills.
func (s *Supervisor) Run(ctx context.Context, jobID, specPath string) error {
	cmd := exec.Command(s.binPath, "__run-stage", specPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.JobFailure, "failed to start stage subprocess", err)
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}

	s.mu.Lock()
	s.running[jobID] = &procHandle{cmd: cmd, pgid: pgid}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case waitErr := <-done:
		return s.interpret(waitErr, stdout.Bytes(), stderr.String())
	case <-ctx.Done():
		s.signalGroup(pgid, syscall.SIGTERM)
		select {
		case waitErr := <-done:
			return s.interpret(waitErr, stdout.Bytes(), stderr.String())
		case <-time.After(s.gracefulWait):
			s.signalGroup(pgid, syscall.SIGKILL)
			<-done // always reap, regardless of kill outcome
			return apperr.New(apperr.Cancelled, "stage subprocess cancelled")
		}
	}
}

func (s *Supervisor) interpret(waitErr error, stdout []byte, stderr string) error {
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	var last oneShotResult
	found := false
	for scanner.Scan() {
		var r oneShotResult
		if json.Unmarshal(scanner.Bytes(), &r) == nil {
			last = r
			found = true
		}
	}
	if found {
		if last.OK {
			return nil
		}
		return apperr.New(apperr.JobFailure, last.Error)
	}
	if waitErr != nil {
		msg := waitErr.Error()
		if stderr != "" {
			msg = fmt.Sprintf("%s: %s", msg, stderr)
		}
		return apperr.New(apperr.JobFailure, msg)
	}
	return apperr.New(apperr.JobFailure, "stage subprocess produced no result")
}

func (s *Supervisor) signalGroup(pgid int, sig syscall.Signal) {
	_ = syscall.Kill(-pgid, sig)
}

// Cancel requests a graceful stop of jobID's currently in-flight child, if
// any. The caller's context cancellation (see Run) drives the actual
// escalation; Cancel here only nudges an already-known process group in
// case the caller wants a faster signal than waiting for ctx.Done to
// propagate through Run's select.
func (s *Supervisor) Cancel(jobID string) {
	s.mu.Lock()
	h, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		s.signalGroup(h.pgid, syscall.SIGTERM)
	}
}

// Kill force-kills jobID's currently in-flight child immediately.
func (s *Supervisor) Kill(jobID string) bool {
	s.mu.Lock()
	h, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.signalGroup(h.pgid, syscall.SIGKILL)
	return true
}
