// internal/sandbox/executor.go

// Package sandbox runs artifact text as executable code in an isolated
// scratch directory under a wall-clock timeout. Faults raised by the executed
// artifact are captured into the ExecutionResult, never propagated; only
// infrastructure failures (interpreter missing, scratch dir unusable) error
// out to the caller.
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
)

// pipeWaitDelay bounds how long a finished or killed run may keep its output
// pipes open. A backgrounded child inherits stdout/stderr and would otherwise
// hold Wait hostage long past the wall-clock timeout.
const pipeWaitDelay = 2 * time.Second

// Executor runs artifacts under the configured interpreter.
type Executor struct {
	logger *zap.Logger
	cfg    config.SandboxConfig
}

// NewExecutor validates the sandbox configuration and returns an Executor.
func NewExecutor(logger *zap.Logger, cfg config.SandboxConfig) (*Executor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}
	return &Executor{
		logger: logger.Named("sandbox"),
		cfg:    cfg,
	}, nil
}

// Execute runs the artifact text with the given wall-clock timeout. Each run
// gets a fresh scratch directory, so one execution never leaves residue
// visible to the next. The returned error is non-nil only for infrastructure
// failures; everything the artifact itself does wrong lands in the result.
func (e *Executor) Execute(ctx context.Context, artifactText string, timeout time.Duration) (schemas.ExecutionResult, error) {
	workDir, err := os.MkdirTemp("", "crucible-run-*")
	if err != nil {
		return schemas.ExecutionResult{}, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, e.cfg.SourceFile)
	if err := os.WriteFile(srcPath, []byte(artifactText), 0o600); err != nil {
		return schemas.ExecutionResult{}, fmt.Errorf("failed to write artifact source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, e.cfg.Command[1:]...), srcPath)
	cmd := exec.CommandContext(runCtx, e.cfg.Command[0], args...)
	cmd.Dir = workDir
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := schemas.ExecutionResult{
		Output:   truncate(stdout.String(), e.cfg.MaxOutputBytes),
		Duration: duration,
	}

	switch {
	case runErr == nil:
		// Clean exit.
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.Error = fmt.Sprintf("[TIMEOUT] execution exceeded %s", timeout)
	case errors.Is(runCtx.Err(), context.Canceled):
		// The session itself was cancelled mid-run.
		return schemas.ExecutionResult{}, runCtx.Err()
	case errors.Is(runErr, exec.ErrWaitDelay):
		// The process exited cleanly but a spawned child kept the output
		// pipes open; everything captured before abandonment stands.
	case isInfrastructureErr(runErr):
		return schemas.ExecutionResult{}, fmt.Errorf("sandbox unavailable: %w", runErr)
	default:
		// The artifact faulted; capture the interpreter's own report.
		result.Error = captureFault(runErr, stderr.String(), e.cfg.MaxOutputBytes)
	}

	figures, err := e.collectFigures(workDir)
	if err != nil {
		e.logger.Warn("Failed to collect figures from scratch directory", zap.Error(err))
	}
	result.Figures = figures

	e.logger.Debug("Execution finished",
		zap.Duration("duration", duration),
		zap.Bool("timed_out", result.TimedOut),
		zap.Bool("faulted", !result.OK()),
		zap.Int("figures", len(result.Figures)),
	)
	return result, nil
}

// isInfrastructureErr distinguishes failures of the sandbox itself from
// faults of the executed artifact. A missing interpreter fails the caller; a
// non-zero exit does not.
func isInfrastructureErr(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false
	}
	return true
}

// captureFault formats a captured artifact fault: the interpreter's stderr
// (type, message, trace) plus the exit status.
func captureFault(runErr error, stderr string, maxBytes int) string {
	msg := truncate(stderr, maxBytes)
	if msg == "" {
		return fmt.Sprintf("[EXECUTION ERROR] %v", runErr)
	}
	return fmt.Sprintf("[EXECUTION ERROR] %v\n%s", runErr, msg)
}

// collectFigures gathers rendered visual artifacts (e.g. saved plots) from
// the scratch directory as base64-encoded blobs.
func (e *Executor) collectFigures(workDir string) ([]schemas.Figure, error) {
	var names []string
	for _, glob := range e.cfg.FigureGlobs {
		matches, err := filepath.Glob(filepath.Join(workDir, glob))
		if err != nil {
			return nil, fmt.Errorf("bad figure glob %q: %w", glob, err)
		}
		names = append(names, matches...)
	}
	sort.Strings(names)

	var figures []schemas.Figure
	for _, path := range names {
		data, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warn("Skipping unreadable figure", zap.String("path", path), zap.Error(err))
			continue
		}
		figures = append(figures, schemas.Figure{
			Name: filepath.Base(path),
			Data: base64.StdEncoding.EncodeToString(data),
		})
	}
	return figures, nil
}

// truncate caps s at maxBytes, marking the cut. The cut point backs up to a
// rune boundary so the result stays valid UTF-8.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... [output truncated]"
}
