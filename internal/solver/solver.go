// internal/solver/solver.go

// Package solver drives the iterative generate-apply-execute-score loop that
// turns a plan into a working artifact. The session is a bounded state
// machine: a global step budget caps the loop, a generation-trial budget caps
// tolerance for unparseable replies, and a per-step repair budget caps the
// fix-up sub-loop. Malformed model output is always recoverable; only
// infrastructure faults abort a session.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/buffer"
	"github.com/xkilldash9x/crucible/internal/config"
	"github.com/xkilldash9x/crucible/internal/grammar"
	"github.com/xkilldash9x/crucible/internal/scorer"
)

// Session is one bounded solving run. Construct with NewSession; a Session is
// single-use.
type Session struct {
	id       string
	logger   *zap.Logger
	cfg      config.SolverConfig
	gen      Generator
	executor Executor
	scorer   Scorer
	repairer Repairer
}

// NewSession validates the collaborators and budgets and returns a session
// ready to Run.
func NewSession(logger *zap.Logger, cfg config.SolverConfig, gen Generator, executor Executor, sc Scorer, rep Repairer) (*Session, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if gen == nil || executor == nil || sc == nil || rep == nil {
		return nil, errors.New("all session collaborators must be non-nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solver config: %w", err)
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		logger:   logger.Named("solver").With(zap.String("session_id", id)),
		cfg:      cfg,
		gen:      gen,
		executor: executor,
		scorer:   sc,
		repairer: rep,
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// stepOutcome is the result of one step, including its repair sub-loop.
type stepOutcome struct {
	accepted  bool
	scored    bool
	candidate buffer.Artifact
	record    schemas.ScoreRecord
	result    schemas.ExecutionResult
	note      string
}

// Run executes the iteration loop until a budget is exhausted, a stop token
// arrives, or an infrastructure fault aborts the session. The returned
// outcome always carries the best-scoring accepted artifact observed so far
// (the seed artifact if no step was ever accepted), even on abort, together
// with the metrics accumulated up to that point.
func (s *Session) Run(ctx context.Context, task Task) (schemas.SessionOutcome, error) {
	current := buffer.FromText(task.InitialArtifact)
	hist := NewHistory(s.cfg.HistoryLen)

	var (
		metrics      schemas.SessionMetrics
		best         schemas.ScoreRecord
		bestArtifact = current.Text()
		bestFigures  []schemas.Figure
		haveBest     bool
		lastCritique string
		failedTrials int
		steps        int
	)

	outcome := func(status schemas.SessionStatus, reason string) schemas.SessionOutcome {
		return schemas.SessionOutcome{
			SessionID:    s.id,
			Status:       status,
			Reason:       reason,
			Steps:        steps,
			BestArtifact: bestArtifact,
			BestScore:    best,
			Figures:      bestFigures,
			Metrics:      metrics,
		}
	}

	sys := systemPrompt(task)

	for steps = 0; steps < s.cfg.MaxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			return outcome(schemas.StatusAborted, "session cancelled"), err
		}

		reply, err := s.gen.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: sys,
			UserPrompt:   userPrompt(task, current, hist, lastCritique),
			Tier:         schemas.TierPowerful,
			Options:      schemas.GenerationOptions{Temperature: 0.7},
		})
		metrics.GenerationCalls++
		if err != nil {
			return outcome(schemas.StatusAborted, "generation failed"), fmt.Errorf("generation failed at step %d: %w", steps, err)
		}

		if s.cfg.StopToken != "" && strings.Contains(reply, s.cfg.StopToken) {
			s.logger.Info("Stop token received", zap.Int("step", steps))
			return outcome(schemas.StatusCompleted, "stop token received"), nil
		}

		kind := grammar.Detect(reply)
		if kind == grammar.KindUnrecognized {
			metrics.ParseFailures++
			failedTrials++
			s.logger.Warn("Reply matched no command dialect",
				zap.Int("step", steps),
				zap.Int("failed_trials", failedTrials),
			)
			if failedTrials >= s.cfg.MinGenTrials {
				return outcome(schemas.StatusCompleted, "generation trial budget exhausted"), nil
			}
			continue
		}
		failedTrials = 0

		out, err := s.runStep(ctx, task, current, reply, kind, steps, &metrics)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return outcome(schemas.StatusAborted, "session cancelled"), err
			case errors.Is(err, scorer.ErrUnavailable):
				return outcome(schemas.StatusAborted, "scorer unavailable"), err
			default:
				return outcome(schemas.StatusAborted, "infrastructure fault"), err
			}
		}

		if out.scored {
			lastCritique = out.record.Critique
			hist.Add(StepSummary{
				Step:     steps,
				Dialect:  kind,
				Score:    out.record.Score,
				Critique: out.record.Critique,
				Fault:    out.result.Error,
			})
		} else {
			hist.Add(StepSummary{Step: steps, Dialect: kind, Fault: out.note})
		}

		if out.accepted {
			current = out.candidate
			if !haveBest || out.record.Score > best.Score {
				haveBest = true
				best = out.record
				bestArtifact = out.candidate.Text()
				bestFigures = out.result.Figures
			}
		}

		s.logger.Info("Step finished",
			zap.Int("step", steps),
			zap.String("dialect", string(kind)),
			zap.Bool("accepted", out.accepted),
			zap.Float64("score", out.record.Score),
			zap.Float64("best_score", best.Score),
		)
	}

	return outcome(schemas.StatusCompleted, "step budget exhausted"), nil
}

// runStep carries one command from raw reply to an accepted artifact or a
// non-improving step. A failure at any stage (malformed command, rejected
// edit range, execution fault, unacceptable score) routes through the bounded
// repair sub-loop; the step never fails the session for those. The returned
// error is non-nil only for infrastructure faults.
func (s *Session) runStep(ctx context.Context, task Task, current buffer.Artifact, reply string, kind grammar.Kind, step int, metrics *schemas.SessionMetrics) (stepOutcome, error) {
	var out stepOutcome
	var faultyText, errText string

	candidate, applyErr := s.apply(current, reply, kind)
	if applyErr != nil {
		if errors.Is(applyErr, grammar.ErrMalformed) {
			metrics.ParseFailures++
		}
		faultyText, errText = reply, applyErr.Error()
	} else {
		res, rec, err := s.evaluate(ctx, task, candidate, step, metrics)
		if err != nil {
			return out, err
		}
		out.scored, out.candidate, out.record, out.result = true, candidate, rec, res
		if rec.Acceptable {
			out.accepted = true
			return out, nil
		}
		faultyText = candidate.Text()
		if errText = res.Error; errText == "" {
			errText = rec.Critique
		}
	}

	for attempt := 0; attempt < s.cfg.RepairAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		s.logger.Debug("Requesting repair",
			zap.Int("step", step),
			zap.Int("attempt", attempt+1),
			zap.String("dialect", string(kind)),
			zap.String("cause", firstLine(errText)),
		)

		fixed, err := s.repairer.RequestRepair(ctx, faultyText, errText, kind)
		metrics.RepairCalls++
		if err != nil {
			return out, fmt.Errorf("repair request failed at step %d: %w", step, err)
		}

		if kind == grammar.KindFullReplace {
			// The full-replace repair prompt returns a bare artifact body.
			candidate, applyErr = current.FullReplace(fixed), nil
		} else {
			candidate, applyErr = s.apply(current, fixed, kind)
		}
		if applyErr != nil {
			if errors.Is(applyErr, grammar.ErrMalformed) {
				metrics.ParseFailures++
			}
			faultyText, errText = fixed, applyErr.Error()
			continue
		}

		res, rec, err := s.evaluate(ctx, task, candidate, step, metrics)
		if err != nil {
			return out, err
		}
		out.scored, out.candidate, out.record, out.result = true, candidate, rec, res
		if rec.Acceptable {
			out.accepted = true
			return out, nil
		}
		faultyText = candidate.Text()
		if errText = res.Error; errText == "" {
			errText = rec.Critique
		}
	}

	s.logger.Warn("Repair attempts exhausted; step is non-improving",
		zap.Int("step", step),
		zap.Int("attempts", s.cfg.RepairAttempts),
		zap.String("dialect", string(kind)),
	)
	out.note = "no acceptable result within the repair budget: " + firstLine(errText)
	return out, nil
}

// evaluate runs a candidate in the sandbox and scores the result.
func (s *Session) evaluate(ctx context.Context, task Task, candidate buffer.Artifact, step int, metrics *schemas.SessionMetrics) (schemas.ExecutionResult, schemas.ScoreRecord, error) {
	res, err := s.executor.Execute(ctx, candidate.Text(), s.cfg.ExecTimeout)
	metrics.Executions++
	if err != nil {
		return schemas.ExecutionResult{}, schemas.ScoreRecord{}, fmt.Errorf("execution failed at step %d: %w", step, err)
	}
	if res.TimedOut {
		metrics.Timeouts++
	}

	rec, err := s.scorer.Score(ctx, task.Plan, candidate.Text(), res, step)
	metrics.ScoringCalls++
	if err != nil {
		return schemas.ExecutionResult{}, schemas.ScoreRecord{}, fmt.Errorf("scoring failed at step %d: %w", step, err)
	}
	return res, rec, nil
}

// apply parses the reply as a command of the given kind and applies it to the
// artifact. Parse failures and rejected edit ranges come back as errors for
// the repair loop to act on.
func (s *Session) apply(current buffer.Artifact, reply string, kind grammar.Kind) (buffer.Artifact, error) {
	cmd, err := grammar.Parse(reply, kind)
	if err != nil {
		return buffer.Artifact{}, err
	}

	switch cmd.Kind {
	case grammar.KindFullReplace:
		return current.FullReplace(cmd.Body), nil
	case grammar.KindRangedEdit:
		return current.RangedEdit(cmd.Start, cmd.End, cmd.Lines)
	default:
		return buffer.Artifact{}, fmt.Errorf("%w: unexpected command kind %q", grammar.ErrMalformed, cmd.Kind)
	}
}
