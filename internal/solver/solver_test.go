package solver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
	"github.com/xkilldash9x/crucible/internal/grammar"
	"github.com/xkilldash9x/crucible/internal/scorer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func solverConfig() config.SolverConfig {
	return config.SolverConfig{
		MaxSteps:       10,
		MinGenTrials:   2,
		RepairAttempts: 2,
		HistoryLen:     5,
		ExecTimeout:    time.Second,
	}
}

func replaceCommand(body string) string {
	return "```REPLACE\n" + body + "\n```"
}

func newSession(t *testing.T, cfg config.SolverConfig, gen Generator, exec Executor, sc Scorer, rep Repairer) *Session {
	t.Helper()
	s, err := NewSession(zap.NewNop(), cfg, gen, exec, sc, rep)
	require.NoError(t, err)
	return s
}

func TestNewSession_Validation(t *testing.T) {
	gen := &mockGenerator{}
	exec := &mockExecutor{}
	sc := &mockScorer{}
	rep := &mockRepairer{}

	_, err := NewSession(nil, solverConfig(), gen, exec, sc, rep)
	assert.Error(t, err)

	_, err = NewSession(zap.NewNop(), solverConfig(), nil, exec, sc, rep)
	assert.Error(t, err)

	bad := solverConfig()
	bad.MaxSteps = 0
	_, err = NewSession(zap.NewNop(), bad, gen, exec, sc, rep)
	assert.Error(t, err)
}

func TestRun_StepBudgetExhausted(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 3

	gen := &mockGenerator{generateFunc: func(call int, _ schemas.GenerationRequest) (string, error) {
		return replaceCommand(fmt.Sprintf("print(%d)", call)), nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "print things"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status)
	assert.Equal(t, "step budget exhausted", outcome.Reason)
	assert.Equal(t, 3, outcome.Steps)
	assert.Equal(t, 3, outcome.Metrics.GenerationCalls)
	assert.Equal(t, 3, outcome.Metrics.Executions)
	assert.Equal(t, 3, outcome.Metrics.ScoringCalls)
	assert.NotEmpty(t, outcome.SessionID)
}

func TestRun_BestArtifactTracksHighestScore(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 3

	gen := &mockGenerator{generateFunc: func(call int, _ schemas.GenerationRequest) (string, error) {
		return replaceCommand(fmt.Sprintf("version_%d", call)), nil
	}}
	scores := []float64{0.5, 0.9, 0.3}
	sc := &mockScorer{scoreFunc: func(call int, _ string, _ schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		return schemas.ScoreRecord{Score: scores[call], Critique: "noted", Acceptable: true}, nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, sc, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "improve"})
	require.NoError(t, err)

	assert.Equal(t, "version_1", outcome.BestArtifact, "a later, worse candidate must not displace the best")
	assert.InDelta(t, 0.9, outcome.BestScore.Score, 1e-9)
	assert.Equal(t, 3, outcome.Steps)
}

func TestRun_UnparseableRepliesExhaustTrialBudget(t *testing.T) {
	cfg := solverConfig()

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return "I am not sure what to do here.", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "anything", InitialArtifact: "seed = True"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status, "unparseable output never aborts a session")
	assert.Equal(t, "generation trial budget exhausted", outcome.Reason)
	assert.Equal(t, 2, outcome.Metrics.ParseFailures)
	assert.Zero(t, outcome.Metrics.Executions)
	assert.Equal(t, "seed = True", outcome.BestArtifact, "the seed artifact survives when nothing better was produced")
}

func TestRun_OutOfRangeEditIsRepaired(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 1

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return "```EDIT 1 99\nwhatever\n```", nil
	}}
	rep := &mockRepairer{repairFunc: func(_ int, _, errorText string, dialect grammar.Kind) (string, error) {
		assert.Equal(t, grammar.KindRangedEdit, dialect)
		assert.Contains(t, errorText, "out of bounds")
		return "```EDIT 1 2\nnewline1\n```", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, rep)

	outcome, err := s.Run(context.Background(), Task{Plan: "fix line one", InitialArtifact: "line0\nline1\nline2"})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Metrics.RepairCalls)
	assert.Equal(t, "line0\nnewline1\nline2", outcome.BestArtifact)
}

func TestRun_MalformedFenceGoesToRepair(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 1

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return "```REPLACE\nprint('unterminated')", nil
	}}
	rep := &mockRepairer{repairFunc: func(_ int, _, _ string, dialect grammar.Kind) (string, error) {
		assert.Equal(t, grammar.KindFullReplace, dialect)
		return "print('repaired')", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, rep)

	outcome, err := s.Run(context.Background(), Task{Plan: "print"})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Metrics.ParseFailures)
	assert.Equal(t, 1, outcome.Metrics.RepairCalls)
	assert.Equal(t, "print('repaired')", outcome.BestArtifact)
	assert.Equal(t, schemas.StatusCompleted, outcome.Status)
}

func TestRun_RepairExhaustionIsNonImproving(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 2
	cfg.RepairAttempts = 1

	gen := &mockGenerator{generateFunc: func(call int, _ schemas.GenerationRequest) (string, error) {
		if call == 0 {
			return "```EDIT 5 99\nbroken\n```", nil
		}
		return replaceCommand("recovered = True"), nil
	}}
	rep := &mockRepairer{repairFunc: func(int, string, string, grammar.Kind) (string, error) {
		return "```EDIT 6 99\nstill broken\n```", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, rep)

	outcome, err := s.Run(context.Background(), Task{Plan: "recover", InitialArtifact: "a"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status, "a failed step never aborts the session")
	assert.Equal(t, 2, outcome.Steps)
	assert.Equal(t, 1, outcome.Metrics.RepairCalls)
	assert.Equal(t, 1, outcome.Metrics.Executions, "only the recovered step reaches execution")
	assert.Equal(t, "recovered = True", outcome.BestArtifact)
}

func TestRun_UnacceptableScoreTriggersRepair(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 1
	cfg.RepairAttempts = 1

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("naive_version"), nil
	}}
	sc := &mockScorer{scoreFunc: func(call int, artifactText string, _ schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		if call == 0 {
			return schemas.ScoreRecord{Score: 0.2, Critique: "far too trivial", Acceptable: false}, nil
		}
		return schemas.ScoreRecord{Score: 0.9, Critique: "much better", Acceptable: true}, nil
	}}
	rep := &mockRepairer{repairFunc: func(_ int, faultyText, errorText string, dialect grammar.Kind) (string, error) {
		assert.Equal(t, "naive_version", faultyText, "the failing artifact itself is sent for repair")
		assert.Contains(t, errorText, "far too trivial", "a clean but rejected run repairs against the critique")
		assert.Equal(t, grammar.KindFullReplace, dialect)
		return "thorough_version", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, sc, rep)

	outcome, err := s.Run(context.Background(), Task{Plan: "be thorough"})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Metrics.RepairCalls)
	assert.Equal(t, 2, outcome.Metrics.Executions)
	assert.Equal(t, "thorough_version", outcome.BestArtifact)
	assert.InDelta(t, 0.9, outcome.BestScore.Score, 1e-9)
}

func TestRun_RejectedStepsNeverBecomeBest(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 1
	cfg.RepairAttempts = 0

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("rejected_version"), nil
	}}
	sc := &mockScorer{scoreFunc: func(int, string, schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		return schemas.ScoreRecord{Score: 0.4, Critique: "not good enough", Acceptable: false}, nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, sc, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "anything", InitialArtifact: "seed"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status)
	assert.Equal(t, "seed", outcome.BestArtifact, "only accepted steps may promote an artifact to best")
	assert.Zero(t, outcome.BestScore.Score)
}

func TestRun_ScorerUnavailableAborts(t *testing.T) {
	cfg := solverConfig()

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("x = 1"), nil
	}}
	sc := &mockScorer{scoreFunc: func(int, string, schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		return schemas.ScoreRecord{}, fmt.Errorf("%w: judge offline", scorer.ErrUnavailable)
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, sc, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "anything", InitialArtifact: "seed"})
	assert.ErrorIs(t, err, scorer.ErrUnavailable)
	assert.Equal(t, schemas.StatusAborted, outcome.Status)
	assert.Equal(t, "scorer unavailable", outcome.Reason)
	assert.Equal(t, "seed", outcome.BestArtifact, "the outcome still reports the best artifact seen")
}

func TestRun_SandboxInfrastructureFailureAborts(t *testing.T) {
	cfg := solverConfig()

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("x = 1"), nil
	}}
	exec := &mockExecutor{executeFunc: func(string) (schemas.ExecutionResult, error) {
		return schemas.ExecutionResult{}, errors.New("sandbox unavailable: interpreter not found")
	}}
	s := newSession(t, cfg, gen, exec, &mockScorer{}, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "anything"})
	assert.ErrorContains(t, err, "interpreter not found")
	assert.Equal(t, schemas.StatusAborted, outcome.Status)
}

func TestRun_CapturedFaultIsNotFatal(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 1
	cfg.RepairAttempts = 0

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("time.sleep(999)"), nil
	}}
	exec := &mockExecutor{executeFunc: func(string) (schemas.ExecutionResult, error) {
		return schemas.ExecutionResult{Error: "[TIMEOUT] execution exceeded 1s", TimedOut: true}, nil
	}}
	sc := &mockScorer{scoreFunc: func(_ int, _ string, res schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		assert.False(t, res.OK())
		return schemas.ScoreRecord{Score: 0, Critique: "Execution failed"}, nil
	}}
	s := newSession(t, cfg, gen, exec, sc, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "sleep"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.Metrics.Timeouts)
}

func TestRun_StopTokenCompletesEarly(t *testing.T) {
	cfg := solverConfig()
	cfg.StopToken = "<ALL_DONE>"

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return "The artifact is satisfactory. <ALL_DONE>", nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, &mockScorer{}, &mockRepairer{})

	outcome, err := s.Run(context.Background(), Task{Plan: "anything", InitialArtifact: "final"})
	require.NoError(t, err)

	assert.Equal(t, schemas.StatusCompleted, outcome.Status)
	assert.Equal(t, "stop token received", outcome.Reason)
	assert.Equal(t, 1, outcome.Metrics.GenerationCalls)
	assert.Zero(t, outcome.Metrics.Executions)
	assert.Equal(t, "final", outcome.BestArtifact)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &mockGenerator{generateFunc: func(int, schemas.GenerationRequest) (string, error) {
		return replaceCommand("x = 1"), nil
	}}
	s := newSession(t, solverConfig(), gen, &mockExecutor{}, &mockScorer{}, &mockRepairer{})

	outcome, err := s.Run(ctx, Task{Plan: "anything"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, schemas.StatusAborted, outcome.Status)
	assert.Zero(t, outcome.Metrics.GenerationCalls)
}

func TestRun_PromptCarriesNumberedArtifactAndCritique(t *testing.T) {
	cfg := solverConfig()
	cfg.MaxSteps = 2

	var secondPrompt string
	gen := &mockGenerator{generateFunc: func(call int, req schemas.GenerationRequest) (string, error) {
		if call == 1 {
			secondPrompt = req.UserPrompt
		}
		return replaceCommand("line0\nline1"), nil
	}}
	sc := &mockScorer{scoreFunc: func(int, string, schemas.ExecutionResult) (schemas.ScoreRecord, error) {
		return schemas.ScoreRecord{Score: 0.6, Critique: "needs more rigor", Acceptable: true}, nil
	}}
	s := newSession(t, cfg, gen, &mockExecutor{}, sc, &mockRepairer{})

	_, err := s.Run(context.Background(), Task{Plan: "two lines"})
	require.NoError(t, err)

	assert.Contains(t, secondPrompt, "0 line0\n1 line1\n", "the artifact is shown line-numbered")
	assert.Contains(t, secondPrompt, "needs more rigor", "the latest critique feeds the next prompt")
	assert.Contains(t, secondPrompt, "score 0.60")
}
