// -- cmd/solve.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
	"github.com/xkilldash9x/crucible/internal/llmclient"
	"github.com/xkilldash9x/crucible/internal/observability"
	"github.com/xkilldash9x/crucible/internal/repair"
	"github.com/xkilldash9x/crucible/internal/results"
	"github.com/xkilldash9x/crucible/internal/sandbox"
	"github.com/xkilldash9x/crucible/internal/scorer"
	"github.com/xkilldash9x/crucible/internal/solver"
)

var (
	planFile     string
	artifactFile string
	insightsFile string
	notes        string
	sessionCount int
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run one or more solver sessions against a plan.",
	Long: `Reads a plan (and optionally a seed artifact and background insights) and
drives the iterative generate-execute-score loop until a budget is exhausted.
Multiple sessions explore the plan independently; every outcome is written to
the output directory and the best one is reported.`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&planFile, "plan", "p", "", "path to the plan file (required)")
	solveCmd.Flags().StringVarP(&artifactFile, "artifact", "a", "", "path to a seed artifact (optional)")
	solveCmd.Flags().StringVarP(&insightsFile, "insights", "i", "", "path to a background insights file (optional)")
	solveCmd.Flags().StringVar(&notes, "notes", "", "operator notes injected into the system prompt")
	solveCmd.Flags().IntVarP(&sessionCount, "sessions", "n", 1, "number of independent sessions to run")
	_ = solveCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, _ []string) error {
	logger := observability.GetLogger()
	cfg := appConfig

	if sessionCount < 1 {
		return fmt.Errorf("--sessions must be at least 1")
	}

	task, err := loadTask()
	if err != nil {
		return err
	}

	llm, err := llmclient.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	executor, err := sandbox.NewExecutor(logger, cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("failed to build sandbox executor: %w", err)
	}

	sc, err := buildScorer(logger, llm, cfg.Scorer)
	if err != nil {
		return fmt.Errorf("failed to build scorer: %w", err)
	}

	repairer, err := repair.NewRequester(logger, llm)
	if err != nil {
		return fmt.Errorf("failed to build repair requester: %w", err)
	}

	writer, err := results.NewWriter(logger, cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to build results writer: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes := make([]schemas.SessionOutcome, sessionCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < sessionCount; i++ {
		i := i
		g.Go(func() error {
			session, err := solver.NewSession(logger, cfg.Solver, llm, executor, sc, repairer)
			if err != nil {
				return err
			}
			outcome, err := session.Run(gctx, task)
			if err != nil {
				return fmt.Errorf("session %s: %w", session.ID(), err)
			}
			outcomes[i] = outcome
			if _, err := writer.WriteOutcome(outcome); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	best := outcomes[0]
	for _, o := range outcomes[1:] {
		if o.BestScore.Score > best.BestScore.Score {
			best = o
		}
	}

	logger.Info("All sessions finished",
		zap.Int("sessions", sessionCount),
		zap.String("best_session", best.SessionID),
		zap.Float64("best_score", best.BestScore.Score),
		zap.Bool("acceptable", best.BestScore.Acceptable),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "best session %s scored %.2f (%s)\n",
		best.SessionID, best.BestScore.Score, best.Status)
	return nil
}

func loadTask() (solver.Task, error) {
	plan, err := os.ReadFile(planFile)
	if err != nil {
		return solver.Task{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	task := solver.Task{Plan: string(plan), Notes: notes}

	if artifactFile != "" {
		seed, err := os.ReadFile(artifactFile)
		if err != nil {
			return solver.Task{}, fmt.Errorf("failed to read artifact file: %w", err)
		}
		task.InitialArtifact = string(seed)
	}
	if insightsFile != "" {
		insights, err := os.ReadFile(insightsFile)
		if err != nil {
			return solver.Task{}, fmt.Errorf("failed to read insights file: %w", err)
		}
		task.Insights = string(insights)
	}
	return task, nil
}

func buildScorer(logger *zap.Logger, llm schemas.LLMClient, cfg config.ScorerConfig) (solver.Scorer, error) {
	switch cfg.Mode {
	case "reviewer":
		return scorer.NewReviewer(logger, llm, cfg)
	default:
		return scorer.NewHeuristic(logger, cfg)
	}
}
