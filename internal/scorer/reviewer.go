// internal/scorer/reviewer.go
package scorer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
	"github.com/xkilldash9x/crucible/internal/llmutil"
)

// Reviewer delegates the quality judgment to the LLM, acting as a reward
// model. The delegated computation is non-deterministic, so the reviewer
// retries up to the configured attempt count before failing with
// ErrUnavailable.
type Reviewer struct {
	logger *zap.Logger
	llm    schemas.LLMClient
	cfg    config.ScorerConfig
}

// reviewPayload is the strict JSON shape the reviewer demands from the model.
type reviewPayload struct {
	Score    float64 `json:"score"`
	Critique string  `json:"critique"`
}

// NewReviewer returns a scorer that asks the LLM for a {score, critique}
// judgment.
func NewReviewer(logger *zap.Logger, llm schemas.LLMClient, cfg config.ScorerConfig) (*Reviewer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if llm == nil {
		return nil, errors.New("llm client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scorer config: %w", err)
	}
	return &Reviewer{logger: logger.Named("scorer.reviewer"), llm: llm, cfg: cfg}, nil
}

const reviewerSystemPrompt = `You are a strict reviewer of machine-generated artifacts. ` +
	`Given a plan, an artifact, and the artifact's execution output, judge how well the artifact fulfills the plan. ` +
	`Respond ONLY with a JSON object of the form {"score": <float between 0.0 and 1.0>, "critique": "<one paragraph>"}.`

// Score queries the reviewer model, retrying malformed judgments up to the
// configured attempt budget. The returned score is clamped and the verdict is
// score > threshold, exactly as for the heuristic scorer.
func (r *Reviewer) Score(ctx context.Context, plan, artifactText string, res schemas.ExecutionResult, attempt int) (schemas.ScoreRecord, error) {
	userPrompt := fmt.Sprintf(
		"Plan:\n%s\n\nArtifact:\n%s\n\nExecution output:\n%s\n\nExecution error (empty if none):\n%s\n",
		plan, artifactText, res.Output, res.Error,
	)

	var lastErr error
	for i := 0; i < r.cfg.Attempts; i++ {
		if err := ctx.Err(); err != nil {
			return schemas.ScoreRecord{}, err
		}

		reply, err := r.llm.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: reviewerSystemPrompt,
			UserPrompt:   userPrompt,
			Tier:         schemas.TierFast,
			Options: schemas.GenerationOptions{
				Temperature:     0.0,
				ForceJSONFormat: true,
			},
		})
		if err != nil {
			lastErr = err
			r.logger.Warn("Reviewer generation failed", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}

		payload, err := llmutil.ParseJSONResponse[reviewPayload](reply)
		if err != nil {
			lastErr = err
			r.logger.Warn("Reviewer returned unparseable judgment", zap.Int("attempt", i+1), zap.Error(err))
			continue
		}

		score := clamp(payload.Score)
		r.logger.Debug("Reviewer score received",
			zap.Float64("score", score),
			zap.Int("solver_attempt", attempt),
		)
		return schemas.ScoreRecord{
			Score:      score,
			Critique:   payload.Critique,
			Acceptable: score > r.cfg.Threshold,
		}, nil
	}

	return schemas.ScoreRecord{}, fmt.Errorf("%w: %d attempts exhausted: %v", ErrUnavailable, r.cfg.Attempts, lastErr)
}
