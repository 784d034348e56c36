// internal/scorer/scorer.go

// Package scorer maps an execution result and the guiding plan to a
// ScoreRecord. Two implementations share the same contract: Heuristic is
// local and deterministic, Reviewer delegates the judgment to the LLM with a
// bounded attempt count. The exact scoring formula is a tuning surface, not a
// load-bearing contract; the bounding behavior (clamped score, configured
// threshold) is.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
)

// ErrUnavailable reports that the scorer could not produce any usable
// judgment. The session cannot continue without one, so callers surface this
// instead of retrying further.
var ErrUnavailable = errors.New("scorer: no usable score produced")

// faultMarkers are substrings whose presence in the artifact or its output
// indicates a likely defect.
var faultMarkers = []string{"error", "bug", "traceback", "exception"}

// Heuristic is the deterministic, local scorer.
type Heuristic struct {
	logger *zap.Logger
	cfg    config.ScorerConfig
}

// NewHeuristic returns a scorer driven purely by local quality heuristics.
func NewHeuristic(logger *zap.Logger, cfg config.ScorerConfig) (*Heuristic, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scorer config: %w", err)
	}
	return &Heuristic{logger: logger.Named("scorer.heuristic"), cfg: cfg}, nil
}

// Score judges one execution result against the plan. A faulted execution
// scores zero; otherwise the base score is adjusted by a fault-marker penalty
// and a plan keyword-overlap bonus, then clamped to [0, 1]. The verdict is
// score > threshold.
func (h *Heuristic) Score(_ context.Context, plan, artifactText string, res schemas.ExecutionResult, _ int) (schemas.ScoreRecord, error) {
	if !res.OK() {
		return schemas.ScoreRecord{
			Score:      0.0,
			Critique:   fmt.Sprintf("Execution failed: %s", firstLine(res.Error)),
			Acceptable: false,
		}, nil
	}

	score := h.cfg.BaseScore
	haystack := strings.ToLower(artifactText + "\n" + res.Output)

	var flagged []string
	for _, marker := range faultMarkers {
		if strings.Contains(haystack, marker) {
			flagged = append(flagged, marker)
		}
	}
	if len(flagged) > 0 {
		score -= h.cfg.FaultPenalty
	}

	overlap := planOverlap(plan, haystack)
	if overlap > 0 {
		score += h.cfg.PlanBonus
	}

	score = clamp(score)
	rec := schemas.ScoreRecord{
		Score:      score,
		Critique:   critique(score, flagged, overlap),
		Acceptable: score > h.cfg.Threshold,
	}

	h.logger.Debug("Heuristic score computed",
		zap.Float64("score", rec.Score),
		zap.Bool("acceptable", rec.Acceptable),
		zap.Int("plan_overlap", overlap),
		zap.Strings("fault_markers", flagged),
	)
	return rec, nil
}

// planOverlap counts distinct plan keywords (length > 3, lowercased) present
// in the haystack.
func planOverlap(plan, haystack string) int {
	seen := make(map[string]bool)
	count := 0
	for _, word := range strings.Fields(strings.ToLower(plan)) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if len(word) <= 3 || seen[word] {
			continue
		}
		seen[word] = true
		if strings.Contains(haystack, word) {
			count++
		}
	}
	return count
}

func critique(score float64, flagged []string, overlap int) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("The performance of your submission is: %.2f.", score))
	if len(flagged) > 0 {
		parts = append(parts, fmt.Sprintf("Suspicious markers found in the artifact or output: %s.", strings.Join(flagged, ", ")))
	}
	if overlap == 0 {
		parts = append(parts, "The artifact shows no overlap with the stated plan.")
	} else {
		parts = append(parts, fmt.Sprintf("%d plan keywords are reflected in the artifact.", overlap))
	}
	return strings.Join(parts, " ")
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		return s[:i]
	}
	return s
}
