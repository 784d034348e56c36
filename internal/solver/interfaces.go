// internal/solver/interfaces.go
package solver

import (
	"context"
	"time"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/grammar"
)

// Generator produces candidate commands from prompts. Satisfied by any
// schemas.LLMClient.
type Generator interface {
	Generate(ctx context.Context, req schemas.GenerationRequest) (string, error)
}

// Executor runs artifact text in isolation under a wall-clock timeout.
type Executor interface {
	Execute(ctx context.Context, artifactText string, timeout time.Duration) (schemas.ExecutionResult, error)
}

// Scorer judges one execution result against the guiding plan.
type Scorer interface {
	Score(ctx context.Context, plan, artifactText string, res schemas.ExecutionResult, attempt int) (schemas.ScoreRecord, error)
}

// Repairer asks the model to fix text that failed to parse or apply.
type Repairer interface {
	RequestRepair(ctx context.Context, faultyText, errorText string, dialect grammar.Kind) (string, error)
}
