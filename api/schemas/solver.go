// api/schemas/solver.go
package schemas

import "time"

// Figure is an opaque visual artifact produced during a sandboxed run,
// encoded for transport.
type Figure struct {
	Name string `json:"name"`
	// Data is the base64-encoded file content.
	Data string `json:"data"`
}

// ExecutionResult captures everything observable from one sandboxed run of an
// artifact. It is produced fresh per execution and never mutated afterwards.
// Error and Figures are independent: a run can both fault and leave partially
// rendered figures behind.
type ExecutionResult struct {
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	Figures  []Figure      `json:"figures,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the run completed without a captured fault.
func (r ExecutionResult) OK() bool { return r.Error == "" }

// ScoreRecord is the scorer's judgment of one ExecutionResult against the
// guiding plan. Score is clamped to [0.0, 1.0].
type ScoreRecord struct {
	Score      float64 `json:"score"`
	Critique   string  `json:"critique"`
	Acceptable bool    `json:"acceptable"`
}

// SessionStatus is the terminal state of a solver session.
type SessionStatus string

const (
	// StatusCompleted means the step budget was exhausted, a stop signal was
	// parsed, or the generation-trial budget ran out. The best artifact seen
	// so far is always returned.
	StatusCompleted SessionStatus = "completed"
	// StatusAborted means an unrecoverable infrastructure fault ended the
	// session early.
	StatusAborted SessionStatus = "aborted"
)

// SessionMetrics counts every crossing of an external-call boundary during a
// session. It replaces ambient global counters with an explicit value carried
// in the outcome.
type SessionMetrics struct {
	GenerationCalls int `json:"generation_calls"`
	RepairCalls     int `json:"repair_calls"`
	ScoringCalls    int `json:"scoring_calls"`
	Executions      int `json:"executions"`
	Timeouts        int `json:"timeouts"`
	ParseFailures   int `json:"parse_failures"`
}

// SessionOutcome is the final result of a solver session.
type SessionOutcome struct {
	SessionID    string         `json:"session_id"`
	Status       SessionStatus  `json:"status"`
	Reason       string         `json:"reason"`
	Steps        int            `json:"steps"`
	BestArtifact string         `json:"best_artifact"`
	BestScore    ScoreRecord    `json:"best_score"`
	Figures      []Figure       `json:"figures,omitempty"`
	Metrics      SessionMetrics `json:"metrics"`
}
