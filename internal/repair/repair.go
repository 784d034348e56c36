// internal/repair/repair.go

// Package repair asks the model to fix a command or artifact that failed to
// apply or execute. It is a pure LLM boundary: it formats a dialect-specific
// prompt, issues one generation call, and returns the raw reply for the
// caller to re-classify. It never mutates an artifact itself.
package repair

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/grammar"
	"github.com/xkilldash9x/crucible/internal/llmutil"
)

// Requester issues repair requests against the shared LLM client.
type Requester struct {
	logger *zap.Logger
	llm    schemas.LLMClient
}

// NewRequester wires a repair requester to the given LLM client.
func NewRequester(logger *zap.Logger, llm schemas.LLMClient) (*Requester, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if llm == nil {
		return nil, errors.New("llm client cannot be nil")
	}
	return &Requester{logger: logger.Named("repair"), llm: llm}, nil
}

const replaceRepairPrompt = `You are an automated repair tool. You will be given a faulty artifact and the error it produced. ` +
	`Return a corrected version of the ENTIRE artifact. ` +
	`Do not provide explanations or commentary. Return only the full corrected artifact text.`

const editRepairPrompt = `You are an automated repair tool. You will be given a faulty edit command and the error it produced. ` +
	`Return a corrected edit command in exactly this form, with no other text:` + "\n" +
	"```EDIT N M\n<replacement lines>\n```" + "\n" +
	`N and M are zero-based line numbers delimiting the half-open range [N, M) to replace.`

// RequestRepair asks the model to fix faultyText given the error it produced.
// The dialect selects the prompt: a full-replace repair returns a complete new
// artifact body, a ranged-edit repair returns a corrected ```EDIT command. In
// both cases the reply is returned verbatim apart from markdown stripping on
// the full-replace path; the caller decides whether it parses and applies.
func (r *Requester) RequestRepair(ctx context.Context, faultyText, errorText string, dialect grammar.Kind) (string, error) {
	var systemPrompt string
	switch dialect {
	case grammar.KindFullReplace:
		systemPrompt = replaceRepairPrompt
	case grammar.KindRangedEdit:
		systemPrompt = editRepairPrompt
	default:
		return "", fmt.Errorf("repair: no repair prompt for dialect %q", dialect)
	}

	userPrompt := fmt.Sprintf("Error encountered:\n%s\n\nFaulty text:\n%s\n", errorText, faultyText)

	reply, err := r.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("repair request failed: %w", err)
	}

	r.logger.Debug("Repair reply received",
		zap.String("dialect", string(dialect)),
		zap.Int("reply_len", len(reply)),
	)

	if dialect == grammar.KindFullReplace {
		return llmutil.CleanCodeOutput(reply), nil
	}
	return reply, nil
}
