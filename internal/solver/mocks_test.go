package solver

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/grammar"
)

type mockGenerator struct {
	mu           sync.Mutex
	generateFunc func(call int, req schemas.GenerationRequest) (string, error)
	calls        int
}

func (m *mockGenerator) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	return m.generateFunc(call, req)
}

type mockExecutor struct {
	executeFunc func(artifactText string) (schemas.ExecutionResult, error)
}

func (m *mockExecutor) Execute(_ context.Context, artifactText string, _ time.Duration) (schemas.ExecutionResult, error) {
	if m.executeFunc != nil {
		return m.executeFunc(artifactText)
	}
	return schemas.ExecutionResult{Output: "ok"}, nil
}

type mockScorer struct {
	mu        sync.Mutex
	scoreFunc func(call int, artifactText string, res schemas.ExecutionResult) (schemas.ScoreRecord, error)
	calls     int
}

func (m *mockScorer) Score(_ context.Context, _, artifactText string, res schemas.ExecutionResult, _ int) (schemas.ScoreRecord, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	if m.scoreFunc != nil {
		return m.scoreFunc(call, artifactText, res)
	}
	return schemas.ScoreRecord{Score: 0.75, Critique: "fine", Acceptable: true}, nil
}

type mockRepairer struct {
	mu         sync.Mutex
	repairFunc func(call int, faultyText, errorText string, dialect grammar.Kind) (string, error)
	calls      int
}

func (m *mockRepairer) RequestRepair(_ context.Context, faultyText, errorText string, dialect grammar.Kind) (string, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	if m.repairFunc != nil {
		return m.repairFunc(call, faultyText, errorText, dialect)
	}
	return "", nil
}
