// internal/results/writer.go

// Package results persists session outcomes to disk so runs can be inspected
// and compared after the process exits.
package results

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible/api/schemas"
	"github.com/xkilldash9x/crucible/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer persists session outcomes under the configured output directory.
type Writer struct {
	logger *zap.Logger
	cfg    config.OutputConfig
}

// NewWriter returns a writer rooted at cfg.Dir.
func NewWriter(logger *zap.Logger, cfg config.OutputConfig) (*Writer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Dir == "" {
		return nil, errors.New("output dir must not be empty")
	}
	return &Writer{logger: logger.Named("results"), cfg: cfg}, nil
}

// WriteOutcome writes the outcome as <dir>/<session-id>.json and, when figure
// writing is enabled, decodes each figure into <dir>/<session-id>/. It
// returns the path of the outcome file.
func (w *Writer) WriteOutcome(outcome schemas.SessionOutcome) (string, error) {
	if err := os.MkdirAll(w.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal outcome: %w", err)
	}

	path := filepath.Join(w.cfg.Dir, outcome.SessionID+".json")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write outcome file: %w", err)
	}

	if w.cfg.WriteFigures && len(outcome.Figures) > 0 {
		if err := w.writeFigures(outcome); err != nil {
			return "", err
		}
	}

	w.logger.Info("Session outcome written",
		zap.String("path", path),
		zap.String("status", string(outcome.Status)),
		zap.Float64("best_score", outcome.BestScore.Score),
	)
	return path, nil
}

func (w *Writer) writeFigures(outcome schemas.SessionOutcome) error {
	figDir := filepath.Join(w.cfg.Dir, outcome.SessionID)
	if err := os.MkdirAll(figDir, 0o750); err != nil {
		return fmt.Errorf("failed to create figure dir: %w", err)
	}

	for _, fig := range outcome.Figures {
		// Figure names come from the sandbox scratch dir; strip any path
		// components so a hostile name cannot escape the output tree.
		name := filepath.Base(fig.Name)
		raw, err := base64.StdEncoding.DecodeString(fig.Data)
		if err != nil {
			w.logger.Warn("Skipping undecodable figure", zap.String("name", name), zap.Error(err))
			continue
		}
		if err := os.WriteFile(filepath.Join(figDir, name), raw, 0o640); err != nil {
			return fmt.Errorf("failed to write figure %s: %w", name, err)
		}
	}
	return nil
}
