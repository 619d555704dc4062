package detection

import (
	"fmt"
	"log/slog"
)

// Classifier is the process-wide classifier state: either a loaded model or
// the reason it is unavailable. It is resolved at the point of use.
type Classifier interface {
	Model() (Model, error)
}

// Loaded wraps a model that loaded successfully.
type Loaded struct {
	model Model
}

// NewLoaded wraps m.
func NewLoaded(m Model) Loaded { return Loaded{model: m} }

// Model returns the wrapped model.
func (l Loaded) Model() (Model, error) { return l.model, nil }

// Unavailable records why the model could not be loaded.
type Unavailable struct {
	Cause error
}

// Model always fails with ErrClassifierUnavailable.
func (u Unavailable) Model() (Model, error) {
	if u.Cause == nil {
		return nil, ErrClassifierUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, u.Cause)
}

// LoadClassifier loads the model at path. A failure is logged and degrades
// the service to rule-only coverage instead of stopping the process.
func LoadClassifier(path string, logger *slog.Logger) Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := LoadModel(path)
	if err != nil {
		logger.Error("classifier failed to load, only rule overrides will be served",
			slog.String("component", "classifier"),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return Unavailable{Cause: err}
	}
	logger.Info("classifier loaded",
		slog.String("component", "classifier"),
		slog.String("path", path),
		slog.Int("trees", len(m.Trees)))
	return NewLoaded(m)
}
