package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ModelFormat is the only artifact format the loader understands.
const ModelFormat = "gbdt/v1"

// Label is the class the model predicts, using the training encoding.
type Label int

const (
	LabelPhishing Label = -1
	LabelSafe     Label = 1
)

func (l Label) String() string {
	if l == LabelSafe {
		return "safe"
	}
	return "phishing"
}

// Model is a trained classifier. Implementations must be safe for
// concurrent use. PredictProba returns [p(phishing), p(safe)].
type Model interface {
	Predict(v FeatureVector) Label
	PredictProba(v FeatureVector) [2]float64
}

type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// GradientBoostedModel is a binary tree ensemble exported from a
// gradient-boosting trainer. It is immutable once loaded.
type GradientBoostedModel struct {
	Format       string  `json:"format"`
	NFeatures    int     `json:"n_features"`
	Classes      []int   `json:"classes"`
	InitScore    float64 `json:"init_score"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []tree  `json:"trees"`
}

// LoadModel reads and validates a model artifact from path.
func LoadModel(path string) (*GradientBoostedModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, err
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a model artifact.
func ParseModel(data []byte) (*GradientBoostedModel, error) {
	var m GradientBoostedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *GradientBoostedModel) validate() error {
	if m.Format != ModelFormat {
		return fmt.Errorf("unsupported model format %q", m.Format)
	}
	if m.NFeatures != FeatureCount {
		return fmt.Errorf("model expects %d features, extractor produces %d", m.NFeatures, FeatureCount)
	}
	if len(m.Classes) != 2 || m.Classes[0] != int(LabelPhishing) || m.Classes[1] != int(LabelSafe) {
		return fmt.Errorf("model classes must be [-1, 1], got %v", m.Classes)
	}
	if len(m.Trees) == 0 {
		return errors.New("model has no trees")
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Left < 0 {
				continue
			}
			if n.Feature < 0 || n.Feature >= FeatureCount {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			// Children must come after their parent, which rules out cycles.
			for _, child := range []int{n.Left, n.Right} {
				if child <= ni || child >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d: child index %d out of range", ti, ni, child)
				}
			}
		}
	}
	return nil
}

func (t tree) eval(v FeatureVector) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if float64(v[n.Feature]) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (m *GradientBoostedModel) decision(v FeatureVector) float64 {
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.eval(v)
	}
	return m.InitScore + m.LearningRate*sum
}

// PredictProba returns [p(phishing), p(safe)].
func (m *GradientBoostedModel) PredictProba(v FeatureVector) [2]float64 {
	safe := 1 / (1 + math.Exp(-m.decision(v)))
	return [2]float64{1 - safe, safe}
}

// Predict returns the more probable class; a tie goes to safe.
func (m *GradientBoostedModel) Predict(v FeatureVector) Label {
	p := m.PredictProba(v)
	if p[1] >= p[0] {
		return LabelSafe
	}
	return LabelPhishing
}
