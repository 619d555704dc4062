package detection

import (
	"context"
	"log/slog"
)

// Evaluator decides rule overrides for a normalized URL.
type Evaluator interface {
	Evaluate(u NormalizedURL) RuleResult
}

// EvidenceSource gathers evidence for a normalized URL.
type EvidenceSource interface {
	Gather(ctx context.Context, u NormalizedURL) Evidence
}

// URLNormalizer turns raw input into a schemed URL.
type URLNormalizer interface {
	Normalize(ctx context.Context, raw string) (NormalizedURL, error)
}

// Service runs the classification pipeline:
// normalize, rule check, gather evidence, extract features, classify.
type Service struct {
	normalizer URLNormalizer
	rules      Evaluator
	evidence   EvidenceSource
	classifier Classifier
	thresholds ThreatThresholds
	logger     *slog.Logger
}

// NewService wires the pipeline stages together.
func NewService(normalizer URLNormalizer, rules Evaluator, evidence EvidenceSource, classifier Classifier, thresholds ThreatThresholds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = Unavailable{}
	}
	return &Service{
		normalizer: normalizer,
		rules:      rules,
		evidence:   evidence,
		classifier: classifier,
		thresholds: thresholds,
		logger:     logger,
	}
}

// ClassifierLoaded reports whether model-backed verdicts are possible.
func (s *Service) ClassifierLoaded() bool {
	_, err := s.classifier.Model()
	return err == nil
}

// Classify produces a verdict for raw. It returns ErrInvalidInput for bad
// input and ErrClassifierUnavailable when a URL needs the model but none is
// loaded. Evidence failures never surface here.
func (s *Service) Classify(ctx context.Context, raw string) (Verdict, error) {
	u, err := s.normalizer.Normalize(ctx, raw)
	if err != nil {
		return Verdict{}, err
	}

	if res := s.rules.Evaluate(u); res.Matched {
		v := overrideVerdict(u, res.Reason)
		s.logVerdict(v)
		return v, nil
	}

	model, err := s.classifier.Model()
	if err != nil {
		return Verdict{}, err
	}

	ev := s.evidence.Gather(ctx, u)
	vec := Extract(u, ev)

	label := model.Predict(vec)
	proba := model.PredictProba(vec)
	p := proba[0]
	if label == LabelSafe {
		p = proba[1]
	}
	confidence := confidencePercent(p)

	v := Verdict{
		URL:         u.String(),
		Label:       label,
		Confidence:  confidence,
		ThreatLevel: s.thresholds.Level(label, confidence),
	}
	s.logVerdict(v)
	return v, nil
}

func (s *Service) logVerdict(v Verdict) {
	s.logger.Info("url classified",
		slog.String("component", "classify"),
		slog.String("url", v.URL),
		slog.String("prediction", v.Label.String()),
		slog.Float64("confidence", v.Confidence),
		slog.String("threat_level", string(v.ThreatLevel)),
		slog.Bool("override", v.Overridden()))
}
