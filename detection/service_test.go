package detection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fixedModel struct {
	label Label
	proba [2]float64

	mu   sync.Mutex
	seen []FeatureVector
}

func (m *fixedModel) Predict(v FeatureVector) Label {
	m.mu.Lock()
	m.seen = append(m.seen, v)
	m.mu.Unlock()
	return m.label
}

func (m *fixedModel) PredictProba(FeatureVector) [2]float64 { return m.proba }

type countingEvidence struct {
	ev    Evidence
	mu    sync.Mutex
	calls int
}

func (c *countingEvidence) Gather(context.Context, NormalizedURL) Evidence {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.ev
}

func (c *countingEvidence) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// answeringClient makes every https probe succeed without touching the
// network.
func answeringClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})}
}

func newTestService(classifier Classifier, evidence EvidenceSource) *Service {
	return NewService(
		NewNormalizer(answeringClient(), time.Second, 0, discardLogger()),
		NewRuleEngine(DefaultRuleConfig()),
		evidence,
		classifier,
		DefaultThreatThresholds(),
		discardLogger(),
	)
}

func TestServiceClassify(t *testing.T) {
	t.Parallel()

	t.Run("brand impersonation overrides without evidence or model", func(t *testing.T) {
		t.Parallel()

		evidence := &countingEvidence{}
		svc := newTestService(Unavailable{}, evidence)

		v, err := svc.Classify(context.Background(), "http://paypal-secure.verify-login.com/paypal/account")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Label != LabelPhishing || v.Confidence != 95.0 || v.ThreatLevel != ThreatHigh {
			t.Errorf("unexpected override verdict: %+v", v)
		}
		if v.OverrideReason != "Brand impersonation: 'paypal' in path but not in domain 'paypal-secure.verify-login.com'" {
			t.Errorf("unexpected reason %q", v.OverrideReason)
		}
		if evidence.count() != 0 {
			t.Errorf("expected no evidence gathering, got %d calls", evidence.count())
		}
	})

	t.Run("schemeless safe URL", func(t *testing.T) {
		t.Parallel()

		model := &fixedModel{label: LabelSafe, proba: [2]float64{0.1, 0.9}}
		svc := newTestService(NewLoaded(model), &countingEvidence{})

		v, err := svc.Classify(context.Background(), "google.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.URL != "https://google.com" {
			t.Errorf("expected https://google.com, got %s", v.URL)
		}
		if !v.IsSafe() || v.Confidence != 90.0 || v.ThreatLevel != ThreatLow || v.Overridden() {
			t.Errorf("unexpected verdict: %+v", v)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		evidence := &countingEvidence{}
		svc := newTestService(NewLoaded(&fixedModel{label: LabelSafe, proba: [2]float64{0, 1}}), evidence)

		if _, err := svc.Classify(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if evidence.count() != 0 {
			t.Errorf("expected no evidence gathering, got %d calls", evidence.count())
		}
	})

	t.Run("opaque token overrides", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(Unavailable{}, &countingEvidence{})
		v, err := svc.Classify(context.Background(), "http://example.com/file/aB3dE5gH7jK9mN1pQ3rS5tU7vW")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.OverrideReason != "Obfuscated/encoded string detected" || v.Confidence != 95.0 {
			t.Errorf("unexpected verdict: %+v", v)
		}
	})

	t.Run("model unavailable", func(t *testing.T) {
		t.Parallel()

		evidence := &countingEvidence{}
		svc := newTestService(Unavailable{Cause: errors.New("file not found")}, evidence)

		if _, err := svc.Classify(context.Background(), "https://example.org/"); !errors.Is(err, ErrClassifierUnavailable) {
			t.Errorf("expected ErrClassifierUnavailable, got %v", err)
		}
		if evidence.count() != 0 {
			t.Errorf("expected no evidence gathering, got %d calls", evidence.count())
		}
		if svc.ClassifierLoaded() {
			t.Error("expected ClassifierLoaded to be false")
		}
	})

	t.Run("evidence feeds the model", func(t *testing.T) {
		t.Parallel()

		model := &fixedModel{label: LabelSafe, proba: [2]float64{0.2, 0.8}}
		evidence := &countingEvidence{ev: Evidence{Page: newPageEvidence(200, 0, []byte(`<form action=""></form>`))}}
		svc := newTestService(NewLoaded(model), evidence)

		if _, err := svc.Classify(context.Background(), "https://example.org/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if evidence.count() != 1 {
			t.Errorf("expected one evidence gathering, got %d", evidence.count())
		}
		if len(model.seen) != 1 {
			t.Fatalf("expected one prediction, got %d", len(model.seen))
		}
		if got := model.seen[0][featureIndex(t, "ServerFormHandler")]; got != -1 {
			t.Errorf("expected ServerFormHandler -1 from page evidence, got %d", got)
		}
	})
}

func TestServiceConfidenceAndThreat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		label      Label
		proba      [2]float64
		confidence float64
		level      ThreatLevel
	}{
		{"confident phishing", LabelPhishing, [2]float64{0.85, 0.15}, 85, ThreatHigh},
		{"unsure phishing", LabelPhishing, [2]float64{0.7, 0.3}, 70, ThreatMedium},
		{"boundary phishing", LabelPhishing, [2]float64{0.8, 0.2}, 80, ThreatMedium},
		{"rounded safe", LabelSafe, [2]float64{0.876544, 0.123456}, 12.35, ThreatLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newTestService(NewLoaded(&fixedModel{label: tt.label, proba: tt.proba}), &countingEvidence{})
			v, err := svc.Classify(context.Background(), "https://example.org/")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Confidence != tt.confidence {
				t.Errorf("expected confidence %v, got %v", tt.confidence, v.Confidence)
			}
			if v.ThreatLevel != tt.level {
				t.Errorf("expected threat level %s, got %s", tt.level, v.ThreatLevel)
			}
		})
	}
}

func TestServiceIdempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(NewLoaded(&fixedModel{label: LabelPhishing, proba: [2]float64{0.9, 0.1}}), &countingEvidence{})

	first, err := svc.Classify(context.Background(), "https://example.org/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Classify(context.Background(), "https://example.org/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected identical verdicts, got %+v and %+v", first, second)
	}
}

func TestConfidencePercent(t *testing.T) {
	t.Parallel()

	tests := map[float64]float64{
		0.5:      50,
		0.99999:  100,
		1.2:      100,
		-0.1:     0,
		0.123456: 12.35,
	}
	for p, want := range tests {
		if got := confidencePercent(p); got != want {
			t.Errorf("confidencePercent(%v): expected %v, got %v", p, want, got)
		}
	}
}
