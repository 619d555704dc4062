package detection

import "math"

// OverrideConfidence is reported whenever a rule override fires.
const OverrideConfidence = 95.0

// ThreatLevel is the coarse severity bucket of a verdict.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// ThreatThresholds decides when a phishing prediction counts as HIGH.
type ThreatThresholds struct {
	HighConfidence float64 `json:"high_confidence"` // Default: 80
}

// DefaultThreatThresholds returns default thresholds.
func DefaultThreatThresholds() ThreatThresholds {
	return ThreatThresholds{HighConfidence: 80}
}

// Level maps a label and confidence onto a threat level.
func (t ThreatThresholds) Level(label Label, confidence float64) ThreatLevel {
	if label == LabelSafe {
		return ThreatLow
	}
	if confidence > t.HighConfidence {
		return ThreatHigh
	}
	return ThreatMedium
}

// Verdict is the outcome of classifying one URL.
type Verdict struct {
	URL            string
	Label          Label
	Confidence     float64
	ThreatLevel    ThreatLevel
	OverrideReason string
}

// IsSafe reports whether the URL was classified safe.
func (v Verdict) IsSafe() bool { return v.Label == LabelSafe }

// Overridden reports whether a rule decided the verdict.
func (v Verdict) Overridden() bool { return v.OverrideReason != "" }

func overrideVerdict(u NormalizedURL, reason string) Verdict {
	return Verdict{
		URL:            u.String(),
		Label:          LabelPhishing,
		Confidence:     OverrideConfidence,
		ThreatLevel:    ThreatHigh,
		OverrideReason: reason,
	}
}

// confidencePercent converts a probability to a percentage in [0, 100]
// rounded to two decimals.
func confidencePercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	pct := math.Round(p*100*100) / 100
	return math.Min(100, math.Max(0, pct))
}
