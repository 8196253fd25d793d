package metrics

import (
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/canonical"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
)

// Confidence thresholds. A score is bucketed into the first label whose
// threshold it meets.
const (
	ThresholdHigh   = 0.85
	ThresholdMedium = 0.65
	ThresholdLow    = 0.40

	// MissingPenalty is subtracted per absent supporting dataset.
	MissingPenalty = 0.2
)

// Score returns max(0, completeness - 0.2 * missingCritical), rounded to
// canonical float precision so the stored value re-derives exactly.
func Score(completeness float64, missingCritical int) float64 {
	s := completeness - MissingPenalty*float64(missingCritical)
	if s < 0 {
		s = 0
	}
	return canonical.RoundFloat(s)
}

// Label buckets a confidence score.
func Label(score float64) evidence.ConfidenceLabel {
	switch {
	case score >= ThresholdHigh:
		return evidence.ConfidenceHigh
	case score >= ThresholdMedium:
		return evidence.ConfidenceMedium
	case score >= ThresholdLow:
		return evidence.ConfidenceLow
	default:
		return evidence.ConfidenceNone
	}
}
