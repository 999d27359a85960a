package scoring

import (
	"time"

	"github.com/upishield/fraud-screening/configs"
	"github.com/upishield/fraud-screening/internal/models"
)

// Settings is an immutable snapshot of the decisioning knobs. A request is
// scored against exactly one snapshot end to end; runtime updates build a new
// snapshot rather than mutating a live one.
type Settings struct {
	AllowThreshold    int
	WarnThreshold     int
	Weights           map[string]float64
	LargeAmount       float64
	HardRuleThreshold float64
	DetectorDeadline  time.Duration

	HITLEnabled bool
	SLACritical time.Duration
	SLAHigh     time.Duration
	SLAMedium   time.Duration
	SLALow      time.Duration
}

// NewSettings snapshots the config, normalizing detector weights to sum to 1
// so misconfigured weights cannot push the risk sum outside [0,1].
func NewSettings(scoring configs.ScoringConfig, hitl configs.HITLConfig) *Settings {
	weights := map[string]float64{
		models.DetectorPhishing: scoring.PhishWeight,
		models.DetectorQuishing: scoring.QRWeight,
		models.DetectorCollect:  scoring.CollectWeight,
		models.DetectorMalware:  scoring.MalwareWeight,
	}

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		for k := range weights {
			weights[k] = 0.25
		}
	} else {
		for k, w := range weights {
			weights[k] = w / sum
		}
	}

	return &Settings{
		AllowThreshold:    scoring.AllowThreshold,
		WarnThreshold:     scoring.WarnThreshold,
		Weights:           weights,
		LargeAmount:       scoring.LargeAmount,
		HardRuleThreshold: scoring.HardRuleThreshold,
		DetectorDeadline:  scoring.PerDetectorDeadline,
		HITLEnabled:       hitl.Enabled,
		SLACritical:       hitl.SLACritical,
		SLAHigh:           hitl.SLAHigh,
		SLAMedium:         hitl.SLAMedium,
		SLALow:            hitl.SLALow,
	}
}
