package scoring

import (
	"math"
	"time"

	"github.com/upishield/fraud-screening/internal/models"
)

// Aggregate fuses detector subscores into a trust score and an action.
//
// The base score is the weighted risk sum mapped onto a 0..100 trust scale.
// Overrides then apply in order, each only able to make the outcome stricter:
//
//  1. a hard rule fire with probability at or above the hard-rule threshold
//     forces BLOCK and caps trust at 20
//  2. two or more detectors at probability >= 0.7 force BLOCK
//  3. any detector at probability >= 0.9 forces at least WARN
func Aggregate(settings *Settings, subscores []models.Subscore, now time.Time) models.Decision {
	risk := 0.0
	for _, s := range subscores {
		risk += settings.Weights[s.Detector] * s.Probability
	}

	trust := int(math.Round((1 - risk) * 100))
	if trust < 0 {
		trust = 0
	}
	if trust > 100 {
		trust = 100
	}

	action := actionForTrust(settings, trust)

	hardFire := false
	highCount := 0
	anyVeryHigh := false
	for _, s := range subscores {
		if s.HardHit && s.Probability >= settings.HardRuleThreshold {
			hardFire = true
		}
		if s.Probability >= 0.7 {
			highCount++
		}
		if s.Probability >= 0.9 {
			anyVeryHigh = true
		}
	}

	switch {
	case hardFire:
		action = models.ActionBlock
		if trust > 20 {
			trust = 20
		}
	case highCount >= 2:
		action = models.ActionBlock
	case anyVeryHigh && action == models.ActionAllow:
		action = models.ActionWarn
	}

	return models.Decision{
		TrustScore: trust,
		Action:     action,
		Subscores:  subscores,
		Timestamp:  now,
	}
}

// actionForTrust maps a trust score onto the banded action. A score exactly
// at the warn threshold is WARN, not BLOCK.
func actionForTrust(settings *Settings, trust int) string {
	switch {
	case trust >= settings.AllowThreshold:
		return models.ActionAllow
	case trust >= settings.WarnThreshold:
		return models.ActionWarn
	default:
		return models.ActionBlock
	}
}
