package scoring

import (
	"github.com/upishield/fraud-screening/internal/models"
)

// EvaluateReview decides whether a scored transaction needs a human in the
// loop, and if so at what priority and SLA.
//
// Review triggers, any one sufficient:
//   - the action is WARN
//   - the action is BLOCK but no detector is confident enough (max p < 0.9)
//   - the detectors disagree sharply (max p - min p >= 0.6) with no single
//     detector decisive; a decisive hit is conviction, not disagreement
//   - the amount is large and the action is anything but ALLOW
//
// A disabled HITL manager never requires review regardless of triggers.
func EvaluateReview(settings *Settings, req *models.TransactionRequest, dec models.Decision) models.ReviewRequirement {
	if !settings.HITLEnabled {
		return models.ReviewRequirement{}
	}

	maxP, minP := 0.0, 1.0
	for _, s := range dec.Subscores {
		if s.Probability > maxP {
			maxP = s.Probability
		}
		if s.Probability < minP {
			minP = s.Probability
		}
	}
	if len(dec.Subscores) == 0 {
		maxP, minP = 0, 0
	}

	large := req.Amount >= settings.LargeAmount

	required := dec.Action == models.ActionWarn ||
		(dec.Action == models.ActionBlock && maxP < 0.9) ||
		(maxP-minP >= 0.6 && maxP < 0.9) ||
		(large && dec.Action != models.ActionAllow)

	if !required {
		return models.ReviewRequirement{}
	}

	// First matching tier wins.
	switch {
	case dec.Action == models.ActionBlock && large:
		return models.ReviewRequirement{Required: true, Priority: models.PriorityCritical, SLA: settings.SLACritical}
	case dec.Action == models.ActionBlock:
		return models.ReviewRequirement{Required: true, Priority: models.PriorityHigh, SLA: settings.SLAHigh}
	case dec.TrustScore < 35:
		return models.ReviewRequirement{Required: true, Priority: models.PriorityHigh, SLA: settings.SLAHigh}
	case dec.TrustScore < 50:
		return models.ReviewRequirement{Required: true, Priority: models.PriorityMedium, SLA: settings.SLAMedium}
	default:
		return models.ReviewRequirement{Required: true, Priority: models.PriorityLow, SLA: settings.SLALow}
	}
}
