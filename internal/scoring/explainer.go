package scoring

import (
	"fmt"
	"sort"

	"github.com/upishield/fraud-screening/internal/detectors"
	"github.com/upishield/fraud-screening/internal/models"
)

// reasonTemplates maps a detector to the lead-in of its human-facing reason.
var reasonTemplates = map[string]string{
	models.DetectorPhishing: "Message shows phishing patterns",
	models.DetectorQuishing: "QR code payload looks manipulated",
	models.DetectorCollect:  "Collect request matches known scam patterns",
	models.DetectorMalware:  "Device shows signs of compromise",
}

// reasonThreshold is the minimum detector probability that earns a reason.
const reasonThreshold = 0.3

// maxReasons caps the reasons list so the explanation stays readable.
const maxReasons = 6

// Explain builds the human-facing explanation for a decision. Explanations
// are derived purely from the decision and request; they never change the
// outcome.
func Explain(settings *Settings, req *models.TransactionRequest, dec models.Decision) models.Explanation {
	return models.Explanation{
		Reasons:           buildReasons(settings, req, dec),
		RiskBreakdown:     riskBreakdown(settings, dec.Subscores),
		FeatureImportance: featureImportance(dec.Subscores),
		RiskLevel:         riskLevel(dec.TrustScore),
	}
}

func buildReasons(settings *Settings, req *models.TransactionRequest, dec models.Decision) []string {
	type scored struct {
		text   string
		weight float64
	}

	var detectorReasons []scored
	for _, s := range dec.Subscores {
		if s.Probability < reasonThreshold {
			continue
		}
		text := reasonTemplates[s.Detector]
		if text == "" {
			text = fmt.Sprintf("Detector %s flagged this transaction", s.Detector)
		}
		if hit := topRuleHit(s); hit != "" {
			text = fmt.Sprintf("%s (%s)", text, hit)
		}
		detectorReasons = append(detectorReasons, scored{
			text:   text,
			weight: settings.Weights[s.Detector] * s.Probability,
		})
	}

	sort.SliceStable(detectorReasons, func(i, j int) bool {
		return detectorReasons[i].weight > detectorReasons[j].weight
	})

	reasons := make([]string, 0, len(detectorReasons)+2)
	for _, r := range detectorReasons {
		reasons = append(reasons, r.text)
	}

	// At most two reasons describe the shape of the request itself.
	if len(reasons) > 0 {
		if req.Amount >= settings.LargeAmount && req.PayeeNew == 1 {
			reasons = append(reasons, "Large amount to a first-time payee")
		}
		if req.TransactionType == models.TypeCollect {
			reasons = append(reasons, "Incoming collect (pull payment) request")
		}
	}

	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return reasons
}

// topRuleHit picks the leading rule hit, skipping the synthetic tokens the
// coordinator substitutes for timed-out detectors.
func topRuleHit(s models.Subscore) string {
	for _, hit := range s.RuleHits {
		if hit != detectors.RuleTimeout && hit != detectors.RuleUnavailable {
			return hit
		}
	}
	return ""
}

// riskBreakdown apportions the total risk across detectors as shares that
// sum to 1. With zero total risk every detector reports an equal nominal
// share rather than a division by zero.
func riskBreakdown(settings *Settings, subscores []models.Subscore) map[string]float64 {
	breakdown := make(map[string]float64, len(subscores))

	total := 0.0
	for _, s := range subscores {
		total += settings.Weights[s.Detector] * s.Probability
	}

	if total == 0 {
		for _, s := range subscores {
			breakdown[s.Detector] = 0.25
		}
		return breakdown
	}

	for _, s := range subscores {
		breakdown[s.Detector] = settings.Weights[s.Detector] * s.Probability / total
	}
	return breakdown
}

// featureImportance merges the per-detector top features of triggered
// detectors, deduplicates by name keeping the larger value, and renormalizes
// so the importances sum to 1.
func featureImportance(subscores []models.Subscore) []models.FeatureWeight {
	merged := make(map[string]float64)
	for _, s := range subscores {
		if s.Probability < reasonThreshold {
			continue
		}
		for _, fw := range s.TopFeatures {
			if fw.Importance > merged[fw.Name] {
				merged[fw.Name] = fw.Importance
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}

	total := 0.0
	for _, v := range merged {
		total += v
	}

	out := make([]models.FeatureWeight, 0, len(merged))
	for name, v := range merged {
		imp := v
		if total > 0 {
			imp = v / total
		}
		out = append(out, models.FeatureWeight{Name: name, Importance: imp})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// riskLevel bands the inverse trust score into the reporting scale.
func riskLevel(trust int) string {
	risk := float64(100-trust) / 100

	switch {
	case risk < 0.2:
		return models.RiskLevelLow
	case risk < 0.4:
		return models.RiskLevelLowMedium
	case risk < 0.6:
		return models.RiskLevelMedium
	case risk < 0.8:
		return models.RiskLevelHigh
	default:
		return models.RiskLevelCritical
	}
}
