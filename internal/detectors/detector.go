package detectors

import (
	"math"
	"sort"

	"github.com/upishield/fraud-screening/internal/models"
)

// Rule tokens substituted by the coordinator, never produced by a detector.
const (
	RuleTimeout     = "timeout"
	RuleUnavailable = "detector_unavailable"
)

// Feature is one named component of a detector's input vector.
type Feature struct {
	Name  string
	Value float64
}

// FeatureVector is an ordered, fixed-length numeric input for one model.
type FeatureVector []Feature

// Rule is one deterministic pattern in a detector's overlay. Hard rules are
// strong evidence: their fire is never diluted by the model blend.
type Rule struct {
	Name   string
	Weight float64
	Hard   bool
	Match  func(req *models.TransactionRequest) bool
}

// Detector scores one request. Implementations must be deterministic for a
// fixed model and request, must never panic, and must not block.
type Detector interface {
	ID() string
	Score(req *models.TransactionRequest) models.Subscore
	Ready() bool
}

// NeutralSubscore is what the coordinator substitutes when a detector times
// out or cannot run. The aggregator treats it as neutral but explicit.
func NeutralSubscore(detector, ruleToken string) models.Subscore {
	return models.Subscore{
		Detector:    detector,
		Probability: 0.5,
		RuleHits:    []string{ruleToken},
		Confidence:  models.ConfidenceLow,
	}
}

// evalRules runs the overlay and returns the hit names ordered by weight
// descending, the clamped weighted rule probability, and whether any hard
// rule fired.
func evalRules(rules []Rule, req *models.TransactionRequest) (hits []string, pRules float64, hard bool) {
	var fired []Rule
	for _, r := range rules {
		if r.Match(req) {
			fired = append(fired, r)
			pRules += r.Weight
			if r.Hard {
				hard = true
			}
		}
	}
	sort.SliceStable(fired, func(i, j int) bool {
		return fired[i].Weight > fired[j].Weight
	})
	for _, r := range fired {
		hits = append(hits, r.Name)
	}
	return hits, clamp01(pRules), hard
}

// combine fuses the model probability with the rule overlay. With no model
// the detector runs rule-only; a hard hit takes the max so a confident
// benign model prediction cannot dilute it.
func combine(pModel float64, modelLoaded bool, pRules float64, hard bool) float64 {
	switch {
	case !modelLoaded:
		return pRules
	case hard:
		return math.Max(pModel, pRules)
	default:
		return clamp01(0.6*pModel + 0.4*pRules)
	}
}

// confidenceTier derives the tier from the model margin and rule
// corroboration. Rule-only mode always reports a zero margin.
func confidenceTier(margin float64, ruleHits int) string {
	switch {
	case margin >= 0.45, margin >= 0.35 && ruleHits >= 1:
		return models.ConfidenceHigh
	case margin >= 0.2, ruleHits >= 2:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// score assembles a Subscore from a detector's model, rules and features.
func score(id string, model *LinearModel, rules []Rule, vec FeatureVector, req *models.TransactionRequest) models.Subscore {
	hits, pRules, hard := evalRules(rules, req)

	var pModel, margin float64
	loaded := model != nil
	if loaded {
		pModel = model.PredictProba(vec)
		margin = math.Abs(pModel - 0.5)
	}

	return models.Subscore{
		Detector:    id,
		Probability: combine(pModel, loaded, pRules, hard),
		RuleHits:    hits,
		HardHit:     hard,
		Confidence:  confidenceTier(margin, len(hits)),
		TopFeatures: topContributions(model, vec, rules, hits, 2),
	}
}

// topContributions ranks features by absolute contribution. With a model the
// contribution is |coefficient * value|; without one the fired rule weights
// stand in. Importances are raw here; the explainer renormalizes.
func topContributions(model *LinearModel, vec FeatureVector, rules []Rule, hits []string, n int) []models.FeatureWeight {
	var contrib []models.FeatureWeight

	if model != nil {
		for _, f := range vec {
			c := math.Abs(model.Weights[f.Name] * f.Value)
			if c > 0 {
				contrib = append(contrib, models.FeatureWeight{Name: f.Name, Importance: c})
			}
		}
	} else {
		hitSet := make(map[string]bool, len(hits))
		for _, h := range hits {
			hitSet[h] = true
		}
		for _, r := range rules {
			if hitSet[r.Name] {
				contrib = append(contrib, models.FeatureWeight{Name: r.Name, Importance: r.Weight})
			}
		}
	}

	sort.SliceStable(contrib, func(i, j int) bool {
		return contrib[i].Importance > contrib[j].Importance
	})
	if len(contrib) > n {
		contrib = contrib[:n]
	}
	return contrib
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
