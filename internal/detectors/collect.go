package detectors

import (
	"strings"
	"time"

	"github.com/upishield/fraud-screening/internal/models"
)

var (
	threatTerms = []string{
		"legal", "court", "police", "arrest", "penalty", "fine", "lawyer", "case",
	}
	duesTerms = []string{
		"due", "dues", "debt", "owe", "outstanding", "pending", "unpaid",
	}
	authorityTerms = []string{
		"government", "tax", "department", "official", "authority", "ministry", "officer",
	}
)

// CollectDetector screens pull-payment (collect) requests, the flow abused
// by unsolicited "approve to claim reward" scams.
type CollectDetector struct {
	registry    *Registry
	largeAmount float64
	now         func() time.Time
	rules       []Rule
}

func NewCollectDetector(registry *Registry, largeAmount float64) *CollectDetector {
	d := &CollectDetector{
		registry:    registry,
		largeAmount: largeAmount,
		now:         time.Now,
	}
	d.rules = []Rule{
		{
			Name:   "large_collect_new_payee",
			Weight: 0.75,
			Hard:   true,
			Match: func(req *models.TransactionRequest) bool {
				return req.TransactionType == models.TypeCollect &&
					req.PayeeNew == 1 &&
					req.Amount >= d.largeAmount
			},
		},
		{
			Name:   "collect_request",
			Weight: 0.2,
			Match: func(req *models.TransactionRequest) bool {
				return req.TransactionType == models.TypeCollect
			},
		},
		{
			Name:   "threat_language",
			Weight: 0.3,
			Match: func(req *models.TransactionRequest) bool {
				return containsAny(strings.ToLower(req.Message), threatTerms)
			},
		},
		{
			Name:   "dues_claim",
			Weight: 0.15,
			Match: func(req *models.TransactionRequest) bool {
				return containsAny(strings.ToLower(req.Message), duesTerms)
			},
		},
		{
			Name:   "authority_impersonation",
			Weight: 0.1,
			Match: func(req *models.TransactionRequest) bool {
				return containsAny(strings.ToLower(req.Message), authorityTerms)
			},
		},
		{
			Name:   "urgency_language",
			Weight: 0.25,
			Match: func(req *models.TransactionRequest) bool {
				return containsAny(strings.ToLower(req.Message), urgencyTerms)
			},
		},
		{
			Name:   "prize_language",
			Weight: 0.25,
			Match: func(req *models.TransactionRequest) bool {
				return containsAny(strings.ToLower(req.Message), prizeTerms)
			},
		},
		{
			Name:   "first_time_payee",
			Weight: 0.1,
			Match: func(req *models.TransactionRequest) bool {
				return req.PayeeNew == 1 && req.TransactionType == models.TypeCollect
			},
		},
	}
	return d
}

func (d *CollectDetector) ID() string { return models.DetectorCollect }

func (d *CollectDetector) Ready() bool {
	return d.registry.collect.Load() != nil
}

func (d *CollectDetector) Score(req *models.TransactionRequest) models.Subscore {
	vec := d.extract(req)
	return score(d.ID(), d.registry.collect.Load(), d.rules, vec, req)
}

func (d *CollectDetector) extract(req *models.TransactionRequest) FeatureVector {
	memo := strings.ToLower(req.Message)
	now := d.now()
	offHours := now.Hour() < 6 || now.Weekday() == time.Saturday || now.Weekday() == time.Sunday

	return FeatureVector{
		{Name: "is_collect", Value: boolFeature(req.TransactionType == models.TypeCollect)},
		{Name: "payee_new", Value: float64(req.PayeeNew)},
		{Name: "amount_bucket", Value: amountBucket(req.Amount)},
		{Name: "threat_term_count", Value: float64(countHits(memo, threatTerms))},
		{Name: "dues_term_count", Value: float64(countHits(memo, duesTerms))},
		{Name: "authority_term_count", Value: float64(countHits(memo, authorityTerms))},
		{Name: "urgency_term_count", Value: float64(countHits(memo, urgencyTerms))},
		{Name: "prize_term_count", Value: float64(countHits(memo, prizeTerms))},
		{Name: "off_hours", Value: boolFeature(offHours)},
	}
}
