package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/upishield/fraud-screening/internal/detectors"
	"github.com/upishield/fraud-screening/internal/models"
)

// ReviewStore persists pending human reviews. Enqueue is idempotent on
// transaction id and returns the surviving entry either way.
type ReviewStore interface {
	Enqueue(ctx context.Context, entry *models.ReviewQueueEntry) (*models.ReviewQueueEntry, error)
}

// DecisionCache is the idempotency cache keyed by transaction id.
type DecisionCache interface {
	GetDecision(ctx context.Context, transactionID string) (*models.ScoreResponse, error)
	SetDecision(ctx context.Context, transactionID string, resp *models.ScoreResponse) error
}

// EventPublisher emits a decision event after every scored request.
// Publication is best effort; a failed publish never fails the score.
type EventPublisher interface {
	PublishDecision(ctx context.Context, event *models.DecisionEvent) error
}

// enqueueBackoffs are the waits between review-enqueue retries.
var enqueueBackoffs = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond}

// Coordinator runs the full screening pipeline for one request: fan out to
// the detectors, aggregate, decide on human review, explain, publish.
type Coordinator struct {
	settings  *Settings
	detectors []detectors.Detector
	reviews   ReviewStore
	cache     DecisionCache
	publisher EventPublisher
	now       func() time.Time
}

func NewCoordinator(
	settings *Settings,
	dets []detectors.Detector,
	reviews ReviewStore,
	cache DecisionCache,
	publisher EventPublisher,
) *Coordinator {
	return &Coordinator{
		settings:  settings,
		detectors: dets,
		reviews:   reviews,
		cache:     cache,
		publisher: publisher,
		now:       time.Now,
	}
}

// Score screens one transaction and returns the decision with its
// explanation. Rescoring the same transaction id returns the cached
// response, review id included.
func (c *Coordinator) Score(ctx context.Context, req *models.TransactionRequest) (*models.ScoreResponse, error) {
	start := c.now()

	if err := validate(req); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if cached, err := c.cache.GetDecision(ctx, req.TransactionID); err == nil && cached != nil {
			log.Debug().Str("transaction_id", req.TransactionID).Msg("Decision served from cache")
			return cached, nil
		}
	}

	subscores := c.runDetectors(ctx, req)

	// The caller is gone. Stop before any side effect, in particular
	// before a review could be enqueued for a request nobody is awaiting.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision := Aggregate(c.settings, subscores, c.now())

	review := EvaluateReview(c.settings, req, decision)
	var reviewID *string
	enqueueFailed := false
	if review.Required {
		decision.Action = models.ActionHumanReview
		id, err := c.enqueueReview(ctx, req, decision, review)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Review enqueue failed after retries")
			enqueueFailed = true
		} else {
			reviewID = &id
		}
	}

	explanation := Explain(c.settings, req, decision)
	if enqueueFailed {
		explanation.Reasons = append(explanation.Reasons, "review_enqueue_failed")
	}

	resp := &models.ScoreResponse{
		TransactionID:     req.TransactionID,
		TrustScore:        decision.TrustScore,
		Action:            decision.Action,
		Subscores:         subscoreMap(subscores),
		Reasons:           explanation.Reasons,
		RiskBreakdown:     explanation.RiskBreakdown,
		FeatureImportance: explanation.FeatureImportance,
		RiskLevel:         explanation.RiskLevel,
		ReviewID:          reviewID,
		ProcessingTimeMs:  c.now().Sub(start).Milliseconds(),
	}

	if c.cache != nil {
		if err := c.cache.SetDecision(ctx, req.TransactionID, resp); err != nil {
			log.Warn().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to cache decision")
		}
	}
	c.publishEvent(ctx, resp)

	log.Info().
		Str("transaction_id", req.TransactionID).
		Int("trust_score", resp.TrustScore).
		Str("action", resp.Action).
		Str("risk_level", resp.RiskLevel).
		Int64("processing_time_ms", resp.ProcessingTimeMs).
		Msg("Transaction screened")

	return resp, nil
}

func validate(req *models.TransactionRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	case req.TransactionID == "":
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidRequest)
	case len(req.TransactionID) > 128:
		return fmt.Errorf("%w: transaction_id exceeds 128 characters", ErrInvalidRequest)
	case req.Amount < 0:
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidRequest)
	}
	return nil
}

// runDetectors fans out to all detectors concurrently. A detector that does
// not answer within the per-detector deadline is replaced with a neutral
// subscore; a slow detector never blocks the decision.
func (c *Coordinator) runDetectors(ctx context.Context, req *models.TransactionRequest) []models.Subscore {
	type result struct {
		idx int
		sub models.Subscore
	}

	results := make(chan result, len(c.detectors))
	for i, d := range c.detectors {
		go func(idx int, d detectors.Detector) {
			results <- result{idx: idx, sub: d.Score(req)}
		}(i, d)
	}

	subscores := make([]models.Subscore, len(c.detectors))
	received := make([]bool, len(c.detectors))

	timer := time.NewTimer(c.settings.DetectorDeadline)
	defer timer.Stop()

	pending := len(c.detectors)
	for pending > 0 {
		select {
		case r := <-results:
			subscores[r.idx] = r.sub
			received[r.idx] = true
			pending--
		case <-timer.C:
			pending = 0
		case <-ctx.Done():
			pending = 0
		}
	}

	for i, d := range c.detectors {
		if !received[i] {
			log.Warn().Str("detector", d.ID()).Dur("deadline", c.settings.DetectorDeadline).Msg("Detector deadline exceeded, using neutral subscore")
			subscores[i] = detectors.NeutralSubscore(d.ID(), detectors.RuleTimeout)
		}
	}
	return subscores
}

// enqueueReview persists the pending review, retrying transient storage
// failures with backoff.
func (c *Coordinator) enqueueReview(ctx context.Context, req *models.TransactionRequest, dec models.Decision, review models.ReviewRequirement) (string, error) {
	if c.reviews == nil {
		return "", fmt.Errorf("%w: no review store configured", ErrConfiguration)
	}

	entry, err := models.NewReviewQueueEntry(req, dec, review, c.now())
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= len(enqueueBackoffs); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(enqueueBackoffs[attempt-1]):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		stored, err := c.reviews.Enqueue(ctx, entry)
		if err == nil {
			return stored.ID.String(), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

func (c *Coordinator) publishEvent(ctx context.Context, resp *models.ScoreResponse) {
	if c.publisher == nil {
		return
	}

	event := &models.DecisionEvent{
		TransactionID:    resp.TransactionID,
		TrustScore:       resp.TrustScore,
		Action:           resp.Action,
		RiskLevel:        resp.RiskLevel,
		Subscores:        resp.Subscores,
		ReviewID:         resp.ReviewID,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Timestamp:        c.now(),
	}
	if err := c.publisher.PublishDecision(ctx, event); err != nil {
		log.Warn().Err(err).Str("transaction_id", resp.TransactionID).Msg("Failed to publish decision event")
	}
}

func subscoreMap(subscores []models.Subscore) map[string]float64 {
	m := make(map[string]float64, len(subscores))
	for _, s := range subscores {
		m[s.Detector] = s.Probability
	}
	return m
}
