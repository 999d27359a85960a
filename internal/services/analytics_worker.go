package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/queue"
	"github.com/upishield/fraud-screening/internal/repositories"
)

// AnalyticsWorker consumes the decision stream and maintains daily action
// counters, and periodically surfaces reviews that blew their SLA. Counters
// live in Redis hashes keyed by day so dashboards can read them directly.
type AnalyticsWorker struct {
	stream       *queue.DecisionStreamClient
	cache        *queue.CacheClient
	reviewRepo   *repositories.ReviewQueueRepository
	consumerName string
	slaInterval  time.Duration
}

// NewAnalyticsWorker creates a new analytics worker
func NewAnalyticsWorker(
	stream *queue.DecisionStreamClient,
	cache *queue.CacheClient,
	reviewRepo *repositories.ReviewQueueRepository,
	consumerName string,
) *AnalyticsWorker {
	return &AnalyticsWorker{
		stream:       stream,
		cache:        cache,
		reviewRepo:   reviewRepo,
		consumerName: consumerName,
		slaInterval:  time.Minute,
	}
}

// Run consumes until the context is cancelled.
func (w *AnalyticsWorker) Run(ctx context.Context) error {
	slaTicker := time.NewTicker(w.slaInterval)
	defer slaTicker.Stop()

	log.Info().Str("consumer", w.consumerName).Msg("Analytics worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-slaTicker.C:
			w.checkSLAs(ctx)
		default:
		}

		messages, err := w.stream.Consume(ctx, w.consumerName, 50, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to consume decision events")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			if err := w.process(ctx, msg.Event); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process decision event")
				continue
			}
			if err := w.stream.Acknowledge(ctx, msg.ID); err != nil {
				log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to acknowledge message")
			}
		}
	}
}

func (w *AnalyticsWorker) process(ctx context.Context, event *models.DecisionEvent) error {
	day := event.Timestamp.Format("2006-01-02")
	key := fmt.Sprintf("stats:decisions:%s", day)

	if _, err := w.cache.HIncrBy(ctx, key, event.Action, 1); err != nil {
		return fmt.Errorf("failed to increment action counter: %w", err)
	}
	if _, err := w.cache.HIncrBy(ctx, key, "total", 1); err != nil {
		return fmt.Errorf("failed to increment total counter: %w", err)
	}
	if _, err := w.cache.HIncrBy(ctx, fmt.Sprintf("stats:risk_levels:%s", day), event.RiskLevel, 1); err != nil {
		return fmt.Errorf("failed to increment risk level counter: %w", err)
	}

	log.Debug().
		Str("transaction_id", event.TransactionID).
		Str("action", event.Action).
		Msg("Decision event recorded")

	return nil
}

// checkSLAs logs every pending review past its deadline. The log line is the
// alert surface; paging integrations tail it.
func (w *AnalyticsWorker) checkSLAs(ctx context.Context) {
	overdue, err := w.reviewRepo.ListOverdue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list overdue reviews")
		return
	}

	for _, entry := range overdue {
		log.Warn().
			Str("transaction_id", entry.TransactionID).
			Str("priority", entry.Priority).
			Time("sla_deadline", entry.SLADeadline).
			Dur("overdue_by", time.Since(entry.SLADeadline)).
			Msg("Review past SLA deadline")
	}

	if len(overdue) > 0 {
		log.Warn().Int("count", len(overdue)).Msg("Reviews past SLA")
	}
}

// DailyStats reads back the counters for one day.
func (w *AnalyticsWorker) DailyStats(ctx context.Context, day time.Time) (map[string]string, error) {
	return w.cache.HGetAll(ctx, fmt.Sprintf("stats:decisions:%s", day.Format("2006-01-02")))
}
