package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/repositories"
	"github.com/upishield/fraud-screening/internal/scoring"
)

// ReviewQueueStore is the queue persistence surface the analyst workflow
// needs. *repositories.ReviewQueueRepository satisfies it.
type ReviewQueueStore interface {
	ListPending(ctx context.Context, limit int) ([]*models.ReviewQueueEntry, error)
	CountPending(ctx context.Context) (int, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.ReviewQueueEntry, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*models.ReviewQueueEntry, error)
	SubmitDecision(ctx context.Context, transactionID, analystID, decision, feedbackText string, warnThreshold int) (*models.FeedbackRecord, error)
}

// FeedbackStore is the feedback-log surface backing the retraining export.
// *repositories.FeedbackRepository satisfies it.
type FeedbackStore interface {
	PendingFeedback(ctx context.Context, minSamples int) ([]*models.FeedbackRecord, error)
	CountPending(ctx context.Context) (int, error)
	MarkUsed(ctx context.Context, transactionIDs []string) error
	ModelAccuracy(ctx context.Context) (float64, int, error)
}

// ReviewService exposes the analyst workflow over the review queue and the
// feedback log.
type ReviewService struct {
	reviewRepo    ReviewQueueStore
	feedbackRepo  FeedbackStore
	warnThreshold int
}

// NewReviewService creates a new review service
func NewReviewService(reviewRepo ReviewQueueStore, feedbackRepo FeedbackStore, warnThreshold int) *ReviewService {
	return &ReviewService{
		reviewRepo:    reviewRepo,
		feedbackRepo:  feedbackRepo,
		warnThreshold: warnThreshold,
	}
}

// SubmitReviewRequest represents an analyst's decision on a pending review
type SubmitReviewRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Decision      string `json:"decision" binding:"required,oneof=APPROVE REJECT ESCALATE"`
	FeedbackText  string `json:"feedback_text"`
}

// QueueSummary is the review queue state for dashboards
type QueueSummary struct {
	Pending int                        `json:"pending"`
	Entries []*models.ReviewQueueEntry `json:"entries"`
}

// ListQueue returns pending reviews, newest first.
func (s *ReviewService) ListQueue(ctx context.Context, limit int) (*QueueSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := s.reviewRepo.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}

	count, err := s.reviewRepo.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}

	return &QueueSummary{Pending: count, Entries: entries}, nil
}

// GetEntry returns one review entry by transaction id.
func (s *ReviewService) GetEntry(ctx context.Context, transactionID string) (*models.ReviewQueueEntry, error) {
	entry, err := s.reviewRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repositories.ErrReviewNotFound) {
			return nil, scoring.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}
	return entry, nil
}

// Overdue returns pending reviews past their SLA deadline.
func (s *ReviewService) Overdue(ctx context.Context) ([]*models.ReviewQueueEntry, error) {
	entries, err := s.reviewRepo.ListOverdue(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}
	return entries, nil
}

// SubmitReview resolves a pending review with an analyst decision. The
// resulting feedback record is staged for retraining in the same
// transaction; a review resolves exactly once.
func (s *ReviewService) SubmitReview(ctx context.Context, analystID uuid.UUID, req *SubmitReviewRequest) (*models.FeedbackRecord, error) {
	feedback, err := s.reviewRepo.SubmitDecision(ctx, req.TransactionID, analystID.String(), req.Decision, req.FeedbackText, s.warnThreshold)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrReviewNotFound):
			return nil, scoring.ErrNotFound
		case errors.Is(err, repositories.ErrAlreadyReviewed):
			return nil, scoring.ErrAlreadyReviewed
		default:
			return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
		}
	}
	return feedback, nil
}

// RetrainingBatch is a feedback export for a retraining run
type RetrainingBatch struct {
	Ready    bool                     `json:"ready"`
	Pending  int                      `json:"pending"`
	Required int                      `json:"required"`
	Records  []*models.FeedbackRecord `json:"records,omitempty"`
}

// PendingFeedback exports unused feedback when at least minSamples records
// have accumulated. Below that it reports progress but returns no records.
func (s *ReviewService) PendingFeedback(ctx context.Context, minSamples int) (*RetrainingBatch, error) {
	if minSamples <= 0 {
		minSamples = 100
	}

	count, err := s.feedbackRepo.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}

	batch := &RetrainingBatch{Pending: count, Required: minSamples}
	if count < minSamples {
		return batch, nil
	}

	records, err := s.feedbackRepo.PendingFeedback(ctx, minSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}

	batch.Ready = true
	batch.Records = records
	return batch, nil
}

// MarkFeedbackUsed flags the feedback for the given transactions as consumed
// by a retraining run.
func (s *ReviewService) MarkFeedbackUsed(ctx context.Context, transactionIDs []string) error {
	if err := s.feedbackRepo.MarkUsed(ctx, transactionIDs); err != nil {
		return fmt.Errorf("%w: %v", scoring.ErrStorageUnavailable, err)
	}
	return nil
}

// ModelAccuracy reports agreement between screening outcomes and analyst
// decisions across all recorded feedback.
func (s *ReviewService) ModelAccuracy(ctx context.Context) (float64, int, error) {
	return s.feedbackRepo.ModelAccuracy(ctx)
}
