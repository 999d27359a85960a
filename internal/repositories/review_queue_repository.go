package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/upishield/fraud-screening/internal/models"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("review already resolved")
)

const reviewColumns = `
	id, transaction_id, trust_score, priority, request_json, subscores_json,
	sla_deadline, created_at, reviewed, analyst_id, decision, feedback_text, reviewed_at
`

// ReviewQueueRepository handles review queue database operations
type ReviewQueueRepository struct {
	db *Database
}

// NewReviewQueueRepository creates a new review queue repository
func NewReviewQueueRepository(db *Database) *ReviewQueueRepository {
	return &ReviewQueueRepository{db: db}
}

// Enqueue inserts a pending review. Enqueueing the same transaction twice is
// a no-op; the surviving entry is read back and returned either way.
func (r *ReviewQueueRepository) Enqueue(ctx context.Context, entry *models.ReviewQueueEntry) (*models.ReviewQueueEntry, error) {
	query := `
		INSERT INTO review_queue (
			id, transaction_id, trust_score, priority, request_json,
			subscores_json, sla_deadline, created_at, reviewed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.TransactionID,
		entry.TrustScore,
		entry.Priority,
		entry.RequestJSON,
		entry.SubscoresJSON,
		entry.SLADeadline,
		entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue review: %w", err)
	}

	return r.GetByTransactionID(ctx, entry.TransactionID)
}

// GetByTransactionID retrieves a review entry by transaction ID
func (r *ReviewQueueRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.ReviewQueueEntry, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_queue WHERE transaction_id = $1`

	entry, err := scanReview(r.db.Pool.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListPending retrieves unresolved reviews, newest first.
func (r *ReviewQueueRepository) ListPending(ctx context.Context, limit int) ([]*models.ReviewQueueEntry, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_queue
		WHERE reviewed = false
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReviews(rows)
}

// ListOverdue retrieves unresolved reviews whose SLA deadline has passed.
func (r *ReviewQueueRepository) ListOverdue(ctx context.Context, now time.Time) ([]*models.ReviewQueueEntry, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM review_queue
		WHERE reviewed = false AND sla_deadline < $1
		ORDER BY sla_deadline ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReviews(rows)
}

// CountPending returns the number of unresolved reviews.
func (r *ReviewQueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM review_queue WHERE reviewed = false`).Scan(&count)
	return count, err
}

// SubmitDecision resolves a pending review and stages the resulting feedback
// record in a single transaction. A review can be resolved exactly once.
func (r *ReviewQueueRepository) SubmitDecision(ctx context.Context, transactionID, analystID, decision, feedbackText string, warnThreshold int) (*models.FeedbackRecord, error) {
	var feedback *models.FeedbackRecord

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + reviewColumns + ` FROM review_queue WHERE transaction_id = $1 FOR UPDATE`

		entry, err := scanReview(tx.QueryRow(ctx, query, transactionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReviewNotFound
			}
			return err
		}
		if entry.Reviewed {
			return ErrAlreadyReviewed
		}

		now := time.Now()
		update := `
			UPDATE review_queue
			SET reviewed = true, analyst_id = $2, decision = $3, feedback_text = $4, reviewed_at = $5
			WHERE transaction_id = $1
		`
		if _, err := tx.Exec(ctx, update, transactionID, analystID, decision, feedbackText, now); err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}

		feedback = models.NewFeedbackRecord(entry, decision, warnThreshold, now)

		insert := `
			INSERT INTO feedback_log (
				id, transaction_id, original_trust_score, original_subscores_json,
				analyst_decision, correct_label, model_was_correct, used_for_retraining, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		`
		_, err = tx.Exec(ctx, insert,
			feedback.ID,
			feedback.TransactionID,
			feedback.OriginalTrustScore,
			feedback.OriginalSubscores,
			feedback.AnalystDecision,
			feedback.CorrectLabel,
			feedback.ModelWasCorrect,
			feedback.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*models.ReviewQueueEntry, error) {
	entry := &models.ReviewQueueEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.TransactionID,
		&entry.TrustScore,
		&entry.Priority,
		&entry.RequestJSON,
		&entry.SubscoresJSON,
		&entry.SLADeadline,
		&entry.CreatedAt,
		&entry.Reviewed,
		&entry.AnalystID,
		&entry.Decision,
		&entry.FeedbackText,
		&entry.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func scanReviews(rows pgx.Rows) ([]*models.ReviewQueueEntry, error) {
	var entries []*models.ReviewQueueEntry
	for rows.Next() {
		entry, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
