package repositories

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/upishield/fraud-screening/internal/models"
)

// FeedbackRepository handles retraining feedback database operations.
// Feedback is append-only; records are marked consumed, never deleted.
type FeedbackRepository struct {
	db *Database
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *Database) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// PendingFeedback returns records not yet used for retraining, newest first.
// At most 2*minSamples records are returned so one export stays bounded.
func (r *FeedbackRepository) PendingFeedback(ctx context.Context, minSamples int) ([]*models.FeedbackRecord, error) {
	query := `
		SELECT id, transaction_id, original_trust_score, original_subscores_json,
			   analyst_decision, correct_label, model_was_correct, used_for_retraining, created_at
		FROM feedback_log
		WHERE used_for_retraining = false
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, 2*minSamples)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.FeedbackRecord
	for rows.Next() {
		rec := &models.FeedbackRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.TransactionID,
			&rec.OriginalTrustScore,
			&rec.OriginalSubscores,
			&rec.AnalystDecision,
			&rec.CorrectLabel,
			&rec.ModelWasCorrect,
			&rec.UsedForRetraining,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountPending returns the number of records awaiting retraining.
func (r *FeedbackRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedback_log WHERE used_for_retraining = false`).Scan(&count)
	return count, err
}

// MarkUsed flags the feedback rows for the given transactions as consumed by
// a retraining run.
func (r *FeedbackRepository) MarkUsed(ctx context.Context, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}

	_, err := r.db.Pool.Exec(ctx,
		`UPDATE feedback_log SET used_for_retraining = true WHERE transaction_id = ANY($1)`,
		pq.Array(transactionIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to mark feedback used: %w", err)
	}
	return nil
}

// ModelAccuracy reports the fraction of resolved reviews where the screen
// and the analyst agreed, over all feedback ever recorded.
func (r *FeedbackRepository) ModelAccuracy(ctx context.Context) (float64, int, error) {
	var correct, total int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(CASE WHEN model_was_correct THEN 1 END), COUNT(*)
		FROM feedback_log
	`).Scan(&correct, &total)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(correct) / float64(total), total, nil
}
