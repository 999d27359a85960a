package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/repositories"
	"github.com/upishield/fraud-screening/internal/scoring"
)

// fakeReviewQueue mirrors the repository's resolve-once semantics in memory.
type fakeReviewQueue struct {
	entries   map[string]*models.ReviewQueueEntry
	submitErr error
	lastLimit int
}

func (f *fakeReviewQueue) ListPending(_ context.Context, limit int) ([]*models.ReviewQueueEntry, error) {
	f.lastLimit = limit
	var out []*models.ReviewQueueEntry
	for _, e := range f.entries {
		if !e.Reviewed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReviewQueue) CountPending(_ context.Context) (int, error) {
	count := 0
	for _, e := range f.entries {
		if !e.Reviewed {
			count++
		}
	}
	return count, nil
}

func (f *fakeReviewQueue) GetByTransactionID(_ context.Context, transactionID string) (*models.ReviewQueueEntry, error) {
	entry, ok := f.entries[transactionID]
	if !ok {
		return nil, repositories.ErrReviewNotFound
	}
	return entry, nil
}

func (f *fakeReviewQueue) ListOverdue(_ context.Context, now time.Time) ([]*models.ReviewQueueEntry, error) {
	var out []*models.ReviewQueueEntry
	for _, e := range f.entries {
		if !e.Reviewed && e.SLADeadline.Before(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReviewQueue) SubmitDecision(_ context.Context, transactionID, analystID, decision, feedbackText string, warnThreshold int) (*models.FeedbackRecord, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}

	entry, ok := f.entries[transactionID]
	if !ok {
		return nil, repositories.ErrReviewNotFound
	}
	if entry.Reviewed {
		return nil, repositories.ErrAlreadyReviewed
	}

	now := time.Now()
	entry.Reviewed = true
	entry.AnalystID = &analystID
	entry.Decision = &decision
	entry.FeedbackText = &feedbackText
	entry.ReviewedAt = &now
	return models.NewFeedbackRecord(entry, decision, warnThreshold, now), nil
}

type fakeFeedbackLog struct {
	records []*models.FeedbackRecord
	marked  []string
	err     error
}

func (f *fakeFeedbackLog) PendingFeedback(_ context.Context, minSamples int) ([]*models.FeedbackRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.FeedbackRecord
	for _, r := range f.records {
		if !r.UsedForRetraining && len(out) < 2*minSamples {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeFeedbackLog) CountPending(_ context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	count := 0
	for _, r := range f.records {
		if !r.UsedForRetraining {
			count++
		}
	}
	return count, nil
}

func (f *fakeFeedbackLog) MarkUsed(_ context.Context, transactionIDs []string) error {
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, transactionIDs...)
	for _, r := range f.records {
		for _, id := range transactionIDs {
			if r.TransactionID == id {
				r.UsedForRetraining = true
			}
		}
	}
	return nil
}

func (f *fakeFeedbackLog) ModelAccuracy(_ context.Context) (float64, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	correct := 0
	for _, r := range f.records {
		if r.ModelWasCorrect {
			correct++
		}
	}
	if len(f.records) == 0 {
		return 0, 0, nil
	}
	return float64(correct) / float64(len(f.records)), len(f.records), nil
}

func pendingEntry(transactionID string, trust int) *models.ReviewQueueEntry {
	now := time.Now()
	return &models.ReviewQueueEntry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		TrustScore:    trust,
		Priority:      models.PriorityHigh,
		RequestJSON:   []byte(`{}`),
		SubscoresJSON: []byte(`[]`),
		SLADeadline:   now.Add(5 * time.Minute),
		CreatedAt:     now,
	}
}

func testReviewService(queue *fakeReviewQueue, feedback *fakeFeedbackLog) *ReviewService {
	if queue.entries == nil {
		queue.entries = make(map[string]*models.ReviewQueueEntry)
	}
	return NewReviewService(queue, feedback, 45)
}

func TestSubmitReviewResolvesExactlyOnce(t *testing.T) {
	queue := &fakeReviewQueue{entries: map[string]*models.ReviewQueueEntry{
		"txn-1": pendingEntry("txn-1", 30),
	}}
	svc := testReviewService(queue, &fakeFeedbackLog{})
	analyst := uuid.New()
	ctx := context.Background()

	feedback, err := svc.SubmitReview(ctx, analyst, &SubmitReviewRequest{
		TransactionID: "txn-1",
		Decision:      models.DecisionReject,
		FeedbackText:  "confirmed phishing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if feedback.CorrectLabel != 1 {
		t.Errorf("label = %d, want 1 for REJECT", feedback.CorrectLabel)
	}
	if !feedback.ModelWasCorrect {
		t.Error("trust 30 flagged below warn threshold and analyst rejected, want model correct")
	}

	entry := queue.entries["txn-1"]
	if !entry.Reviewed || entry.Decision == nil || *entry.Decision != models.DecisionReject {
		t.Fatalf("entry not resolved: %+v", entry)
	}

	// A second decision on the same review must fail and leave the first
	// decision untouched.
	_, err = svc.SubmitReview(ctx, uuid.New(), &SubmitReviewRequest{
		TransactionID: "txn-1",
		Decision:      models.DecisionApprove,
	})
	if !errors.Is(err, scoring.ErrAlreadyReviewed) {
		t.Fatalf("err = %v, want ErrAlreadyReviewed", err)
	}
	if *entry.Decision != models.DecisionReject {
		t.Errorf("decision = %q, want original REJECT kept", *entry.Decision)
	}
	if *entry.AnalystID != analyst.String() {
		t.Errorf("analyst = %q, want original analyst kept", *entry.AnalystID)
	}
}

func TestSubmitReviewUnknownTransaction(t *testing.T) {
	svc := testReviewService(&fakeReviewQueue{}, &fakeFeedbackLog{})

	_, err := svc.SubmitReview(context.Background(), uuid.New(), &SubmitReviewRequest{
		TransactionID: "txn-missing",
		Decision:      models.DecisionApprove,
	})
	if !errors.Is(err, scoring.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitReviewStorageFailure(t *testing.T) {
	queue := &fakeReviewQueue{submitErr: errors.New("connection refused")}
	svc := testReviewService(queue, &fakeFeedbackLog{})

	_, err := svc.SubmitReview(context.Background(), uuid.New(), &SubmitReviewRequest{
		TransactionID: "txn-1",
		Decision:      models.DecisionApprove,
	})
	if !errors.Is(err, scoring.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestSubmitReviewFeedbackLabels(t *testing.T) {
	tests := []struct {
		name        string
		trust       int
		decision    string
		wantLabel   int
		wantCorrect bool
	}{
		{"flagged and rejected", 30, models.DecisionReject, 1, true},
		{"flagged but approved", 30, models.DecisionApprove, 0, false},
		{"passed and approved", 60, models.DecisionApprove, 0, true},
		{"passed but escalated", 60, models.DecisionEscalate, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeReviewQueue{entries: map[string]*models.ReviewQueueEntry{
				"txn-1": pendingEntry("txn-1", tt.trust),
			}}
			svc := testReviewService(queue, &fakeFeedbackLog{})

			feedback, err := svc.SubmitReview(context.Background(), uuid.New(), &SubmitReviewRequest{
				TransactionID: "txn-1",
				Decision:      tt.decision,
			})
			if err != nil {
				t.Fatal(err)
			}
			if feedback.CorrectLabel != tt.wantLabel {
				t.Errorf("label = %d, want %d", feedback.CorrectLabel, tt.wantLabel)
			}
			if feedback.ModelWasCorrect != tt.wantCorrect {
				t.Errorf("model correct = %v, want %v", feedback.ModelWasCorrect, tt.wantCorrect)
			}
		})
	}
}

func TestGetEntryNotFound(t *testing.T) {
	svc := testReviewService(&fakeReviewQueue{}, &fakeFeedbackLog{})

	_, err := svc.GetEntry(context.Background(), "txn-missing")
	if !errors.Is(err, scoring.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListQueueClampsLimit(t *testing.T) {
	queue := &fakeReviewQueue{entries: map[string]*models.ReviewQueueEntry{
		"txn-1": pendingEntry("txn-1", 30),
	}}
	svc := testReviewService(queue, &fakeFeedbackLog{})
	ctx := context.Background()

	for _, limit := range []int{0, -5, 501} {
		if _, err := svc.ListQueue(ctx, limit); err != nil {
			t.Fatal(err)
		}
		if queue.lastLimit != 100 {
			t.Errorf("limit %d passed through as %d, want clamped to 100", limit, queue.lastLimit)
		}
	}
}

func TestPendingFeedbackGate(t *testing.T) {
	feedback := &fakeFeedbackLog{records: []*models.FeedbackRecord{
		{TransactionID: "txn-1", ModelWasCorrect: true},
		{TransactionID: "txn-2"},
		{TransactionID: "txn-3", UsedForRetraining: true},
	}}
	svc := testReviewService(&fakeReviewQueue{}, feedback)
	ctx := context.Background()

	batch, err := svc.PendingFeedback(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Ready {
		t.Error("batch ready with 2 of 5 required samples")
	}
	if batch.Pending != 2 || batch.Required != 5 {
		t.Errorf("pending/required = %d/%d, want 2/5", batch.Pending, batch.Required)
	}
	if batch.Records != nil {
		t.Errorf("records exported below the minimum: %v", batch.Records)
	}

	batch, err = svc.PendingFeedback(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Ready {
		t.Error("batch not ready at the minimum")
	}
	if len(batch.Records) != 2 {
		t.Errorf("exported %d records, want 2 unused", len(batch.Records))
	}
}

func TestMarkFeedbackUsed(t *testing.T) {
	feedback := &fakeFeedbackLog{records: []*models.FeedbackRecord{
		{TransactionID: "txn-1"},
		{TransactionID: "txn-2"},
	}}
	svc := testReviewService(&fakeReviewQueue{}, feedback)
	ctx := context.Background()

	if err := svc.MarkFeedbackUsed(ctx, []string{"txn-1"}); err != nil {
		t.Fatal(err)
	}
	if !feedback.records[0].UsedForRetraining {
		t.Error("txn-1 not marked used")
	}
	if feedback.records[1].UsedForRetraining {
		t.Error("txn-2 marked used without being listed")
	}

	feedback.err = errors.New("connection refused")
	if err := svc.MarkFeedbackUsed(ctx, []string{"txn-2"}); !errors.Is(err, scoring.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}
