package models

import (
	"testing"
	"time"
)

func TestCorrectLabelFor(t *testing.T) {
	tests := []struct {
		decision string
		want     int
	}{
		{DecisionApprove, 0},
		{DecisionReject, 1},
		{DecisionEscalate, 1},
	}

	for _, tt := range tests {
		if got := CorrectLabelFor(tt.decision); got != tt.want {
			t.Errorf("CorrectLabelFor(%q) = %d, want %d", tt.decision, got, tt.want)
		}
	}
}

func TestNewFeedbackRecord(t *testing.T) {
	const warnThreshold = 45

	tests := []struct {
		name        string
		trust       int
		decision    string
		wantCorrect bool
	}{
		{"flagged, analyst confirms fraud", 30, DecisionReject, true},
		{"flagged, analyst clears it", 30, DecisionApprove, false},
		{"passed, analyst agrees", 60, DecisionApprove, true},
		{"passed, analyst escalates", 60, DecisionEscalate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			entry := &ReviewQueueEntry{
				TransactionID: "txn-1",
				TrustScore:    tt.trust,
				SubscoresJSON: []byte(`[]`),
			}

			rec := NewFeedbackRecord(entry, tt.decision, warnThreshold, now)

			if rec.ModelWasCorrect != tt.wantCorrect {
				t.Errorf("model correct = %v, want %v", rec.ModelWasCorrect, tt.wantCorrect)
			}
			if rec.TransactionID != "txn-1" || rec.OriginalTrustScore != tt.trust {
				t.Errorf("record does not carry the entry: %+v", rec)
			}
			if rec.AnalystDecision != tt.decision {
				t.Errorf("decision = %q, want %q", rec.AnalystDecision, tt.decision)
			}
			if rec.UsedForRetraining {
				t.Error("new record already marked used")
			}
			if !rec.CreatedAt.Equal(now) {
				t.Errorf("created at = %v, want %v", rec.CreatedAt, now)
			}
		})
	}
}

func TestNewReviewQueueEntryRoundTrip(t *testing.T) {
	req := &TransactionRequest{
		TransactionID:   "txn-1",
		PayerVPA:        "payer@bank",
		PayeeVPA:        "stranger@bank",
		Amount:          75000,
		TransactionType: TypeCollect,
		PayeeNew:        1,
	}
	dec := Decision{
		TrustScore: 40,
		Action:     ActionHumanReview,
		Subscores:  []Subscore{{Detector: DetectorCollect, Probability: 0.7, RuleHits: []string{"large_collect_new_payee"}}},
	}
	review := ReviewRequirement{Required: true, Priority: PriorityCritical, SLA: 60 * time.Second}
	now := time.Now()

	entry, err := NewReviewQueueEntry(req, dec, review, now)
	if err != nil {
		t.Fatal(err)
	}

	if entry.TransactionID != "txn-1" || entry.TrustScore != 40 || entry.Priority != PriorityCritical {
		t.Errorf("entry fields wrong: %+v", entry)
	}
	if got := entry.SLADeadline.Sub(entry.CreatedAt); got != 60*time.Second {
		t.Errorf("sla window = %v, want 60s", got)
	}

	gotReq, err := entry.Request()
	if err != nil {
		t.Fatal(err)
	}
	if gotReq.PayeeVPA != req.PayeeVPA || gotReq.Amount != req.Amount {
		t.Errorf("stored request = %+v, want %+v", gotReq, req)
	}

	subs, err := entry.Subscores()
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Detector != DetectorCollect {
		t.Errorf("stored subscores = %+v", subs)
	}
}
