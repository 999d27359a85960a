package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType enum values
const (
	TypePay     = "pay"
	TypeCollect = "collect"
	TypeQRPay   = "qr_pay"
)

// Action enum values, ordered from least to most restrictive.
const (
	ActionAllow       = "ALLOW"
	ActionWarn        = "WARN"
	ActionBlock       = "BLOCK"
	ActionHumanReview = "HUMAN_REVIEW"
)

// ConfidenceTier enum values
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// RiskLevel enum values
const (
	RiskLevelLow       = "LOW"
	RiskLevelLowMedium = "LOW-MEDIUM"
	RiskLevelMedium    = "MEDIUM"
	RiskLevelHigh      = "HIGH"
	RiskLevelCritical  = "CRITICAL"
)

// Priority enum values
const (
	PriorityCritical = "CRITICAL"
	PriorityHigh     = "HIGH"
	PriorityMedium   = "MEDIUM"
	PriorityLow      = "LOW"
)

// AnalystDecision enum values
const (
	DecisionApprove  = "APPROVE"
	DecisionReject   = "REJECT"
	DecisionEscalate = "ESCALATE"
)

// Detector ids
const (
	DetectorPhishing = "phishing"
	DetectorQuishing = "quishing"
	DetectorCollect  = "collect"
	DetectorMalware  = "malware"
)

// DevicePosture is the client-supplied device signal bundle. All fields are
// optional; absent values read as zero.
type DevicePosture struct {
	InstalledAppCount          int  `json:"installed_app_count"`
	SuspiciousAppFlag          bool `json:"suspicious_app_flag"`
	AccessibilityServiceActive bool `json:"accessibility_service_active"`
	ScreenOverlayActive        bool `json:"screen_overlay_active"`
	DebuggerAttached           bool `json:"debugger_attached"`
	RecentSideload             bool `json:"recent_sideload"`
}

// TransactionRequest is one screening event. Immutable once received.
type TransactionRequest struct {
	TransactionID   string         `json:"transaction_id" binding:"required,max=128"`
	PayerVPA        string         `json:"payer_vpa"`
	PayeeVPA        string         `json:"payee_vpa"`
	Amount          float64        `json:"amount"`
	Message         string         `json:"message"`
	TransactionType string         `json:"transaction_type"`
	QRPayload       string         `json:"qr_payload,omitempty"`
	PayeeNew        int            `json:"payee_new"`
	DevicePosture   *DevicePosture `json:"device_posture,omitempty"`
}

// FeatureWeight is a named feature contribution, used for the
// feature-importance section of an explanation.
type FeatureWeight struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// Subscore is one detector's verdict on a request.
type Subscore struct {
	Detector    string          `json:"detector"`
	Probability float64         `json:"probability"`
	RuleHits    []string        `json:"rule_hits"`
	HardHit     bool            `json:"hard_hit"`
	Confidence  string          `json:"confidence"`
	TopFeatures []FeatureWeight `json:"top_features,omitempty"`
}

// Decision is the aggregator's result for one request.
type Decision struct {
	TrustScore int        `json:"trust_score"`
	Action     string     `json:"action"`
	Subscores  []Subscore `json:"subscores"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Explanation is the human-facing reasoning attached to a decision.
type Explanation struct {
	Reasons           []string           `json:"reasons"`
	RiskBreakdown     map[string]float64 `json:"risk_breakdown"`
	FeatureImportance []FeatureWeight    `json:"feature_importance"`
	RiskLevel         string             `json:"risk_level"`
}

// ReviewRequirement is the HITL manager's verdict on a decision.
type ReviewRequirement struct {
	Required bool          `json:"human_review_required"`
	Priority string        `json:"priority,omitempty"`
	SLA      time.Duration `json:"sla,omitempty"`
}

// ScoreResponse is the synchronous scoring API response.
type ScoreResponse struct {
	TransactionID     string             `json:"transaction_id"`
	TrustScore        int                `json:"trust_score"`
	Action            string             `json:"action"`
	Subscores         map[string]float64 `json:"subscores"`
	Reasons           []string           `json:"reasons"`
	RiskBreakdown     map[string]float64 `json:"risk_breakdown"`
	FeatureImportance []FeatureWeight    `json:"feature_importance"`
	RiskLevel         string             `json:"risk_level"`
	ReviewID          *string            `json:"review_id"`
	ProcessingTimeMs  int64              `json:"processing_time_ms"`
}

// ReviewQueueEntry is a persisted pending (or resolved) human review.
// Once Reviewed is true, AnalystID and Decision are non-null and immutable.
type ReviewQueueEntry struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID string     `json:"transaction_id"`
	TrustScore    int        `json:"trust_score"`
	Priority      string     `json:"priority"`
	RequestJSON   []byte     `json:"request_json"`
	SubscoresJSON []byte     `json:"subscores_json"`
	SLADeadline   time.Time  `json:"sla_deadline"`
	CreatedAt     time.Time  `json:"created_at"`
	Reviewed      bool       `json:"reviewed"`
	AnalystID     *string    `json:"analyst_id,omitempty"`
	Decision      *string    `json:"decision,omitempty"`
	FeedbackText  *string    `json:"feedback_text,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

// NewReviewQueueEntry builds a pending entry from a scored request. The
// request and subscores are serialized so analysts see exactly what the
// detectors saw.
func NewReviewQueueEntry(req *TransactionRequest, dec Decision, review ReviewRequirement, now time.Time) (*ReviewQueueEntry, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	subsJSON, err := json.Marshal(dec.Subscores)
	if err != nil {
		return nil, err
	}

	return &ReviewQueueEntry{
		ID:            uuid.New(),
		TransactionID: req.TransactionID,
		TrustScore:    dec.TrustScore,
		Priority:      review.Priority,
		RequestJSON:   reqJSON,
		SubscoresJSON: subsJSON,
		SLADeadline:   now.Add(review.SLA),
		CreatedAt:     now,
	}, nil
}

// Request deserializes the stored request payload.
func (e *ReviewQueueEntry) Request() (*TransactionRequest, error) {
	var req TransactionRequest
	if err := json.Unmarshal(e.RequestJSON, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Subscores deserializes the stored detector subscores.
func (e *ReviewQueueEntry) Subscores() ([]Subscore, error) {
	var subs []Subscore
	if err := json.Unmarshal(e.SubscoresJSON, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// FeedbackRecord is one labeled example staged for model retraining.
// Records are append-only and never deleted.
type FeedbackRecord struct {
	ID                 uuid.UUID `json:"id"`
	TransactionID      string    `json:"transaction_id"`
	OriginalTrustScore int       `json:"original_trust_score"`
	OriginalSubscores  []byte    `json:"original_subscores_json"`
	AnalystDecision    string    `json:"analyst_decision"`
	CorrectLabel       int       `json:"correct_label"`      // 0 legitimate, 1 fraud
	ModelWasCorrect    bool      `json:"model_was_correct"`
	UsedForRetraining  bool      `json:"used_for_retraining"`
	CreatedAt          time.Time `json:"created_at"`
}

// CorrectLabelFor derives the retraining label from an analyst decision.
func CorrectLabelFor(decision string) int {
	if decision == DecisionReject || decision == DecisionEscalate {
		return 1
	}
	return 0
}

// NewFeedbackRecord builds the retraining example for a resolved review.
// The screen counted as correct when it flagged (trust below the warn
// threshold) exactly the transactions the analyst labeled fraud.
func NewFeedbackRecord(entry *ReviewQueueEntry, decision string, warnThreshold int, now time.Time) *FeedbackRecord {
	label := CorrectLabelFor(decision)
	return &FeedbackRecord{
		ID:                 uuid.New(),
		TransactionID:      entry.TransactionID,
		OriginalTrustScore: entry.TrustScore,
		OriginalSubscores:  entry.SubscoresJSON,
		AnalystDecision:    decision,
		CorrectLabel:       label,
		ModelWasCorrect:    (entry.TrustScore < warnThreshold) == (label == 1),
		CreatedAt:          now,
	}
}

// DecisionEvent is published to the decision stream and the Kafka output
// topic after every scored request.
type DecisionEvent struct {
	TransactionID    string             `json:"transaction_id"`
	TrustScore       int                `json:"trust_score"`
	Action           string             `json:"action"`
	RiskLevel        string             `json:"risk_level"`
	Subscores        map[string]float64 `json:"subscores"`
	ReviewID         *string            `json:"review_id,omitempty"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Analyst is a human reviewer account.
type Analyst struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Analyst roles
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// JSONB is a helper type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}
