package detectors

import (
	"testing"

	"github.com/upishield/fraud-screening/internal/models"
)

func phishingReq(message string) *models.TransactionRequest {
	return &models.TransactionRequest{
		TransactionID:   "txn-phish-1",
		PayerVPA:        "payer@bank",
		PayeeVPA:        "friend@bank",
		Amount:          500,
		Message:         message,
		TransactionType: models.TypePay,
	}
}

func TestPhishingCleanMemo(t *testing.T) {
	d := NewPhishingDetector(&Registry{})

	sub := d.Score(phishingReq("Send 500 for lunch"))

	if sub.Probability != 0 {
		t.Errorf("probability = %v, want 0", sub.Probability)
	}
	if len(sub.RuleHits) != 0 {
		t.Errorf("rule hits = %v, want none", sub.RuleHits)
	}
	if sub.HardHit {
		t.Error("clean memo must not fire a hard rule")
	}
	if sub.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %q, want low", sub.Confidence)
	}
}

func TestPhishingRules(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		rule     string
		wantHard bool
	}{
		{"shortener link", "tap bit.ly/abc to continue", "url_shortener", true},
		{"otp share", "please share your otp with support", "otp_share_request", true},
		{"callback number", "call back 9876543210 now", "callback_phone_number", true},
		{"urgency", "act immediately or lose access", "urgency_language", false},
		{"credential request", "confirm your pin to proceed", "credential_request", false},
		{"bank impersonation", "your account has been blocked", "bank_impersonation", false},
		{"plain url", "see https://example.com/pay for details", "url_in_memo", false},
	}

	d := NewPhishingDetector(&Registry{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := d.Score(phishingReq(tt.message))

			if !hitFired(sub.RuleHits, tt.rule) {
				t.Fatalf("rule hits %v missing %q", sub.RuleHits, tt.rule)
			}
			if sub.HardHit != tt.wantHard {
				t.Errorf("hard = %v, want %v", sub.HardHit, tt.wantHard)
			}
			if sub.Probability <= 0 {
				t.Errorf("probability = %v, want > 0", sub.Probability)
			}
		})
	}
}

func TestPhishingSuspiciousPayee(t *testing.T) {
	d := NewPhishingDetector(&Registry{})

	req := phishingReq("payment")
	req.PayeeVPA = "bank-security-verify@upi"

	sub := d.Score(req)
	if !hitFired(sub.RuleHits, "suspicious_payee_handle") {
		t.Errorf("rule hits %v missing suspicious_payee_handle", sub.RuleHits)
	}
}

func TestPhishingStackedHardRules(t *testing.T) {
	d := NewPhishingDetector(&Registry{})

	sub := d.Score(phishingReq("URGENT: verify KYC, share OTP to 9876543219, tap bit.ly/abc"))

	if sub.Probability < 0.9 {
		t.Errorf("probability = %v, want >= 0.9", sub.Probability)
	}
	if !sub.HardHit {
		t.Error("expected a hard rule fire")
	}
	if !hitFired(sub.RuleHits, "otp_share_request") || !hitFired(sub.RuleHits, "url_shortener") {
		t.Errorf("rule hits = %v, want otp_share_request and url_shortener", sub.RuleHits)
	}
	// Highest-weighted hit leads so the explainer picks it up.
	if sub.RuleHits[0] != "otp_share_request" {
		t.Errorf("leading hit = %q, want otp_share_request", sub.RuleHits[0])
	}
}

func TestPhishingWithModelBlends(t *testing.T) {
	registry := &Registry{}
	registry.phishing.Store(&LinearModel{Version: "test", Bias: -6, Weights: map[string]float64{}})

	d := NewPhishingDetector(registry)
	sub := d.Score(phishingReq("act immediately"))

	// Model says ~0, one soft rule at 0.25: blended 0.6*0 + 0.4*0.25.
	if sub.Probability < 0.09 || sub.Probability > 0.11 {
		t.Errorf("probability = %v, want ~0.1", sub.Probability)
	}
}

func TestUppercaseFraction(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"1234", 0},
		{"abcd", 0},
		{"ABCD", 1},
		{"AbCd", 0.5},
	}

	for _, tt := range tests {
		if got := uppercaseFraction(tt.in); got != tt.want {
			t.Errorf("uppercaseFraction(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		amount float64
		want   float64
	}{
		{0, 0},
		{999, 0},
		{1000, 1},
		{9999, 1},
		{10000, 2},
		{49999, 2},
		{50000, 3},
		{500000, 3},
	}

	for _, tt := range tests {
		if got := amountBucket(tt.amount); got != tt.want {
			t.Errorf("amountBucket(%v) = %v, want %v", tt.amount, got, tt.want)
		}
	}
}
