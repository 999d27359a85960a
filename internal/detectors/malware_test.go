package detectors

import (
	"testing"

	"github.com/upishield/fraud-screening/internal/models"
)

func postureReq(p *models.DevicePosture) *models.TransactionRequest {
	return &models.TransactionRequest{
		TransactionID:   "txn-malware-1",
		PayerVPA:        "payer@bank",
		PayeeVPA:        "friend@bank",
		Amount:          500,
		TransactionType: models.TypePay,
		DevicePosture:   p,
	}
}

func TestMalwareNoPosture(t *testing.T) {
	d := NewMalwareDetector(&Registry{})

	sub := d.Score(postureReq(nil))

	if sub.Probability != 0 {
		t.Errorf("probability = %v, want 0", sub.Probability)
	}
	if len(sub.RuleHits) != 0 {
		t.Errorf("rule hits = %v, want none", sub.RuleHits)
	}
}

func TestMalwareDebuggerWithAccessibility(t *testing.T) {
	d := NewMalwareDetector(&Registry{})

	sub := d.Score(postureReq(&models.DevicePosture{
		DebuggerAttached:           true,
		AccessibilityServiceActive: true,
	}))

	if sub.Probability < 0.9 {
		t.Errorf("probability = %v, want >= 0.9", sub.Probability)
	}
	if !sub.HardHit {
		t.Error("debugger is a hard signal")
	}
	if sub.RuleHits[0] != "debugger_attached" {
		t.Errorf("leading hit = %q, want debugger_attached", sub.RuleHits[0])
	}
}

func TestMalwareSideloadWithAccessibility(t *testing.T) {
	d := NewMalwareDetector(&Registry{})

	sub := d.Score(postureReq(&models.DevicePosture{
		RecentSideload:             true,
		AccessibilityServiceActive: true,
	}))

	if !hitFired(sub.RuleHits, "sideload_with_accessibility") {
		t.Errorf("rule hits %v missing sideload_with_accessibility", sub.RuleHits)
	}
	if !sub.HardHit {
		t.Error("sideload plus accessibility is a hard signal")
	}
}

func TestMalwareSideloadAloneIsSoft(t *testing.T) {
	d := NewMalwareDetector(&Registry{})

	sub := d.Score(postureReq(&models.DevicePosture{RecentSideload: true}))

	if sub.HardHit {
		t.Error("sideload alone must not be hard")
	}
	if !hitFired(sub.RuleHits, "recent_sideload") {
		t.Errorf("rule hits %v missing recent_sideload", sub.RuleHits)
	}
	if hitFired(sub.RuleHits, "sideload_with_accessibility") {
		t.Errorf("combined rule fired without accessibility: %v", sub.RuleHits)
	}
}

func TestMalwareOverlaySoftSignals(t *testing.T) {
	d := NewMalwareDetector(&Registry{})

	sub := d.Score(postureReq(&models.DevicePosture{
		ScreenOverlayActive: true,
		SuspiciousAppFlag:   true,
	}))

	if sub.HardHit {
		t.Error("soft signals must not set the hard flag")
	}
	if !hitFired(sub.RuleHits, "screen_overlay_active") || !hitFired(sub.RuleHits, "suspicious_app_installed") {
		t.Errorf("rule hits = %v, want overlay and suspicious app", sub.RuleHits)
	}
}

func TestAppCountBucket(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 1},
		{49, 1},
		{50, 2},
		{149, 2},
		{150, 3},
		{400, 3},
	}

	for _, tt := range tests {
		if got := appCountBucket(tt.n); got != tt.want {
			t.Errorf("appCountBucket(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}
