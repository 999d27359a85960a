package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/upishield/fraud-screening/internal/detectors"
	"github.com/upishield/fraud-screening/internal/models"
)

func TestExplainCleanTransaction(t *testing.T) {
	settings := testSettings()
	req := hitlReq(500)
	dec := decision(100, models.ActionAllow, subs(0, 0, 0, 0))

	exp := Explain(settings, req, dec)

	if len(exp.Reasons) != 0 {
		t.Errorf("reasons = %v, want none", exp.Reasons)
	}
	if exp.RiskLevel != models.RiskLevelLow {
		t.Errorf("risk level = %q, want LOW", exp.RiskLevel)
	}
	if len(exp.FeatureImportance) != 0 {
		t.Errorf("feature importance = %v, want none", exp.FeatureImportance)
	}

	// Zero total risk falls back to an equal nominal share per detector.
	sum := 0.0
	for id, share := range exp.RiskBreakdown {
		if share != 0.25 {
			t.Errorf("breakdown[%s] = %v, want 0.25", id, share)
		}
		sum += share
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("breakdown sums to %v, want 1", sum)
	}
}

func TestExplainReasonThreshold(t *testing.T) {
	settings := testSettings()
	req := hitlReq(500)

	exp := Explain(settings, req, decision(93, models.ActionAllow, subs(0.29, 0, 0, 0)))
	if len(exp.Reasons) != 0 {
		t.Errorf("sub-threshold detector produced reasons: %v", exp.Reasons)
	}

	exp = Explain(settings, req, decision(92, models.ActionAllow, subs(0.3, 0, 0, 0)))
	if len(exp.Reasons) != 1 {
		t.Fatalf("reasons = %v, want exactly one", exp.Reasons)
	}
	if !strings.Contains(exp.Reasons[0], "phishing") {
		t.Errorf("reason %q does not name the phishing detector", exp.Reasons[0])
	}
}

func TestExplainIncludesTopRuleHit(t *testing.T) {
	settings := testSettings()
	subscores := subs(0.9, 0, 0, 0)
	subscores[0].RuleHits = []string{"otp_share_request", "urgency_language"}
	subscores[0].HardHit = true

	exp := Explain(settings, hitlReq(500), decision(20, models.ActionBlock, subscores))

	if len(exp.Reasons) == 0 || !strings.Contains(exp.Reasons[0], "(otp_share_request)") {
		t.Errorf("reasons = %v, want leading reason naming otp_share_request", exp.Reasons)
	}
}

func TestExplainSkipsTimeoutToken(t *testing.T) {
	settings := testSettings()
	subscores := subs(0.5, 0, 0, 0)
	subscores[0].RuleHits = []string{detectors.RuleTimeout}

	exp := Explain(settings, hitlReq(500), decision(88, models.ActionAllow, subscores))

	if len(exp.Reasons) != 1 {
		t.Fatalf("reasons = %v, want one", exp.Reasons)
	}
	if strings.Contains(exp.Reasons[0], detectors.RuleTimeout) {
		t.Errorf("reason %q leaks the timeout token", exp.Reasons[0])
	}
}

func TestExplainOrdersReasonsByContribution(t *testing.T) {
	settings := testSettings()
	subscores := subs(0.4, 0.9, 0, 0)

	exp := Explain(settings, hitlReq(500), decision(68, models.ActionAllow, subscores))

	if len(exp.Reasons) != 2 {
		t.Fatalf("reasons = %v, want two", exp.Reasons)
	}
	if !strings.Contains(exp.Reasons[0], "QR") {
		t.Errorf("leading reason %q should come from the higher-contributing detector", exp.Reasons[0])
	}
}

func TestExplainShapeReasons(t *testing.T) {
	settings := testSettings()

	req := hitlReq(75000)
	req.PayeeNew = 1
	req.TransactionType = models.TypeCollect

	exp := Explain(settings, req, decision(30, models.ActionBlock, subs(0.8, 0, 0, 0)))

	joined := strings.Join(exp.Reasons, " | ")
	if !strings.Contains(joined, "first-time payee") {
		t.Errorf("reasons %v missing large-amount shape reason", exp.Reasons)
	}
	if !strings.Contains(joined, "collect") {
		t.Errorf("reasons %v missing collect shape reason", exp.Reasons)
	}

	// Shape reasons only accompany detector reasons, never stand alone.
	exp = Explain(settings, req, decision(100, models.ActionAllow, subs(0, 0, 0, 0)))
	if len(exp.Reasons) != 0 {
		t.Errorf("shape-only reasons emitted: %v", exp.Reasons)
	}
}

func TestRiskBreakdownShares(t *testing.T) {
	settings := testSettings()

	breakdown := riskBreakdown(settings, subs(0.6, 0.2, 0, 0))

	if math.Abs(breakdown[models.DetectorPhishing]-0.75) > 1e-9 {
		t.Errorf("phishing share = %v, want 0.75", breakdown[models.DetectorPhishing])
	}
	if math.Abs(breakdown[models.DetectorQuishing]-0.25) > 1e-9 {
		t.Errorf("quishing share = %v, want 0.25", breakdown[models.DetectorQuishing])
	}

	sum := 0.0
	for _, share := range breakdown {
		sum += share
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("shares sum to %v, want 1", sum)
	}
}

func TestFeatureImportanceMergesAndNormalizes(t *testing.T) {
	subscores := subs(0.5, 0.5, 0, 0)
	subscores[0].TopFeatures = []models.FeatureWeight{
		{Name: "url_count", Importance: 0.6},
		{Name: "urgency_term_count", Importance: 0.2},
	}
	subscores[1].TopFeatures = []models.FeatureWeight{
		{Name: "url_count", Importance: 0.4},
		{Name: "qr_entropy", Importance: 0.2},
	}
	// Below threshold, ignored entirely.
	subscores[2].TopFeatures = []models.FeatureWeight{{Name: "noise", Importance: 0.9}}

	out := featureImportance(subscores)

	if len(out) != 3 {
		t.Fatalf("merged features = %v, want 3", out)
	}
	if out[0].Name != "url_count" {
		t.Errorf("top feature = %q, want url_count (dedupe keeps the max)", out[0].Name)
	}

	sum := 0.0
	for _, fw := range out {
		sum += fw.Importance
		if fw.Name == "noise" {
			t.Error("feature from a sub-threshold detector leaked in")
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances sum to %v, want 1", sum)
	}
}

func TestRiskLevelBands(t *testing.T) {
	tests := []struct {
		trust int
		want  string
	}{
		{100, models.RiskLevelLow},
		{81, models.RiskLevelLow},
		{80, models.RiskLevelLowMedium},
		{61, models.RiskLevelLowMedium},
		{60, models.RiskLevelMedium},
		{41, models.RiskLevelMedium},
		{40, models.RiskLevelHigh},
		{21, models.RiskLevelHigh},
		{20, models.RiskLevelCritical},
		{0, models.RiskLevelCritical},
	}

	for _, tt := range tests {
		if got := riskLevel(tt.trust); got != tt.want {
			t.Errorf("riskLevel(%d) = %q, want %q", tt.trust, got, tt.want)
		}
	}
}

func TestExplainCapsReasons(t *testing.T) {
	settings := testSettings()

	req := hitlReq(75000)
	req.PayeeNew = 1
	req.TransactionType = models.TypeCollect

	subscores := subs(0.9, 0.9, 0.9, 0.9)
	for i := range subscores {
		subscores[i].RuleHits = []string{"hit"}
	}

	exp := Explain(settings, req, decision(10, models.ActionBlock, subscores))

	if len(exp.Reasons) > maxReasons {
		t.Errorf("reasons = %d entries, want at most %d", len(exp.Reasons), maxReasons)
	}
}
