package detectors

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/upishield/fraud-screening/internal/models"
)

// Lexicons for the memo overlay. Matching is case-insensitive on the
// lowercased memo.
var (
	urgencyTerms = []string{
		"urgent", "immediately", "emergency", "locked", "suspended",
		"expire", "action required", "final notice", "last chance",
	}
	credentialTerms = []string{
		"otp", "one time password", "one-time password", "pin", "cvv",
		"password", "pwd", "kyc",
	}
	bankTerms = []string{
		"account", "bank", "security", "verification", "blocked",
		"deactivated", "unauthorized", "refund", "reward", "lottery",
	}
	shortenerHosts = []string{
		"bit.ly", "tinyurl.com", "goo.gl", "t.co", "cutt.ly",
		"rb.gy", "is.gd", "tiny.cc", "rebrand.ly",
	}
	suspiciousPayeeWords = []string{
		"verify", "security", "account", "official", "support", "service",
	}
)

var (
	urlPattern   = regexp.MustCompile(`(?i)(https?://|www\.)[^\s]+`)
	phonePattern = regexp.MustCompile(`\b[6-9][0-9]{9}\b`)
	// Digits wedged into words, the classic "b1ock"/"verif9" obfuscation.
	obfuscatedDigitPattern = regexp.MustCompile(`[a-z][0-9][a-z]`)
)

// PhishingDetector screens the free-text memo and addresses for social
// engineering patterns.
type PhishingDetector struct {
	registry *Registry
	rules    []Rule
}

func NewPhishingDetector(registry *Registry) *PhishingDetector {
	return &PhishingDetector{
		registry: registry,
		rules: []Rule{
			{
				Name:   "url_shortener",
				Weight: 0.55,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					return containsAny(strings.ToLower(req.Message), shortenerHosts)
				},
			},
			{
				Name:   "otp_share_request",
				Weight: 0.6,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					m := strings.ToLower(req.Message)
					return strings.Contains(m, "otp") &&
						(strings.Contains(m, "share") || strings.Contains(m, "tell"))
				},
			},
			{
				Name:   "callback_phone_number",
				Weight: 0.5,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					m := strings.ToLower(req.Message)
					return phonePattern.MatchString(m) && strings.Contains(m, "call back")
				},
			},
			{
				Name:   "urgency_language",
				Weight: 0.25,
				Match: func(req *models.TransactionRequest) bool {
					return containsAny(strings.ToLower(req.Message), urgencyTerms)
				},
			},
			{
				Name:   "credential_request",
				Weight: 0.3,
				Match: func(req *models.TransactionRequest) bool {
					return containsAny(strings.ToLower(req.Message), credentialTerms)
				},
			},
			{
				Name:   "bank_impersonation",
				Weight: 0.1,
				Match: func(req *models.TransactionRequest) bool {
					return countHits(strings.ToLower(req.Message), bankTerms) >= 2
				},
			},
			{
				Name:   "url_in_memo",
				Weight: 0.15,
				Match: func(req *models.TransactionRequest) bool {
					m := strings.ToLower(req.Message)
					return urlPattern.MatchString(m) || containsAny(m, shortenerHosts)
				},
			},
			{
				Name:   "suspicious_payee_handle",
				Weight: 0.1,
				Match: func(req *models.TransactionRequest) bool {
					return containsAny(strings.ToLower(req.PayeeVPA), suspiciousPayeeWords)
				},
			},
		},
	}
}

func (d *PhishingDetector) ID() string { return models.DetectorPhishing }

func (d *PhishingDetector) Ready() bool {
	return d.registry.phishing.Load() != nil
}

func (d *PhishingDetector) Score(req *models.TransactionRequest) models.Subscore {
	vec := d.extract(req)
	return score(d.ID(), d.registry.phishing.Load(), d.rules, vec, req)
}

// extract builds the phishing feature vector. Total: absent fields map to
// zero, never to an error.
func (d *PhishingDetector) extract(req *models.TransactionRequest) FeatureVector {
	memo := strings.ToLower(req.Message)

	return FeatureVector{
		{Name: "urgency_term_count", Value: float64(countHits(memo, urgencyTerms))},
		{Name: "credential_term_count", Value: float64(countHits(memo, credentialTerms))},
		{Name: "bank_term_count", Value: float64(countHits(memo, bankTerms))},
		{Name: "url_count", Value: float64(len(urlPattern.FindAllString(memo, -1)))},
		{Name: "shortener_present", Value: boolFeature(containsAny(memo, shortenerHosts))},
		{Name: "uppercase_fraction", Value: uppercaseFraction(req.Message)},
		{Name: "obfuscated_digits", Value: boolFeature(obfuscatedDigitPattern.MatchString(memo))},
		{Name: "payee_suspicious", Value: boolFeature(containsAny(strings.ToLower(req.PayeeVPA), suspiciousPayeeWords))},
		{Name: "amount_bucket", Value: amountBucket(req.Amount)},
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func countHits(s string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(s, t) {
			n++
		}
	}
	return n
}

func uppercaseFraction(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// amountBucket coarsens the amount into the buckets the models trained on.
func amountBucket(amount float64) float64 {
	switch {
	case amount < 1000:
		return 0
	case amount < 10000:
		return 1
	case amount < 50000:
		return 2
	default:
		return 3
	}
}
