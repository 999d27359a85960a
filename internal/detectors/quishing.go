package detectors

import (
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/upishield/fraud-screening/internal/models"
)

var prizeTerms = []string{
	"prize", "won", "winner", "reward", "congratulations",
	"claim", "free", "gift", "bonus", "cashback",
}

// Parameter names the UPI deep-link format defines; anything else is a smell.
var standardQRParams = map[string]bool{
	"pa": true, "pn": true, "am": true, "cu": true, "tn": true,
	"mc": true, "tr": true, "tid": true, "url": true, "mode": true,
	"purpose": true, "orgid": true, "sign": true,
}

// qrInfo is the parsed view of a QR payload. A zero value means no payload.
type qrInfo struct {
	present     bool
	scheme      string
	host        string
	payee       string
	amount      float64
	hasAmount   bool
	extraParams int
}

// parseQR decodes a QR payload. Payloads may be full upi:// deep links,
// http(s) URLs, or bare query strings; parsing is total and never fails.
func parseQR(payload string) qrInfo {
	if payload == "" {
		return qrInfo{}
	}

	info := qrInfo{present: true}

	u, err := url.Parse(payload)
	if err != nil {
		return info
	}

	info.scheme = strings.ToLower(u.Scheme)
	info.host = strings.ToLower(u.Hostname())

	query := u.RawQuery
	if query == "" && u.Scheme == "" && strings.Contains(payload, "=") {
		// Bare "pa=...&am=..." payloads parse as an opaque path.
		query = payload
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return info
	}

	info.payee = strings.ToLower(values.Get("pa"))
	if am := values.Get("am"); am != "" {
		if f, err := strconv.ParseFloat(am, 64); err == nil {
			info.amount = f
			info.hasAmount = true
		}
	}
	for key := range values {
		if !standardQRParams[strings.ToLower(key)] {
			info.extraParams++
		}
	}

	return info
}

// QuishingDetector screens the QR payload for crafted-code fraud: encoded
// payees or amounts at odds with what the user believes they are paying.
type QuishingDetector struct {
	registry *Registry
	rules    []Rule
}

func NewQuishingDetector(registry *Registry) *QuishingDetector {
	return &QuishingDetector{
		registry: registry,
		rules: []Rule{
			{
				Name:   "qr_payee_mismatch",
				Weight: 0.6,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					qr := parseQR(req.QRPayload)
					return qr.payee != "" && qr.payee != strings.ToLower(req.PayeeVPA)
				},
			},
			{
				Name:   "qr_amount_mismatch",
				Weight: 0.45,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					qr := parseQR(req.QRPayload)
					if !qr.hasAmount {
						return false
					}
					if req.Amount == 0 {
						return qr.amount != 0
					}
					return math.Abs(qr.amount-req.Amount)/req.Amount > 0.01
				},
			},
			{
				Name:   "qr_scheme_not_upi",
				Weight: 0.5,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					qr := parseQR(req.QRPayload)
					return qr.present && qr.scheme != "upi"
				},
			},
			{
				Name:   "qr_host_ip_literal",
				Weight: 0.55,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					qr := parseQR(req.QRPayload)
					return qr.host != "" && net.ParseIP(qr.host) != nil
				},
			},
			{
				Name:   "qr_nonstandard_params",
				Weight: 0.2,
				Match: func(req *models.TransactionRequest) bool {
					return parseQR(req.QRPayload).extraParams > 0
				},
			},
			{
				Name:   "qr_payload_entropy",
				Weight: 0.15,
				Match: func(req *models.TransactionRequest) bool {
					return len(req.QRPayload) > 80 && entropy(req.QRPayload) > 4.5
				},
			},
			{
				Name:   "prize_language",
				Weight: 0.2,
				Match: func(req *models.TransactionRequest) bool {
					return containsAny(strings.ToLower(req.Message), prizeTerms)
				},
			},
		},
	}
}

func (d *QuishingDetector) ID() string { return models.DetectorQuishing }

func (d *QuishingDetector) Ready() bool {
	return d.registry.quishing.Load() != nil
}

func (d *QuishingDetector) Score(req *models.TransactionRequest) models.Subscore {
	vec := d.extract(req)
	return score(d.ID(), d.registry.quishing.Load(), d.rules, vec, req)
}

func (d *QuishingDetector) extract(req *models.TransactionRequest) FeatureVector {
	qr := parseQR(req.QRPayload)

	payeeMatches := 0.0
	if qr.payee != "" && qr.payee == strings.ToLower(req.PayeeVPA) {
		payeeMatches = 1
	}
	amountDelta := 0.0
	if qr.hasAmount && req.Amount > 0 {
		amountDelta = math.Abs(qr.amount-req.Amount) / req.Amount
	}

	return FeatureVector{
		{Name: "qr_present", Value: boolFeature(qr.present)},
		{Name: "scheme_upi", Value: boolFeature(qr.scheme == "upi")},
		{Name: "host_ip_literal", Value: boolFeature(qr.host != "" && net.ParseIP(qr.host) != nil)},
		{Name: "payee_matches", Value: payeeMatches},
		{Name: "amount_delta", Value: math.Min(amountDelta, 10)},
		{Name: "extra_params", Value: float64(qr.extraParams)},
		{Name: "payload_length", Value: float64(len(req.QRPayload)) / 100},
		{Name: "payload_entropy", Value: entropy(req.QRPayload)},
		{Name: "is_qr_transaction", Value: boolFeature(req.TransactionType == models.TypeQRPay)},
		{Name: "prize_language", Value: boolFeature(containsAny(strings.ToLower(req.Message), prizeTerms))},
	}
}

// entropy is the Shannon entropy of the payload bytes in bits per byte.
func entropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	h := 0.0
	n := float64(len(s))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
