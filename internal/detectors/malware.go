package detectors

import (
	"github.com/upishield/fraud-screening/internal/models"
)

// MalwareDetector screens the client-supplied device-posture bundle for
// compromise signals. It consumes posture flags only; it never inspects the
// device itself.
type MalwareDetector struct {
	registry *Registry
	rules    []Rule
}

func NewMalwareDetector(registry *Registry) *MalwareDetector {
	return &MalwareDetector{
		registry: registry,
		rules: []Rule{
			{
				Name:   "debugger_attached",
				Weight: 0.75,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					return req.DevicePosture != nil && req.DevicePosture.DebuggerAttached
				},
			},
			{
				Name:   "sideload_with_accessibility",
				Weight: 0.65,
				Hard:   true,
				Match: func(req *models.TransactionRequest) bool {
					p := req.DevicePosture
					return p != nil && p.RecentSideload && p.AccessibilityServiceActive
				},
			},
			{
				Name:   "suspicious_app_installed",
				Weight: 0.3,
				Match: func(req *models.TransactionRequest) bool {
					return req.DevicePosture != nil && req.DevicePosture.SuspiciousAppFlag
				},
			},
			{
				Name:   "screen_overlay_active",
				Weight: 0.25,
				Match: func(req *models.TransactionRequest) bool {
					return req.DevicePosture != nil && req.DevicePosture.ScreenOverlayActive
				},
			},
			{
				Name:   "accessibility_service_active",
				Weight: 0.2,
				Match: func(req *models.TransactionRequest) bool {
					return req.DevicePosture != nil && req.DevicePosture.AccessibilityServiceActive
				},
			},
			{
				Name:   "recent_sideload",
				Weight: 0.2,
				Match: func(req *models.TransactionRequest) bool {
					return req.DevicePosture != nil && req.DevicePosture.RecentSideload
				},
			},
		},
	}
}

func (d *MalwareDetector) ID() string { return models.DetectorMalware }

func (d *MalwareDetector) Ready() bool {
	return d.registry.malware.Load() != nil
}

func (d *MalwareDetector) Score(req *models.TransactionRequest) models.Subscore {
	vec := d.extract(req)
	return score(d.ID(), d.registry.malware.Load(), d.rules, vec, req)
}

func (d *MalwareDetector) extract(req *models.TransactionRequest) FeatureVector {
	p := req.DevicePosture
	if p == nil {
		p = &models.DevicePosture{}
	}

	return FeatureVector{
		{Name: "debugger_attached", Value: boolFeature(p.DebuggerAttached)},
		{Name: "recent_sideload", Value: boolFeature(p.RecentSideload)},
		{Name: "accessibility_active", Value: boolFeature(p.AccessibilityServiceActive)},
		{Name: "overlay_active", Value: boolFeature(p.ScreenOverlayActive)},
		{Name: "suspicious_app", Value: boolFeature(p.SuspiciousAppFlag)},
		{Name: "app_count_bucket", Value: appCountBucket(p.InstalledAppCount)},
	}
}

func appCountBucket(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n < 50:
		return 1
	case n < 150:
		return 2
	default:
		return 3
	}
}
