package services

import (
	"time"

	"visit-verify-system/models"
)

// FraudConfig names every empirical threshold the detector uses. All values
// are env-overridable at boot (see LoadFraudConfig); the defaults match what
// the platform shipped with.
type FraudConfig struct {
	MinSubmissionInterval time.Duration // rate gate between two submissions
	MaxDailySubmissions   int64         // cap over the trailing 24 hours
	MaxTravelSpeedKmh     float64       // commercial-flight ceiling → reject
	HighTravelSpeedKmh    float64       // brisk-vehicle threshold → medium flag
	MinPlausibleAccuracy  float64       // meters; below this no consumer GPS goes
	PatternWindow         int           // how many recent submissions the monotony check sees
	PatternThreshold      int           // same proof type this many times in the window → flag
}

var DefaultFraudConfig = FraudConfig{
	MinSubmissionInterval: 60 * time.Second,
	MaxDailySubmissions:   50,
	MaxTravelSpeedKmh:     900,
	HighTravelSpeedKmh:    120,
	MinPlausibleAccuracy:  1,
	PatternWindow:         15,
	PatternThreshold:      10,
}

// simulatorAnchors are coordinates emulators and spoofing apps report out of
// the box. A submission sitting exactly on one is never a real visit.
var simulatorAnchors = []models.GPSCoordinate{
	{Latitude: 0, Longitude: 0},                   // null island
	{Latitude: 37.4219983, Longitude: -122.084},   // Android emulator default
	{Latitude: 37.785834, Longitude: -122.406417}, // iOS simulator default
}

// HistorySnapshot is the windowed view of a user's prior submissions the
// detector evaluates against. Built by HistoryService with store-level
// filters; the full history is never loaded.
type HistorySnapshot struct {
	// Recent holds the newest submissions first, capped at PatternWindow.
	Recent []models.Submission
	// CountLast24h counts submissions in the trailing 24 hours.
	CountLast24h int64
	// HasChallenge is true when any prior submission targets the same challenge.
	HasChallenge bool
	// LastSubmissionAt is the previous submission's intake time, if any.
	LastSubmissionAt *time.Time
}

// FraudVerdict aggregates every triggered signal.
type FraudVerdict struct {
	IsValid           bool                     `json:"is_valid"`
	FraudRisk         models.FraudRisk         `json:"fraud_risk"`
	RecommendedAction models.RecommendedAction `json:"recommended_action"`
	Reasons           []string                 `json:"reasons,omitempty"`
}

// FraudDetector scores a submission against the user's history using
// independent signals. Every signal runs; every triggered signal adds its
// reason, so a spoofed, rate-limited submission reports both.
type FraudDetector struct {
	cfg FraudConfig
}

func NewFraudDetector(cfg FraudConfig) *FraudDetector {
	return &FraudDetector{cfg: cfg}
}

// ValidateSubmission evaluates all signals and aggregates: any reject-class
// signal → invalid/high/reject; otherwise valid, risk is the highest tier a
// flag raised, and the action is approve at low risk, review above.
func (d *FraudDetector) ValidateSubmission(sub *models.Submission, history HistorySnapshot, challenge *models.ChallengeMirror) FraudVerdict {
	var reasons []string
	rejected := false
	risk := models.FraudRiskLow

	flag := func(reason string, tier models.FraudRisk) {
		reasons = append(reasons, reason)
		if tier.Exceeds(risk) {
			risk = tier
		}
	}
	reject := func(reason string) {
		reasons = append(reasons, reason)
		rejected = true
	}

	coord := sub.Coordinate()

	// Signal 1: exact coordinate match against the target or a simulator anchor.
	if coordinatesEqual(coord, challenge.TargetCoordinate()) {
		reject("Exact coordinate match suggests GPS spoofing")
	} else {
		for _, anchor := range simulatorAnchors {
			if coordinatesEqual(coord, anchor) {
				reject("Exact coordinate match suggests GPS spoofing")
				break
			}
		}
	}

	// Signal 2: implied travel speed from the most recent prior submission.
	if len(history.Recent) > 0 {
		prev := history.Recent[0].Coordinate()
		if v := Speed(prev, coord); v != nil {
			kmh := *v * 3.6
			if kmh > d.cfg.MaxTravelSpeedKmh {
				reject("Impossible travel speed detected")
			} else if kmh > d.cfg.HighTravelSpeedKmh {
				flag("High travel speed detected", models.FraudRiskMedium)
			}
		}
	}

	// Signal 3: duplicate challenge.
	if history.HasChallenge {
		reject("Duplicate challenge submission detected")
	}

	// Signal 4: rate gate.
	if history.LastSubmissionAt != nil &&
		sub.SubmittedAt.Sub(*history.LastSubmissionAt) < d.cfg.MinSubmissionInterval {
		reject("Submissions too close together")
	}

	// Signal 5: daily cap.
	if history.CountLast24h >= d.cfg.MaxDailySubmissions {
		reject("Exceeded maximum daily submissions")
	}

	// Signal 6: proof-type monotony. An automation smell, not a rejection.
	if d.proofTypeMonotonous(sub.ProofType, history.Recent) {
		flag("Suspicious proof type pattern", models.FraudRiskMedium)
	}

	// Signal 7: accuracy tighter than consumer GPS can deliver.
	if coord.HasAccuracy() && coord.Accuracy < d.cfg.MinPlausibleAccuracy {
		reject("Unrealistically high GPS accuracy")
	}

	if rejected {
		return FraudVerdict{
			IsValid:           false,
			FraudRisk:         models.FraudRiskHigh,
			RecommendedAction: models.ActionReject,
			Reasons:           reasons,
		}
	}

	action := models.ActionApprove
	if risk.Exceeds(models.FraudRiskLow) {
		action = models.ActionReview
	}
	return FraudVerdict{
		IsValid:           true,
		FraudRisk:         risk,
		RecommendedAction: action,
		Reasons:           reasons,
	}
}

// proofTypeMonotonous counts the submission's own proof type across the most
// recent window, including the submission itself.
func (d *FraudDetector) proofTypeMonotonous(t models.ProofType, recent []models.Submission) bool {
	if len(recent)+1 < d.cfg.PatternThreshold {
		return false
	}
	window := recent
	if len(window) > d.cfg.PatternWindow-1 {
		window = window[:d.cfg.PatternWindow-1]
	}
	count := 1 // the current submission
	for _, s := range window {
		if s.ProofType == t {
			count++
		}
	}
	return count >= d.cfg.PatternThreshold
}

// coordinatesEqual compares at full stored precision. Near-exact matches
// (fewer matching decimals) are intentionally not caught.
func coordinatesEqual(a, b models.GPSCoordinate) bool {
	return a.Latitude == b.Latitude && a.Longitude == b.Longitude
}
