package services

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"visit-verify-system/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// gpsBonusPercent is the reward bonus applied when the verification method
// is gps (best accuracy band).
const gpsBonusPercent = 25

// minAnswerLength is the shortest location-question answer accepted.
const minAnswerLength = 3

// HistoryStore is the pipeline's view of HistoryService, substitutable in
// tests.
type HistoryStore interface {
	WithUserLock(userID string, fn func() error) error
	EnsureProfile(userID string) (*models.VisitProfile, error)
	Snapshot(userID, challengeID string) (HistorySnapshot, error)
	Append(sub *models.Submission, suspicious bool) error
}

// RewardSink receives the reward signal for an approved visit.
type RewardSink interface {
	Grant(ctx context.Context, submissionID, userID, challengeID string, points int64) error
}

// VisitNotifier posts the completion summary to the social feed.
type VisitNotifier interface {
	PostVisit(ctx context.Context, userID, challengeID, businessName string) error
}

// SubmissionRequest is the intake contract.
type SubmissionRequest struct {
	ChallengeID string               `json:"challenge_id"`
	ProofType   models.ProofType     `json:"proof_type"`
	ProofData   models.ProofData     `json:"proof_data"`
	Coordinate  models.GPSCoordinate `json:"gps_coordinate"`
}

// OutcomeKind discriminates every way a pipeline run can end. Nothing
// escapes the pipeline as an unhandled fault.
type OutcomeKind string

const (
	OutcomeApproved     OutcomeKind = "approved"
	OutcomeRejected     OutcomeKind = "rejected"
	OutcomeManualReview OutcomeKind = "manual_review"
	OutcomeUnauthorized OutcomeKind = "unauthorized"
	OutcomeNotFound     OutcomeKind = "challenge_not_found"
	OutcomeTransient    OutcomeKind = "transient_error"
)

// SubmissionOutcome is the discriminated pipeline result. SubmissionID is
// set only when a submission row was persisted. Err carries the cause for
// transient failures; it is logged, not shown to the user verbatim.
type SubmissionOutcome struct {
	Kind         OutcomeKind
	SubmissionID string
	Status       models.VerificationStatus
	Message      string
	FieldErrors  []string
	Reasons      []string
	Err          error
}

// PipelineDeps is the explicit collaborator set. Every field can be a test
// double; nothing inside the pipeline reaches for ambient state.
type PipelineDeps struct {
	Validator  *CoordinateValidator
	Radius     *RadiusVerifier
	Fraud      *FraudDetector
	Challenges ChallengeStore
	History    HistoryStore
	Rewards    RewardSink
	Notifier   VisitNotifier
	Clock      Clock
	IDGen      IDGenerator
}

// SubmissionPipeline runs the ordered verification state machine:
// identity → coordinate validation → radius check → proof validation →
// fraud check → persist + history append → reward handoff → social post.
// Steps short-circuit; the history read-evaluate-append runs under the
// per-user lock.
type SubmissionPipeline struct {
	deps    PipelineDeps
	printer *message.Printer

	// SideEffectTimeout bounds the post-commit reward/notification calls.
	SideEffectTimeout time.Duration
	// syncSideEffects is flipped in tests to run side effects inline.
	syncSideEffects bool
}

func NewSubmissionPipeline(deps PipelineDeps) *SubmissionPipeline {
	return &SubmissionPipeline{
		deps:              deps,
		printer:           message.NewPrinter(language.English),
		SideEffectTimeout: 10 * time.Second,
	}
}

// Process evaluates one submission to a terminal outcome. userID comes from
// the gateway identity context; an empty id means the caller never
// authenticated and nothing is persisted.
func (p *SubmissionPipeline) Process(ctx context.Context, userID string, req SubmissionRequest) SubmissionOutcome {
	// Step 1: identity.
	if strings.TrimSpace(userID) == "" {
		return SubmissionOutcome{
			Kind:    OutcomeUnauthorized,
			Message: "Authentication required",
		}
	}

	if !models.ValidProofType(req.ProofType) {
		return SubmissionOutcome{
			Kind:        OutcomeRejected,
			Message:     "Invalid proof type",
			FieldErrors: []string{"Unknown proof type"},
		}
	}

	challenge, err := p.deps.Challenges.ActiveChallenge(req.ChallengeID)
	if errors.Is(err, ErrChallengeNotFound) {
		return SubmissionOutcome{
			Kind:    OutcomeNotFound,
			Message: "Challenge not found",
		}
	}
	if err != nil {
		return p.transient("challenge lookup", err)
	}

	// Step 2: coordinate validation.
	validation := p.deps.Validator.Validate(req.Coordinate)

	var outcome SubmissionOutcome
	lockErr := p.deps.History.WithUserLock(userID, func() error {
		if _, err := p.deps.History.EnsureProfile(userID); err != nil {
			outcome = p.transient("profile load", err)
			return nil
		}

		sub := &models.Submission{
			ID:          p.deps.IDGen.NewID(),
			ChallengeID: req.ChallengeID,
			UserID:      userID,
			ProofType:   req.ProofType,
			ProofData:   req.ProofData,
			SubmittedAt: p.deps.Clock.Now(),
		}

		if !validation.IsValid {
			sub.Latitude = req.Coordinate.Latitude
			sub.Longitude = req.Coordinate.Longitude
			sub.FraudRisk = models.FraudRiskHigh
			sub.FraudReasons = validation.Errors
			sub.DistanceMeters = -1
			outcome = p.finalize(sub, SubmissionOutcome{
				Kind:        OutcomeRejected,
				Message:     "Invalid GPS coordinates",
				FieldErrors: validation.Errors,
			})
			return nil
		}

		coord := *validation.Normalized
		// Verification sees the device's raw accuracy: rounding 0.4m up to
		// "absent" would hide an implausibly precise reading from the
		// fraud check.
		coord.Accuracy = req.Coordinate.Accuracy
		sub.Latitude = coord.Latitude
		sub.Longitude = coord.Longitude
		sub.Accuracy = coord.Accuracy
		sub.ReadingAt = coord.Timestamp

		// Step 3: radius verification.
		verdict := p.deps.Radius.Verify(coord, challenge.TargetCoordinate(), challenge.VerificationRadius)
		sub.DistanceMeters = verdict.Distance
		sub.VerificationMethod = verdict.VerificationMethod
		if !verdict.IsValid {
			sub.FraudRisk = verdict.FraudRisk
			msg := p.distanceMessage(challenge.VerificationRadius, verdict.Distance)
			sub.FraudReasons = []string{msg}
			outcome = p.finalize(sub, SubmissionOutcome{
				Kind:    OutcomeRejected,
				Message: msg,
			})
			return nil
		}

		// Step 4: proof-type structural validation.
		if fieldErrs := validateProofData(req.ProofType, req.ProofData); len(fieldErrs) > 0 {
			sub.FraudRisk = verdict.FraudRisk
			sub.FraudReasons = fieldErrs
			outcome = p.finalize(sub, SubmissionOutcome{
				Kind:        OutcomeRejected,
				Message:     "Proof data is incomplete",
				FieldErrors: fieldErrs,
			})
			return nil
		}

		// Step 5: fraud evaluation against the windowed history.
		history, err := p.deps.History.Snapshot(userID, req.ChallengeID)
		if err != nil {
			outcome = p.transient("history snapshot", err)
			return nil
		}

		fraud := p.deps.Fraud.ValidateSubmission(sub, history, challenge)
		sub.FraudRisk = fraud.FraudRisk
		sub.FraudReasons = fraud.Reasons

		if !fraud.IsValid {
			outcome = p.finalize(sub, SubmissionOutcome{
				Kind:    OutcomeRejected,
				Message: "Submission failed fraud checks",
				Reasons: fraud.Reasons,
			})
			return nil
		}

		if fraud.RecommendedAction == models.ActionReview {
			sub.VerificationStatus = models.StatusManualReview
			outcome = p.finalize(sub, SubmissionOutcome{
				Kind:    OutcomeManualReview,
				Message: "Submission pending review",
				Reasons: fraud.Reasons,
			})
			return nil
		}

		// Step 6: approve, persist, reward.
		sub.VerificationStatus = models.StatusApproved
		outcome = p.finalize(sub, SubmissionOutcome{
			Kind:    OutcomeApproved,
			Message: "Visit verified",
		})
		if outcome.Kind == OutcomeApproved {
			p.dispatchSideEffects(sub, challenge, verdict)
		}
		return nil
	})
	if lockErr != nil {
		return p.transient("user lock", lockErr)
	}
	return outcome
}

// finalize persists the evaluated submission and appends it to the user's
// history. Every completed evaluation is appended, approved or not; only
// store failures turn the result into a transient error, with nothing
// partially persisted (Append is transactional).
func (p *SubmissionPipeline) finalize(sub *models.Submission, result SubmissionOutcome) SubmissionOutcome {
	if sub.VerificationStatus == "" || sub.VerificationStatus == models.StatusPending {
		switch result.Kind {
		case OutcomeApproved:
			sub.VerificationStatus = models.StatusApproved
		case OutcomeManualReview:
			sub.VerificationStatus = models.StatusManualReview
		default:
			sub.VerificationStatus = models.StatusRejected
		}
	}

	suspicious := sub.FraudRisk == models.FraudRiskHigh
	if err := p.deps.History.Append(sub, suspicious); err != nil {
		return p.transient("submission persist", err)
	}

	result.SubmissionID = sub.ID
	result.Status = sub.VerificationStatus
	return result
}

// dispatchSideEffects hands off the reward and the social post after the
// commit. Both are best-effort with a bounded timeout; failures are logged
// and never surfaced or rolled back. The notifier gets at most one retry.
func (p *SubmissionPipeline) dispatchSideEffects(sub *models.Submission, challenge *models.ChallengeMirror, verdict RadiusVerdict) {
	points := challenge.PointsValue
	if verdict.VerificationMethod == models.VerificationMethodGPS {
		points += int64(math.Floor(float64(challenge.PointsValue) * gpsBonusPercent / 100))
	}

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.SideEffectTimeout)
		defer cancel()

		if err := p.deps.Rewards.Grant(ctx, sub.ID, sub.UserID, sub.ChallengeID, points); err != nil {
			log.Printf("⚠️ [PIPELINE] Reward handoff failed for submission %s: %v", sub.ID, err)
		}

		if err := p.deps.Notifier.PostVisit(ctx, sub.UserID, sub.ChallengeID, challenge.BusinessName); err != nil {
			log.Printf("[PIPELINE] Social post failed for submission %s, retrying once: %v", sub.ID, err)
			if err := p.deps.Notifier.PostVisit(ctx, sub.UserID, sub.ChallengeID, challenge.BusinessName); err != nil {
				log.Printf("⚠️ [PIPELINE] Social post retry failed for submission %s: %v", sub.ID, err)
			}
		}
	}

	if p.syncSideEffects {
		run()
		return
	}
	go run()
}

// distanceMessage renders the out-of-range rejection with locale-aware
// thousands grouping ("You are 226,000m away.").
func (p *SubmissionPipeline) distanceMessage(radius, distance float64) string {
	return p.printer.Sprintf("You must be within %dm of the location. You are %dm away.",
		int64(math.Round(radius)), int64(math.Round(distance)))
}

// transient wraps a dependency failure. The caller may retry the whole
// request; no partial submission was persisted.
func (p *SubmissionPipeline) transient(stage string, err error) SubmissionOutcome {
	log.Printf("❌ [PIPELINE] %s failed: %v", stage, err)
	return SubmissionOutcome{
		Kind:    OutcomeTransient,
		Message: "Temporary error, please try again",
		Err:     err,
	}
}

// validateProofData checks structural field presence per proof type. Content
// is never inspected.
func validateProofData(t models.ProofType, data models.ProofData) []string {
	var errs []string
	switch t {
	case models.ProofTypePhoto:
		if strings.TrimSpace(data.ImageURL) == "" {
			errs = append(errs, "Photo proof requires an image")
		}
	case models.ProofTypeReceipt:
		if strings.TrimSpace(data.BusinessName) == "" {
			errs = append(errs, "Receipt proof requires a business name")
		}
		if strings.TrimSpace(data.Timestamp) == "" {
			errs = append(errs, "Receipt proof requires a timestamp")
		}
		if strings.TrimSpace(data.Amount) == "" {
			errs = append(errs, "Receipt proof requires an amount")
		}
	case models.ProofTypeLocationQuestion:
		if len(strings.TrimSpace(data.Answer)) < minAnswerLength {
			errs = append(errs, "Answer is too short")
		}
	case models.ProofTypeGPSCheckin:
		// The reading itself is the proof.
	}
	return errs
}
