package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"visit-verify-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}

type fakeChallengeStore struct {
	byID map[string]*models.ChallengeMirror
}

func (s *fakeChallengeStore) ActiveChallenge(id string) (*models.ChallengeMirror, error) {
	if ch, ok := s.byID[id]; ok && ch.Active {
		return ch, nil
	}
	return nil, ErrChallengeNotFound
}

type fakeHistoryStore struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	profiles map[string]*models.VisitProfile
	appended []models.Submission
	clock    Clock

	failAppend bool
}

func newFakeHistory(clock Clock) *fakeHistoryStore {
	return &fakeHistoryStore{
		locks:    make(map[string]*sync.Mutex),
		profiles: make(map[string]*models.VisitProfile),
		clock:    clock,
	}
}

func (h *fakeHistoryStore) WithUserLock(userID string, fn func() error) error {
	h.mu.Lock()
	lock, ok := h.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[userID] = lock
	}
	h.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (h *fakeHistoryStore) EnsureProfile(userID string) (*models.VisitProfile, error) {
	if p, ok := h.profiles[userID]; ok {
		return p, nil
	}
	p := &models.VisitProfile{ID: "profile-" + userID, UserID: userID}
	h.profiles[userID] = p
	return p, nil
}

func (h *fakeHistoryStore) Snapshot(userID, challengeID string) (HistorySnapshot, error) {
	var snap HistorySnapshot
	since := h.clock.Now().Add(-24 * time.Hour)
	for i := len(h.appended) - 1; i >= 0; i-- {
		sub := h.appended[i]
		if sub.UserID != userID {
			continue
		}
		if len(snap.Recent) < DefaultFraudConfig.PatternWindow {
			snap.Recent = append(snap.Recent, sub)
		}
		if !sub.SubmittedAt.Before(since) {
			snap.CountLast24h++
		}
		if sub.ChallengeID == challengeID {
			snap.HasChallenge = true
		}
	}
	if p, ok := h.profiles[userID]; ok {
		snap.LastSubmissionAt = p.LastSubmissionAt
	}
	return snap, nil
}

func (h *fakeHistoryStore) Append(sub *models.Submission, suspicious bool) error {
	if h.failAppend {
		return errors.New("store unavailable")
	}
	h.appended = append(h.appended, *sub)
	p := h.profiles[sub.UserID]
	p.TotalSubmissions++
	if suspicious {
		p.SuspiciousActivityCount++
	}
	at := sub.SubmittedAt
	p.LastSubmissionAt = &at
	p.Revision++
	return nil
}

type grantCall struct {
	SubmissionID string
	UserID       string
	ChallengeID  string
	Points       int64
}

type fakeRewardSink struct {
	mu     sync.Mutex
	grants []grantCall
	err    error
}

func (s *fakeRewardSink) Grant(_ context.Context, submissionID, userID, challengeID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.grants = append(s.grants, grantCall{submissionID, userID, challengeID, points})
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	calls     int
	failCalls int // fail the first N calls
}

func (n *fakeNotifier) PostVisit(_ context.Context, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.calls <= n.failCalls {
		return errors.New("feed unavailable")
	}
	return nil
}

// --- fixture ---

type pipelineFixture struct {
	clock    *stepClock
	history  *fakeHistoryStore
	rewards  *fakeRewardSink
	notifier *fakeNotifier
	pipeline *SubmissionPipeline
}

func newPipelineFixture() *pipelineFixture {
	clock := &stepClock{t: testNow}
	history := newFakeHistory(clock)
	rewards := &fakeRewardSink{}
	notifier := &fakeNotifier{}

	challenges := &fakeChallengeStore{byID: map[string]*models.ChallengeMirror{
		"ch-detroit": {
			ChallengeID: "ch-detroit", BusinessName: "Anchor Coffee",
			Latitude: 42.3314, Longitude: -83.0458,
			VerificationRadius: 100, PointsValue: 100, Active: true,
		},
		"ch-grand-rapids": {
			ChallengeID: "ch-grand-rapids", BusinessName: "Riverside Deli",
			Latitude: 42.9634, Longitude: -85.6681,
			VerificationRadius: 100, PointsValue: 80, Active: true,
		},
	}}

	p := NewSubmissionPipeline(PipelineDeps{
		Validator:  NewCoordinateValidator(clock),
		Radius:     NewRadiusVerifier(DefaultRadiusConfig),
		Fraud:      NewFraudDetector(DefaultFraudConfig),
		Challenges: challenges,
		History:    history,
		Rewards:    rewards,
		Notifier:   notifier,
		Clock:      clock,
		IDGen:      &seqIDGen{},
	})
	p.syncSideEffects = true

	return &pipelineFixture{clock: clock, history: history, rewards: rewards, notifier: notifier, pipeline: p}
}

func checkinRequest(challengeID string, lat, lon, accuracy float64) SubmissionRequest {
	return SubmissionRequest{
		ChallengeID: challengeID,
		ProofType:   models.ProofTypeGPSCheckin,
		Coordinate:  models.GPSCoordinate{Latitude: lat, Longitude: lon, Accuracy: accuracy},
	}
}

// --- tests ---

func TestPipelineUnauthenticated(t *testing.T) {
	f := newPipelineFixture()

	outcome := f.pipeline.Process(context.Background(), "", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeUnauthorized, outcome.Kind)
	assert.Empty(t, outcome.SubmissionID)
	assert.Empty(t, f.history.appended, "nothing may be persisted without identity")
}

func TestPipelineUnknownChallenge(t *testing.T) {
	f := newPipelineFixture()

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-nope", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeNotFound, outcome.Kind)
	assert.Empty(t, f.history.appended)
}

func TestPipelineInvalidCoordinates(t *testing.T) {
	f := newPipelineFixture()

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 91, 0, 20))

	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Equal(t, models.StatusRejected, outcome.Status)
	assert.Contains(t, outcome.FieldErrors, "Latitude must be between -90 and 90 degrees")

	require.Len(t, f.history.appended, 1)
	assert.Equal(t, models.StatusRejected, f.history.appended[0].VerificationStatus)
}

func TestPipelineOutOfRadius(t *testing.T) {
	f := newPipelineFixture()

	// Standing in Grand Rapids, checking in to the Detroit challenge.
	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.9634, -85.6681, 20))

	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.True(t, strings.HasPrefix(outcome.Message, "You must be within 100m of the location. You are "), outcome.Message)
	assert.True(t, strings.HasSuffix(outcome.Message, "m away."), outcome.Message)
	assert.Contains(t, outcome.Message, ",", "distance uses thousands grouping")
	assert.Empty(t, f.rewards.grants)
}

func TestPipelineIncompleteReceipt(t *testing.T) {
	f := newPipelineFixture()

	req := SubmissionRequest{
		ChallengeID: "ch-detroit",
		ProofType:   models.ProofTypeReceipt,
		ProofData:   models.ProofData{BusinessName: "Anchor Coffee", Timestamp: "2025-06-01T11:58:00Z"},
		Coordinate:  models.GPSCoordinate{Latitude: 42.33145, Longitude: -83.04585, Accuracy: 20},
	}
	outcome := f.pipeline.Process(context.Background(), "user-1", req)

	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Contains(t, outcome.FieldErrors, "Receipt proof requires an amount")
}

func TestPipelineApprovedWithGPSBonus(t *testing.T) {
	f := newPipelineFixture()

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeApproved, outcome.Kind)
	assert.Equal(t, models.StatusApproved, outcome.Status)
	assert.NotEmpty(t, outcome.SubmissionID)

	require.Len(t, f.rewards.grants, 1)
	grant := f.rewards.grants[0]
	assert.Equal(t, outcome.SubmissionID, grant.SubmissionID)
	assert.Equal(t, "user-1", grant.UserID)
	assert.Equal(t, int64(125), grant.Points, "100 base + 25% gps bonus")

	assert.Equal(t, 1, f.notifier.calls)

	require.Len(t, f.history.appended, 1)
	assert.Equal(t, models.StatusApproved, f.history.appended[0].VerificationStatus)
	assert.Equal(t, int64(1), f.history.profiles["user-1"].TotalSubmissions)
}

func TestPipelineNetworkAccuracyNoBonus(t *testing.T) {
	f := newPipelineFixture()

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 300))

	assert.Equal(t, OutcomeApproved, outcome.Kind)
	require.Len(t, f.rewards.grants, 1)
	assert.Equal(t, int64(100), f.rewards.grants[0].Points)
}

func TestPipelineFirstSubmissionUnrealisticAccuracy(t *testing.T) {
	f := newPipelineFixture()

	// Inside the radius, first ever submission: still rejected for the
	// sub-meter accuracy claim.
	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 0.1))

	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Contains(t, outcome.Reasons, "Unrealistically high GPS accuracy")
}

func TestPipelineDuplicateChallenge(t *testing.T) {
	f := newPipelineFixture()

	first := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))
	require.Equal(t, OutcomeApproved, first.Kind)

	f.clock.Advance(2 * time.Hour)
	second := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33144, -83.04586, 20))

	assert.Equal(t, OutcomeRejected, second.Kind)
	assert.Contains(t, second.Reasons, "Duplicate challenge submission detected")
	assert.Len(t, f.rewards.grants, 1, "no reward for the duplicate")
}

func TestPipelineImpossibleTravelRejected(t *testing.T) {
	f := newPipelineFixture()

	first := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))
	require.Equal(t, OutcomeApproved, first.Kind)

	// 226 km in five minutes.
	f.clock.Advance(5 * time.Minute)
	second := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-grand-rapids", 42.96345, -85.66805, 20))

	assert.Equal(t, OutcomeRejected, second.Kind)
	assert.Contains(t, second.Reasons, "Impossible travel speed detected")
}

func TestPipelineElevatedRiskGoesToReview(t *testing.T) {
	f := newPipelineFixture()

	first := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))
	require.Equal(t, OutcomeApproved, first.Kind)

	// 226 km in one hour: fast, not impossible.
	f.clock.Advance(time.Hour)
	second := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-grand-rapids", 42.96345, -85.66805, 20))

	assert.Equal(t, OutcomeManualReview, second.Kind)
	assert.Equal(t, models.StatusManualReview, second.Status)
	assert.Contains(t, second.Reasons, "High travel speed detected")
	assert.Len(t, f.rewards.grants, 1, "review outcomes earn nothing yet")
}

func TestPipelineDailyCap(t *testing.T) {
	f := newPipelineFixture()

	// Seed 50 prior submissions inside the trailing 24 hours.
	base := f.clock.Now().Add(-23 * time.Hour)
	for i := 0; i < 50; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.history.appended = append(f.history.appended, models.Submission{
			ID: fmt.Sprintf("seed-%d", i), UserID: "user-1",
			ChallengeID: fmt.Sprintf("ch-seed-%d", i),
			ProofType:   models.ProofTypePhoto,
			Latitude:    42.33145, Longitude: -83.04585,
			SubmittedAt: at,
		})
	}
	last := base.Add(49 * time.Minute)
	profile, _ := f.history.EnsureProfile("user-1")
	profile.TotalSubmissions = 50
	profile.LastSubmissionAt = &last

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Contains(t, outcome.Reasons, "Exceeded maximum daily submissions")
}

func TestPipelineNotifierFailureKeepsApproval(t *testing.T) {
	f := newPipelineFixture()
	f.notifier.failCalls = 99

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeApproved, outcome.Kind)
	assert.Equal(t, 2, f.notifier.calls, "one attempt plus one retry, never more")
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, models.StatusApproved, f.history.appended[0].VerificationStatus)
}

func TestPipelineRewardFailureKeepsApproval(t *testing.T) {
	f := newPipelineFixture()
	f.rewards.err = errors.New("ledger down")

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeApproved, outcome.Kind)
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, models.StatusApproved, f.history.appended[0].VerificationStatus)
}

func TestPipelineStoreFailureIsTransient(t *testing.T) {
	f := newPipelineFixture()
	f.history.failAppend = true

	outcome := f.pipeline.Process(context.Background(), "user-1", checkinRequest("ch-detroit", 42.33145, -83.04585, 20))

	assert.Equal(t, OutcomeTransient, outcome.Kind)
	assert.Error(t, outcome.Err)
	assert.Empty(t, f.rewards.grants)
}

func TestPipelineSerializesSameUser(t *testing.T) {
	f := newPipelineFixture()

	// Two simultaneous submissions from one user: the per-user lock forces
	// the second to see the first in history and trip the rate gate.
	var wg sync.WaitGroup
	outcomes := make([]SubmissionOutcome, 2)
	requests := []SubmissionRequest{
		checkinRequest("ch-detroit", 42.33145, -83.04585, 20),
		checkinRequest("ch-grand-rapids", 42.96345, -85.66805, 20),
	}
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.pipeline.Process(context.Background(), "user-1", requests[i])
		}(i)
	}
	wg.Wait()

	approved, rejected := 0, 0
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeApproved:
			approved++
		case OutcomeRejected:
			assert.Contains(t, o.Reasons, "Submissions too close together")
			rejected++
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, rejected)
	assert.Len(t, f.history.appended, 2)
}
