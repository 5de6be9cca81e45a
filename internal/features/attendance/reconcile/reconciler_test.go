package reconcile

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/platform/ledger"
)

// stubGateway serves a scripted sequence of profile fetch results.
type stubGateway struct {
	ledger.Gateway

	mu      sync.Mutex
	results []fetchResult
	calls   int
	clock   int64
}

func (s *stubGateway) FetchClock(ctx context.Context) (int64, error) {
	if s.clock == 0 {
		return 0, apperrors.NewTransportError("clock", assert.AnError)
	}
	return s.clock, nil
}

type fetchResult struct {
	profile *models.Profile
	err     error
}

func (s *stubGateway) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubGateway) FetchProfile(ctx context.Context, addr derive.Address) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	if r.err != nil {
		return nil, r.err
	}
	clone := *r.profile
	return &clone, nil
}

const testNow = int64(19723*86400 + 7200)

func testReconciler(t *testing.T, gw ledger.Gateway) *Reconciler {
	t.Helper()
	program, err := derive.Parse("3QX9pzZwbd7uNmvBqiPW8YAV8ECV9v2v77L5pwGaSRAg")
	require.NoError(t, err)

	r := NewReconciler(gw, derive.NewDeriver(program), Config{Retries: 3, Backoff: time.Millisecond}, zerolog.Nop())
	r.SetClock(func() int64 { return testNow })
	return r
}

func testIdentity(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestResolveUnregistered(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{err: apperrors.NewNotFoundError("profile", "x")},
	}}

	rs, err := testReconciler(t, gw).Resolve(context.Background(), testIdentity(t))
	require.NoError(t, err)
	assert.False(t, rs.Registered)
	assert.True(t, rs.Confirmed)
	assert.Equal(t, StateUnregistered, StateFor(rs))
}

func TestResolveCheckedInToday(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 4, LastCheckIn: testNow - 60, Registered: true}},
	}}

	rs, err := testReconciler(t, gw).Resolve(context.Background(), testIdentity(t))
	require.NoError(t, err)
	assert.True(t, rs.Registered)
	assert.True(t, rs.CheckedInToday)
	assert.Equal(t, StateCheckedInToday, StateFor(rs))
}

func TestResolveCheckedInYesterday(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 4, LastCheckIn: testNow - derive.SecondsPerDay, Registered: true}},
	}}

	rs, err := testReconciler(t, gw).Resolve(context.Background(), testIdentity(t))
	require.NoError(t, err)
	assert.False(t, rs.CheckedInToday)
	assert.Equal(t, StateRegisteredConfirmed, StateFor(rs))
}

func TestResolveTakesTodayFromLedgerClock(t *testing.T) {
	// LastCheckIn is "today" by the ledger clock but not by the local one;
	// the day bucket must follow the ledger.
	gw := &stubGateway{
		clock: testNow,
		results: []fetchResult{
			{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 4, LastCheckIn: testNow - 60, Registered: true}},
		},
	}

	program, err := derive.Parse("3QX9pzZwbd7uNmvBqiPW8YAV8ECV9v2v77L5pwGaSRAg")
	require.NoError(t, err)
	r := NewReconciler(gw, derive.NewDeriver(program), Config{Retries: 3, Backoff: time.Millisecond}, zerolog.Nop())

	rs, err := r.Resolve(context.Background(), testIdentity(t))
	require.NoError(t, err)
	assert.True(t, rs.CheckedInToday)
	assert.Equal(t, StateCheckedInToday, StateFor(rs))
}

func TestAfterCheckInAdvanceObserved(t *testing.T) {
	prior := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 5, LastCheckIn: testNow, Registered: true}},
	}}

	rs, err := testReconciler(t, gw).AfterCheckIn(context.Background(), testIdentity(t), prior)
	require.NoError(t, err)
	assert.True(t, rs.Confirmed)
	assert.Equal(t, uint64(5), rs.Profile.CheckInCount)
	assert.Equal(t, 1, gw.callCount())
}

func TestAfterCheckInConvergesWithinBudget(t *testing.T) {
	prior := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	stale := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	fresh := &models.Profile{DisplayName: "Alice", CheckInCount: 5, LastCheckIn: testNow, Registered: true}
	gw := &stubGateway{results: []fetchResult{
		{profile: stale},
		{profile: stale},
		{profile: fresh},
	}}

	rs, err := testReconciler(t, gw).AfterCheckIn(context.Background(), testIdentity(t), prior)
	require.NoError(t, err)
	assert.True(t, rs.Confirmed)
	assert.Equal(t, uint64(5), rs.Profile.CheckInCount)
	assert.Equal(t, 3, gw.callCount())
}

func TestAfterCheckInBudgetExhaustedFallsBackToOptimistic(t *testing.T) {
	prior := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	stale := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	gw := &stubGateway{results: []fetchResult{{profile: stale}}}

	rs, err := testReconciler(t, gw).AfterCheckIn(context.Background(), testIdentity(t), prior)
	require.NoError(t, err)

	// Optimistic local increment, flagged unconfirmed so the next poll can
	// silently correct it.
	assert.False(t, rs.Confirmed)
	assert.Equal(t, uint64(5), rs.Profile.CheckInCount)
	assert.Equal(t, 3, gw.callCount())
}

func TestAfterCheckInToleratesFetchErrors(t *testing.T) {
	prior := &models.Profile{DisplayName: "Alice", CheckInCount: 4, Registered: true}
	fresh := &models.Profile{DisplayName: "Alice", CheckInCount: 5, LastCheckIn: testNow, Registered: true}
	gw := &stubGateway{results: []fetchResult{
		{err: apperrors.NewTransportError("fetch", assert.AnError)},
		{profile: fresh},
	}}

	rs, err := testReconciler(t, gw).AfterCheckIn(context.Background(), testIdentity(t), prior)
	require.NoError(t, err)
	assert.True(t, rs.Confirmed)
}

func TestRecoverAlreadyCheckedIn(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 7, LastCheckIn: testNow - 30, Registered: true}},
	}}

	rs, err := testReconciler(t, gw).RecoverAlreadyCheckedIn(context.Background(), testIdentity(t))
	require.NoError(t, err)

	// The rejection is evidence of a prior success, not an error state.
	assert.True(t, rs.AlreadyCheckedIn)
	assert.True(t, rs.CheckedInToday)
	assert.Equal(t, uint64(7), rs.Profile.CheckInCount)
}
