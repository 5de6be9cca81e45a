package reconcile

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solock-backend/internal/features/attendance/models"
)

func TestSessionPeriodicConvergence(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", CheckInCount: 3, LastCheckIn: testNow - 30, Registered: true}},
	}}

	session := NewSession(testIdentity(t), testReconciler(t, gw), 10*time.Millisecond, zerolog.Nop())
	session.Start()
	defer session.Stop()

	require.Eventually(t, func() bool {
		state, rs := session.Snapshot()
		return state == StateCheckedInToday && rs != nil && rs.Profile.CheckInCount == 3
	}, time.Second, 5*time.Millisecond)
}

func TestSessionStopCancelsLoop(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", Registered: true}},
	}}

	session := NewSession(testIdentity(t), testReconciler(t, gw), 5*time.Millisecond, zerolog.Nop())
	session.Start()

	require.Eventually(t, func() bool { return gw.callCount() > 0 }, time.Second, time.Millisecond)
	session.Stop()

	settled := gw.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, gw.callCount(), "loop kept running after Stop")
}

func TestSessionApplyOverridesState(t *testing.T) {
	gw := &stubGateway{results: []fetchResult{
		{profile: &models.Profile{DisplayName: "Alice", Registered: true}},
	}}
	session := NewSession(testIdentity(t), testReconciler(t, gw), time.Hour, zerolog.Nop())

	state, rs := session.Snapshot()
	assert.Equal(t, StateUnregistered, state)
	assert.Nil(t, rs)

	session.Apply(&ResolvedState{
		Profile:    &models.Profile{DisplayName: "Alice", CheckInCount: 1, Registered: true},
		Registered: true,
		Confirmed:  false,
	})

	state, rs = session.Snapshot()
	assert.Equal(t, StateRegisteredPending, state)
	require.NotNil(t, rs)
	assert.Equal(t, uint64(1), rs.Profile.CheckInCount)
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, StateUnregistered, StateFor(nil))
	assert.Equal(t, StateUnregistered, StateFor(&ResolvedState{}))
	assert.Equal(t, StateRegisteredPending, StateFor(&ResolvedState{Registered: true}))
	assert.Equal(t, StateRegisteredConfirmed, StateFor(&ResolvedState{Registered: true, Confirmed: true}))
	assert.Equal(t, StateCheckedInToday, StateFor(&ResolvedState{Registered: true, Confirmed: true, CheckedInToday: true}))
}
