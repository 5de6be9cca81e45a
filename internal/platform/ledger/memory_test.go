package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/ops"
)

const memTestNow = int64(19723*derive.SecondsPerDay + 3600)

type memFixture struct {
	mem     *Memory
	deriver *derive.Deriver
	builder *ops.Builder
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	now     int64
}

func newMemFixture(t *testing.T) *memFixture {
	t.Helper()

	program, err := derive.Parse("3QX9pzZwbd7uNmvBqiPW8YAV8ECV9v2v77L5pwGaSRAg")
	require.NoError(t, err)
	deriver := derive.NewDeriver(program)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	f := &memFixture{
		mem:     NewMemory(deriver, "admin"),
		deriver: deriver,
		builder: ops.NewBuilder(deriver),
		pub:     pub,
		priv:    priv,
		now:     memTestNow,
	}
	f.mem.SetClock(func() int64 { return f.now })
	return f
}

func (f *memFixture) sign(op *ops.Operation) *SignedOperation {
	return &SignedOperation{
		Op:        op,
		Signature: ed25519.Sign(f.priv, op.SigningBytes()),
	}
}

func (f *memFixture) register(t *testing.T) {
	t.Helper()
	op, err := f.builder.BuildRegister(f.pub, "Alice", f.now)
	require.NoError(t, err)
	require.NoError(t, f.mem.ExecuteRegister(context.Background(), f.sign(op)))
}

func TestMemoryRegisterCreatesProfile(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)

	p, err := f.mem.FetchProfile(context.Background(), f.deriver.ProfileAddress(f.pub))
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, uint64(0), p.CheckInCount)
	assert.True(t, p.Registered)

	reg, err := f.mem.FetchRegistry(context.Background(), f.deriver.RegistryAddress())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.TotalRegisteredUsers)
}

func TestMemoryRegisterTwiceRejected(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)

	op, err := f.builder.BuildRegister(f.pub, "Alice", f.now)
	require.NoError(t, err)
	err = f.mem.ExecuteRegister(context.Background(), f.sign(op))
	assert.Equal(t, apperrors.ErrCodeAlreadyRegistered, apperrors.CodeOf(err))

	reg, err := f.mem.FetchRegistry(context.Background(), f.deriver.RegistryAddress())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reg.TotalRegisteredUsers)
}

func TestMemoryCheckInRequiresRegistration(t *testing.T) {
	f := newMemFixture(t)

	op, err := f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	err = f.mem.ExecuteCheckIn(context.Background(), f.sign(op))
	assert.Equal(t, apperrors.ErrCodeNotRegistered, apperrors.CodeOf(err))
}

func TestMemoryCheckInOncePerDay(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)
	ctx := context.Background()

	op, err := f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	require.NoError(t, f.mem.ExecuteCheckIn(ctx, f.sign(op)))

	p, err := f.mem.FetchProfile(ctx, f.deriver.ProfileAddress(f.pub))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.CheckInCount)
	assert.Equal(t, f.now, p.LastCheckIn)

	rec, err := f.mem.FetchDailyRecord(ctx, op.RecordAddress)
	require.NoError(t, err)
	assert.Equal(t, derive.DayIndex(f.now), rec.DayIndex)

	// A second attempt the same day is rejected and state is untouched.
	op2, err := f.builder.BuildCheckIn(f.pub, f.now+60)
	require.NoError(t, err)
	err = f.mem.ExecuteCheckIn(ctx, f.sign(op2))
	assert.Equal(t, apperrors.ErrCodeAlreadyClockedInToday, apperrors.CodeOf(err))

	p, err = f.mem.FetchProfile(ctx, f.deriver.ProfileAddress(f.pub))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.CheckInCount)
}

func TestMemoryCheckInNextDayAllowed(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)
	ctx := context.Background()

	op, err := f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	require.NoError(t, f.mem.ExecuteCheckIn(ctx, f.sign(op)))

	f.now += derive.SecondsPerDay

	op, err = f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	require.NoError(t, f.mem.ExecuteCheckIn(ctx, f.sign(op)))

	p, err := f.mem.FetchProfile(ctx, f.deriver.ProfileAddress(f.pub))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.CheckInCount)
}

func TestMemoryStaleDayHintRejected(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)

	// Built just before midnight, executed after rollover: the record
	// address points at yesterday's slot and must be rejected, not
	// silently accepted.
	op, err := f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	f.now += derive.SecondsPerDay

	err = f.mem.ExecuteCheckIn(context.Background(), f.sign(op))
	assert.Equal(t, apperrors.ErrCodeRecordAddressMismatch, apperrors.CodeOf(err))
}

func TestMemoryDuplicateSubmissionRejected(t *testing.T) {
	f := newMemFixture(t)
	f.register(t)
	ctx := context.Background()

	op, err := f.builder.BuildCheckIn(f.pub, f.now)
	require.NoError(t, err)
	signed := f.sign(op)
	require.NoError(t, f.mem.ExecuteCheckIn(ctx, signed))

	err = f.mem.ExecuteCheckIn(ctx, signed)
	assert.Equal(t, apperrors.ErrCodeDuplicateSubmission, apperrors.CodeOf(err))
}

func TestMemoryRejectsBadSignature(t *testing.T) {
	f := newMemFixture(t)

	op, err := f.builder.BuildRegister(f.pub, "Alice", f.now)
	require.NoError(t, err)
	signed := f.sign(op)
	signed.Signature[0] ^= 0xFF

	err = f.mem.ExecuteRegister(context.Background(), signed)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.CodeOf(err))
}

func TestMemoryConfirmationTracksApplied(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	op, err := f.builder.BuildRegister(f.pub, "Alice", f.now)
	require.NoError(t, err)

	status, err := f.mem.FetchConfirmation(ctx, op.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationUnknown, status)

	require.NoError(t, f.mem.ExecuteRegister(ctx, f.sign(op)))

	status, err = f.mem.FetchConfirmation(ctx, op.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationConfirmed, status)
}

func TestMemoryFetchAllProfilesPreservesRegistrationOrder(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	names := []string{"ann", "bob", "cat"}
	for _, name := range names {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		op, err := f.builder.BuildRegister(pub, name, f.now)
		require.NoError(t, err)
		signed := &SignedOperation{Op: op, Signature: ed25519.Sign(priv, op.SigningBytes())}
		require.NoError(t, f.mem.ExecuteRegister(ctx, signed))
	}

	// Run a few times: map iteration would eventually shuffle the order.
	for i := 0; i < 5; i++ {
		profiles, err := f.mem.FetchAllProfiles(ctx)
		require.NoError(t, err)
		require.Len(t, profiles, len(names))
		for j, name := range names {
			assert.Equal(t, name, profiles[j].DisplayName)
		}
	}
}

func TestMemoryFetchMissesAreNotFound(t *testing.T) {
	f := newMemFixture(t)
	ctx := context.Background()

	_, err := f.mem.FetchProfile(ctx, f.deriver.ProfileAddress(f.pub))
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))

	_, err = f.mem.FetchDailyRecord(ctx, f.deriver.DailyRecordAddress(f.pub, 1))
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}
