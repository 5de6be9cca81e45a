package ledger

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"

	"github.com/mr-tron/base58"
)

// Memory is an embedded Gateway that executes operations against in-process
// state, mirroring the program's semantics: atomic execution, one profile per
// identity, at most one record per (owner, day). It backs local development
// and tests.
type Memory struct {
	mu       sync.Mutex
	deriver  *derive.Deriver
	now      func() int64
	profiles map[derive.Address]*models.Profile
	// profileOrder keeps registration order so FetchAllProfiles is
	// deterministic and leaderboard ties rank by arrival.
	profileOrder []derive.Address
	records      map[derive.Address]*models.DailyRecord
	registry     *models.SystemRegistry
	// seen tracks applied submission IDs for duplicate detection.
	seen map[string]bool
}

// NewMemory creates an embedded ledger with a bootstrapped registry.
func NewMemory(deriver *derive.Deriver, admin string) *Memory {
	return &Memory{
		deriver:  deriver,
		now:      func() int64 { return time.Now().Unix() },
		profiles: make(map[derive.Address]*models.Profile),
		records:  make(map[derive.Address]*models.DailyRecord),
		registry: &models.SystemRegistry{
			Administrator: admin,
			Name:          "solock",
		},
		seen: make(map[string]bool),
	}
}

// SetClock overrides the execution-time clock.
func (m *Memory) SetClock(now func() int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) ExecuteRegister(ctx context.Context, signed *SignedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := signed.Op
	if err := m.admit(signed); err != nil {
		return err
	}

	addr := m.deriver.ProfileAddress(op.Identity)
	if _, exists := m.profiles[addr]; exists {
		return apperrors.NewRejectedError(apperrors.ErrCodeAlreadyRegistered, "profile already exists")
	}

	m.profiles[addr] = &models.Profile{
		Owner:       base58.Encode(op.Identity),
		DisplayName: op.DisplayName,
		Registered:  true,
	}
	m.profileOrder = append(m.profileOrder, addr)
	m.registry.TotalRegisteredUsers++
	m.seen[op.SubmissionID] = true
	return nil
}

func (m *Memory) ExecuteCheckIn(ctx context.Context, signed *SignedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := signed.Op
	if err := m.admit(signed); err != nil {
		return err
	}

	profileAddr := m.deriver.ProfileAddress(op.Identity)
	profile, exists := m.profiles[profileAddr]
	if !exists {
		return apperrors.NewRejectedError(apperrors.ErrCodeNotRegistered, "user is not registered")
	}

	// The day index comes from the ledger clock at execution time, not from
	// the client's hint. A stale hint around midnight points at yesterday's
	// slot and is rejected rather than silently accepted.
	now := m.now()
	day := derive.DayIndex(now)
	recordAddr := m.deriver.DailyRecordAddress(op.Identity, day)
	if op.RecordAddress != recordAddr {
		return apperrors.NewRejectedError(apperrors.ErrCodeRecordAddressMismatch, "record address does not match execution day")
	}

	if _, exists := m.records[recordAddr]; exists {
		return apperrors.NewRejectedError(apperrors.ErrCodeAlreadyClockedInToday, "user has already clocked in today")
	}

	m.records[recordAddr] = &models.DailyRecord{
		Owner:     profile.Owner,
		DayIndex:  day,
		CreatedAt: now,
	}
	profile.CheckInCount++
	profile.LastCheckIn = now
	m.seen[op.SubmissionID] = true
	return nil
}

// admit verifies the signature and rejects replayed submissions.
func (m *Memory) admit(signed *SignedOperation) error {
	op := signed.Op
	if m.seen[op.SubmissionID] {
		return apperrors.NewRejectedError(apperrors.ErrCodeDuplicateSubmission, "submission already processed")
	}
	if len(op.Identity) != ed25519.PublicKeySize ||
		!ed25519.Verify(op.Identity, op.SigningBytes(), signed.Signature) {
		return apperrors.NewRejectedError(apperrors.ErrCodeUnauthorized, "signature verification failed")
	}
	return nil
}

func (m *Memory) FetchConfirmation(ctx context.Context, submissionID string) (ConfirmationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[submissionID] {
		return ConfirmationConfirmed, nil
	}
	return ConfirmationUnknown, nil
}

func (m *Memory) FetchProfile(ctx context.Context, addr derive.Address) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.profiles[addr]
	if !exists {
		return nil, apperrors.NewNotFoundError("profile", addr.String())
	}
	clone := *p
	return &clone, nil
}

func (m *Memory) FetchDailyRecord(ctx context.Context, addr derive.Address) (*models.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.records[addr]
	if !exists {
		return nil, apperrors.NewNotFoundError("daily_record", addr.String())
	}
	clone := *r
	return &clone, nil
}

func (m *Memory) FetchAllProfiles(ctx context.Context) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make([]models.Profile, 0, len(m.profileOrder))
	for _, addr := range m.profileOrder {
		profiles = append(profiles, *m.profiles[addr])
	}
	return profiles, nil
}

func (m *Memory) FetchRegistry(ctx context.Context, addr derive.Address) (*models.SystemRegistry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr != m.deriver.RegistryAddress() {
		return nil, apperrors.NewNotFoundError("registry", addr.String())
	}
	clone := *m.registry
	return &clone, nil
}

func (m *Memory) FetchClock(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now(), nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
