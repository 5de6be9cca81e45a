package service

import (
	"context"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/leaderboard"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/features/attendance/ops"
	"solock-backend/internal/features/attendance/reconcile"
	"solock-backend/internal/features/attendance/submit"
	"solock-backend/internal/platform/ledger"
	"solock-backend/internal/platform/signer"
)

// MaxHistoryDays bounds the attendance history window.
const MaxHistoryDays = 90

// AttendanceService is the surface served to the UI layer. Every method
// returns either a resolved state or a typed error for display.
type AttendanceService interface {
	Register(ctx context.Context, displayName string) (*models.ProfileResponse, error)
	CheckIn(ctx context.Context) (*models.CheckInResponse, error)
	Profile(ctx context.Context) (*models.ProfileResponse, error)
	History(ctx context.Context, days int) ([]models.DayStatus, error)
	Leaderboard(ctx context.Context) (*models.LeaderboardResponse, error)
	Stats(ctx context.Context) (*models.SystemStats, error)
}

type attendanceService struct {
	signer     signer.Provider
	deriver    *derive.Deriver
	builder    *ops.Builder
	submitter  *submit.Submitter
	reconciler *reconcile.Reconciler
	projector  *leaderboard.Projector
	gateway    ledger.Gateway
	session    *reconcile.Session
	logger     zerolog.Logger

	// inFlight serializes state-changing submissions: one logical operation
	// per identity at a time.
	inFlight sync.Mutex
}

func NewAttendanceService(
	signerProvider signer.Provider,
	deriver *derive.Deriver,
	builder *ops.Builder,
	submitter *submit.Submitter,
	reconciler *reconcile.Reconciler,
	projector *leaderboard.Projector,
	gateway ledger.Gateway,
	session *reconcile.Session,
	logger zerolog.Logger,
) AttendanceService {
	return &attendanceService{
		signer:     signerProvider,
		deriver:    deriver,
		builder:    builder,
		submitter:  submitter,
		reconciler: reconciler,
		projector:  projector,
		gateway:    gateway,
		session:    session,
		logger:     logger,
	}
}

func (s *attendanceService) Register(ctx context.Context, displayName string) (*models.ProfileResponse, error) {
	identity, err := s.signer.Identity()
	if err != nil {
		return nil, err
	}

	if !s.inFlight.TryLock() {
		return nil, apperrors.New(apperrors.ErrCodeSubmissionInFlight, "Another submission is in flight for this identity")
	}
	defer s.inFlight.Unlock()

	op, err := s.builder.BuildRegister(identity, displayName, s.ledgerNow(ctx))
	if err != nil {
		return nil, err
	}

	if _, err := s.submitter.Submit(ctx, op); err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeAlreadyRegistered {
			// The profile exists, likely from an earlier attempt or another
			// session. Adopt the authoritative state instead of erroring.
			rs, resolveErr := s.reconciler.Resolve(ctx, identity)
			if resolveErr != nil {
				return nil, resolveErr
			}
			s.apply(rs)
			return s.profileResponse(identity, rs), nil
		}
		return nil, err
	}

	rs, err := s.resolveAfterRegister(ctx, identity, displayName)
	if err != nil {
		return nil, err
	}
	s.apply(rs)

	s.logger.Info().
		Str("submission_id", op.SubmissionID).
		Bool("confirmed", rs.Confirmed).
		Msg("Registration submitted")

	return s.profileResponse(identity, rs), nil
}

// resolveAfterRegister re-reads the profile. A successful authoritative read
// is itself proof the registration landed; only when the read lags does an
// optimistic registered-pending profile stand in until the periodic loop
// converges.
func (s *attendanceService) resolveAfterRegister(ctx context.Context, identity []byte, displayName string) (*reconcile.ResolvedState, error) {
	rs, err := s.reconciler.Resolve(ctx, identity)
	if err == nil && rs.Registered {
		return rs, nil
	}
	if err != nil {
		s.logger.Debug().Err(err).Msg("Post-register fetch failed, using optimistic profile")
	}

	return &reconcile.ResolvedState{
		Profile: &models.Profile{
			Owner:       base58.Encode(identity),
			DisplayName: displayName,
			Registered:  true,
		},
		Registered: true,
		Confirmed:  false,
	}, nil
}

func (s *attendanceService) CheckIn(ctx context.Context) (*models.CheckInResponse, error) {
	identity, err := s.signer.Identity()
	if err != nil {
		return nil, err
	}

	if !s.inFlight.TryLock() {
		return nil, apperrors.New(apperrors.ErrCodeSubmissionInFlight, "Another submission is in flight for this identity")
	}
	defer s.inFlight.Unlock()

	prior, err := s.reconciler.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !prior.Registered {
		return nil, apperrors.NewRejectedError(apperrors.ErrCodeNotRegistered, "register before checking in")
	}

	op, err := s.builder.BuildCheckIn(identity, s.ledgerNow(ctx))
	if err != nil {
		return nil, err
	}

	var outcome *submit.Outcome
	for rebuilt := false; ; {
		outcome, err = s.submitter.Submit(ctx, op)
		if err == nil {
			break
		}

		switch apperrors.CodeOf(err) {
		case apperrors.ErrCodeAlreadyClockedInToday:
			// Evidence a prior attempt already landed, possibly from another
			// session. Resolve to the terminal state, never an error.
			rs, recoverErr := s.reconciler.RecoverAlreadyCheckedIn(ctx, identity)
			if recoverErr != nil {
				return nil, recoverErr
			}
			s.apply(rs)
			return &models.CheckInResponse{
				Profile:          *s.profileResponse(identity, rs),
				AlreadyCheckedIn: true,
				Confirmed:        true,
			}, nil
		case apperrors.ErrCodeRecordAddressMismatch:
			if rebuilt {
				return nil, err
			}
			rebuilt = true
			// The day rolled over between building and execution. Rebuild
			// once against the current ledger clock and resubmit.
			s.logger.Warn().
				Uint64("stale_day_index", op.DayIndexHint).
				Msg("Day rolled over during submission, rebuilding check-in")
			op, err = s.builder.BuildCheckIn(identity, s.ledgerNow(ctx))
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	rs, err := s.reconciler.AfterCheckIn(ctx, identity, prior.Profile)
	if err != nil {
		return nil, err
	}
	s.apply(rs)

	s.logger.Info().
		Str("submission_id", op.SubmissionID).
		Uint64("day_index", op.DayIndexHint).
		Bool("confirmed", rs.Confirmed).
		Bool("duplicate", outcome.Duplicate).
		Msg("Check-in submitted")

	return &models.CheckInResponse{
		Profile:      *s.profileResponse(identity, rs),
		Confirmed:    rs.Confirmed,
		SubmissionID: op.SubmissionID,
	}, nil
}

func (s *attendanceService) Profile(ctx context.Context) (*models.ProfileResponse, error) {
	identity, err := s.signer.Identity()
	if err != nil {
		return nil, err
	}

	rs, err := s.reconciler.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !rs.Registered {
		return nil, apperrors.NewNotFoundError("profile", s.deriver.ProfileAddress(identity).String())
	}
	s.apply(rs)

	return s.profileResponse(identity, rs), nil
}

func (s *attendanceService) History(ctx context.Context, days int) ([]models.DayStatus, error) {
	identity, err := s.signer.Identity()
	if err != nil {
		return nil, err
	}

	if days <= 0 {
		days = 30
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}

	today := derive.DayIndex(s.ledgerNow(ctx))
	history := make([]models.DayStatus, 0, days)

	for i := 0; i < days; i++ {
		day := today - uint64(i)
		status := models.DayStatus{
			DayIndex: day,
			Date:     time.Unix(int64(day)*derive.SecondsPerDay, 0).UTC().Format("2006-01-02"),
		}

		record, err := s.gateway.FetchDailyRecord(ctx, s.deriver.DailyRecordAddress(identity, day))
		switch {
		case err == nil:
			status.CheckedIn = true
			status.CheckedAt = record.CreatedAt
		case apperrors.CodeOf(err) == apperrors.ErrCodeNotFound:
			// No record means no check-in that day.
		default:
			return nil, err
		}

		history = append(history, status)
		if day == 0 {
			break
		}
	}

	return history, nil
}

func (s *attendanceService) Leaderboard(ctx context.Context) (*models.LeaderboardResponse, error) {
	return s.projector.Leaderboard(ctx)
}

func (s *attendanceService) Stats(ctx context.Context) (*models.SystemStats, error) {
	registry, err := s.gateway.FetchRegistry(ctx, s.deriver.RegistryAddress())
	if err != nil {
		return nil, err
	}

	return &models.SystemStats{
		Name:                 registry.Name,
		Administrator:        registry.Administrator,
		TotalRegisteredUsers: registry.TotalRegisteredUsers,
	}, nil
}

// ledgerNow prefers the ledger's wall clock for day bucketing; the local
// clock is only a fallback when the node cannot report time.
func (s *attendanceService) ledgerNow(ctx context.Context) int64 {
	now, err := s.gateway.FetchClock(ctx)
	if err != nil || now <= 0 {
		s.logger.Debug().Err(err).Msg("Ledger clock unavailable, falling back to local clock")
		return time.Now().Unix()
	}
	return now
}

func (s *attendanceService) apply(rs *reconcile.ResolvedState) {
	if s.session != nil {
		s.session.Apply(rs)
	}
}

func (s *attendanceService) profileResponse(identity []byte, rs *reconcile.ResolvedState) *models.ProfileResponse {
	resp := &models.ProfileResponse{
		Address:   s.deriver.ProfileAddress(identity),
		Confirmed: rs.Confirmed,
		State:     string(reconcile.StateFor(rs)),
	}
	if rs.Profile != nil {
		resp.Owner = rs.Profile.Owner
		resp.DisplayName = rs.Profile.DisplayName
		resp.CheckInCount = rs.Profile.CheckInCount
		resp.LastCheckIn = rs.Profile.LastCheckIn
	}
	resp.CheckedInToday = rs.CheckedInToday
	return resp
}
