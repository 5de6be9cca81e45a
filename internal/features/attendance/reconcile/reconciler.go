// Package reconcile merges optimistic local state with authoritative ledger
// state after an operation, and keeps a session's view converged over time.
package reconcile

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/rs/zerolog"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/platform/ledger"
)

type Config struct {
	// Retries bounds the re-fetch loop after a check-in whose effect is not
	// yet visible.
	Retries int
	Backoff time.Duration
}

func DefaultConfig() Config {
	return Config{Retries: 3, Backoff: 2 * time.Second}
}

// ResolvedState is the merged truth handed back to callers.
type ResolvedState struct {
	Profile    *models.Profile
	Registered bool
	// Confirmed is false when Profile carries an optimistic local increment
	// the ledger has not been observed to apply yet.
	Confirmed bool
	// AlreadyCheckedIn marks the terminal "already checked in today" state.
	AlreadyCheckedIn bool
	CheckedInToday   bool
}

type Reconciler struct {
	gateway ledger.Gateway
	deriver *derive.Deriver
	cfg     Config
	logger  zerolog.Logger
	now     func() int64
}

func NewReconciler(gateway ledger.Gateway, deriver *derive.Deriver, cfg Config, logger zerolog.Logger) *Reconciler {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultConfig().Retries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	return &Reconciler{
		gateway: gateway,
		deriver: deriver,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetClock overrides the clock used for the "today" computation.
func (r *Reconciler) SetClock(now func() int64) {
	r.now = now
}

// clockNow prefers the ledger wall clock so the resolved view and the build
// path agree on day boundaries; the local clock is only a fallback.
func (r *Reconciler) clockNow(ctx context.Context) int64 {
	if r.now != nil {
		return r.now()
	}
	if now, err := r.gateway.FetchClock(ctx); err == nil && now > 0 {
		return now
	}
	return time.Now().Unix()
}

// Resolve fetches the current authoritative state for an identity. An absent
// profile resolves to the unregistered state, not an error.
func (r *Reconciler) Resolve(ctx context.Context, identity ed25519.PublicKey) (*ResolvedState, error) {
	addr := r.deriver.ProfileAddress(identity)
	profile, err := r.gateway.FetchProfile(ctx, addr)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsNotFound() {
			return &ResolvedState{Registered: false, Confirmed: true}, nil
		}
		return nil, err
	}

	return r.resolved(ctx, profile, true), nil
}

// AfterCheckIn re-reads the profile after a check-in submission until the
// counter advances past the prior value. Ledger confirmation and read
// visibility are only eventually consistent with each other, so absence of
// the advance within the retry budget falls back to an optimistic local
// increment flagged as unconfirmed.
func (r *Reconciler) AfterCheckIn(ctx context.Context, identity ed25519.PublicKey, prior *models.Profile) (*ResolvedState, error) {
	addr := r.deriver.ProfileAddress(identity)

	var priorCount uint64
	if prior != nil {
		priorCount = prior.CheckInCount
	}

	for attempt := 1; attempt <= r.cfg.Retries; attempt++ {
		profile, err := r.gateway.FetchProfile(ctx, addr)
		if err == nil && profile.CheckInCount > priorCount {
			return r.resolved(ctx, profile, true), nil
		}
		if err != nil {
			r.logger.Debug().Err(err).
				Int("attempt", attempt).
				Msg("Post-check-in fetch failed")
		}

		if attempt == r.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.Backoff):
		}
	}

	r.logger.Warn().
		Uint64("prior_count", priorCount).
		Int("retries", r.cfg.Retries).
		Msg("Check-in not visible within retry budget, applying optimistic increment")

	optimistic := optimisticIncrement(prior, r.clockNow(ctx))
	state := r.resolved(ctx, optimistic, false)
	return state, nil
}

// RecoverAlreadyCheckedIn handles the ALREADY_CLOCKED_IN_TODAY rejection.
// Under the ledger's invariants that rejection is evidence a prior attempt
// already succeeded (possibly from another session), so it resolves into the
// normal "already done today" state with a fresh authoritative count.
func (r *Reconciler) RecoverAlreadyCheckedIn(ctx context.Context, identity ed25519.PublicKey) (*ResolvedState, error) {
	state, err := r.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	state.AlreadyCheckedIn = true
	state.CheckedInToday = true
	return state, nil
}

func (r *Reconciler) resolved(ctx context.Context, profile *models.Profile, confirmed bool) *ResolvedState {
	today := derive.DayIndex(r.clockNow(ctx))
	checkedInToday := profile.CheckInCount > 0 && derive.DayIndex(profile.LastCheckIn) == today

	return &ResolvedState{
		Profile:        profile,
		Registered:     true,
		Confirmed:      confirmed,
		CheckedInToday: checkedInToday,
	}
}

func optimisticIncrement(prior *models.Profile, now int64) *models.Profile {
	p := models.Profile{Registered: true}
	if prior != nil {
		p = *prior
	}
	p.CheckInCount++
	p.LastCheckIn = now
	return &p
}
