package reconcile

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the session's position in the check-in lifecycle.
type State string

const (
	StateUnregistered        State = "unregistered"
	StateRegisteredPending   State = "registered_pending"
	StateRegisteredConfirmed State = "registered_confirmed"
	StateCheckedInToday      State = "checked_in_today"
)

// Session owns the periodic reconciliation loop for one active identity.
// Displayed state converges with authoritative state without user-initiated
// refresh; Stop cancels the loop when the identity's session ends.
type Session struct {
	identity   ed25519.PublicKey
	reconciler *Reconciler
	interval   time.Duration
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	state    State
	resolved *ResolvedState
}

func NewSession(identity ed25519.PublicKey, reconciler *Reconciler, interval time.Duration, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		identity:   identity,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateUnregistered,
	}
}

// Start launches the periodic reconciliation loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Converge once at startup, then on the fixed interval.
		s.reconcileOnce()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reconcileOnce()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for it to drain.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the current session state and the last resolved view.
func (s *Session) Snapshot() (State, *ResolvedState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.resolved
}

// Apply adopts a resolved state produced by an explicit operation. The
// periodic loop silently corrects optimistic state on its next pass.
func (s *Session) Apply(rs *ResolvedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = rs
	s.state = StateFor(rs)
}

func (s *Session) reconcileOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.interval)
	defer cancel()

	rs, err := s.reconciler.Resolve(ctx, s.identity)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Periodic reconciliation failed")
		return
	}
	s.Apply(rs)
}

// StateFor maps a resolved state onto the session lifecycle state.
func StateFor(rs *ResolvedState) State {
	switch {
	case rs == nil || !rs.Registered:
		return StateUnregistered
	case rs.CheckedInToday:
		return StateCheckedInToday
	case !rs.Confirmed:
		return StateRegisteredPending
	default:
		return StateRegisteredConfirmed
	}
}
