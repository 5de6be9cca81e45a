// Package submit turns a built operation into a confirmed ledger outcome:
// sign, send, await confirmation. One logical attempt per call; callers
// serialize submissions per identity.
package submit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/ops"
	"solock-backend/internal/platform/ledger"
	"solock-backend/internal/platform/signer"
)

type Config struct {
	// ConfirmRounds bounds the confirmation wait; the submitter never hangs
	// past ConfirmRounds * ConfirmSpacing.
	ConfirmRounds  int
	ConfirmSpacing time.Duration
}

func DefaultConfig() Config {
	return Config{ConfirmRounds: 5, ConfirmSpacing: 2 * time.Second}
}

// Outcome is the result of a submission that was not rejected outright.
type Outcome struct {
	Op *ops.Operation
	// Confirmed is false when the deadline passed without an observed
	// confirmation. That is not failure: the operation may still land, and
	// the caller must fall back to re-reading state.
	Confirmed bool
	// Duplicate marks the duplicate-submission path, where a prior send of
	// the same operation likely already succeeded.
	Duplicate bool
}

type Submitter struct {
	gateway ledger.Gateway
	signer  signer.Provider
	cfg     Config
	logger  zerolog.Logger
}

func NewSubmitter(gateway ledger.Gateway, signerProvider signer.Provider, cfg Config, logger zerolog.Logger) *Submitter {
	if cfg.ConfirmRounds <= 0 {
		cfg.ConfirmRounds = DefaultConfig().ConfirmRounds
	}
	if cfg.ConfirmSpacing <= 0 {
		cfg.ConfirmSpacing = DefaultConfig().ConfirmSpacing
	}
	return &Submitter{gateway: gateway, signer: signerProvider, cfg: cfg, logger: logger}
}

// Submit signs and sends the operation, then waits for confirmation within
// the configured deadline. Deterministic rejections and transport errors
// surface to the caller unretried, with one exception: a DUPLICATE_SUBMISSION
// rejection is treated as likely-success and enters the confirmation wait
// instead of failing.
func (s *Submitter) Submit(ctx context.Context, op *ops.Operation) (*Outcome, error) {
	sig, err := s.signer.Sign(op.SigningBytes())
	if err != nil {
		return nil, err
	}
	signed := &ledger.SignedOperation{Op: op, Signature: sig}

	err = s.send(ctx, signed)
	duplicate := false
	if err != nil {
		appErr, ok := apperrors.AsAppError(err)
		if !ok || appErr.Code != apperrors.ErrCodeDuplicateSubmission {
			return nil, err
		}
		duplicate = true
		s.logger.Warn().
			Str("submission_id", op.SubmissionID).
			Msg("Duplicate submission reported, treating as likely success")
	}

	confirmed, err := s.awaitConfirmation(ctx, op.SubmissionID)
	if err != nil {
		return nil, err
	}

	if !confirmed {
		s.logger.Warn().
			Str("submission_id", op.SubmissionID).
			Int("rounds", s.cfg.ConfirmRounds).
			Msg("Confirmation not observed within deadline")
	}

	return &Outcome{Op: op, Confirmed: confirmed, Duplicate: duplicate}, nil
}

func (s *Submitter) send(ctx context.Context, signed *ledger.SignedOperation) error {
	switch signed.Op.Kind {
	case ops.KindRegister:
		return s.gateway.ExecuteRegister(ctx, signed)
	case ops.KindCheckIn:
		return s.gateway.ExecuteCheckIn(ctx, signed)
	default:
		return apperrors.New(apperrors.ErrCodeInternal, "unknown operation kind")
	}
}

// awaitConfirmation polls for a fixed number of rounds with fixed spacing.
// Only a context error surfaces; a missing confirmation resolves to false.
func (s *Submitter) awaitConfirmation(ctx context.Context, submissionID string) (bool, error) {
	for round := 1; round <= s.cfg.ConfirmRounds; round++ {
		status, err := s.gateway.FetchConfirmation(ctx, submissionID)
		if err != nil {
			// Confirmation reads are best effort; the reconciler re-reads
			// state anyway.
			s.logger.Debug().Err(err).
				Str("submission_id", submissionID).
				Int("round", round).
				Msg("Confirmation poll failed")
		} else if status == ledger.ConfirmationConfirmed {
			return true, nil
		}

		if round == s.cfg.ConfirmRounds {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.cfg.ConfirmSpacing):
		}
	}
	return false, nil
}
