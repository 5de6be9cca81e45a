// Package ledger talks to the attendance program's execution engine. The
// ledger itself (consensus, transport internals) is a black box; this package
// only submits signed operations and reads account state back.
package ledger

import (
	"context"

	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/features/attendance/ops"
)

// SignedOperation pairs an operation with its wallet signature.
type SignedOperation struct {
	Op        *ops.Operation
	Signature []byte
}

// ConfirmationStatus is the node's view of a submitted operation.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	// ConfirmationUnknown means the node has no trace of the submission.
	// The operation may still land later via another node.
	ConfirmationUnknown ConfirmationStatus = "unknown"
)

// Gateway executes operations atomically against ledger state and reads
// accounts back. Implementations surface deterministic rejections as
// AppError codes (ALREADY_REGISTERED, NOT_REGISTERED,
// ALREADY_CLOCKED_IN_TODAY, DUPLICATE_SUBMISSION, UNAUTHORIZED,
// RECORD_ADDRESS_MISMATCH) and transient failures as TRANSPORT_ERROR.
// Gateways are stateless per call and safe for shared concurrent use.
type Gateway interface {
	ExecuteRegister(ctx context.Context, signed *SignedOperation) error
	ExecuteCheckIn(ctx context.Context, signed *SignedOperation) error

	// FetchConfirmation reports whether a previously sent submission has been
	// applied.
	FetchConfirmation(ctx context.Context, submissionID string) (ConfirmationStatus, error)

	// FetchProfile returns a NOT_FOUND error when no profile exists at addr.
	FetchProfile(ctx context.Context, addr derive.Address) (*models.Profile, error)

	// FetchDailyRecord returns a NOT_FOUND error when no record exists at addr.
	FetchDailyRecord(ctx context.Context, addr derive.Address) (*models.DailyRecord, error)

	FetchAllProfiles(ctx context.Context) ([]models.Profile, error)

	FetchRegistry(ctx context.Context, addr derive.Address) (*models.SystemRegistry, error)

	// FetchClock returns the ledger's wall-clock time in epoch seconds.
	FetchClock(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}
