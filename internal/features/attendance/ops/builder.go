// Package ops constructs the two attendance operations as pure data. No I/O
// happens here; building either validates locally or fails with a
// VALIDATION_ERROR before anything touches the network.
package ops

import (
	"crypto/ed25519"
	"encoding/binary"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"
)

type Kind string

const (
	KindRegister Kind = "register"
	KindCheckIn  Kind = "check_in"
)

// Operation is a fully addressed, not yet signed attendance operation.
type Operation struct {
	Kind         Kind
	SubmissionID string
	Identity     ed25519.PublicKey

	DisplayName string // register only

	ProfileAddress  derive.Address
	RegistryAddress derive.Address // register only
	RecordAddress   derive.Address // check-in only

	// DayIndexHint is the day bucket computed at build time. The ledger
	// recomputes the day from its own clock at execution time, so this is a
	// hint, not truth; see the reconciler.
	DayIndexHint uint64

	BuiltAt int64
}

// SigningBytes produces the deterministic payload the wallet signs. Field
// order is part of the wire contract with the ledger.
func (o *Operation) SigningBytes() []byte {
	buf := make([]byte, 0, 192)
	buf = appendLenPrefixed(buf, []byte(o.Kind))
	buf = appendLenPrefixed(buf, []byte(o.SubmissionID))
	buf = appendLenPrefixed(buf, o.Identity)
	buf = append(buf, o.ProfileAddress.Bytes()...)
	switch o.Kind {
	case KindRegister:
		buf = append(buf, o.RegistryAddress.Bytes()...)
		buf = appendLenPrefixed(buf, []byte(o.DisplayName))
	case KindCheckIn:
		buf = append(buf, o.RecordAddress.Bytes()...)
		var day [8]byte
		binary.LittleEndian.PutUint64(day[:], o.DayIndexHint)
		buf = append(buf, day[:]...)
	}
	return buf
}

// Builder derives the addresses an operation touches.
type Builder struct {
	deriver *derive.Deriver
}

func NewBuilder(deriver *derive.Deriver) *Builder {
	return &Builder{deriver: deriver}
}

// BuildRegister constructs a Register operation. The profile must not exist
// yet; that is enforced by the ledger, not locally.
func (b *Builder) BuildRegister(identity ed25519.PublicKey, displayName string, nowUnix int64) (*Operation, error) {
	if len(identity) != ed25519.PublicKeySize {
		return nil, apperrors.NewNoIdentityError()
	}
	if err := validateDisplayName(displayName); err != nil {
		return nil, err
	}

	return &Operation{
		Kind:            KindRegister,
		SubmissionID:    uuid.New().String(),
		Identity:        identity,
		DisplayName:     displayName,
		ProfileAddress:  b.deriver.ProfileAddress(identity),
		RegistryAddress: b.deriver.RegistryAddress(),
		BuiltAt:         nowUnix,
	}, nil
}

// BuildCheckIn constructs a CheckIn operation. nowUnix should come from the
// ledger clock when available so the record address matches what the program
// derives at execution time.
func (b *Builder) BuildCheckIn(identity ed25519.PublicKey, nowUnix int64) (*Operation, error) {
	if len(identity) != ed25519.PublicKeySize {
		return nil, apperrors.NewNoIdentityError()
	}

	day := derive.DayIndex(nowUnix)
	return &Operation{
		Kind:           KindCheckIn,
		SubmissionID:   uuid.New().String(),
		Identity:       identity,
		ProfileAddress: b.deriver.ProfileAddress(identity),
		RecordAddress:  b.deriver.DailyRecordAddress(identity, day),
		DayIndexHint:   day,
		BuiltAt:        nowUnix,
	}, nil
}

func validateDisplayName(name string) error {
	if name == "" {
		return apperrors.NewValidationError("display_name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > models.MaxDisplayNameLen {
		return apperrors.NewValidationError("display_name", "must be at most 20 characters")
	}
	return nil
}

func appendLenPrefixed(buf, b []byte) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	buf = append(buf, n[:]...)
	return append(buf, b...)
}
