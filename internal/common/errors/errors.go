package errors

import (
	"fmt"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"

	// Identity / signing
	ErrCodeNoIdentity   ErrorCode = "NO_IDENTITY"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Детерминированные отказы ledger
	ErrCodeAlreadyRegistered     ErrorCode = "ALREADY_REGISTERED"
	ErrCodeNotRegistered         ErrorCode = "NOT_REGISTERED"
	ErrCodeAlreadyClockedInToday ErrorCode = "ALREADY_CLOCKED_IN_TODAY"
	ErrCodeDuplicateSubmission   ErrorCode = "DUPLICATE_SUBMISSION"
	ErrCodeRecordAddressMismatch ErrorCode = "RECORD_ADDRESS_MISMATCH"

	// Транспорт и кэш
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	ErrCodeCache     ErrorCode = "CACHE_ERROR"

	// Один submit на identity за раз
	ErrCodeSubmissionInFlight ErrorCode = "SUBMISSION_IN_FLIGHT"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRejection reports whether the error is a deterministic ledger-side
// rejection, as opposed to a transient transport failure.
func (e *AppError) IsRejection() bool {
	switch e.Code {
	case ErrCodeAlreadyRegistered, ErrCodeNotRegistered, ErrCodeAlreadyClockedInToday,
		ErrCodeDuplicateSubmission, ErrCodeRecordAddressMismatch, ErrCodeUnauthorized:
		return true
	}
	return false
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation || e.Code == ErrCodeBadRequest
}

// IsNotFound проверяет, является ли ошибка ошибкой "не найдено"
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound
}

// IsTransport reports whether the error is transient and the operation
// outcome is unknown.
func (e *AppError) IsTransport() bool {
	return e.Code == ErrCodeTransport
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewNoIdentityError создает ошибку отсутствия активной identity
func NewNoIdentityError() *AppError {
	return New(ErrCodeNoIdentity, "No active identity: connect a wallet signer first")
}

// NewNotFoundError создает ошибку "не найдено"
func NewNotFoundError(resource string, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewRejectedError создает детерминированный отказ ledger
func NewRejectedError(code ErrorCode, reason string) *AppError {
	return New(code, fmt.Sprintf("Rejected by ledger: %s", reason)).
		WithDetail("reason", reason)
}

// NewTransportError создает транзиентную ошибку транспорта
func NewTransportError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTransport, fmt.Sprintf("Transport failure during %s", operation)).
		WithDetail("operation", operation)
}

// NewCacheError создает ошибку кэша
func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCache, fmt.Sprintf("Cache operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// IsAppError проверяет, является ли ошибка AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil {
		appErr, _ = err.(*AppError)
	}
	return appErr, appErr != nil
}

// CodeOf возвращает код ошибки или ErrCodeInternal
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
