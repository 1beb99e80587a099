/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Generation errors - Cap exceeded, installment below interest, unbounded schedule
  2. Strategy errors - Operation not supported by the selected strategy
  3. Validation errors - Malformed loan terms
  4. Store errors - Missing records

USAGE:
  Callers branch with errors.Is / errors.As:

    var capErr *generic.CapExceededError
    if errors.As(err, &capErr) {
        log.Printf("cap %s would be exceeded by %s", capErr.Cap, capErr.Amount)
    }

SEE ALSO:
  - schedule/disbursement.go: Raises CapExceededError
  - schedule/engine.go: Raises UnsupportedStrategyError and UnboundedScheduleError
  - schedule/cumulative.go: Raises InstallmentBelowInterestError
  - loan/terms.go: Raises ValidationErrorDetail
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCapExceeded is returned when a tranche would push the outstanding
	// balance above the configured maximum outstanding amount.
	ErrCapExceeded = errors.New("maximum outstanding amount exceeded")

	// ErrUnsupportedStrategy is returned when an operation is requested from
	// a strategy that does not implement it, or the strategy is unknown.
	ErrUnsupportedStrategy = errors.New("unsupported schedule strategy")

	// ErrUnboundedSchedule is returned when the period loop exceeds its
	// iteration ceiling. It signals malformed input, not a normal outcome.
	ErrUnboundedSchedule = errors.New("schedule generation did not terminate")

	// ErrInstallmentBelowInterest is returned when a fixed installment does
	// not cover the interest of a period.
	ErrInstallmentBelowInterest = errors.New("fixed installment below period interest")

	// ErrInvalidTerms is returned when loan terms fail validation.
	ErrInvalidTerms = errors.New("invalid loan terms")

	// ErrScheduleNotFound is returned when a stored schedule doesn't exist.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrScheduleExists is returned when a record ID or a (loan, version)
	// pair is stored twice. Records are append-only.
	ErrScheduleExists = errors.New("schedule version already stored")

	// ErrHolidayNotFound is returned when deleting an unknown holiday.
	ErrHolidayNotFound = errors.New("holiday not found")

	// ErrInvalidPeriod is returned when a date range ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CapExceededError carries the configured cap and the offending tranche.
type CapExceededError struct {
	Cap    Money
	Amount Money
	Date   TimePoint
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("tranche of %s on %s exceeds maximum outstanding amount %s",
		e.Amount, e.Date, e.Cap)
}

func (e *CapExceededError) Unwrap() error {
	return ErrCapExceeded
}

// UnsupportedStrategyError names the strategy and the operation refused.
type UnsupportedStrategyError struct {
	Strategy  string
	Operation string
}

func (e *UnsupportedStrategyError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("unsupported schedule strategy %q", e.Strategy)
	}
	return fmt.Sprintf("strategy %q does not support %s", e.Strategy, e.Operation)
}

func (e *UnsupportedStrategyError) Unwrap() error {
	return ErrUnsupportedStrategy
}

// UnboundedScheduleError reports how far the period loop got.
type UnboundedScheduleError struct {
	Iterations int
	Limit      int
}

func (e *UnboundedScheduleError) Error() string {
	return fmt.Sprintf("schedule generation exceeded %d iterations (limit %d)", e.Iterations, e.Limit)
}

func (e *UnboundedScheduleError) Unwrap() error {
	return ErrUnboundedSchedule
}

// InstallmentBelowInterestError carries the fixed installment and the
// interest it fails to cover.
type InstallmentBelowInterestError struct {
	Installment Money
	Interest    Money
	Due         TimePoint
}

func (e *InstallmentBelowInterestError) Error() string {
	return fmt.Sprintf("installment of %s due %s must be greater than interest %s",
		e.Installment, e.Due, e.Interest)
}

func (e *InstallmentBelowInterestError) Unwrap() error {
	return ErrInstallmentBelowInterest
}

// ValidationErrorDetail describes one invalid field of the loan terms.
type ValidationErrorDetail struct {
	Field   string
	Message string
}

func (e *ValidationErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationErrorDetail) Unwrap() error {
	return ErrInvalidTerms
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrCapExceeded) ||
		errors.Is(err, ErrInstallmentBelowInterest) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnsupportedStrategy)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) || errors.Is(err, ErrHolidayNotFound)
}

// IsConflict returns true if the error is a duplicate write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrScheduleExists)
}
