package engine

import (
	"errors"
	"fmt"
)

// DropRowError is the explicit row-drop signal. A row step (or a column
// policy) raises it to remove exactly the current row; the batch continues.
// Non-fatal: handled within the phase and logged as DROPPED_ROW.
type DropRowError struct {
	Message string
}

// Error implements the error interface.
func (e *DropRowError) Error() string {
	return e.Message
}

// DropRow creates a row-drop signal with a reason for the error log.
func DropRow(format string, args ...any) error {
	return &DropRowError{Message: fmt.Sprintf(format, args...)}
}

// IsDropRow reports whether an error (possibly wrapped) is a row-drop signal.
func IsDropRow(err error) bool {
	var de *DropRowError
	return errors.As(err, &de)
}

// WarnRowError keeps the current row unchanged and logs a WARNING. Raised by
// steps that check values without transforming them.
type WarnRowError struct {
	Message string
}

// Error implements the error interface.
func (e *WarnRowError) Error() string {
	return e.Message
}

// WarnRow creates a warning signal that retains the row.
func WarnRow(format string, args ...any) error {
	return &WarnRowError{Message: fmt.Sprintf(format, args...)}
}

// IsWarnRow reports whether an error (possibly wrapped) is a row warning.
func IsWarnRow(err error) bool {
	var we *WarnRowError
	return errors.As(err, &we)
}

// ValidationError is a column-level cast or constraint violation. It never
// escapes the phase on its own: the owning column's on-error policy decides
// whether it becomes a warning, a dropped row, or a phase failure.
type ValidationError struct {
	Column  string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("column %q: %s", e.Column, e.Message)
}

// ContractError reports a step violating its execution contract: wrong
// return shape, a nil batch, or a size-invariance breach without
// check_size=false. Fatal to the phase.
type ContractError struct {
	Step    string
	Message string
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("step %q contract violation: %s", e.Step, e.Message)
}

// IsContractError reports whether an error is a step contract violation.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// ConfigError reports a declaration problem: an undeclared extra name, a
// misconfigured column, or a malformed step descriptor. Surfaces before any
// row is processed and is fatal.
type ConfigError struct {
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.Message
}

// Configf creates a ConfigError.
func Configf(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether an error is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// FatalError aborts a phase and therefore the pipeline. It wraps the cause
// (an unrecognized step error, a contract violation, or a FAIL-policy
// validation failure) with phase and step attribution.
type FatalError struct {
	Phase string
	Step  string
	Err   error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("phase %q failed in step %q: %v", e.Phase, e.Step, e.Err)
	}
	return fmt.Sprintf("phase %q failed: %v", e.Phase, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *FatalError) Unwrap() error {
	return e.Err
}
