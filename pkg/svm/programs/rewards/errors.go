package rewards

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable numeric code of a rewards program failure.
type ErrorCode uint32

// Error codes, surfaced to callers as "custom program error: 0x..".
const (
	CodeMalformedInstruction ErrorCode = iota
	CodeInvalidDerivedAddress
	CodeNotASigner
	CodeAlreadyInitialized
	CodeAllocationFailed
	CodePointsOverflow
	CodeInsufficientPoints
	CodeTransferFailed
	CodeInvalidAccount
	CodeUninitializedRecord
)

// Rewards program errors
var (
	ErrMalformedInstruction  = errors.New("malformed instruction")
	ErrInvalidDerivedAddress = errors.New("invalid derived address")
	ErrNotASigner            = errors.New("participant is not a signer")
	ErrAlreadyInitialized    = errors.New("ledger record already initialized")
	ErrAllocationFailed      = errors.New("ledger record allocation failed")
	ErrPointsOverflow        = errors.New("points overflow")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrInvalidAccount        = errors.New("invalid account")
	ErrUninitializedRecord   = errors.New("ledger record not initialized")
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrMalformedInstruction, CodeMalformedInstruction},
	{ErrInvalidDerivedAddress, CodeInvalidDerivedAddress},
	{ErrNotASigner, CodeNotASigner},
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrAllocationFailed, CodeAllocationFailed},
	{ErrPointsOverflow, CodePointsOverflow},
	{ErrInsufficientPoints, CodeInsufficientPoints},
	{ErrTransferFailed, CodeTransferFailed},
	{ErrInvalidAccount, CodeInvalidAccount},
	{ErrUninitializedRecord, CodeUninitializedRecord},
}

// ProgramError carries a classified rewards failure out of the program.
type ProgramError struct {
	Code ErrorCode
	Err  error
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x: %v", uint32(e.Code), e.Err)
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// ProgramErrorCode exposes the code to hosts that do not import this package.
func (e *ProgramError) ProgramErrorCode() uint32 {
	return uint32(e.Code)
}

// CodeOf returns the code of a classified rewards error.
func CodeOf(err error) (ErrorCode, bool) {
	var perr *ProgramError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code, true
		}
	}
	return 0, false
}

// classify wraps err in a ProgramError. Errors outside the rewards taxonomy
// (compute exhaustion, log limits) are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var perr *ProgramError
	if errors.As(err, &perr) {
		return err
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return &ProgramError{Code: entry.code, Err: err}
		}
	}
	return err
}
