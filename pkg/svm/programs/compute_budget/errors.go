package compute_budget

import "errors"

// Compute budget errors
var (
	ErrInvalidInstructionData  = errors.New("invalid instruction data")
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit too high")
	ErrDuplicateInstruction    = errors.New("duplicate compute budget instruction")
	ErrUnknownInstruction      = errors.New("unknown compute budget instruction")
)
