package system

import "errors"

// System program errors
var (
	ErrInsufficientFunds       = errors.New("insufficient funds for operation")
	ErrAccountAlreadyExists    = errors.New("account already exists")
	ErrAccountNotRentExempt    = errors.New("account not rent exempt")
	ErrInvalidAccountOwner     = errors.New("invalid account owner")
	ErrInvalidInstructionData  = errors.New("invalid instruction data")
	ErrAccountNotSigner        = errors.New("account is not a signer")
	ErrAccountNotWritable      = errors.New("account is not writable")
	ErrAccountDataTooLarge     = errors.New("account data too large")
	ErrAccountAlreadyAllocated = errors.New("account already has data")
	ErrMissingAccounts         = errors.New("not enough accounts")
)
