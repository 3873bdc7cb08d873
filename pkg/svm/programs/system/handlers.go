package system

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// MaxAccountDataSize is the largest allocation the program accepts.
const MaxAccountDataSize = syscall.MaxAccountDataSize

// signerWritable fetches the account at index and requires both privileges.
func signerWritable(ctx *syscall.ExecutionContext, index int, role string) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingAccounts, role)
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, role)
	}
	if !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, role)
	}
	return acc, nil
}

// debit removes lamports from a system-owned, data-free account.
func debit(acc *syscall.AccountInfo, lamports uint64) error {
	if acc.Owner != types.SystemProgramID || len(acc.Data) > 0 {
		return fmt.Errorf("%w: source must be a plain system account", ErrInvalidAccountOwner)
	}
	if *acc.Lamports < lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports, *acc.Lamports)
	}
	*acc.Lamports -= lamports
	return nil
}

// handleCreateAccount handles the CreateAccount instruction.
// Account layout:
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable)
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	fundingAcc, err := signerWritable(ctx, 0, "funding account")
	if err != nil {
		return err
	}
	newAcc, err := signerWritable(ctx, 1, "new account")
	if err != nil {
		return err
	}

	if *newAcc.Lamports > 0 || len(newAcc.Data) > 0 || newAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}
	if inst.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	rentExemptMinimum := types.RentExemptMinimum(inst.Space)
	if inst.Lamports < uint64(rentExemptMinimum) {
		return fmt.Errorf("%w: need %d lamports for rent exemption", ErrAccountNotRentExempt, rentExemptMinimum)
	}

	if err := debit(fundingAcc, inst.Lamports); err != nil {
		return err
	}
	*newAcc.Lamports += inst.Lamports
	newAcc.Data = make([]byte, inst.Space)
	newAcc.Owner = inst.Owner

	ctx.Logf("created account %s with %d bytes", newAcc.Pubkey, inst.Space)
	return nil
}

// handleAssign handles the Assign instruction.
// Account layout:
//
//	[0] account to assign (signer, writable)
func handleAssign(ctx *syscall.ExecutionContext, inst *AssignInstruction) error {
	acc, err := signerWritable(ctx, 0, "account to assign")
	if err != nil {
		return err
	}
	if acc.Owner == inst.Owner {
		return nil
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by the system program", ErrInvalidAccountOwner)
	}
	acc.Owner = inst.Owner
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source account (signer, writable)
//	[1] destination account (writable)
func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	sourceAcc, err := signerWritable(ctx, 0, "source account")
	if err != nil {
		return err
	}
	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return fmt.Errorf("%w: destination account", ErrMissingAccounts)
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}

	if err := debit(sourceAcc, inst.Lamports); err != nil {
		return err
	}
	*destAcc.Lamports += inst.Lamports
	return nil
}

// handleAllocate handles the Allocate instruction.
// Account layout:
//
//	[0] account to allocate (signer, writable)
func handleAllocate(ctx *syscall.ExecutionContext, inst *AllocateInstruction) error {
	acc, err := signerWritable(ctx, 0, "account to allocate")
	if err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by the system program", ErrInvalidAccountOwner)
	}
	if len(acc.Data) > 0 {
		return ErrAccountAlreadyAllocated
	}
	if inst.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	acc.Data = make([]byte, inst.Space)
	return nil
}
