package token

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
)

// writableAccount fetches the account at index, requiring it to be writable
// and owned by the token program.
func (p *TokenProgram) writableAccount(ctx *syscall.ExecutionContext, index int, role string) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNumberOfAccounts, role)
	}
	if !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, role)
	}
	if acc.Owner != p.ProgramID {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrInvalidAccountOwner, role, acc.Owner)
	}
	return acc, nil
}

// loadTokenAccount decodes an initialized, unfrozen token account.
func loadTokenAccount(acc *syscall.AccountInfo, role string) (*TokenAccount, error) {
	state, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if !state.IsInitialized() {
		return nil, fmt.Errorf("%s: %w", role, ErrNotInitialized)
	}
	if state.IsFrozen() {
		return nil, fmt.Errorf("%s: %w", role, ErrAccountFrozen)
	}
	return state, nil
}

// handleInitializeMint handles the InitializeMint instruction.
func (p *TokenProgram) handleInitializeMint(ctx *syscall.ExecutionContext, inst *InitializeMintInstruction) error {
	mintAcc, err := p.writableAccount(ctx, 0, "mint account")
	if err != nil {
		return err
	}
	if len(mintAcc.Data) != MintSize {
		return fmt.Errorf("%w: mint account must hold %d bytes", ErrInvalidAccountData, MintSize)
	}

	existing, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized {
		return ErrAlreadyInitialized
	}

	mint := NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority)
	copy(mintAcc.Data, mint.Serialize())
	return nil
}

// handleInitializeAccount handles the InitializeAccount instruction.
// Account layout:
//
//	[0] account (writable)
//	[1] mint
//	[2] owner
func (p *TokenProgram) handleInitializeAccount(ctx *syscall.ExecutionContext) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: InitializeAccount requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	tokenAcc, err := p.writableAccount(ctx, 0, "token account")
	if err != nil {
		return err
	}
	mintAcc, _ := ctx.GetAccountByIndex(1)
	ownerAcc, _ := ctx.GetAccountByIndex(2)

	existing, err := DeserializeTokenAccount(tokenAcc.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return ErrAlreadyInitialized
	}

	if mintAcc.Owner != p.ProgramID {
		return fmt.Errorf("%w: mint not owned by token program", ErrInvalidMint)
	}
	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: mint not initialized", ErrInvalidMint)
	}

	account := NewTokenAccount(mintAcc.Pubkey, ownerAcc.Pubkey)
	copy(tokenAcc.Data, account.Serialize())
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] authority (signer) - source owner or delegate
func (p *TokenProgram) handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: Transfer requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	sourceAcc, err := p.writableAccount(ctx, 0, "source account")
	if err != nil {
		return err
	}
	destAcc, err := p.writableAccount(ctx, 1, "destination account")
	if err != nil {
		return err
	}
	authorityAcc, _ := ctx.GetAccountByIndex(2)
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: authority", ErrAccountNotSigner)
	}

	source, err := loadTokenAccount(sourceAcc, "source")
	if err != nil {
		return err
	}
	dest, err := loadTokenAccount(destAcc, "destination")
	if err != nil {
		return err
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}

	isOwner := source.Owner == authorityAcc.Pubkey
	isDelegate := source.Delegate.IsSome && source.Delegate.Value == authorityAcc.Pubkey
	if !isOwner && !isDelegate {
		return ErrOwnerMismatch
	}

	available := source.Amount
	if !isOwner {
		available = min(source.DelegatedAmount, source.Amount)
	}
	if inst.Amount > available {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, inst.Amount, available)
	}

	// Self-transfers are validated but leave balances untouched.
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}
	if dest.Amount > ^uint64(0)-inst.Amount {
		return ErrOverflow
	}

	source.Amount -= inst.Amount
	dest.Amount += inst.Amount
	if !isOwner {
		source.DelegatedAmount -= inst.Amount
	}

	copy(sourceAcc.Data, source.Serialize())
	copy(destAcc.Data, dest.Serialize())
	return nil
}

// handleMintTo handles the MintTo instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
func (p *TokenProgram) handleMintTo(ctx *syscall.ExecutionContext, inst *MintToInstruction) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: MintTo requires 3 accounts, got %d",
			ErrInvalidNumberOfAccounts, ctx.AccountCount())
	}

	mintAcc, err := p.writableAccount(ctx, 0, "mint account")
	if err != nil {
		return err
	}
	destAcc, err := p.writableAccount(ctx, 1, "destination account")
	if err != nil {
		return err
	}
	authorityAcc, _ := ctx.GetAccountByIndex(2)
	if !authorityAcc.IsSigner {
		return fmt.Errorf("%w: mint authority", ErrAccountNotSigner)
	}

	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	dest, err := loadTokenAccount(destAcc, "destination")
	if err != nil {
		return err
	}
	if dest.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}

	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authorityAcc.Pubkey {
		return ErrAuthorityMismatch
	}

	if mint.Supply > ^uint64(0)-inst.Amount || dest.Amount > ^uint64(0)-inst.Amount {
		return ErrOverflow
	}
	mint.Supply += inst.Amount
	dest.Amount += inst.Amount

	copy(mintAcc.Data, mint.Serialize())
	copy(destAcc.Data, dest.Serialize())
	return nil
}
