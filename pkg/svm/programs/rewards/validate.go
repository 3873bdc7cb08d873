package rewards

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// accountCount is the fixed length of every rewards account list.
const accountCount = 7

type accountSet struct {
	participant     *syscall.AccountInfo
	record          *syscall.AccountInfo
	userToken       *syscall.AccountInfo
	vaultToken      *syscall.AccountInfo
	mint            *syscall.AccountInfo
	tokenProgram    *syscall.AccountInfo
	systemAllocator *syscall.AccountInfo
}

func loadAccounts(ctx *syscall.ExecutionContext) (*accountSet, error) {
	if ctx.AccountCount() < accountCount {
		return nil, fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidAccount, accountCount, ctx.AccountCount())
	}
	return &accountSet{
		participant:     ctx.Accounts[0],
		record:          ctx.Accounts[1],
		userToken:       ctx.Accounts[2],
		vaultToken:      ctx.Accounts[3],
		mint:            ctx.Accounts[4],
		tokenProgram:    ctx.Accounts[5],
		systemAllocator: ctx.Accounts[6],
	}, nil
}

func requireWritable(acc *syscall.AccountInfo, role string) error {
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s must be writable", ErrInvalidAccount, role)
	}
	return nil
}

func requireKey(acc *syscall.AccountInfo, expected types.Pubkey, role string) error {
	if acc.Pubkey != expected {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidAccount, role, acc.Pubkey, expected)
	}
	return nil
}

// validateSigner is step one for every instruction.
func validateSigner(accts *accountSet) error {
	if !accts.participant.IsSigner {
		return fmt.Errorf("%w: %s", ErrNotASigner, accts.participant.Pubkey)
	}
	return nil
}

// validateNewRecordAddress checks the record sits at the canonical derivation
// and returns its bump.
func (p *Program) validateNewRecordAddress(ctx *syscall.ExecutionContext, accts *accountSet) (uint8, error) {
	address, bump, err := syscall.FindProgramAddress(ledgerSeeds(accts.participant.Pubkey), p.cfg.ProgramID, ctx)
	if err != nil {
		return 0, derivationError(err, "ledger record")
	}
	if accts.record.Pubkey != address {
		return 0, fmt.Errorf("%w: record %s, derived %s", ErrInvalidDerivedAddress, accts.record.Pubkey, address)
	}
	return bump, nil
}

// loadRecord decodes an existing record and re-verifies its address from the
// stored bump.
func (p *Program) loadRecord(ctx *syscall.ExecutionContext, accts *accountSet) (*LedgerRecord, error) {
	rec := accts.record
	if !ctx.IsProgramOwned(rec) || len(rec.Data) < RecordSize {
		// Distinguish a wrong address from a right address that was never set up.
		if _, err := p.validateNewRecordAddress(ctx, accts); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrUninitializedRecord, rec.Pubkey)
	}

	record, err := DeserializeLedgerRecord(rec.Data)
	if err != nil {
		return nil, err
	}

	address, err := ctx.CreateProgramAddress(withBump(ledgerSeeds(accts.participant.Pubkey), record.Bump), p.cfg.ProgramID)
	if err != nil {
		return nil, derivationError(err, "ledger record")
	}
	if address != rec.Pubkey {
		return nil, fmt.Errorf("%w: record %s does not derive from bump %d", ErrInvalidDerivedAddress, rec.Pubkey, record.Bump)
	}
	if !record.Initialized {
		return nil, fmt.Errorf("%w: %s", ErrUninitializedRecord, rec.Pubkey)
	}
	if record.Owner != accts.participant.Pubkey {
		return nil, fmt.Errorf("%w: record owned by %s", ErrInvalidAccount, record.Owner)
	}
	return record, nil
}

// validateDeployment checks the fixed identities and both token accounts, and
// returns the vault authority proof used to verify the vault.
func (p *Program) validateDeployment(ctx *syscall.ExecutionContext, accts *accountSet) (AuthorityProof, error) {
	if err := requireKey(accts.mint, p.cfg.Mint, "mint"); err != nil {
		return AuthorityProof{}, err
	}
	if err := requireKey(accts.vaultToken, p.cfg.Vault, "vault token account"); err != nil {
		return AuthorityProof{}, err
	}
	if err := requireKey(accts.tokenProgram, p.cfg.TokenProgram, "token program"); err != nil {
		return AuthorityProof{}, err
	}
	if err := requireKey(accts.systemAllocator, types.SystemProgramID, "system allocator"); err != nil {
		return AuthorityProof{}, err
	}

	proof, err := NewVaultAuthorityProof(ctx, p.cfg.ProgramID, accts.participant.Pubkey)
	if err != nil {
		return AuthorityProof{}, err
	}

	if err := p.validateTokenAccount(accts.userToken, accts.participant.Pubkey, "user token account"); err != nil {
		return AuthorityProof{}, err
	}
	if err := p.validateTokenAccount(accts.vaultToken, proof.Address, "vault token account"); err != nil {
		return AuthorityProof{}, err
	}
	return proof, nil
}

func (p *Program) validateTokenAccount(acc *syscall.AccountInfo, owner types.Pubkey, role string) error {
	if acc.Owner != p.cfg.TokenProgram {
		return fmt.Errorf("%w: %s not owned by the token program", ErrInvalidAccount, role)
	}
	state, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAccount, role, err)
	}
	if !state.IsInitialized() {
		return fmt.Errorf("%w: %s not initialized", ErrInvalidAccount, role)
	}
	if state.Mint != p.cfg.Mint {
		return fmt.Errorf("%w: %s holds mint %s", ErrInvalidAccount, role, state.Mint)
	}
	if state.Owner != owner {
		return fmt.Errorf("%w: %s belongs to %s", ErrInvalidAccount, role, state.Owner)
	}
	return nil
}
