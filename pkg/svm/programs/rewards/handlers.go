package rewards

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/programs/system"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// processInit creates the participant's ledger record.
func (p *Program) processInit(ctx *syscall.ExecutionContext) error {
	accts, err := loadAccounts(ctx)
	if err != nil {
		return err
	}
	if err := validateSigner(accts); err != nil {
		return err
	}
	if err := requireWritable(accts.participant, "participant"); err != nil {
		return err
	}
	if err := requireWritable(accts.record, "ledger record"); err != nil {
		return err
	}
	bump, err := p.validateNewRecordAddress(ctx, accts)
	if err != nil {
		return err
	}
	if _, err := p.validateDeployment(ctx, accts); err != nil {
		return err
	}

	rec := accts.record
	rent := uint64(types.RentExemptMinimum(RecordSize))
	switch {
	case ctx.IsProgramOwned(rec):
		if len(rec.Data) < RecordSize || *rec.Lamports < rent {
			return fmt.Errorf("%w: pre-allocated record holds %d bytes and %d lamports", ErrAllocationFailed, len(rec.Data), *rec.Lamports)
		}
		existing, err := DeserializeLedgerRecord(rec.Data)
		if err != nil {
			return err
		}
		if existing.Initialized {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, rec.Pubkey)
		}
		ctx.Logf("Adopting pre-allocated ledger record")

	case rec.IsEmpty() && rec.Owner == types.SystemProgramID:
		create := system.NewCreateAccountInstruction(accts.participant.Pubkey, rec.Pubkey, rent, RecordSize, p.cfg.ProgramID)
		if err := ctx.InvokeSigned(&create, withBump(ledgerSeeds(accts.participant.Pubkey), bump)); err != nil {
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}

	case len(rec.Data) == 0 && rec.Owner == types.SystemProgramID:
		// Lamports were sent to the address before Init. Top up to rent and
		// take the account over in place.
		signer := withBump(ledgerSeeds(accts.participant.Pubkey), bump)
		if *rec.Lamports < rent {
			transfer := system.NewTransferInstruction(accts.participant.Pubkey, rec.Pubkey, rent-*rec.Lamports)
			if err := ctx.Invoke(&transfer); err != nil {
				return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
			}
		}
		allocate := system.NewAllocateInstruction(rec.Pubkey, RecordSize)
		if err := ctx.InvokeSigned(&allocate, signer); err != nil {
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		assign := system.NewAssignInstruction(rec.Pubkey, p.cfg.ProgramID)
		if err := ctx.InvokeSigned(&assign, signer); err != nil {
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		ctx.Logf("Adopting pre-funded ledger record")

	default:
		return fmt.Errorf("%w: record account owned by %s", ErrAllocationFailed, rec.Owner)
	}

	record := LedgerRecord{
		Owner:       accts.participant.Pubkey,
		Bump:        bump,
		Initialized: true,
	}
	copy(rec.Data, record.Serialize())

	ctx.Logf("Reward account initialized!")
	return nil
}

// loadForUpdate runs the validation shared by Earn and Claim.
func (p *Program) loadForUpdate(ctx *syscall.ExecutionContext) (*accountSet, *LedgerRecord, AuthorityProof, error) {
	accts, err := loadAccounts(ctx)
	if err != nil {
		return nil, nil, AuthorityProof{}, err
	}
	if err := validateSigner(accts); err != nil {
		return nil, nil, AuthorityProof{}, err
	}
	for _, w := range []struct {
		acc  *syscall.AccountInfo
		role string
	}{
		{accts.record, "ledger record"},
		{accts.userToken, "user token account"},
		{accts.vaultToken, "vault token account"},
	} {
		if err := requireWritable(w.acc, w.role); err != nil {
			return nil, nil, AuthorityProof{}, err
		}
	}

	record, err := p.loadRecord(ctx, accts)
	if err != nil {
		return nil, nil, AuthorityProof{}, err
	}
	proof, err := p.validateDeployment(ctx, accts)
	if err != nil {
		return nil, nil, AuthorityProof{}, err
	}
	return accts, record, proof, nil
}

// processEarn credits points. It never moves tokens.
func (p *Program) processEarn(ctx *syscall.ExecutionContext, ix EarnInstruction) error {
	accts, record, _, err := p.loadForUpdate(ctx)
	if err != nil {
		return err
	}

	if ix.Points == 0 {
		ctx.Logf("Earned 0 points, ledger unchanged")
		return nil
	}
	if err := record.Earn(ix.Points); err != nil {
		return err
	}
	copy(accts.record.Data, record.Serialize())

	ctx.Logf("Earned %d points!", ix.Points)
	ctx.Logf("Total points: %d", record.Points)
	return nil
}

// processClaim spends points and pays tokens out of the vault. The points
// decrement is staged and only written once the transfer has succeeded.
func (p *Program) processClaim(ctx *syscall.ExecutionContext, ix ClaimInstruction) error {
	accts, record, proof, err := p.loadForUpdate(ctx)
	if err != nil {
		return err
	}

	staged := *record
	if err := staged.Spend(ix.RequiredPoints); err != nil {
		ctx.Logf("Not enough points to claim a reward.")
		return err
	}
	if err := proof.Verify(); err != nil {
		return err
	}

	transfer := token.NewTransferInstruction(accts.vaultToken.Pubkey, accts.userToken.Pubkey, proof.Address, ix.Amount)
	transfer.ProgramID = p.cfg.TokenProgram
	if err := ctx.InvokeSigned(&transfer, proof.SignerSeeds()); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	copy(accts.record.Data, staged.Serialize())

	ctx.Logf("Transferred %d tokens", ix.Amount)
	ctx.Logf("Successfully claimed a reward!")
	ctx.Logf("Total points: %d", staged.Points)
	return nil
}
