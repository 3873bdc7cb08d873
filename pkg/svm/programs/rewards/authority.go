package rewards

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Seed labels
const (
	LedgerSeed = "ledger"
	VaultSeed  = "vault"
)

func ledgerSeeds(participant types.Pubkey) [][]byte {
	return [][]byte{[]byte(LedgerSeed), participant.Bytes()}
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	return append(append(make([][]byte, 0, len(seeds)+1), seeds...), []byte{bump})
}

// LedgerRecordAddress returns the canonical ledger record address of
// participant and its bump.
func LedgerRecordAddress(programID, participant types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync(ledgerSeeds(participant), programID)
}

// VaultAuthority returns the address that must own the vault token account.
func VaultAuthority(programID types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync([][]byte{[]byte(VaultSeed)}, programID)
}

// AuthorityProof lets the program sign for the vault authority during one
// claim. It is built per call and handed to the transfer by value.
type AuthorityProof struct {
	ProgramID types.Pubkey
	// Participant is the claimant the proof was built for. It scopes the
	// proof to one call and is not seed material: the vault is shared.
	Participant types.Pubkey
	Seeds       [][]byte
	Bump        uint8
	Address     types.Pubkey
}

// NewVaultAuthorityProof derives the vault authority, charging the search
// against ctx's compute meter when ctx is non-nil.
func NewVaultAuthorityProof(ctx *syscall.ExecutionContext, programID, participant types.Pubkey) (AuthorityProof, error) {
	seeds := [][]byte{[]byte(VaultSeed)}
	address, bump, err := syscall.FindProgramAddress(seeds, programID, ctx)
	if err != nil {
		return AuthorityProof{}, derivationError(err, "vault authority")
	}
	return AuthorityProof{
		ProgramID:   programID,
		Participant: participant,
		Seeds:       seeds,
		Bump:        bump,
		Address:     address,
	}, nil
}

// SignerSeeds returns the seeds including the bump, as the CPI expects them.
func (p AuthorityProof) SignerSeeds() [][]byte {
	return withBump(p.Seeds, p.Bump)
}

// Verify re-derives the address from the seeds.
func (p AuthorityProof) Verify() error {
	address, err := syscall.CreateProgramAddress(p.SignerSeeds(), p.ProgramID)
	if err != nil {
		return derivationError(err, "vault authority")
	}
	if address != p.Address {
		return fmt.Errorf("%w: vault authority %s, derived %s", ErrInvalidDerivedAddress, p.Address, address)
	}
	return nil
}

// derivationError reports a failed derivation as ErrInvalidDerivedAddress.
// Compute exhaustion is returned unchanged so it keeps its own meaning.
func derivationError(err error, what string) error {
	if errors.Is(err, syscall.ErrComputeExhausted) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalidDerivedAddress, what, err)
}
