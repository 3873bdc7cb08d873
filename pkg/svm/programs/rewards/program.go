// Package rewards implements the points ledger program. Participants accrue
// points in a per-participant ledger record and redeem them for tokens paid
// out of a shared vault that only the program can sign for.
//
// Instructions:
//   - Init  (0): create the caller's ledger record at its derived address
//   - Earn  (1): add points to the record
//   - Claim (2): spend points and receive tokens from the vault
package rewards

import (
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Config pins the identities one deployment of the program trusts.
type Config struct {
	ProgramID    types.Pubkey
	Mint         types.Pubkey
	Vault        types.Pubkey
	TokenProgram types.Pubkey
}

// Program is the rewards program.
type Program struct {
	cfg Config
}

// New creates a rewards program for the given deployment.
func New(cfg Config) *Program {
	if cfg.TokenProgram.IsZero() {
		cfg.TokenProgram = types.TokenProgramID
	}
	return &Program{cfg: cfg}
}

// Config returns the deployment configuration.
func (p *Program) Config() Config {
	return p.cfg
}

// GetProgramID returns the program's public key.
func (p *Program) GetProgramID() types.Pubkey {
	return p.cfg.ProgramID
}

// Execute decodes and runs one rewards instruction. Failures are returned as
// *ProgramError; the caller discards all account changes on error.
func (p *Program) Execute(ctx *syscall.ExecutionContext, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return classify(err)
	}

	switch ix := ix.(type) {
	case InitInstruction:
		err = p.processInit(ctx)
	case EarnInstruction:
		err = p.processEarn(ctx, ix)
	case ClaimInstruction:
		err = p.processClaim(ctx, ix)
	}
	return classify(err)
}
