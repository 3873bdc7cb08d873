// Package token implements the native fungible-token program. Mint and token
// account state use the SPL Token byte layouts so existing tooling can read
// them.
//
// Supported instructions: InitializeMint, InitializeAccount, Transfer and
// MintTo.
package token

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// TokenProgram implements the token program.
type TokenProgram struct {
	// ProgramID is the token program's public key
	ProgramID types.Pubkey
}

// New creates a new TokenProgram instance.
func New() *TokenProgram {
	return &TokenProgram{
		ProgramID: types.TokenProgramID,
	}
}

// Execute executes a token program instruction.
// The instruction format is:
//   - First byte: instruction discriminator
//   - Remaining bytes: instruction-specific data
func (p *TokenProgram) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	discriminator, err := ParseInstructionDiscriminator(instruction)
	if err != nil {
		return err
	}
	instructionData := instruction[1:]

	switch discriminator {
	case InstructionInitializeMint:
		var inst InitializeMintInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return p.handleInitializeMint(ctx, &inst)

	case InstructionInitializeAccount:
		if len(instructionData) != 0 {
			return fmt.Errorf("%w: InitializeAccount takes no data", ErrInvalidInstructionData)
		}
		return p.handleInitializeAccount(ctx)

	case InstructionTransfer:
		var inst TransferInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return p.handleTransfer(ctx, &inst)

	case InstructionMintTo:
		var inst MintToInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return p.handleMintTo(ctx, &inst)

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstruction, discriminator)
	}
}

// GetProgramID returns the token program's public key.
func (p *TokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// IsTokenProgram checks if a pubkey is the token program.
func IsTokenProgram(pubkey types.Pubkey) bool {
	return pubkey == types.TokenProgramID
}
