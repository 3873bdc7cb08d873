package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Instruction discriminators, matching SPL Token.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
)

// InitializeMintInstruction initializes a mint.
// Accounts:
//
//	[0] mint (writable)
type InitializeMintInstruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority *types.Pubkey
}

// Decode decodes an InitializeMint payload:
// decimals (1) + mint_authority (32) + freeze option tag (1) [+ freeze_authority (32)].
func (inst *InitializeMintInstruction) Decode(data []byte) error {
	if len(data) < 34 {
		return fmt.Errorf("%w: InitializeMint requires at least 34 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])
	inst.FreezeAuthority = nil

	switch data[33] {
	case 0:
		if len(data) != 34 {
			return fmt.Errorf("%w: trailing bytes after InitializeMint", ErrInvalidInstructionData)
		}
	case 1:
		if len(data) != 66 {
			return fmt.Errorf("%w: InitializeMint with freeze authority requires 66 bytes",
				ErrInvalidInstructionData)
		}
		var freezeAuth types.Pubkey
		copy(freezeAuth[:], data[34:66])
		inst.FreezeAuthority = &freezeAuth
	default:
		return fmt.Errorf("%w: bad freeze authority tag %d", ErrInvalidInstructionData, data[33])
	}
	return nil
}

// Encode encodes an InitializeMint instruction, discriminator included.
func (inst *InitializeMintInstruction) Encode() []byte {
	size := 1 + 34
	if inst.FreezeAuthority != nil {
		size += 32
	}
	data := make([]byte, size)
	data[0] = InstructionInitializeMint
	data[1] = inst.Decimals
	copy(data[2:34], inst.MintAuthority[:])
	if inst.FreezeAuthority != nil {
		data[34] = 1
		copy(data[35:67], inst.FreezeAuthority[:])
	}
	return data
}

// TransferInstruction moves tokens between two accounts of the same mint.
// Accounts:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] authority (signer) - source owner or delegate
type TransferInstruction struct {
	Amount uint64
}

// Decode decodes a Transfer payload.
func (inst *TransferInstruction) Decode(data []byte) error {
	return decodeAmount("Transfer", data, &inst.Amount)
}

// Encode encodes a Transfer instruction, discriminator included.
func (inst *TransferInstruction) Encode() []byte {
	return encodeAmount(InstructionTransfer, inst.Amount)
}

// MintToInstruction mints new tokens into an account.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
type MintToInstruction struct {
	Amount uint64
}

// Decode decodes a MintTo payload.
func (inst *MintToInstruction) Decode(data []byte) error {
	return decodeAmount("MintTo", data, &inst.Amount)
}

// Encode encodes a MintTo instruction, discriminator included.
func (inst *MintToInstruction) Encode() []byte {
	return encodeAmount(InstructionMintTo, inst.Amount)
}

func decodeAmount(name string, data []byte, amount *uint64) error {
	if len(data) != 8 {
		return fmt.Errorf("%w: %s requires 8 bytes, got %d", ErrInvalidInstructionData, name, len(data))
	}
	*amount = binary.LittleEndian.Uint64(data)
	return nil
}

func encodeAmount(discriminator uint8, amount uint64) []byte {
	data := make([]byte, 1+8)
	data[0] = discriminator
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// ParseInstructionDiscriminator extracts the instruction discriminator.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	return data[0], nil
}

// NewInitializeMintInstruction builds an InitializeMint instruction.
func NewInitializeMintInstruction(mint, mintAuthority types.Pubkey, decimals uint8) types.Instruction {
	inst := InitializeMintInstruction{Decimals: decimals, MintAuthority: mintAuthority}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(mint, false, true)},
		Data:      inst.Encode(),
	}
}

// NewInitializeAccountInstruction builds an InitializeAccount instruction.
func NewInitializeAccountInstruction(account, mint, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(account, false, true),
			types.NewAccountMeta(mint, false, false),
			types.NewAccountMeta(owner, false, false),
		},
		Data: []byte{InstructionInitializeAccount},
	}
}

// NewTransferInstruction builds a Transfer instruction signed by authority.
func NewTransferInstruction(source, destination, authority types.Pubkey, amount uint64) types.Instruction {
	inst := TransferInstruction{Amount: amount}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false, true),
			types.NewAccountMeta(destination, false, true),
			types.NewAccountMeta(authority, true, false),
		},
		Data: inst.Encode(),
	}
}

// NewMintToInstruction builds a MintTo instruction signed by the mint authority.
func NewMintToInstruction(mint, destination, mintAuthority types.Pubkey, amount uint64) types.Instruction {
	inst := MintToInstruction{Amount: amount}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(mint, false, true),
			types.NewAccountMeta(destination, false, true),
			types.NewAccountMeta(mintAuthority, true, false),
		},
		Data: inst.Encode(),
	}
}
