package rewards

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Opcodes
const (
	OpInit  uint8 = 0
	OpEarn  uint8 = 1
	OpClaim uint8 = 2
)

// Instruction is one of InitInstruction, EarnInstruction or ClaimInstruction.
type Instruction interface {
	Opcode() uint8
	Encode() []byte
	isInstruction()
}

// InitInstruction creates the caller's ledger record.
type InitInstruction struct{}

// EarnInstruction credits points to the caller's record.
type EarnInstruction struct {
	Points uint32
}

// ClaimInstruction spends RequiredPoints and pays Amount tokens from the vault.
type ClaimInstruction struct {
	RequiredPoints uint32
	Amount         uint64
}

func (InitInstruction) Opcode() uint8  { return OpInit }
func (EarnInstruction) Opcode() uint8  { return OpEarn }
func (ClaimInstruction) Opcode() uint8 { return OpClaim }

func (InitInstruction) isInstruction()  {}
func (EarnInstruction) isInstruction()  {}
func (ClaimInstruction) isInstruction() {}

// Encode returns the single opcode byte.
func (InitInstruction) Encode() []byte {
	return []byte{OpInit}
}

// Encode returns opcode || points (u32 LE).
func (i EarnInstruction) Encode() []byte {
	data := make([]byte, 1+4)
	data[0] = OpEarn
	binary.LittleEndian.PutUint32(data[1:], i.Points)
	return data
}

// Encode returns opcode || required points (u32 LE) || amount (u64 LE).
func (i ClaimInstruction) Encode() []byte {
	data := make([]byte, 1+4+8)
	data[0] = OpClaim
	binary.LittleEndian.PutUint32(data[1:5], i.RequiredPoints)
	binary.LittleEndian.PutUint64(data[5:13], i.Amount)
	return data
}

var payloadSizes = map[uint8]int{
	OpInit:  0,
	OpEarn:  4,
	OpClaim: 12,
}

// DecodeInstruction decodes data into an instruction. The payload must have
// exactly the length its opcode defines.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction data", ErrMalformedInstruction)
	}

	op, payload := data[0], data[1:]
	size, ok := payloadSizes[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrMalformedInstruction, op)
	}
	if len(payload) != size {
		return nil, fmt.Errorf("%w: opcode %d takes %d payload bytes, got %d", ErrMalformedInstruction, op, size, len(payload))
	}

	switch op {
	case OpEarn:
		return EarnInstruction{Points: binary.LittleEndian.Uint32(payload)}, nil
	case OpClaim:
		return ClaimInstruction{
			RequiredPoints: binary.LittleEndian.Uint32(payload[0:4]),
			Amount:         binary.LittleEndian.Uint64(payload[4:12]),
		}, nil
	default:
		return InitInstruction{}, nil
	}
}

// Accounts is the ordered account list every rewards instruction takes.
type Accounts struct {
	Participant     types.Pubkey
	LedgerRecord    types.Pubkey
	UserToken       types.Pubkey
	VaultToken      types.Pubkey
	Mint            types.Pubkey
	TokenProgram    types.Pubkey
	SystemAllocator types.Pubkey
}

// AccountsFor fills in the accounts of participant's instructions from cfg,
// deriving the ledger record address.
func (cfg Config) AccountsFor(participant, userToken types.Pubkey) (Accounts, error) {
	record, _, err := LedgerRecordAddress(cfg.ProgramID, participant)
	if err != nil {
		return Accounts{}, err
	}
	return Accounts{
		Participant:     participant,
		LedgerRecord:    record,
		UserToken:       userToken,
		VaultToken:      cfg.Vault,
		Mint:            cfg.Mint,
		TokenProgram:    cfg.TokenProgram,
		SystemAllocator: types.SystemProgramID,
	}, nil
}

func (a Accounts) metas(op uint8) []types.AccountMeta {
	init := op == OpInit
	return []types.AccountMeta{
		types.NewAccountMeta(a.Participant, true, init),
		types.NewAccountMeta(a.LedgerRecord, false, true),
		types.NewAccountMeta(a.UserToken, false, !init),
		types.NewAccountMeta(a.VaultToken, false, !init),
		types.NewAccountMeta(a.Mint, false, false),
		types.NewAccountMeta(a.TokenProgram, false, false),
		types.NewAccountMeta(a.SystemAllocator, false, false),
	}
}

func newInstruction(programID types.Pubkey, accounts Accounts, ix Instruction) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts:  accounts.metas(ix.Opcode()),
		Data:      ix.Encode(),
	}
}

// NewInitInstruction builds an Init instruction.
func NewInitInstruction(programID types.Pubkey, accounts Accounts) types.Instruction {
	return newInstruction(programID, accounts, InitInstruction{})
}

// NewEarnInstruction builds an Earn instruction.
func NewEarnInstruction(programID types.Pubkey, accounts Accounts, points uint32) types.Instruction {
	return newInstruction(programID, accounts, EarnInstruction{Points: points})
}

// NewClaimInstruction builds a Claim instruction.
func NewClaimInstruction(programID types.Pubkey, accounts Accounts, requiredPoints uint32, amount uint64) types.Instruction {
	return newInstruction(programID, accounts, ClaimInstruction{RequiredPoints: requiredPoints, Amount: amount})
}
