package compute_budget

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Instruction types (first byte of instruction data)
const (
	InstructionSetComputeUnitLimit            uint8 = 2
	InstructionSetLoadedAccountsDataSizeLimit uint8 = 4
)

// SetComputeUnitLimitInstruction sets the transaction's compute budget.
type SetComputeUnitLimitInstruction struct {
	ComputeUnitLimit uint32
}

// Decode decodes the payload following the type byte.
func (inst *SetComputeUnitLimitInstruction) Decode(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("%w: SetComputeUnitLimit requires 4 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.ComputeUnitLimit = binary.LittleEndian.Uint32(data)
	return nil
}

// Encode encodes the instruction including its type byte.
func (inst *SetComputeUnitLimitInstruction) Encode() []byte {
	data := make([]byte, 5)
	data[0] = InstructionSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], inst.ComputeUnitLimit)
	return data
}

// SetLoadedAccountsDataSizeLimitInstruction caps the account data a
// transaction may load.
type SetLoadedAccountsDataSizeLimitInstruction struct {
	DataSizeLimit uint32
}

// Decode decodes the payload following the type byte.
func (inst *SetLoadedAccountsDataSizeLimitInstruction) Decode(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("%w: SetLoadedAccountsDataSizeLimit requires 4 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.DataSizeLimit = binary.LittleEndian.Uint32(data)
	return nil
}

// Encode encodes the instruction including its type byte.
func (inst *SetLoadedAccountsDataSizeLimitInstruction) Encode() []byte {
	data := make([]byte, 5)
	data[0] = InstructionSetLoadedAccountsDataSizeLimit
	binary.LittleEndian.PutUint32(data[1:5], inst.DataSizeLimit)
	return data
}

// NewSetComputeUnitLimitInstruction builds a SetComputeUnitLimit instruction.
func NewSetComputeUnitLimitInstruction(limit uint32) types.Instruction {
	inst := SetComputeUnitLimitInstruction{ComputeUnitLimit: limit}
	return types.Instruction{ProgramID: ProgramID, Data: inst.Encode()}
}

// NewSetLoadedAccountsDataSizeLimitInstruction builds a
// SetLoadedAccountsDataSizeLimit instruction.
func NewSetLoadedAccountsDataSizeLimitInstruction(limit uint32) types.Instruction {
	inst := SetLoadedAccountsDataSizeLimitInstruction{DataSizeLimit: limit}
	return types.Instruction{ProgramID: ProgramID, Data: inst.Encode()}
}
