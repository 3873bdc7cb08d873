// Package compute_budget implements the compute budget program. Its
// instructions are read by the runtime before execution to size the
// transaction's compute meter and cap the account data it may load; executing
// them afterwards only re-validates the payload.
package compute_budget

import (
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// ProgramID is the compute budget program's public key.
var ProgramID = types.MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

// Limits
const (
	MaxComputeUnits                    = uint32(types.MaxComputeUnitsPerTransaction)
	DefaultLoadedAccountsDataSizeLimit = uint32(64 * 1024 * 1024)

	// CUExecute is charged for executing a budget instruction.
	CUExecute uint64 = 150
)

// Budget is the compute budget requested by one transaction.
type Budget struct {
	ComputeUnitLimit            uint32
	LoadedAccountsDataSizeLimit uint32

	hasComputeUnitLimit bool
}

// ComputeUnits returns the requested compute limit, or fallback when the
// transaction did not ask for one.
func (b *Budget) ComputeUnits(fallback types.ComputeUnits) types.ComputeUnits {
	if b.hasComputeUnitLimit {
		return types.ComputeUnits(b.ComputeUnitLimit)
	}
	return fallback
}

// FromInstructions collects the budget requested by a transaction's compute
// budget instructions. Each instruction type may appear at most once.
func FromInstructions(instructions []types.Instruction) (*Budget, error) {
	budget := &Budget{LoadedAccountsDataSizeLimit: DefaultLoadedAccountsDataSizeLimit}
	var hasDataSizeLimit bool

	for i := range instructions {
		if instructions[i].ProgramID != ProgramID {
			continue
		}
		inst, err := decode(instructions[i].Data)
		if err != nil {
			return nil, err
		}
		switch inst := inst.(type) {
		case *SetComputeUnitLimitInstruction:
			if budget.hasComputeUnitLimit {
				return nil, fmt.Errorf("%w: SetComputeUnitLimit", ErrDuplicateInstruction)
			}
			budget.hasComputeUnitLimit = true
			budget.ComputeUnitLimit = inst.ComputeUnitLimit
		case *SetLoadedAccountsDataSizeLimitInstruction:
			if hasDataSizeLimit {
				return nil, fmt.Errorf("%w: SetLoadedAccountsDataSizeLimit", ErrDuplicateInstruction)
			}
			hasDataSizeLimit = true
			budget.LoadedAccountsDataSizeLimit = inst.DataSizeLimit
		}
	}
	return budget, nil
}

func decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrInvalidInstructionData)
	}
	switch data[0] {
	case InstructionSetComputeUnitLimit:
		var inst SetComputeUnitLimitInstruction
		if err := inst.Decode(data[1:]); err != nil {
			return nil, err
		}
		if inst.ComputeUnitLimit > MaxComputeUnits {
			return nil, fmt.Errorf("%w: got %d (max %d)", ErrComputeUnitLimitTooHigh, inst.ComputeUnitLimit, MaxComputeUnits)
		}
		return &inst, nil
	case InstructionSetLoadedAccountsDataSizeLimit:
		var inst SetLoadedAccountsDataSizeLimitInstruction
		if err := inst.Decode(data[1:]); err != nil {
			return nil, err
		}
		return &inst, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstruction, data[0])
	}
}

// ComputeBudgetProgram is the executable side of the program.
type ComputeBudgetProgram struct{}

// New creates the compute budget program.
func New() *ComputeBudgetProgram {
	return &ComputeBudgetProgram{}
}

// Execute validates a budget instruction. The budget itself was already
// applied when the transaction was loaded.
func (p *ComputeBudgetProgram) Execute(ctx *syscall.ExecutionContext, instruction []byte) error {
	if err := ctx.ConsumeComputeUnits(CUExecute); err != nil {
		return err
	}
	_, err := decode(instruction)
	return err
}
