package syscall

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// MaxCPIDepth is the maximum CPI call depth (5 total including top-level).
const MaxCPIDepth = 4

// CPI errors
var (
	ErrCPIDepthExceeded      = errors.New("CPI depth exceeded")
	ErrCPINoExecutor         = errors.New("no program executor registered for CPI")
	ErrCPIAccountNotFound    = errors.New("account not found in caller")
	ErrCPIWritablePrivilege  = errors.New("writable privilege escalation")
	ErrCPISignerPrivilege    = errors.New("signer privilege escalation")
	ErrCPIInvalidSignerSeeds = errors.New("invalid signer seeds")
	ErrCPIProgramNotProvided = errors.New("program account not provided")
	ErrCPIReentrancy         = errors.New("program reentrancy not allowed")
	ErrCPICalleeFailed       = errors.New("cross-program invocation failed")
)

// Invoke performs a cross-program invocation without PDA signers.
func (ctx *ExecutionContext) Invoke(instruction *types.Instruction) error {
	return ctx.InvokeSigned(instruction)
}

// InvokeSigned performs a cross-program invocation. Each entry of signerSeeds
// is the full seed list (bump included) of a PDA owned by the calling program;
// the PDA is granted signer privilege for this call only.
//
// The callee works on copies of the caller's accounts. Writable accounts are
// copied back only if the callee succeeds, so a failed CPI leaves the caller's
// view untouched.
func (ctx *ExecutionContext) InvokeSigned(instruction *types.Instruction, signerSeeds ...[][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ctx.executor == nil {
		return ErrCPINoExecutor
	}
	if instruction.ProgramID == ctx.ProgramID {
		return ErrCPIReentrancy
	}
	if _, ok := ctx.accountIndex[instruction.ProgramID]; !ok {
		return fmt.Errorf("%w: %s", ErrCPIProgramNotProvided, instruction.ProgramID.String())
	}

	cost := CUCPIBase + uint64(len(instruction.Accounts))*CUCPIPerAccount +
		uint64(len(instruction.Data))*CUCPIPerDataByte
	if err := ctx.ConsumeComputeUnits(cost); err != nil {
		return err
	}

	pdaSigners, err := ctx.verifyPDASigners(signerSeeds)
	if err != nil {
		return err
	}

	calleeAccounts, err := ctx.resolveCalleeAccounts(instruction, pdaSigners)
	if err != nil {
		return err
	}

	child := ctx.createChildContext(instruction.ProgramID, calleeAccounts, instruction.Data)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", instruction.ProgramID.String(), child.Depth+1))

	if err := ctx.executor.ExecuteProgram(child, instruction); err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", instruction.ProgramID.String(), err))
		return fmt.Errorf("%w: program %s: %w", ErrCPICalleeFailed, instruction.ProgramID.String(), err)
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", instruction.ProgramID.String()))

	ctx.propagateAccountChanges(instruction, calleeAccounts)
	return nil
}

// verifyPDASigners derives each PDA from its seeds and the calling program's ID.
func (ctx *ExecutionContext) verifyPDASigners(signerSeeds [][][]byte) (map[types.Pubkey]bool, error) {
	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := ctx.CreateProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCPIInvalidSignerSeeds, err)
		}
		pdaSigners[pda] = true
	}
	return pdaSigners, nil
}

// resolveCalleeAccounts maps the instruction's account metas onto copies of
// the caller's accounts, rejecting privilege escalation. A PDA signer that the
// caller was not handed is presented as an empty account.
func (ctx *ExecutionContext) resolveCalleeAccounts(instruction *types.Instruction, pdaSigners map[types.Pubkey]bool) ([]*AccountInfo, error) {
	callee := make([]*AccountInfo, len(instruction.Accounts))
	seen := make(map[types.Pubkey]*AccountInfo, len(instruction.Accounts))

	for i, meta := range instruction.Accounts {
		if acc, ok := seen[meta.Pubkey]; ok {
			callee[i] = acc
			continue
		}

		isPDASigner := pdaSigners[meta.Pubkey]

		var acc *AccountInfo
		callerAcc, err := ctx.GetAccount(meta.Pubkey)
		switch {
		case err == nil:
			if meta.IsWritable && !callerAcc.IsWritable {
				return nil, fmt.Errorf("%w: %s", ErrCPIWritablePrivilege, meta.Pubkey.String())
			}
			if meta.IsSigner && !callerAcc.IsSigner && !isPDASigner {
				return nil, fmt.Errorf("%w: %s", ErrCPISignerPrivilege, meta.Pubkey.String())
			}
			acc = callerAcc.Clone()
		case isPDASigner && !meta.IsWritable:
			acc = NewAccountInfo(meta.Pubkey, nil, false, false)
		default:
			return nil, fmt.Errorf("%w: %s", ErrCPIAccountNotFound, meta.Pubkey.String())
		}

		acc.IsSigner = meta.IsSigner
		acc.IsWritable = meta.IsWritable
		callee[i] = acc
		seen[meta.Pubkey] = acc
	}

	return callee, nil
}

// propagateAccountChanges copies writable callee accounts back to the caller.
func (ctx *ExecutionContext) propagateAccountChanges(instruction *types.Instruction, calleeAccounts []*AccountInfo) {
	for i, calleeAcc := range calleeAccounts {
		if !instruction.Accounts[i].IsWritable {
			continue
		}
		callerAcc, err := ctx.GetAccount(calleeAcc.Pubkey)
		if err != nil {
			continue
		}

		*callerAcc.Lamports = *calleeAcc.Lamports
		callerAcc.Owner = calleeAcc.Owner
		if len(calleeAcc.Data) != len(callerAcc.Data) {
			callerAcc.Data = make([]byte, len(calleeAcc.Data))
		}
		copy(callerAcc.Data, calleeAcc.Data)
	}
}
