// Package syscall provides the execution context handed to native programs:
// account views, compute metering, program logs, program-derived addresses
// and cross-program invocation.
package syscall

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrLogTooLong          = errors.New("log message too long")
	ErrInvalidAccountIndex = errors.New("invalid account index")
)

// Limits for execution
const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10000
	MaxAccountDataSize  = 10 * 1024 * 1024 // 10MB
)

// Compute unit costs
const (
	CULogBase        uint64 = 100
	CUCreatePDA      uint64 = 1500
	CUFindPDA        uint64 = 1500
	CUFindPDAPerIter uint64 = 50
	CUCPIBase        uint64 = 1000
	CUCPIPerAccount  uint64 = 100
	CUCPIPerDataByte uint64 = 1
)

// AccountInfo represents account information available to a program.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64 // Pointer allows modification detection
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds an AccountInfo view over a copy of a stored account.
// A nil account is presented as an empty system-owned account.
func NewAccountInfo(pubkey types.Pubkey, account *types.Account, isSigner, isWritable bool) *AccountInfo {
	if account == nil {
		account = types.NewAccount(0, types.SystemProgramID)
	}
	lamports := uint64(account.Lamports)
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      account.Owner,
		Executable: account.Executable,
		RentEpoch:  account.RentEpoch,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if account.Data != nil {
		info.Data = make([]byte, len(account.Data))
		copy(info.Data, account.Data)
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// ToAccount converts the view back into a storable account.
func (a *AccountInfo) ToAccount() *types.Account {
	account := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
	if a.Data != nil {
		account.Data = make([]byte, len(a.Data))
		copy(account.Data, a.Data)
	}
	return account
}

// IsEmpty reports whether the account holds no lamports and no data.
func (a *AccountInfo) IsEmpty() bool {
	return *a.Lamports == 0 && len(a.Data) == 0
}

// ProgramExecutor runs a program instruction inside a context. The runtime
// implements it so programs can invoke each other without importing it.
type ProgramExecutor interface {
	ExecuteProgram(ctx *ExecutionContext, instruction *types.Instruction) error
}

// logBuffer is shared between a context and the child contexts it spawns
// for CPI so the transaction sees one ordered log stream.
type logBuffer struct {
	entries []string
	max     int
}

// ExecutionContext holds the state of one instruction invocation. A context is
// owned by a single goroutine for its whole lifetime.
type ExecutionContext struct {
	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction, in instruction order
	Accounts []*AccountInfo

	accountIndex map[types.Pubkey]int

	// Instruction data
	InstructionData []byte

	// Compute meter, shared with CPI children through the pointer
	computeUnits    *uint64
	maxComputeUnits uint64

	logs *logBuffer

	// Depth of CPI calls (0 for top-level)
	Depth int

	// Stack of callers for CPI
	CallerStack []types.Pubkey

	executor ProgramExecutor
}

// NewExecutionContext creates a new top-level execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	remaining := computeUnits
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		computeUnits:    &remaining,
		maxComputeUnits: computeUnits,
		logs: &logBuffer{
			entries: make([]string, 0, MaxLogMessages),
			max:     MaxLogMessages,
		},
		CallerStack: make([]types.Pubkey, 0, 4),
	}
	ctx.buildIndex()
	return ctx
}

func (ctx *ExecutionContext) buildIndex() {
	ctx.accountIndex = make(map[types.Pubkey]int, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		if _, dup := ctx.accountIndex[acc.Pubkey]; !dup {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}
}

// SetProgramExecutor registers the executor used for cross-program invocation.
func (ctx *ExecutionContext) SetProgramExecutor(executor ProgramExecutor) {
	ctx.executor = executor
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	if units > *ctx.computeUnits {
		*ctx.computeUnits = 0
		return ErrComputeExhausted
	}
	*ctx.computeUnits -= units
	return nil
}

// GetComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 {
	return *ctx.computeUnits
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	return ctx.maxComputeUnits - *ctx.computeUnits
}

// AddLog adds a raw log message.
func (ctx *ExecutionContext) AddLog(message string) error {
	if len(ctx.logs.entries) >= ctx.logs.max {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}
	ctx.logs.entries = append(ctx.logs.entries, message)
	return nil
}

// Logf records a "Program log:" line, charging the log cost. Logging failures
// never fail the program; a full buffer silently drops the line.
func (ctx *ExecutionContext) Logf(format string, args ...interface{}) {
	if err := ctx.ConsumeComputeUnits(CULogBase); err != nil {
		return
	}
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	logs := make([]string, len(ctx.logs.entries))
	copy(logs, ctx.logs.entries)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	return len(ctx.Accounts)
}

// IsProgramOwned checks if an account is owned by the executing program.
func (ctx *ExecutionContext) IsProgramOwned(acc *AccountInfo) bool {
	return acc.Owner == ctx.ProgramID
}

// IsTopLevel returns true if this is the top-level execution (not a CPI call).
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}

// GetCaller returns the program that invoked this one.
func (ctx *ExecutionContext) GetCaller() (types.Pubkey, bool) {
	if len(ctx.CallerStack) == 0 {
		return types.ZeroPubkey, false
	}
	return ctx.CallerStack[len(ctx.CallerStack)-1], true
}

// createChildContext creates a child execution context for CPI. The child
// shares the compute meter and the log buffer with its parent.
func (ctx *ExecutionContext) createChildContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte) *ExecutionContext {
	child := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		computeUnits:    ctx.computeUnits,
		maxComputeUnits: ctx.maxComputeUnits,
		logs:            ctx.logs,
		Depth:           ctx.Depth + 1,
		CallerStack:     append(append([]types.Pubkey{}, ctx.CallerStack...), ctx.ProgramID),
		executor:        ctx.executor,
	}
	child.buildIndex()
	return child
}
