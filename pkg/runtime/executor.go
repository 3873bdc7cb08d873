// Package runtime executes transactions against an account store. Each
// transaction runs on private copies of its accounts under per-account locks
// and is committed to the store in one atomic batch only if every
// instruction succeeds.
package runtime

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortiblox/x1-rewards/pkg/accounts"
	"github.com/fortiblox/x1-rewards/pkg/metrics"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Executor errors
var (
	ErrEmptyTransaction      = errors.New("transaction has no instructions")
	ErrUnbalancedInstruction = errors.New("instruction changed total lamports")
	ErrReadonlyModified      = errors.New("instruction modified a read-only account")
	ErrLoadedDataTooLarge    = errors.New("loaded account data exceeds the transaction limit")
)

// CommitHook observes every committed transaction.
type CommitHook func(tx *types.Transaction, result *types.TransactionResult)

// Executor runs transactions. It is safe for concurrent use; transactions
// touching disjoint writable accounts run in parallel.
type Executor struct {
	db                accounts.AccountsDB
	registry          *ProgramRegistry
	locks             *LockTable
	computeUnitsLimit types.ComputeUnits
	hooks             []CommitHook
	log               *logrus.Entry
}

// NewExecutor creates a new transaction executor.
func NewExecutor(db accounts.AccountsDB, registry *ProgramRegistry) *Executor {
	return &Executor{
		db:                db,
		registry:          registry,
		locks:             NewLockTable(),
		computeUnitsLimit: types.DefaultComputeUnitsPerInstruction,
		log:               logrus.StandardLogger().WithField("type", "runtime/executor"),
	}
}

// SetComputeUnitsLimit sets the compute budget of transactions that do not
// request one, capped at types.MaxComputeUnitsPerTransaction.
func (e *Executor) SetComputeUnitsLimit(limit types.ComputeUnits) {
	if limit > types.MaxComputeUnitsPerTransaction {
		limit = types.MaxComputeUnitsPerTransaction
	}
	e.computeUnitsLimit = limit
}

// OnCommit registers a hook run after each successful commit, while the
// transaction's account locks are still held. Register hooks before use.
func (e *Executor) OnCommit(hook CommitHook) {
	e.hooks = append(e.hooks, hook)
}

// Registry returns the program registry.
func (e *Executor) Registry() *ProgramRegistry {
	return e.registry
}

// ExecuteTransaction executes tx atomically. Program failures are reported in
// the result and leave the store untouched; the returned error is reserved
// for storage failures.
func (e *Executor) ExecuteTransaction(tx *types.Transaction) (*types.TransactionResult, error) {
	start := time.Now()
	defer func() {
		metrics.TransactionDuration.Observe(time.Since(start).Seconds())
	}()

	result := &types.TransactionResult{Logs: make([]string, 0)}
	if tx == nil || len(tx.Instructions) == 0 {
		result.Error = ErrEmptyTransaction
		metrics.TransactionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return result, nil
	}

	budget, err := compute_budget.FromInstructions(tx.Instructions)
	if err != nil {
		result.Error = err
		metrics.TransactionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return result, nil
	}

	keys := tx.AccountKeys()
	lockStart := time.Now()
	unlock := e.locks.Lock(keys)
	defer unlock()
	metrics.LockWaitDuration.Observe(time.Since(lockStart).Seconds())

	loaded := make(map[types.Pubkey]*types.Account, len(keys))
	working := make(map[types.Pubkey]*types.Account, len(keys))
	var loadedBytes uint64
	for _, meta := range keys {
		account, err := e.db.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load account %s", meta.Pubkey)
		}
		loaded[meta.Pubkey] = account
		working[meta.Pubkey] = account.Clone()
		if account != nil {
			loadedBytes += uint64(len(account.Data))
		}
	}
	if loadedBytes > uint64(budget.LoadedAccountsDataSizeLimit) {
		result.Error = fmt.Errorf("%w: %d bytes, limit %d", ErrLoadedDataTooLarge, loadedBytes, budget.LoadedAccountsDataSizeLimit)
		metrics.TransactionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		return result, nil
	}

	remaining := uint64(budget.ComputeUnits(e.computeUnitsLimit))
	for i := range tx.Instructions {
		ix := &tx.Instructions[i]
		logs, consumed, err := e.executeInstruction(ix, working, remaining)
		result.Logs = append(result.Logs, logs...)
		result.ComputeUnits += types.ComputeUnits(consumed)
		remaining -= consumed

		program := e.registry.ProgramName(ix.ProgramID)
		if err != nil {
			result.Error = &InstructionError{Index: i, ProgramID: ix.ProgramID, Err: err}
			e.recordFailure(program, result)
			return result, nil
		}
		metrics.InstructionsTotal.WithLabelValues(program, metrics.StatusSuccess).Inc()
	}

	batch := make(map[types.Pubkey]*types.Account)
	for _, meta := range keys {
		if !meta.IsWritable {
			continue
		}
		before, after := loaded[meta.Pubkey], working[meta.Pubkey]
		if after != nil && after.IsEmpty() {
			after = nil
		}
		if before.Equal(after) {
			continue
		}
		batch[meta.Pubkey] = after
		result.AccountDeltas = append(result.AccountDeltas, types.AccountDelta{
			Pubkey:     meta.Pubkey,
			OldAccount: before,
			NewAccount: after,
		})
	}

	if len(batch) > 0 {
		if err := e.db.Commit(batch); err != nil {
			return nil, errors.Wrap(err, "failed to commit transaction")
		}
		metrics.AccountsCommitted.Add(float64(len(batch)))
	}

	result.Success = true
	metrics.TransactionsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	metrics.ComputeUnitsConsumed.Observe(float64(result.ComputeUnits))
	e.mirrorLogs(result)

	for _, hook := range e.hooks {
		hook(tx, result)
	}
	return result, nil
}

// executeInstruction runs one top-level instruction over working. Working is
// only updated when the instruction succeeds.
func (e *Executor) executeInstruction(ix *types.Instruction, working map[types.Pubkey]*types.Account, budget uint64) ([]string, uint64, error) {
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	byKey := make(map[types.Pubkey]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		info, ok := byKey[meta.Pubkey]
		if !ok {
			info = syscall.NewAccountInfo(meta.Pubkey, working[meta.Pubkey], false, false)
			byKey[meta.Pubkey] = info
		}
		// Repeated accounts share one view with the union of their privileges.
		info.IsSigner = info.IsSigner || meta.IsSigner
		info.IsWritable = info.IsWritable || meta.IsWritable
		infos[i] = info
	}

	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, budget)
	ctx.SetProgramExecutor(e)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))
	err := e.ExecuteProgram(ctx, ix)
	if err == nil {
		err = verifyInstruction(byKey, working)
	}
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return ctx.GetLogs(), ctx.GetComputeUnitsConsumed(), err
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s consumed %d of %d compute units", ix.ProgramID, ctx.GetComputeUnitsConsumed(), budget))
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))

	for pubkey, info := range byKey {
		if info.IsWritable {
			working[pubkey] = info.ToAccount()
		}
	}
	return ctx.GetLogs(), ctx.GetComputeUnitsConsumed(), nil
}

// ExecuteProgram dispatches an instruction to its registered program. It
// serves both top-level instructions and cross-program invocations.
func (e *Executor) ExecuteProgram(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	program, ok := e.registry.GetProgram(instruction.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, instruction.ProgramID)
	}
	return program.Execute(ctx, instruction.Data)
}

// verifyInstruction rejects instructions that minted or burned lamports or
// touched accounts they were only allowed to read.
func verifyInstruction(byKey map[types.Pubkey]*syscall.AccountInfo, working map[types.Pubkey]*types.Account) error {
	var before, after uint64
	for pubkey, info := range byKey {
		original := working[pubkey]
		if original != nil {
			before += uint64(original.Lamports)
		}
		after += *info.Lamports

		if info.IsWritable {
			continue
		}
		if original == nil {
			original = types.NewAccount(0, types.SystemProgramID)
		}
		if !original.Equal(info.ToAccount()) {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, pubkey)
		}
	}
	if before != after {
		return fmt.Errorf("%w: %d before, %d after", ErrUnbalancedInstruction, before, after)
	}
	return nil
}

// programErrorCoder is implemented by program errors carrying a numeric code.
type programErrorCoder interface {
	ProgramErrorCode() uint32
}

func (e *Executor) recordFailure(program string, result *types.TransactionResult) {
	metrics.TransactionsTotal.WithLabelValues(metrics.StatusFailed).Inc()
	metrics.InstructionsTotal.WithLabelValues(program, metrics.StatusFailed).Inc()

	fields := logrus.Fields{
		"program":       program,
		"compute_units": result.ComputeUnits,
	}
	var coder programErrorCoder
	if errors.As(result.Error, &coder) {
		code := fmt.Sprintf("%d", coder.ProgramErrorCode())
		metrics.ProgramErrorsTotal.WithLabelValues(program, code).Inc()
		fields["code"] = code
	}

	e.mirrorLogs(result)
	e.log.WithFields(fields).WithError(result.Error).Info("transaction failed")
}

// mirrorLogs copies program logs to the host log at debug level.
func (e *Executor) mirrorLogs(result *types.TransactionResult) {
	if !e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	for _, line := range result.Logs {
		e.log.Debug(line)
	}
}

// InstructionError reports which instruction of a transaction failed.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
