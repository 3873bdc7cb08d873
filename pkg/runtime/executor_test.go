package runtime

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/x1-rewards/pkg/accounts"
	"github.com/fortiblox/x1-rewards/pkg/metrics"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/rewards"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/system"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

var testProgramID = types.PubkeyFromSeed("runtime-test-program")

type deployment struct {
	db   *accounts.MemoryDB
	exec *Executor
	cfg  rewards.Config
}

func newDeployment(t *testing.T, vaultSupply uint64) *deployment {
	db := accounts.NewMemoryDB()
	cfg := rewards.Config{
		ProgramID:    types.PubkeyFromSeed("rewards"),
		Mint:         types.PubkeyFromSeed("mint"),
		Vault:        types.PubkeyFromSeed("vault"),
		TokenProgram: types.TokenProgramID,
	}
	authority, _, err := rewards.VaultAuthority(cfg.ProgramID)
	require.NoError(t, err)

	mintAuthority := types.PubkeyFromSeed("mint-authority")
	vault := token.NewTokenAccount(cfg.Mint, authority)
	vault.Amount = vaultSupply
	require.NoError(t, db.Commit(map[types.Pubkey]*types.Account{
		cfg.Mint:              token.NewMint(6, &mintAuthority, nil).ToAccount(),
		cfg.Vault:             vault.ToAccount(),
		types.SystemProgramID: {Owner: types.NativeLoaderID, Executable: true},
		types.TokenProgramID:  {Owner: types.NativeLoaderID, Executable: true},
		cfg.ProgramID:         {Owner: types.NativeLoaderID, Executable: true},
	}))

	registry := NewDefaultRegistry()
	registry.RegisterProgram(cfg.ProgramID, "rewards", rewards.New(cfg))
	return &deployment{db: db, exec: NewExecutor(db, registry), cfg: cfg}
}

// participant funds a fresh participant and its token account.
func (d *deployment) participant(t *testing.T, name string) rewards.Accounts {
	owner := types.PubkeyFromSeed(name)
	userToken := types.PubkeyFromSeed(name + "-token")
	require.NoError(t, d.db.Commit(map[types.Pubkey]*types.Account{
		owner:     types.NewAccount(1_000_000_000, types.SystemProgramID),
		userToken: token.NewTokenAccount(d.cfg.Mint, owner).ToAccount(),
	}))
	accts, err := d.cfg.AccountsFor(owner, userToken)
	require.NoError(t, err)
	return accts
}

func (d *deployment) run(t *testing.T, ixs ...types.Instruction) *types.TransactionResult {
	result, err := d.exec.ExecuteTransaction(types.NewTransaction(ixs...))
	require.NoError(t, err)
	return result
}

func (d *deployment) points(t *testing.T, accts rewards.Accounts) uint32 {
	acc, err := d.db.GetAccount(accts.LedgerRecord)
	require.NoError(t, err)
	require.NotNil(t, acc)
	record, err := rewards.DeserializeLedgerRecord(acc.Data)
	require.NoError(t, err)
	return record.Points
}

func (d *deployment) tokens(t *testing.T, key types.Pubkey) uint64 {
	acc, err := d.db.GetAccount(key)
	require.NoError(t, err)
	state, err := token.DeserializeTokenAccount(acc.Data)
	require.NoError(t, err)
	return state.Amount
}

func snapshotDB(t *testing.T, db accounts.AccountsDB) map[types.Pubkey]*types.Account {
	out := make(map[types.Pubkey]*types.Account)
	require.NoError(t, db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		out[pubkey] = account.Clone()
		return nil
	}))
	return out
}

func TestExecuteTransaction_SystemTransfer(t *testing.T) {
	db := accounts.NewMemoryDB()
	from := types.PubkeyFromSeed("from")
	to := types.PubkeyFromSeed("to")
	require.NoError(t, db.SetAccount(from, types.NewAccount(1_000, types.SystemProgramID)))

	exec := NewExecutor(db, NewDefaultRegistry())
	result, err := exec.ExecuteTransaction(types.NewTransaction(system.NewTransferInstruction(from, to, 300)))
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)

	src, err := db.GetAccount(from)
	require.NoError(t, err)
	dst, err := db.GetAccount(to)
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(700), src.Lamports)
	assert.Equal(t, types.Lamports(300), dst.Lamports)

	require.Len(t, result.AccountDeltas, 2)
	for _, delta := range result.AccountDeltas {
		if delta.Pubkey == to {
			assert.True(t, delta.IsCreation())
		}
	}
	assert.Contains(t, result.Logs, fmt.Sprintf("Program %s invoke [1]", types.SystemProgramID))
	assert.Contains(t, result.Logs, fmt.Sprintf("Program %s success", types.SystemProgramID))
}

func TestExecuteTransaction_DrainedAccountIsDeleted(t *testing.T) {
	db := accounts.NewMemoryDB()
	from := types.PubkeyFromSeed("from")
	to := types.PubkeyFromSeed("to")
	require.NoError(t, db.SetAccount(from, types.NewAccount(500, types.SystemProgramID)))

	exec := NewExecutor(db, NewDefaultRegistry())
	result, err := exec.ExecuteTransaction(types.NewTransaction(system.NewTransferInstruction(from, to, 500)))
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)

	assert.False(t, db.HasAccount(from))
	assert.True(t, db.HasAccount(to))
}

func TestExecuteTransaction_FailureLeavesStoreUntouched(t *testing.T) {
	db := accounts.NewMemoryDB()
	from := types.PubkeyFromSeed("from")
	to := types.PubkeyFromSeed("to")
	require.NoError(t, db.SetAccount(from, types.NewAccount(1_000, types.SystemProgramID)))
	before := snapshotDB(t, db)

	exec := NewExecutor(db, NewDefaultRegistry())
	var committed int
	exec.OnCommit(func(*types.Transaction, *types.TransactionResult) { committed++ })

	result, err := exec.ExecuteTransaction(types.NewTransaction(
		system.NewTransferInstruction(from, to, 600),
		system.NewTransferInstruction(from, to, 600),
	))
	require.NoError(t, err)
	assert.False(t, result.Success)

	var ixErr *InstructionError
	require.True(t, errors.As(result.Error, &ixErr))
	assert.Equal(t, 1, ixErr.Index)
	assert.Equal(t, types.SystemProgramID, ixErr.ProgramID)
	assert.ErrorIs(t, result.Error, system.ErrInsufficientFunds)

	assert.Equal(t, before, snapshotDB(t, db))
	assert.Empty(t, result.AccountDeltas)
	assert.Zero(t, committed)
}

func TestExecuteTransaction_Empty(t *testing.T) {
	exec := NewExecutor(accounts.NewMemoryDB(), NewDefaultRegistry())

	result, err := exec.ExecuteTransaction(types.NewTransaction())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, ErrEmptyTransaction)
}

func TestExecuteTransaction_UnknownProgram(t *testing.T) {
	exec := NewExecutor(accounts.NewMemoryDB(), NewDefaultRegistry())

	result, err := exec.ExecuteTransaction(types.NewTransaction(types.Instruction{ProgramID: testProgramID}))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, ErrProgramNotFound)
}

func TestExecuteTransaction_InstructionInvariants(t *testing.T) {
	writable := types.PubkeyFromSeed("writable")
	readonly := types.PubkeyFromSeed("readonly")

	tests := []struct {
		name    string
		program ProgramFunc
		wantErr error
	}{
		{
			name: "minting lamports",
			program: func(ctx *syscall.ExecutionContext, _ []byte) error {
				*ctx.Accounts[0].Lamports += 10
				return nil
			},
			wantErr: ErrUnbalancedInstruction,
		},
		{
			name: "writing a read-only account",
			program: func(ctx *syscall.ExecutionContext, _ []byte) error {
				ctx.Accounts[1].Data = []byte{1}
				return nil
			},
			wantErr: ErrReadonlyModified,
		},
		{
			name: "moving lamports out of a read-only account",
			program: func(ctx *syscall.ExecutionContext, _ []byte) error {
				*ctx.Accounts[1].Lamports -= 10
				*ctx.Accounts[0].Lamports += 10
				return nil
			},
			wantErr: ErrReadonlyModified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := accounts.NewMemoryDB()
			require.NoError(t, db.SetAccount(writable, types.NewAccount(100, testProgramID)))
			require.NoError(t, db.SetAccount(readonly, types.NewAccount(100, testProgramID)))
			before := snapshotDB(t, db)

			registry := NewProgramRegistry()
			registry.RegisterProgram(testProgramID, "test", tt.program)
			exec := NewExecutor(db, registry)

			result, err := exec.ExecuteTransaction(types.NewTransaction(types.Instruction{
				ProgramID: testProgramID,
				Accounts: []types.AccountMeta{
					types.NewAccountMeta(writable, false, true),
					types.NewAccountMeta(readonly, false, false),
				},
			}))
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.ErrorIs(t, result.Error, tt.wantErr)
			assert.Equal(t, before, snapshotDB(t, db))
		})
	}
}

func TestExecuteTransaction_DuplicateAccountsShareOneView(t *testing.T) {
	db := accounts.NewMemoryDB()
	key := types.PubkeyFromSeed("dup")
	require.NoError(t, db.SetAccount(key, types.NewAccount(100, testProgramID)))

	registry := NewProgramRegistry()
	registry.RegisterProgram(testProgramID, "test", ProgramFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		if ctx.Accounts[0] != ctx.Accounts[1] {
			return errors.New("duplicate accounts were not merged")
		}
		ctx.Accounts[1].Data = []byte{7}
		return nil
	}))
	exec := NewExecutor(db, registry)

	result, err := exec.ExecuteTransaction(types.NewTransaction(types.Instruction{
		ProgramID: testProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(key, false, true),
			types.NewAccountMeta(key, false, false),
		},
	}))
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)

	acc, err := db.GetAccount(key)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, acc.Data)
}

func TestExecuteTransaction_ComputeBudget(t *testing.T) {
	registry := NewProgramRegistry()
	registry.RegisterProgram(testProgramID, "test", ProgramFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		return ctx.ConsumeComputeUnits(600)
	}))
	exec := NewExecutor(accounts.NewMemoryDB(), registry)
	exec.SetComputeUnitsLimit(1_000)

	ix := types.Instruction{ProgramID: testProgramID}
	result, err := exec.ExecuteTransaction(types.NewTransaction(ix))
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, types.ComputeUnits(600), result.ComputeUnits)

	result, err = exec.ExecuteTransaction(types.NewTransaction(ix, ix))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, syscall.ErrComputeExhausted)

	exec.SetComputeUnitsLimit(types.MaxComputeUnitsPerTransaction + 1)
	assert.Equal(t, types.MaxComputeUnitsPerTransaction, exec.computeUnitsLimit)
}

func TestExecuteTransaction_RequestedComputeBudget(t *testing.T) {
	registry := NewDefaultRegistry()
	registry.RegisterProgram(testProgramID, "test", ProgramFunc(func(ctx *syscall.ExecutionContext, _ []byte) error {
		return ctx.ConsumeComputeUnits(600)
	}))
	exec := NewExecutor(accounts.NewMemoryDB(), registry)
	exec.SetComputeUnitsLimit(1_000)
	ix := types.Instruction{ProgramID: testProgramID}

	result, err := exec.ExecuteTransaction(types.NewTransaction(
		compute_budget.NewSetComputeUnitLimitInstruction(5_000), ix, ix))
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, types.ComputeUnits(1_200+compute_budget.CUExecute), result.ComputeUnits)

	result, err = exec.ExecuteTransaction(types.NewTransaction(
		compute_budget.NewSetComputeUnitLimitInstruction(500), ix))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, syscall.ErrComputeExhausted)

	result, err = exec.ExecuteTransaction(types.NewTransaction(
		compute_budget.NewSetComputeUnitLimitInstruction(5_000),
		compute_budget.NewSetComputeUnitLimitInstruction(6_000), ix))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, compute_budget.ErrDuplicateInstruction)
	assert.Empty(t, result.Logs)
}

func TestExecuteTransaction_LoadedDataLimit(t *testing.T) {
	db := accounts.NewMemoryDB()
	key := types.PubkeyFromSeed("large")
	require.NoError(t, db.Commit(map[types.Pubkey]*types.Account{
		key: {Lamports: 1, Owner: testProgramID, Data: make([]byte, 256)},
	}))
	registry := NewDefaultRegistry()
	registry.RegisterProgram(testProgramID, "test", ProgramFunc(func(*syscall.ExecutionContext, []byte) error {
		return nil
	}))
	exec := NewExecutor(db, registry)
	ix := types.Instruction{
		ProgramID: testProgramID,
		Accounts:  []types.AccountMeta{{Pubkey: key}},
	}

	result, err := exec.ExecuteTransaction(types.NewTransaction(
		compute_budget.NewSetLoadedAccountsDataSizeLimitInstruction(128), ix))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, ErrLoadedDataTooLarge)
	assert.Equal(t, 0, exec.locks.Len())

	result, err = exec.ExecuteTransaction(types.NewTransaction(
		compute_budget.NewSetLoadedAccountsDataSizeLimitInstruction(256), ix))
	require.NoError(t, err)
	assert.True(t, result.Success, "%v", result.Error)
}

func TestExecuteTransaction_RewardsLifecycle(t *testing.T) {
	d := newDeployment(t, 10_000)
	alice := d.participant(t, "alice")

	result := d.run(t, rewards.NewInitInstruction(d.cfg.ProgramID, alice))
	require.True(t, result.Success, "%v", result.Error)
	assert.Contains(t, result.Logs, fmt.Sprintf("Program %s invoke [2]", types.SystemProgramID))

	result = d.run(t,
		rewards.NewEarnInstruction(d.cfg.ProgramID, alice, 30),
		rewards.NewEarnInstruction(d.cfg.ProgramID, alice, 20),
	)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, uint32(50), d.points(t, alice))

	result = d.run(t, rewards.NewClaimInstruction(d.cfg.ProgramID, alice, 50, 100))
	require.True(t, result.Success, "%v", result.Error)
	assert.Contains(t, result.Logs, fmt.Sprintf("Program %s invoke [2]", types.TokenProgramID))
	assert.Contains(t, result.Logs, "Program log: Successfully claimed a reward!")

	assert.Zero(t, d.points(t, alice))
	assert.Equal(t, uint64(100), d.tokens(t, alice.UserToken))
	assert.Equal(t, uint64(9_900), d.tokens(t, d.cfg.Vault))
}

func TestExecuteTransaction_EarnThenFailedClaimRollsBackTransaction(t *testing.T) {
	d := newDeployment(t, 10_000)
	alice := d.participant(t, "alice")
	require.True(t, d.run(t, rewards.NewInitInstruction(d.cfg.ProgramID, alice)).Success)
	before := snapshotDB(t, d.db)

	failures := testutil.ToFloat64(metrics.ProgramErrorsTotal.WithLabelValues("rewards", fmt.Sprintf("%d", rewards.CodeInsufficientPoints)))

	result := d.run(t,
		rewards.NewEarnInstruction(d.cfg.ProgramID, alice, 10),
		rewards.NewClaimInstruction(d.cfg.ProgramID, alice, 50, 100),
	)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, rewards.ErrInsufficientPoints)
	code, ok := rewards.CodeOf(result.Error)
	require.True(t, ok)
	assert.Equal(t, rewards.CodeInsufficientPoints, code)

	assert.Equal(t, before, snapshotDB(t, d.db))
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.ProgramErrorsTotal.WithLabelValues("rewards", fmt.Sprintf("%d", rewards.CodeInsufficientPoints))))
}

func TestExecuteTransaction_ConcurrentParticipants(t *testing.T) {
	const (
		participants = 8
		earnsEach    = 25
	)
	d := newDeployment(t, 1_000_000)

	all := make([]rewards.Accounts, participants)
	for i := range all {
		all[i] = d.participant(t, fmt.Sprintf("participant-%d", i))
		require.True(t, d.run(t, rewards.NewInitInstruction(d.cfg.ProgramID, all[i])).Success)
	}

	var g errgroup.Group
	for _, accts := range all {
		accts := accts
		for j := 0; j < earnsEach; j++ {
			g.Go(func() error {
				result, err := d.exec.ExecuteTransaction(types.NewTransaction(
					rewards.NewEarnInstruction(d.cfg.ProgramID, accts, 2),
				))
				if err != nil {
					return err
				}
				if !result.Success {
					return result.Error
				}
				return nil
			})
			g.Go(func() error {
				result, err := d.exec.ExecuteTransaction(types.NewTransaction(
					rewards.NewEarnInstruction(d.cfg.ProgramID, accts, 1),
					rewards.NewClaimInstruction(d.cfg.ProgramID, accts, 1, 3),
				))
				if err != nil {
					return err
				}
				if !result.Success {
					return result.Error
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, accts := range all {
		assert.Equal(t, uint32(2*earnsEach), d.points(t, accts))
		assert.Equal(t, uint64(3*earnsEach), d.tokens(t, accts.UserToken))
	}
	assert.Equal(t, uint64(1_000_000-participants*earnsEach*3), d.tokens(t, d.cfg.Vault))
	assert.Zero(t, d.exec.locks.Len())
}

func TestExecuteTransaction_CommitHook(t *testing.T) {
	d := newDeployment(t, 10_000)
	alice := d.participant(t, "alice")

	var seen []string
	d.exec.OnCommit(func(tx *types.Transaction, result *types.TransactionResult) {
		seen = append(seen, strings.Join(result.Logs, "\n"))
	})

	require.True(t, d.run(t, rewards.NewInitInstruction(d.cfg.ProgramID, alice)).Success)
	require.False(t, d.run(t, rewards.NewInitInstruction(d.cfg.ProgramID, alice)).Success)

	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "Reward account initialized!")
}
