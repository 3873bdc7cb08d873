package rewards

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-rewards/pkg/svm/programs/system"
	"github.com/fortiblox/x1-rewards/pkg/svm/programs/token"
	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

type nativeProgram interface {
	Execute(ctx *syscall.ExecutionContext, data []byte) error
}

// bank is a minimal host: it runs one instruction against cloned accounts and
// stores the writable ones back only when the instruction succeeds.
type bank struct {
	t        *testing.T
	accounts map[types.Pubkey]*types.Account
	programs map[types.Pubkey]nativeProgram

	program     *Program
	cfg         Config
	participant types.Pubkey
	userToken   types.Pubkey
	authority   types.Pubkey
	lastLogs    []string

	// budget overrides the per-instruction compute budget when non-zero.
	budget uint64
}

func (b *bank) ExecuteProgram(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
	program, ok := b.programs[ix.ProgramID]
	require.True(b.t, ok, "unknown program %s", ix.ProgramID)
	return program.Execute(ctx, ix.Data)
}

func (b *bank) run(ix types.Instruction) error {
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, b.accounts[meta.Pubkey], meta.IsSigner, meta.IsWritable)
	}
	budget := uint64(types.DefaultComputeUnitsPerInstruction)
	if b.budget > 0 {
		budget = b.budget
	}
	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, budget)
	ctx.SetProgramExecutor(b)

	err := b.ExecuteProgram(ctx, &ix)
	b.lastLogs = ctx.GetLogs()
	if err != nil {
		return err
	}
	for i, meta := range ix.Accounts {
		if meta.IsWritable {
			b.accounts[meta.Pubkey] = infos[i].ToAccount()
		}
	}
	return nil
}

func newBank(t *testing.T) *bank {
	programID := types.PubkeyFromSeed("rewards-program")
	cfg := Config{
		ProgramID:    programID,
		Mint:         types.PubkeyFromSeed("reward-mint"),
		Vault:        types.PubkeyFromSeed("reward-vault"),
		TokenProgram: types.TokenProgramID,
	}
	authority, _, err := VaultAuthority(programID)
	require.NoError(t, err)

	b := &bank{
		t:           t,
		accounts:    make(map[types.Pubkey]*types.Account),
		program:     New(cfg),
		cfg:         cfg,
		participant: types.PubkeyFromSeed("participant"),
		userToken:   types.PubkeyFromSeed("participant-token"),
		authority:   authority,
	}
	b.programs = map[types.Pubkey]nativeProgram{
		programID:             b.program,
		types.SystemProgramID: system.New(),
		types.TokenProgramID:  token.New(),
	}

	mintAuthority := types.PubkeyFromSeed("mint-authority")
	b.accounts[cfg.Mint] = token.NewMint(6, &mintAuthority, nil).ToAccount()
	b.setTokenAccount(cfg.Vault, authority, 10_000)
	b.setTokenAccount(b.userToken, b.participant, 0)
	b.accounts[b.participant] = types.NewAccount(1_000_000_000, types.SystemProgramID)
	b.accounts[types.TokenProgramID] = &types.Account{Owner: types.NativeLoaderID, Executable: true}
	b.accounts[types.SystemProgramID] = &types.Account{Owner: types.NativeLoaderID, Executable: true}
	return b
}

func (b *bank) setTokenAccount(key, owner types.Pubkey, amount uint64) {
	state := token.NewTokenAccount(b.cfg.Mint, owner)
	state.Amount = amount
	b.accounts[key] = state.ToAccount()
}

func (b *bank) tokenBalance(key types.Pubkey) uint64 {
	state, err := token.DeserializeTokenAccount(b.accounts[key].Data)
	require.NoError(b.t, err)
	return state.Amount
}

func (b *bank) accountsFor(participant, userToken types.Pubkey) Accounts {
	accts, err := b.cfg.AccountsFor(participant, userToken)
	require.NoError(b.t, err)
	return accts
}

func (b *bank) defaultAccounts() Accounts {
	return b.accountsFor(b.participant, b.userToken)
}

func (b *bank) record() *LedgerRecord {
	acc, ok := b.accounts[b.defaultAccounts().LedgerRecord]
	require.True(b.t, ok, "ledger record missing")
	record, err := DeserializeLedgerRecord(acc.Data)
	require.NoError(b.t, err)
	return record
}

func (b *bank) init() error {
	return b.run(NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts()))
}

func (b *bank) earn(points uint32) error {
	return b.run(NewEarnInstruction(b.cfg.ProgramID, b.defaultAccounts(), points))
}

func (b *bank) claim(required uint32, amount uint64) error {
	return b.run(NewClaimInstruction(b.cfg.ProgramID, b.defaultAccounts(), required, amount))
}

// snapshot deep-copies every account for before/after comparisons.
func (b *bank) snapshot() map[types.Pubkey]*types.Account {
	out := make(map[types.Pubkey]*types.Account, len(b.accounts))
	for k, v := range b.accounts {
		out[k] = v.Clone()
	}
	return out
}
