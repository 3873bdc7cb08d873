package rewards

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

func TestInit(t *testing.T) {
	b := newBank(t)
	before := b.accounts[b.participant].Lamports

	require.NoError(t, b.init())

	accts := b.defaultAccounts()
	_, bump, err := LedgerRecordAddress(b.cfg.ProgramID, b.participant)
	require.NoError(t, err)

	acc := b.accounts[accts.LedgerRecord]
	assert.Equal(t, b.cfg.ProgramID, acc.Owner)
	assert.Len(t, acc.Data, RecordSize)
	assert.Equal(t, types.RentExemptMinimum(RecordSize), acc.Lamports)
	assert.Equal(t, before-types.RentExemptMinimum(RecordSize), b.accounts[b.participant].Lamports)

	assert.Equal(t, &LedgerRecord{Owner: b.participant, Points: 0, Bump: bump, Initialized: true}, b.record())
	assert.Contains(t, b.lastLogs, "Program log: Reward account initialized!")
}

func TestInit_Twice(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	before := b.snapshot()

	err := b.init()
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, before, b.accounts)

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeAlreadyInitialized, code)
}

func TestInit_AdoptsPreallocatedRecord(t *testing.T) {
	b := newBank(t)
	record := b.defaultAccounts().LedgerRecord
	b.accounts[record] = types.NewAccountWithData(types.RentExemptMinimum(RecordSize), make([]byte, RecordSize), b.cfg.ProgramID)
	before := b.accounts[b.participant].Lamports

	require.NoError(t, b.init())
	assert.True(t, b.record().Initialized)
	assert.Equal(t, before, b.accounts[b.participant].Lamports)
}

func TestInit_AdoptsPrefundedRecord(t *testing.T) {
	rent := types.RentExemptMinimum(RecordSize)

	for _, tc := range []struct {
		name    string
		donated types.Lamports
		charged types.Lamports
	}{
		{"one lamport", 1, rent - 1},
		{"exactly rent", rent, 0},
		{"above rent", rent + 500, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newBank(t)
			record := b.defaultAccounts().LedgerRecord
			b.accounts[record] = types.NewAccount(tc.donated, types.SystemProgramID)
			before := b.accounts[b.participant].Lamports

			require.NoError(t, b.init())

			acc := b.accounts[record]
			assert.Equal(t, b.cfg.ProgramID, acc.Owner)
			assert.Len(t, acc.Data, RecordSize)
			assert.Equal(t, tc.donated+tc.charged, acc.Lamports)
			assert.Equal(t, before-tc.charged, b.accounts[b.participant].Lamports)
			assert.True(t, b.record().Initialized)
			assert.Equal(t, b.participant, b.record().Owner)

			require.NoError(t, b.earn(5))
			assert.Equal(t, uint32(5), b.record().Points)
		})
	}

	t.Run("payer cannot top up", func(t *testing.T) {
		b := newBank(t)
		record := b.defaultAccounts().LedgerRecord
		b.accounts[record] = types.NewAccount(1, types.SystemProgramID)
		b.accounts[b.participant] = types.NewAccount(rent-2, types.SystemProgramID)
		before := b.snapshot()

		assert.ErrorIs(t, b.init(), ErrAllocationFailed)
		assert.Equal(t, before, b.accounts)
	})
}

func TestInit_AllocationFailures(t *testing.T) {
	t.Run("payer cannot fund rent", func(t *testing.T) {
		b := newBank(t)
		b.accounts[b.participant] = types.NewAccount(types.RentExemptMinimum(RecordSize)-1, types.SystemProgramID)
		before := b.snapshot()

		assert.ErrorIs(t, b.init(), ErrAllocationFailed)
		assert.Equal(t, before, b.accounts)
	})

	t.Run("foreign account at record address", func(t *testing.T) {
		b := newBank(t)
		record := b.defaultAccounts().LedgerRecord
		b.accounts[record] = types.NewAccountWithData(1_000_000, make([]byte, RecordSize), types.SystemProgramID)

		assert.ErrorIs(t, b.init(), ErrAllocationFailed)
	})

	t.Run("undersized pre-allocation", func(t *testing.T) {
		b := newBank(t)
		record := b.defaultAccounts().LedgerRecord
		b.accounts[record] = types.NewAccountWithData(types.RentExemptMinimum(RecordSize), make([]byte, RecordSize-1), b.cfg.ProgramID)

		assert.ErrorIs(t, b.init(), ErrAllocationFailed)
	})
}

func TestInit_Validation(t *testing.T) {
	b := newBank(t)

	ix := NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Accounts[0].IsSigner = false
	assert.ErrorIs(t, b.run(ix), ErrNotASigner)

	ix = NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Accounts[1].Pubkey = types.PubkeyFromSeed("not-the-record")
	assert.ErrorIs(t, b.run(ix), ErrInvalidDerivedAddress)

	// Another participant's record cannot be initialized by this signer.
	other := b.accountsFor(types.PubkeyFromSeed("other"), b.userToken)
	ix = NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Accounts[1].Pubkey = other.LedgerRecord
	assert.ErrorIs(t, b.run(ix), ErrInvalidDerivedAddress)

	ix = NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Accounts[1].IsWritable = false
	assert.ErrorIs(t, b.run(ix), ErrInvalidAccount)

	ix = NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Accounts = ix.Accounts[:6]
	assert.ErrorIs(t, b.run(ix), ErrInvalidAccount)

	_, ok := b.accounts[b.defaultAccounts().LedgerRecord]
	assert.False(t, ok)
}

func TestEarn(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	vaultBefore := b.tokenBalance(b.cfg.Vault)

	require.NoError(t, b.earn(100))
	assert.Equal(t, uint32(100), b.record().Points)
	assert.Contains(t, b.lastLogs, "Program log: Earned 100 points!")
	assert.Contains(t, b.lastLogs, "Program log: Total points: 100")

	require.NoError(t, b.earn(23))
	assert.Equal(t, uint32(123), b.record().Points)

	// Earn is ledger-only.
	assert.Equal(t, vaultBefore, b.tokenBalance(b.cfg.Vault))
	assert.Zero(t, b.tokenBalance(b.userToken))
}

func TestEarn_Zero(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(5))

	require.NoError(t, b.earn(0))
	assert.Equal(t, uint32(5), b.record().Points)
}

func TestEarn_Overflow(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(^uint32(0)-10))
	before := b.snapshot()

	err := b.earn(11)
	assert.ErrorIs(t, err, ErrPointsOverflow)
	assert.Equal(t, before, b.accounts)

	require.NoError(t, b.earn(10))
	assert.Equal(t, ^uint32(0), b.record().Points)
}

func TestEarn_Validation(t *testing.T) {
	t.Run("before init", func(t *testing.T) {
		b := newBank(t)
		assert.ErrorIs(t, b.earn(1), ErrUninitializedRecord)
	})

	t.Run("unsigned", func(t *testing.T) {
		b := newBank(t)
		require.NoError(t, b.init())
		ix := NewEarnInstruction(b.cfg.ProgramID, b.defaultAccounts(), 1)
		ix.Accounts[0].IsSigner = false
		assert.ErrorIs(t, b.run(ix), ErrNotASigner)
	})

	t.Run("someone else's record", func(t *testing.T) {
		b := newBank(t)
		require.NoError(t, b.init())
		mine := b.defaultAccounts().LedgerRecord

		// A second participant with an initialized record tries to credit
		// the first participant's record.
		mallory := types.PubkeyFromSeed("mallory")
		malloryToken := types.PubkeyFromSeed("mallory-token")
		b.accounts[mallory] = types.NewAccount(1_000_000_000, types.SystemProgramID)
		b.setTokenAccount(malloryToken, mallory, 0)
		require.NoError(t, b.run(NewInitInstruction(b.cfg.ProgramID, b.accountsFor(mallory, malloryToken))))

		accts := b.accountsFor(mallory, malloryToken)
		accts.LedgerRecord = mine
		assert.ErrorIs(t, b.run(NewEarnInstruction(b.cfg.ProgramID, accts, 1_000)), ErrInvalidDerivedAddress)
		assert.Zero(t, b.record().Points)
	})

	t.Run("record not owned by program", func(t *testing.T) {
		b := newBank(t)
		require.NoError(t, b.init())
		record := b.defaultAccounts().LedgerRecord
		b.accounts[record].Owner = types.SystemProgramID
		assert.ErrorIs(t, b.earn(1), ErrUninitializedRecord)
	})

	t.Run("readonly token account", func(t *testing.T) {
		b := newBank(t)
		require.NoError(t, b.init())
		ix := NewEarnInstruction(b.cfg.ProgramID, b.defaultAccounts(), 1)
		ix.Accounts[3].IsWritable = false
		assert.ErrorIs(t, b.run(ix), ErrInvalidAccount)
	})

	t.Run("stored bump does not derive the record", func(t *testing.T) {
		b := newBank(t)
		require.NoError(t, b.init())
		require.NoError(t, b.earn(7))
		record := b.defaultAccounts().LedgerRecord
		b.accounts[record].Data[36]--
		before := b.snapshot()

		err := b.earn(1)
		assert.ErrorIs(t, err, ErrInvalidDerivedAddress)
		assert.Equal(t, before, b.accounts)

		code, ok := CodeOf(err)
		require.True(t, ok)
		assert.Equal(t, CodeInvalidDerivedAddress, code)
	})
}

func TestClaim_CorruptedBump(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(100))
	record := b.defaultAccounts().LedgerRecord
	b.accounts[record].Data[36] ^= 0xff
	before := b.snapshot()

	assert.ErrorIs(t, b.claim(10, 1_000), ErrInvalidDerivedAddress)
	assert.Equal(t, before, b.accounts)
	assert.Equal(t, uint64(10_000), b.tokenBalance(b.cfg.Vault))
	assert.Zero(t, b.tokenBalance(b.userToken))
	for _, line := range b.lastLogs {
		assert.NotContains(t, line, "invoke", "no transfer may be attempted")
	}
}

func TestComputeExhaustion_NotAnAddressError(t *testing.T) {
	t.Run("init", func(t *testing.T) {
		b := newBank(t)
		b.budget = syscall.CUFindPDA - 1

		err := b.init()
		assert.ErrorIs(t, err, syscall.ErrComputeExhausted)
		assert.NotErrorIs(t, err, ErrInvalidDerivedAddress)
		_, ok := CodeOf(err)
		assert.False(t, ok)
	})

	for _, tc := range []struct {
		name string
		run  func(b *bank) error
	}{
		{"earn", func(b *bank) error { return b.earn(1) }},
		{"claim", func(b *bank) error { return b.claim(1, 1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newBank(t)
			require.NoError(t, b.init())
			require.NoError(t, b.earn(10))
			before := b.snapshot()
			b.budget = syscall.CUCreatePDA - 1

			err := tc.run(b)
			assert.ErrorIs(t, err, syscall.ErrComputeExhausted)
			assert.NotErrorIs(t, err, ErrInvalidDerivedAddress)
			assert.Equal(t, before, b.accounts)
		})
	}
}

func TestValidation_DeploymentAccounts(t *testing.T) {
	impostorMint := types.PubkeyFromSeed("impostor-mint")

	for _, tc := range []struct {
		name   string
		mutate func(b *bank, accts *Accounts)
	}{
		{"wrong mint", func(b *bank, accts *Accounts) {
			b.accounts[impostorMint] = b.accounts[b.cfg.Mint].Clone()
			accts.Mint = impostorMint
		}},
		{"wrong vault", func(b *bank, accts *Accounts) {
			other := types.PubkeyFromSeed("other-vault")
			b.setTokenAccount(other, b.authority, 10_000)
			accts.VaultToken = other
		}},
		{"wrong token program", func(b *bank, accts *Accounts) {
			accts.TokenProgram = types.SystemProgramID
		}},
		{"wrong allocator", func(b *bank, accts *Accounts) {
			accts.SystemAllocator = types.TokenProgramID
		}},
		{"user token of another owner", func(b *bank, accts *Accounts) {
			other := types.PubkeyFromSeed("other-token")
			b.setTokenAccount(other, types.PubkeyFromSeed("someone"), 0)
			accts.UserToken = other
		}},
		{"user token of another mint", func(b *bank, accts *Accounts) {
			other := types.PubkeyFromSeed("other-token")
			b.setTokenAccount(other, b.participant, 0)
			state := b.accounts[other]
			copy(state.Data[0:32], impostorMint.Bytes())
			accts.UserToken = other
		}},
		{"vault as user token", func(b *bank, accts *Accounts) {
			accts.UserToken = b.cfg.Vault
		}},
		{"vault not held by authority", func(b *bank, accts *Accounts) {
			b.setTokenAccount(b.cfg.Vault, b.participant, 10_000)
		}},
		{"user token not a token account", func(b *bank, accts *Accounts) {
			accts.UserToken = b.participant
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newBank(t)
			require.NoError(t, b.init())
			require.NoError(t, b.earn(100))

			accts := b.defaultAccounts()
			tc.mutate(b, &accts)
			before := b.snapshot()

			assert.ErrorIs(t, b.run(NewEarnInstruction(b.cfg.ProgramID, accts, 1)), ErrInvalidAccount)
			assert.ErrorIs(t, b.run(NewClaimInstruction(b.cfg.ProgramID, accts, 1, 1)), ErrInvalidAccount)
			assert.Equal(t, before, b.accounts)
		})
	}
}

func TestClaim(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(100))

	require.NoError(t, b.claim(40, 1_500))
	assert.Equal(t, uint32(60), b.record().Points)
	assert.Equal(t, uint64(8_500), b.tokenBalance(b.cfg.Vault))
	assert.Equal(t, uint64(1_500), b.tokenBalance(b.userToken))

	joined := strings.Join(b.lastLogs, "\n")
	assert.Contains(t, joined, "Program "+types.TokenProgramID.String()+" invoke [2]")
	assert.Contains(t, joined, "Program log: Successfully claimed a reward!")
}

func TestClaim_InsufficientPoints(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(10))
	before := b.snapshot()

	err := b.claim(11, 1)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, before, b.accounts)

	for _, line := range b.lastLogs {
		assert.NotContains(t, line, "invoke", "no transfer may be attempted")
	}
}

func TestClaim_TransferFailure(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())
	require.NoError(t, b.earn(100))
	before := b.snapshot()

	// The vault holds 10,000 tokens.
	err := b.claim(50, 10_001)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, before, b.accounts)
	assert.Equal(t, uint32(100), b.record().Points)

	var perr *ProgramError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CodeTransferFailed, perr.Code)
	assert.Contains(t, err.Error(), "custom program error: 0x7")
}

func TestClaim_ZeroRequirement(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.init())

	require.NoError(t, b.claim(0, 0))
	assert.Zero(t, b.record().Points)
	assert.Equal(t, uint64(10_000), b.tokenBalance(b.cfg.Vault))
}

func TestEndToEnd(t *testing.T) {
	b := newBank(t)

	require.NoError(t, b.init())
	assert.Zero(t, b.record().Points)

	require.NoError(t, b.earn(100))
	assert.Equal(t, uint32(100), b.record().Points)

	require.NoError(t, b.claim(50, 2_000))
	assert.Equal(t, uint32(50), b.record().Points)
	assert.Equal(t, uint64(8_000), b.tokenBalance(b.cfg.Vault))
	assert.Equal(t, uint64(2_000), b.tokenBalance(b.userToken))

	assert.ErrorIs(t, b.claim(100, 1_000), ErrInsufficientPoints)
	assert.Equal(t, uint32(50), b.record().Points)
	assert.Equal(t, uint64(8_000), b.tokenBalance(b.cfg.Vault))
	assert.Equal(t, uint64(2_000), b.tokenBalance(b.userToken))
}

func TestExecute_Malformed(t *testing.T) {
	b := newBank(t)
	ix := NewInitInstruction(b.cfg.ProgramID, b.defaultAccounts())
	ix.Data = []byte{9}

	err := b.run(ix)
	assert.ErrorIs(t, err, ErrMalformedInstruction)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeMalformedInstruction, code)
}

func TestCodeOf(t *testing.T) {
	for _, entry := range errorCodes {
		code, ok := CodeOf(entry.err)
		require.True(t, ok)
		assert.Equal(t, entry.code, code)

		wrapped := classify(entry.err)
		var perr *ProgramError
		require.True(t, errors.As(wrapped, &perr))
		assert.Equal(t, uint32(entry.code), perr.ProgramErrorCode())
	}

	_, ok := CodeOf(errors.New("unrelated"))
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(9), CodeUninitializedRecord)
}
