package rewards

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-rewards/pkg/svm/syscall"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

func TestLedgerRecordAddress_Deterministic(t *testing.T) {
	programID := types.PubkeyFromSeed("rewards-program")

	for i := 0; i < 16; i++ {
		wallet := solana.NewWallet()
		participant, err := types.PubkeyFromBytes(wallet.PublicKey().Bytes())
		require.NoError(t, err)

		first, bump, err := LedgerRecordAddress(programID, participant)
		require.NoError(t, err)
		second, secondBump, err := LedgerRecordAddress(programID, participant)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, bump, secondBump)

		expected, expectedBump, err := solana.FindProgramAddress(
			[][]byte{[]byte(LedgerSeed), wallet.PublicKey().Bytes()},
			solana.PublicKeyFromBytes(programID.Bytes()),
		)
		require.NoError(t, err)
		assert.Equal(t, expected.Bytes(), first.Bytes())
		assert.Equal(t, expectedBump, bump)

		recreated, err := syscall.CreateProgramAddress(withBump(ledgerSeeds(participant), bump), programID)
		require.NoError(t, err)
		assert.Equal(t, first, recreated)
	}
}

func TestVaultAuthorityProof(t *testing.T) {
	programID := types.PubkeyFromSeed("rewards-program")
	alice := types.PubkeyFromSeed("alice")
	bob := types.PubkeyFromSeed("bob")

	aliceProof, err := NewVaultAuthorityProof(nil, programID, alice)
	require.NoError(t, err)
	bobProof, err := NewVaultAuthorityProof(nil, programID, bob)
	require.NoError(t, err)

	// One shared vault: the authority does not depend on the claimant.
	assert.Equal(t, aliceProof.Address, bobProof.Address)
	assert.Equal(t, alice, aliceProof.Participant)
	require.NoError(t, aliceProof.Verify())

	authority, bump, err := VaultAuthority(programID)
	require.NoError(t, err)
	assert.Equal(t, authority, aliceProof.Address)
	assert.Equal(t, bump, aliceProof.Bump)

	expected, _, err := solana.FindProgramAddress([][]byte{[]byte(VaultSeed)}, solana.PublicKeyFromBytes(programID.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, expected.Bytes(), authority.Bytes())

	signerSeeds := aliceProof.SignerSeeds()
	assert.Equal(t, [][]byte{[]byte(VaultSeed), {bump}}, signerSeeds)
	// Signer seeds are a copy.
	signerSeeds[0] = []byte("tampered")
	require.NoError(t, aliceProof.Verify())

	tampered := aliceProof
	tampered.Bump--
	assert.ErrorIs(t, tampered.Verify(), ErrInvalidDerivedAddress)

	tampered = aliceProof
	tampered.ProgramID = types.PubkeyFromSeed("another-program")
	assert.ErrorIs(t, tampered.Verify(), ErrInvalidDerivedAddress)
}

func TestVaultAuthorityProof_Metered(t *testing.T) {
	programID := types.PubkeyFromSeed("rewards-program")
	ctx := syscall.NewExecutionContext(programID, nil, nil, 10)

	_, err := NewVaultAuthorityProof(ctx, programID, types.PubkeyFromSeed("alice"))
	assert.ErrorIs(t, err, syscall.ErrComputeExhausted)
}
