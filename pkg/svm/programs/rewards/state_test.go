package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

func TestLedgerRecord_Layout(t *testing.T) {
	owner := types.PubkeyFromSeed("participant")
	record := &LedgerRecord{Owner: owner, Points: 0x01020304, Bump: 254, Initialized: true}

	data := record.Serialize()
	require.Len(t, data, RecordSize)
	assert.Equal(t, owner.Bytes(), data[0:32])
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, data[32:36])
	assert.Equal(t, byte(254), data[36])
	assert.Equal(t, byte(1), data[37])

	decoded, err := DeserializeLedgerRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)

	// Larger allocations decode from their prefix.
	decoded, err = DeserializeLedgerRecord(append(data, 0xaa, 0xbb))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestLedgerRecord_Invalid(t *testing.T) {
	_, err := DeserializeLedgerRecord(make([]byte, RecordSize-1))
	assert.ErrorIs(t, err, ErrInvalidAccount)

	data := (&LedgerRecord{Initialized: true}).Serialize()
	data[37] = 2
	_, err = DeserializeLedgerRecord(data)
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestLedgerRecord_Earn(t *testing.T) {
	for _, tc := range []struct {
		before, amount uint32
		overflow       bool
	}{
		{0, 0, false},
		{0, 100, false},
		{100, 50, false},
		{^uint32(0) - 1, 1, false},
		{^uint32(0), 1, true},
		{1, ^uint32(0), true},
		{^uint32(0) / 2, ^uint32(0), true},
	} {
		record := &LedgerRecord{Points: tc.before}
		err := record.Earn(tc.amount)
		if tc.overflow {
			assert.ErrorIs(t, err, ErrPointsOverflow)
			assert.Equal(t, tc.before, record.Points)
		} else {
			assert.NoError(t, err)
			assert.Equal(t, tc.before+tc.amount, record.Points)
		}
	}
}

func TestLedgerRecord_Spend(t *testing.T) {
	record := &LedgerRecord{Points: 100}
	require.NoError(t, record.Spend(50))
	assert.Equal(t, uint32(50), record.Points)

	assert.ErrorIs(t, record.Spend(51), ErrInsufficientPoints)
	assert.Equal(t, uint32(50), record.Points)

	require.NoError(t, record.Spend(50))
	assert.Zero(t, record.Points)
}
