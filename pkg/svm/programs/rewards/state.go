package rewards

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// RecordSize is the serialized size of a LedgerRecord.
const RecordSize = 32 + 4 + 1 + 1

// LedgerRecord is the persisted points balance of one participant.
//
// Layout (38 bytes):
//
//	owner        Pubkey  32
//	points       u32      4  little-endian
//	bump         u8       1
//	initialized  u8       1  0 or 1
type LedgerRecord struct {
	Owner       types.Pubkey
	Points      uint32
	Bump        uint8
	Initialized bool
}

// Serialize encodes the record into RecordSize bytes.
func (r *LedgerRecord) Serialize() []byte {
	data := make([]byte, RecordSize)
	copy(data[0:32], r.Owner[:])
	binary.LittleEndian.PutUint32(data[32:36], r.Points)
	data[36] = r.Bump
	if r.Initialized {
		data[37] = 1
	}
	return data
}

// DeserializeLedgerRecord decodes the first RecordSize bytes of data.
// Accounts allocated larger than a record keep their tail untouched.
func DeserializeLedgerRecord(data []byte) (*LedgerRecord, error) {
	if len(data) < RecordSize {
		return nil, fmt.Errorf("%w: record needs %d bytes, got %d", ErrInvalidAccount, RecordSize, len(data))
	}

	r := &LedgerRecord{
		Points: binary.LittleEndian.Uint32(data[32:36]),
		Bump:   data[36],
	}
	copy(r.Owner[:], data[0:32])

	switch data[37] {
	case 0:
	case 1:
		r.Initialized = true
	default:
		return nil, fmt.Errorf("%w: bad initialized flag %d", ErrInvalidAccount, data[37])
	}
	return r, nil
}

// Earn adds points, leaving the record unchanged on overflow.
func (r *LedgerRecord) Earn(points uint32) error {
	sum := r.Points + points
	if sum < r.Points {
		return fmt.Errorf("%w: %d + %d", ErrPointsOverflow, r.Points, points)
	}
	r.Points = sum
	return nil
}

// Spend deducts required points, leaving the record unchanged when the
// balance is too small.
func (r *LedgerRecord) Spend(required uint32) error {
	if r.Points < required {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientPoints, r.Points, required)
	}
	r.Points -= required
	return nil
}
