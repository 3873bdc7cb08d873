package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Account state sizes
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Token account states
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey encoded as a 4-byte tag followed by 32 bytes.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// Some wraps a pubkey in a present COption.
func Some(pubkey types.Pubkey) COption {
	return COption{IsSome: true, Value: pubkey}
}

// COptionU64 is an optional u64 encoded as a 4-byte tag followed by 8 bytes.
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint is the state of a mint account.
//
// Layout (82 bytes):
//
//	mint_authority   COption<Pubkey>  36
//	supply           u64               8
//	decimals         u8                1
//	is_initialized   bool              1
//	freeze_authority COption<Pubkey>  36
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount is the state of a token account.
//
// Layout (165 bytes):
//
//	mint             Pubkey           32
//	owner            Pubkey           32
//	amount           u64               8
//	delegate         COption<Pubkey>  36
//	state            u8                1
//	is_native        COption<u64>     12
//	delegated_amount u64               8
//	close_authority  COption<Pubkey>  36
type TokenAccount struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// NewMint creates an initialized mint with zero supply.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	mint := &Mint{
		Decimals:      decimals,
		IsInitialized: true,
	}
	if mintAuthority != nil {
		mint.MintAuthority = Some(*mintAuthority)
	}
	if freezeAuthority != nil {
		mint.FreezeAuthority = Some(*freezeAuthority)
	}
	return mint
}

// NewTokenAccount creates an initialized, empty token account.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: AccountStateInitialized,
	}
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// IsInitialized returns true once the account has been initialized.
func (a *TokenAccount) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

// DeserializeMint decodes mint state. The buffer must be exactly MintSize.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint data must be %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(data))
	}

	r := reader{data: data}
	mint := &Mint{}
	mint.MintAuthority = r.option()
	mint.Supply = r.u64()
	mint.Decimals = r.u8()
	mint.IsInitialized = r.u8() != 0
	mint.FreezeAuthority = r.option()
	return mint, nil
}

// Serialize encodes the mint into MintSize bytes.
func (m *Mint) Serialize() []byte {
	w := writer{data: make([]byte, MintSize)}
	w.option(m.MintAuthority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	w.bool(m.IsInitialized)
	w.option(m.FreezeAuthority)
	return w.data
}

// DeserializeTokenAccount decodes token account state. The buffer must be
// exactly TokenAccountSize.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data must be %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(data))
	}

	r := reader{data: data}
	account := &TokenAccount{}
	account.Mint = r.pubkey()
	account.Owner = r.pubkey()
	account.Amount = r.u64()
	account.Delegate = r.option()
	account.State = r.u8()
	account.IsNative = r.optionU64()
	account.DelegatedAmount = r.u64()
	account.CloseAuthority = r.option()

	if account.State > AccountStateFrozen {
		return nil, fmt.Errorf("%w: unknown account state %d", ErrInvalidAccountData, account.State)
	}
	return account, nil
}

// Serialize encodes the token account into TokenAccountSize bytes.
func (a *TokenAccount) Serialize() []byte {
	w := writer{data: make([]byte, TokenAccountSize)}
	w.pubkey(a.Mint)
	w.pubkey(a.Owner)
	w.u64(a.Amount)
	w.option(a.Delegate)
	w.u8(a.State)
	w.optionU64(a.IsNative)
	w.u64(a.DelegatedAmount)
	w.option(a.CloseAuthority)
	return w.data
}

// reader walks a fixed-size buffer whose length has already been checked.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) u8() uint8 {
	v := r.data[r.offset]
	r.offset++
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v
}

func (r *reader) pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], r.data[r.offset:r.offset+32])
	r.offset += 32
	return pk
}

func (r *reader) option() COption {
	tag := r.u32()
	value := r.pubkey()
	if tag == 1 {
		return Some(value)
	}
	return COption{}
}

func (r *reader) optionU64() COptionU64 {
	tag := r.u32()
	value := r.u64()
	if tag == 1 {
		return COptionU64{IsSome: true, Value: value}
	}
	return COptionU64{}
}

// writer fills a zeroed buffer sized for the layout.
type writer struct {
	data   []byte
	offset int
}

func (w *writer) u8(v uint8) {
	w.data[w.offset] = v
	w.offset++
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], v)
	w.offset += 4
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], v)
	w.offset += 8
}

func (w *writer) pubkey(pk types.Pubkey) {
	copy(w.data[w.offset:], pk[:])
	w.offset += 32
}

func (w *writer) option(opt COption) {
	if opt.IsSome {
		w.u32(1)
		w.pubkey(opt.Value)
		return
	}
	w.u32(0)
	w.offset += 32
}

func (w *writer) optionU64(opt COptionU64) {
	if opt.IsSome {
		w.u32(1)
		w.u64(opt.Value)
		return
	}
	w.u32(0)
	w.offset += 8
}

// ToAccount wraps the mint in a rent-exempt account owned by the token program.
func (m *Mint) ToAccount() *types.Account {
	return types.NewAccountWithData(types.RentExemptMinimum(MintSize), m.Serialize(), types.TokenProgramID)
}

// ToAccount wraps the token account state in a rent-exempt account owned by
// the token program.
func (a *TokenAccount) ToAccount() *types.Account {
	return types.NewAccountWithData(types.RentExemptMinimum(TokenAccountSize), a.Serialize(), types.TokenProgramID)
}
