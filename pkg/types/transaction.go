package types

import "fmt"

// Instruction is a program invocation with its ordered account list.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is an ordered batch of instructions executed atomically by the
// runtime. Signer flags on the account metas are trusted: signature
// verification happens before a transaction reaches the host.
type Transaction struct {
	Instructions []Instruction
}

// NewTransaction creates a transaction from the given instructions.
func NewTransaction(instructions ...Instruction) *Transaction {
	return &Transaction{Instructions: instructions}
}

// FeePayer returns the first signer of the first instruction.
func (tx *Transaction) FeePayer() (Pubkey, bool) {
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner {
				return meta.Pubkey, true
			}
		}
	}
	return ZeroPubkey, false
}

// AccountKeys returns every account referenced by the transaction, deduplicated,
// with signer and writable privileges merged across instructions. Program IDs
// are included as read-only entries.
func (tx *Transaction) AccountKeys() []AccountMeta {
	index := make(map[Pubkey]int)
	var metas []AccountMeta

	add := func(meta AccountMeta) {
		if i, ok := index[meta.Pubkey]; ok {
			metas[i].IsSigner = metas[i].IsSigner || meta.IsSigner
			metas[i].IsWritable = metas[i].IsWritable || meta.IsWritable
			return
		}
		index[meta.Pubkey] = len(metas)
		metas = append(metas, meta)
	}

	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			add(meta)
		}
		add(AccountMeta{Pubkey: ix.ProgramID})
	}
	return metas
}

// TransactionResult contains the outcome of executing a transaction.
type TransactionResult struct {
	Success       bool
	Error         error
	Logs          []string
	ComputeUnits  ComputeUnits
	AccountDeltas []AccountDelta
}

// AccountDelta represents a committed change to an account.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account // nil if new account
	NewAccount *Account
}

// IsCreation returns true if this is a new account.
func (d *AccountDelta) IsCreation() bool {
	return d.OldAccount == nil && d.NewAccount != nil
}

// String renders the delta for logs.
func (d *AccountDelta) String() string {
	var before, after Lamports
	if d.OldAccount != nil {
		before = d.OldAccount.Lamports
	}
	if d.NewAccount != nil {
		after = d.NewAccount.Lamports
	}
	return fmt.Sprintf("%s lamports %d -> %d", d.Pubkey, before, after)
}
