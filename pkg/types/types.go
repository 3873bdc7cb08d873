// Package types provides the core account and instruction types shared by the
// x1-rewards host and its native programs.
package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Pubkey represents a 32-byte Ed25519 public key or program-derived address.
type Pubkey [32]byte

// ZeroPubkey is an all-zero pubkey.
var ZeroPubkey Pubkey

// Well-known program and sysvar IDs used by the rewards host.
var (
	SystemProgramID = MustPubkeyFromBase58("11111111111111111111111111111111")
	TokenProgramID  = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	NativeLoaderID  = MustPubkeyFromBase58("NativeLoader1111111111111111111111111111111")
	SysvarRentID    = MustPubkeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// PubkeyFromBytes creates a Pubkey from a byte slice.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	var pk Pubkey
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 decodes a base58 string into a Pubkey.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58: %w", err)
	}
	return PubkeyFromBytes(b)
}

// MustPubkeyFromBase58 decodes a base58 string or panics.
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromSeed deterministically derives a pubkey from an arbitrary label.
// It is meant for fixtures and local tooling, never for real key material.
func PubkeyFromSeed(seed string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(seed)))
}

// Bytes returns the pubkey as a byte slice.
func (pk Pubkey) Bytes() []byte {
	return pk[:]
}

// String returns the base58 representation.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// IsZero returns true if the pubkey is all zeros.
func (pk Pubkey) IsZero() bool {
	return pk == ZeroPubkey
}

// Less orders pubkeys bytewise. The runtime uses it to acquire account locks
// in a stable order.
func (pk Pubkey) Less(other Pubkey) bool {
	for i := range pk {
		if pk[i] != other[i] {
			return pk[i] < other[i]
		}
	}
	return false
}

// Lamports represents a lamport amount (1 SOL = 1_000_000_000 lamports).
type Lamports uint64

// ComputeUnits represents compute units.
type ComputeUnits uint64

// Default compute limits
const (
	DefaultComputeUnitsPerInstruction ComputeUnits = 200_000
	MaxComputeUnitsPerTransaction     ComputeUnits = 1_400_000
)
