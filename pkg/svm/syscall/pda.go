package syscall

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/x1-rewards/pkg/types"
)

// PDA constants
const (
	// MaxSeeds is the maximum number of seeds for PDA derivation
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed
	MaxSeedLen = 32
	// PDAMarker is the string appended during PDA derivation
	PDAMarker = "ProgramDerivedAddress"
)

// PDA errors
var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidSeeds          = errors.New("seeds produce an on-curve address")
	ErrBumpNotFound          = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress creates a PDA from seeds and program ID.
//
// PDA formula: SHA256(seeds... || program_id || "ProgramDerivedAddress").
// The result must NOT be a valid ed25519 point, so that no private key can
// ever sign for it.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, ErrTooManySeeds
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, fmt.Errorf("%w: %d bytes", ErrMaxSeedLengthExceeded, len(seed))
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(PDAMarker))

	var pda types.Pubkey
	copy(pda[:], hasher.Sum(nil))

	if IsOnCurve(pda) {
		return types.ZeroPubkey, ErrInvalidSeeds
	}
	return pda, nil
}

// FindProgramAddress finds a valid PDA by trying bump seeds from 255 to 0.
// When ctx is non-nil each attempt is charged against its compute meter.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey, ctx *ExecutionContext) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, ErrTooManySeeds
	}
	if ctx != nil {
		if err := ctx.ConsumeComputeUnits(CUFindPDA); err != nil {
			return types.ZeroPubkey, 0, err
		}
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)
	bumpSeed := []byte{0}
	seedsWithBump[len(seeds)] = bumpSeed

	for bump := 255; bump >= 0; bump-- {
		if ctx != nil {
			if err := ctx.ConsumeComputeUnits(CUFindPDAPerIter); err != nil {
				return types.ZeroPubkey, 0, err
			}
		}

		bumpSeed[0] = uint8(bump)
		pda, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return pda, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.ZeroPubkey, 0, err
		}
	}

	return types.ZeroPubkey, 0, ErrBumpNotFound
}

// FindProgramAddressSync is FindProgramAddress without compute metering.
func FindProgramAddressSync(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress(seeds, programID, nil)
}

// CreateProgramAddress derives a PDA, charging the derivation against the compute meter.
func (ctx *ExecutionContext) CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if err := ctx.ConsumeComputeUnits(CUCreatePDA); err != nil {
		return types.ZeroPubkey, err
	}
	return CreateProgramAddress(seeds, programID)
}

// IsOnCurve reports whether the 32 bytes decode to a point on the ed25519 curve.
func IsOnCurve(pubkey types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pubkey[:])
	return err == nil
}
