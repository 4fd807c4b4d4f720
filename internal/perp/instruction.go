package perp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

func instructionDiscriminator(ixName string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + ixName))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// encodeInstructionData serializes the 8-byte discriminator followed by the
// borsh-encoded argument struct. args may be nil for argument-free
// instructions.
func encodeInstructionData(ixName string, args any) ([]byte, error) {
	disc := instructionDiscriminator(ixName)
	buf := bytes.NewBuffer(disc[:])
	if args != nil {
		if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
			return nil, fmt.Errorf("encode %s args: %w", ixName, err)
		}
	}
	return buf.Bytes(), nil
}

func newProgramInstruction(programID solana.PublicKey, ixName string, args any, accounts solana.AccountMetaSlice) (solana.Instruction, error) {
	data, err := encodeInstructionData(ixName, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// Bundle is the fully resolved, unsigned output of an instruction builder:
// setup instructions (budget, token account creation, wrapping), the main
// protocol instructions, then cleanup (unwrap/close). Builders never submit.
type Bundle struct {
	Pre  []solana.Instruction
	Main []solana.Instruction
	Post []solana.Instruction
}

func (b *Bundle) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(b.Pre)+len(b.Main)+len(b.Post))
	out = append(out, b.Pre...)
	out = append(out, b.Main...)
	out = append(out, b.Post...)
	return out
}

func (b *Bundle) prependBudget(computeUnitLimit uint32, computeUnitPriceMicroLamports uint64) error {
	budget := make([]solana.Instruction, 0, 2)
	if computeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(computeUnitLimit).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		budget = append(budget, ix)
	}
	if computeUnitPriceMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(computeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("build compute unit price instruction: %w", err)
		}
		budget = append(budget, ix)
	}
	b.Pre = append(budget, b.Pre...)
	return nil
}

// Compute unit limits per operation, sized from observed execution costs.
const (
	cuAddLiquidity         = 600_000
	cuRemoveLiquidity      = 500_000
	cuSwap                 = 800_000
	cuOpenPosition         = 600_000
	cuOpenLongWithSwap     = 2_000_000
	cuOpenShortWithSwap    = 1_200_000
	cuClosePosition        = 600_000
	cuAddLiquidStake       = 500_000
	cuRemoveLiquidStake    = 400_000
)

// ProfileRef is the resolved optional user-profile account. The program
// takes the profile as an optional account; absent profiles are passed as
// the program id per the anchor optional-account convention.
type ProfileRef struct {
	address solana.PublicKey
	present bool
}

func WithProfile(address solana.PublicKey) ProfileRef {
	return ProfileRef{address: address, present: true}
}

func WithoutProfile() ProfileRef { return ProfileRef{} }

func (r ProfileRef) Present() bool { return r.present }

func (r ProfileRef) meta(programID solana.PublicKey) *solana.AccountMeta {
	if !r.present {
		return solana.NewAccountMeta(programID, false, false)
	}
	return solana.NewAccountMeta(r.address, true, false)
}

// resolveProfile checks once whether the owner has an initialized profile
// and pins the answer into a ProfileRef, so builders never branch on nils.
func (c *Client) resolveProfile(ctx context.Context, owner solana.PublicKey) (ProfileRef, error) {
	address, err := c.book.UserProfilePDA(owner)
	if err != nil {
		return ProfileRef{}, err
	}
	profile, initialized, err := c.loader.FetchUserProfile(ctx, address)
	if err != nil {
		return ProfileRef{}, err
	}
	if profile == nil || !initialized {
		return WithoutProfile(), nil
	}
	return WithProfile(address), nil
}
