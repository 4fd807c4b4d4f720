package perp

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// associatedTokenAccount derives the per-(owner, mint) holding account.
func associatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("find associated token address for %s/%s: %w", owner, mint, err)
	}
	return ata, nil
}

// ensureTokenAccount resolves the owner's associated token account for mint
// and, when it does not exist yet, returns a creation instruction to
// prepend. The instruction is nil when the account already exists.
func (c *Client) ensureTokenAccount(ctx context.Context, payer, owner, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	ata, err := associatedTokenAccount(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	exists, err := c.loader.Exists(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if exists {
		return ata, nil, nil
	}
	createIx := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).Build()
	return ata, createIx, nil
}

// prepareWrappedSOL funds the owner's wrapped-SOL account ahead of an
// operation that consumes native SOL: create the account if missing, move
// lamports in, then sync the token balance. amount of zero only ensures the
// account exists (destination-side use).
func (c *Client) prepareWrappedSOL(ctx context.Context, owner solana.PublicKey, amount uint64) (solana.PublicKey, []solana.Instruction, error) {
	wsolATA, createIx, err := c.ensureTokenAccount(ctx, owner, owner, solana.WrappedSol)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	ixs := make([]solana.Instruction, 0, 3)
	if createIx != nil {
		ixs = append(ixs, createIx)
	}
	if amount > 0 {
		ixs = append(ixs,
			system.NewTransferInstruction(amount, owner, wsolATA).Build(),
			token.NewSyncNativeInstruction(wsolATA).Build(),
		)
	}
	return wsolATA, ixs, nil
}

// closeWrappedSOL closes the wrapped-SOL account after the operation,
// returning the remaining lamports to the owner.
func closeWrappedSOL(wsolATA, owner solana.PublicKey) solana.Instruction {
	return token.NewCloseAccountInstruction(wsolATA, owner, owner, nil).Build()
}
