package perp

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// stakingRewardAccounts is the block of fee-routing accounts shared by
// liquidity, swap, and position instructions: fees flow into the staking
// reward custody, so every one of these instructions names it plus both
// staking reward vaults.
type stakingRewardAccounts struct {
	mint              solana.PublicKey
	custody           solana.PublicKey
	custodyOracle     solana.PublicKey
	custodyTokenAccount solana.PublicKey
}

func (c *Client) stakingRewardTokenAccounts() (stakingRewardAccounts, error) {
	stable, err := c.tokens.Stable()
	if err != nil {
		return stakingRewardAccounts{}, err
	}
	custodyKey, custody, err := c.CustodyByMint(stable.Mint)
	if err != nil {
		return stakingRewardAccounts{}, err
	}
	tokenAccount, err := c.book.CustodyTokenAccountPDA(stable.Mint)
	if err != nil {
		return stakingRewardAccounts{}, err
	}
	return stakingRewardAccounts{
		mint:                stable.Mint,
		custody:             custodyKey,
		custodyOracle:       custody.Oracle.OracleAccount,
		custodyTokenAccount: tokenAccount,
	}, nil
}

// BuildAddLiquidity assembles the deposit of amountIn of mint against at
// least minLpAmountOut pool tokens, including pool-token account creation
// and native SOL wrapping when needed.
func (c *Client) BuildAddLiquidity(ctx context.Context, owner, mint solana.PublicKey, amountIn, minLpAmountOut uint64) (*Bundle, error) {
	custodyKey, custody, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	custodyTokenAccount, err := c.book.CustodyTokenAccountPDA(mint)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}

	var fundingAccount solana.PublicKey
	if mint.Equals(solana.WrappedSol) {
		wsolATA, wrapIxs, err := c.prepareWrappedSOL(ctx, owner, amountIn)
		if err != nil {
			return nil, err
		}
		fundingAccount = wsolATA
		bundle.Pre = append(bundle.Pre, wrapIxs...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(wsolATA, owner))
	} else {
		fundingAccount, err = associatedTokenAccount(owner, mint)
		if err != nil {
			return nil, err
		}
	}

	lpTokenAccount, createLpATA, err := c.ensureTokenAccount(ctx, owner, owner, c.book.LPTokenMint)
	if err != nil {
		return nil, err
	}
	if createLpATA != nil {
		bundle.Pre = append(bundle.Pre, createLpATA)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(lpTokenAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(custodyKey, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	args := struct {
		AmountIn       uint64
		MinLpAmountOut uint64
	}{AmountIn: amountIn, MinLpAmountOut: minLpAmountOut}

	ix, err := newProgramInstruction(c.book.ProgramID, "add_liquidity", args, append(accounts, c.custodiesRemainingAccounts()...))
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)

	if err := bundle.prependBudget(cuAddLiquidity, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// BuildRemoveLiquidity assembles the burn of lpAmountIn pool tokens for at
// least minAmountOut of mint.
func (c *Client) BuildRemoveLiquidity(ctx context.Context, owner, mint solana.PublicKey, lpAmountIn, minAmountOut uint64) (*Bundle, error) {
	custodyKey, custody, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	custodyTokenAccount, err := c.book.CustodyTokenAccountPDA(mint)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}

	var receivingAccount solana.PublicKey
	if mint.Equals(solana.WrappedSol) {
		wsolATA, wrapIxs, err := c.prepareWrappedSOL(ctx, owner, 0)
		if err != nil {
			return nil, err
		}
		receivingAccount = wsolATA
		bundle.Pre = append(bundle.Pre, wrapIxs...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(wsolATA, owner))
	} else {
		var createIx solana.Instruction
		receivingAccount, createIx, err = c.ensureTokenAccount(ctx, owner, owner, mint)
		if err != nil {
			return nil, err
		}
		if createIx != nil {
			bundle.Pre = append(bundle.Pre, createIx)
		}
	}

	lpTokenAccount, err := associatedTokenAccount(owner, c.book.LPTokenMint)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(receivingAccount, true, false),
		solana.NewAccountMeta(lpTokenAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(custodyKey, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	args := struct {
		LpAmountIn   uint64
		MinAmountOut uint64
	}{LpAmountIn: lpAmountIn, MinAmountOut: minAmountOut}

	ix, err := newProgramInstruction(c.book.ProgramID, "remove_liquidity", args, append(accounts, c.custodiesRemainingAccounts()...))
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)

	if err := bundle.prependBudget(cuRemoveLiquidity, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// AddLiquidity deposits amountIn of mint and submits.
func (t *Trader) AddLiquidity(ctx context.Context, mint solana.PublicKey, amountIn, minLpAmountOut uint64) (solana.Signature, error) {
	if amountIn == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero deposit amount", ErrInvalidParameters)
	}
	bundle, err := t.BuildAddLiquidity(ctx, t.Owner(), mint, amountIn, minLpAmountOut)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// RemoveLiquidity burns lpAmountIn pool tokens for mint and submits.
func (t *Trader) RemoveLiquidity(ctx context.Context, mint solana.PublicKey, lpAmountIn, minAmountOut uint64) (solana.Signature, error) {
	if lpAmountIn == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero withdraw amount", ErrInvalidParameters)
	}
	bundle, err := t.BuildRemoveLiquidity(ctx, t.Owner(), mint, lpAmountIn, minAmountOut)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}
