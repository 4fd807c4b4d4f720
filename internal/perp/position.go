package perp

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// collateralCustodyForSide applies the side rule for the collateral custody
// named in position instructions: longs collateralize with the principal
// token itself, shorts always with the designated stable token, whatever
// mint the caller funds with.
func (c *Client) collateralCustodyForSide(principalMint solana.PublicKey, side Side) (solana.PublicKey, *Custody, error) {
	switch side {
	case SideLong:
		return c.CustodyByMint(principalMint)
	case SideShort:
		return c.StableCustody()
	default:
		return solana.PublicKey{}, nil, fmt.Errorf("%w: side %d", ErrInvalidParameters, side)
	}
}

// OpenPositionParams are the business parameters for opening a position.
// Price is the oracle price before the slippage bound is applied; Leverage
// is in basis points (e.g. 40_000 for 4x).
type OpenPositionParams struct {
	Mint             solana.PublicKey
	CollateralMint   solana.PublicKey
	Price            uint64
	CollateralAmount uint64
	Leverage         uint32
	Side             Side
}

func (p OpenPositionParams) validate() error {
	if p.CollateralAmount == 0 {
		return fmt.Errorf("%w: zero collateral", ErrInvalidParameters)
	}
	if p.Price == 0 {
		return fmt.Errorf("%w: zero price", ErrInvalidParameters)
	}
	if p.Side != SideLong && p.Side != SideShort {
		return fmt.Errorf("%w: side %d", ErrInvalidParameters, p.Side)
	}
	return nil
}

// BuildOpenPosition assembles open_position for the case where the funding
// mint already matches the instruction's collateral custody.
func (c *Client) BuildOpenPosition(ctx context.Context, owner solana.PublicKey, p OpenPositionParams) (*Bundle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	custodyKey, custody, err := c.CustodyByMint(p.Mint)
	if err != nil {
		return nil, err
	}
	collateralCustodyKey, collateralCustody, err := c.CustodyByMint(p.CollateralMint)
	if err != nil {
		return nil, err
	}
	collateralCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(p.CollateralMint)
	if err != nil {
		return nil, err
	}
	position, err := c.book.PositionPDA(owner, custodyKey, p.Side)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}
	profile, err := c.resolveProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	fundingAccount, err := associatedTokenAccount(owner, p.CollateralMint)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(position, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(custodyKey, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralCustodyKey, true, false),
		solana.NewAccountMeta(collateralCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralCustodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		profile.meta(c.book.ProgramID),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	args := struct {
		Price      uint64
		Collateral uint64
		Leverage   uint32
		Side       uint8
	}{
		Price:      ApplySlippage(p.Price, c.slippageBps(), p.Side),
		Collateral: p.CollateralAmount,
		Leverage:   p.Leverage,
		Side:       uint8(p.Side),
	}

	ix, err := newProgramInstruction(c.book.ProgramID, "open_position", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Main: []solana.Instruction{ix}}
	if err := bundle.prependBudget(cuOpenPosition, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// BuildOpenPositionWithSwap assembles open_position_with_swap: the program
// first swaps the funding mint into the side's collateral custody token,
// then opens the position in one shot.
func (c *Client) BuildOpenPositionWithSwap(ctx context.Context, owner solana.PublicKey, p OpenPositionParams) (*Bundle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	receivingCustodyKey, receivingCustody, err := c.CustodyByMint(p.CollateralMint)
	if err != nil {
		return nil, err
	}
	receivingCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(p.CollateralMint)
	if err != nil {
		return nil, err
	}

	collateralCustodyKey, collateralCustody, err := c.collateralCustodyForSide(p.Mint, p.Side)
	if err != nil {
		return nil, err
	}
	collateralCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(collateralCustody.Mint)
	if err != nil {
		return nil, err
	}
	collateralAccount, err := associatedTokenAccount(owner, collateralCustody.Mint)
	if err != nil {
		return nil, err
	}

	principalCustodyKey, principalCustody, err := c.CustodyByMint(p.Mint)
	if err != nil {
		return nil, err
	}
	principalCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(p.Mint)
	if err != nil {
		return nil, err
	}

	fundingAccount, err := associatedTokenAccount(owner, p.CollateralMint)
	if err != nil {
		return nil, err
	}
	position, err := c.book.PositionPDA(owner, principalCustodyKey, p.Side)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}
	profile, err := c.resolveProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(collateralAccount, true, false),
		solana.NewAccountMeta(receivingCustodyKey, true, false),
		solana.NewAccountMeta(receivingCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(receivingCustodyTokenAccount, true, false),
		solana.NewAccountMeta(collateralCustodyKey, true, false),
		solana.NewAccountMeta(collateralCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralCustodyTokenAccount, true, false),
		solana.NewAccountMeta(principalCustodyKey, true, false),
		solana.NewAccountMeta(principalCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(principalCustodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(position, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		profile.meta(c.book.ProgramID),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	args := struct {
		Price      uint64
		Collateral uint64
		Leverage   uint32
		Side       uint8
	}{
		Price:      ApplySlippage(p.Price, c.slippageBps(), p.Side),
		Collateral: p.CollateralAmount,
		Leverage:   p.Leverage,
		Side:       uint8(p.Side),
	}

	ix, err := newProgramInstruction(c.book.ProgramID, "open_position_with_swap", args, accounts)
	if err != nil {
		return nil, err
	}
	return &Bundle{Main: []solana.Instruction{ix}}, nil
}

// BuildSwap assembles a swap of amountIn of mintIn against mintOut.
func (c *Client) BuildSwap(ctx context.Context, owner, mintIn, mintOut solana.PublicKey, amountIn, minAmountOut uint64) (*Bundle, error) {
	if mintIn.Equals(mintOut) {
		return nil, fmt.Errorf("%w: swap between identical mints", ErrInvalidParameters)
	}

	receivingCustodyKey, receivingCustody, err := c.CustodyByMint(mintIn)
	if err != nil {
		return nil, err
	}
	receivingCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(mintIn)
	if err != nil {
		return nil, err
	}
	dispensingCustodyKey, dispensingCustody, err := c.CustodyByMint(mintOut)
	if err != nil {
		return nil, err
	}
	dispensingCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(mintOut)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}
	profile, err := c.resolveProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}

	fundingAccount, err := associatedTokenAccount(owner, mintIn)
	if err != nil {
		return nil, err
	}
	var receivingAccount solana.PublicKey
	if mintIn.Equals(solana.WrappedSol) || mintOut.Equals(solana.WrappedSol) {
		wrapAmount := uint64(0)
		if mintIn.Equals(solana.WrappedSol) {
			wrapAmount = amountIn
		}
		wsolATA, wrapIxs, err := c.prepareWrappedSOL(ctx, owner, wrapAmount)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, wrapIxs...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(wsolATA, owner))
	}
	if mintOut.Equals(solana.WrappedSol) {
		receivingAccount, err = associatedTokenAccount(owner, solana.WrappedSol)
		if err != nil {
			return nil, err
		}
	} else {
		var createIx solana.Instruction
		receivingAccount, createIx, err = c.ensureTokenAccount(ctx, owner, owner, mintOut)
		if err != nil {
			return nil, err
		}
		if createIx != nil {
			bundle.Pre = append(bundle.Pre, createIx)
		}
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(receivingAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(receivingCustodyKey, true, false),
		solana.NewAccountMeta(receivingCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(receivingCustodyTokenAccount, true, false),
		solana.NewAccountMeta(dispensingCustodyKey, true, false),
		solana.NewAccountMeta(dispensingCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(dispensingCustodyTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		profile.meta(c.book.ProgramID),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	args := struct {
		AmountIn     uint64
		MinAmountOut uint64
	}{AmountIn: amountIn, MinAmountOut: minAmountOut}

	ix, err := newProgramInstruction(c.book.ProgramID, "swap", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	return bundle, nil
}

// BuildClosePosition assembles the full close of the position at the given
// bound price (already slippage-adjusted by the caller's side).
func (c *Client) BuildClosePosition(ctx context.Context, pos LoadedPosition, price uint64) (*Bundle, error) {
	custody, err := c.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return nil, err
	}
	collateralCustody, err := c.CustodyByAddress(pos.State.CollateralCustody)
	if err != nil {
		return nil, err
	}
	collateralCustodyTokenAccount, err := c.book.CustodyTokenAccountPDA(collateralCustody.Mint)
	if err != nil {
		return nil, err
	}
	reward, err := c.stakingRewardTokenAccounts()
	if err != nil {
		return nil, err
	}
	owner := pos.State.Owner
	profile, err := c.resolveProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}

	receivingAccount, err := associatedTokenAccount(owner, collateralCustody.Mint)
	if err != nil {
		return nil, err
	}
	if collateralCustody.Mint.Equals(solana.WrappedSol) {
		_, wrapIxs, err := c.prepareWrappedSOL(ctx, owner, 0)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, wrapIxs...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(receivingAccount, owner))
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(receivingAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(pos.Address, true, false),
		solana.NewAccountMeta(pos.State.Custody, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(pos.State.CollateralCustody, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.LMStaking, true, false),
		solana.NewAccountMeta(c.book.LPStaking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(reward.custody, true, false),
		solana.NewAccountMeta(reward.custodyOracle, false, false),
		solana.NewAccountMeta(reward.custodyTokenAccount, true, false),
		solana.NewAccountMeta(c.book.LMStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPStakingRewardVault, true, false),
		solana.NewAccountMeta(c.book.LPTokenMint, true, false),
		solana.NewAccountMeta(reward.mint, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(collateralCustody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralCustodyTokenAccount, true, false),
		profile.meta(c.book.ProgramID),
	}

	args := struct{ Price uint64 }{Price: price}

	ix, err := newProgramInstruction(c.book.ProgramID, "close_position", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	if err := bundle.prependBudget(cuClosePosition, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// BuildAddCollateral assembles an add of collateral (in the position's
// custody token) to an open position.
func (c *Client) BuildAddCollateral(pos LoadedPosition, collateral uint64) (*Bundle, error) {
	if collateral == 0 {
		return nil, fmt.Errorf("%w: zero collateral delta", ErrInvalidParameters)
	}
	custody, err := c.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return nil, err
	}
	custodyTokenAccount, err := c.book.CustodyTokenAccountPDA(custody.Mint)
	if err != nil {
		return nil, err
	}
	fundingAccount, err := associatedTokenAccount(pos.State.Owner, custody.Mint)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(pos.State.Owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(pos.Address, true, false),
		solana.NewAccountMeta(pos.State.Custody, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(pos.State.Custody, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(custodyTokenAccount, true, false),
	}

	args := struct{ Collateral uint64 }{Collateral: collateral}

	ix, err := newProgramInstruction(c.book.ProgramID, "add_collateral", args, accounts)
	if err != nil {
		return nil, err
	}
	return &Bundle{Main: []solana.Instruction{ix}}, nil
}

// BuildRemoveCollateral assembles a withdrawal of collateralUsd (USD scale)
// from an open position.
func (c *Client) BuildRemoveCollateral(ctx context.Context, pos LoadedPosition, collateralUsd uint64) (*Bundle, error) {
	if collateralUsd == 0 {
		return nil, fmt.Errorf("%w: zero collateral delta", ErrInvalidParameters)
	}
	custody, err := c.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return nil, err
	}
	custodyTokenAccount, err := c.book.CustodyTokenAccountPDA(custody.Mint)
	if err != nil {
		return nil, err
	}
	owner := pos.State.Owner
	receivingAccount, err := associatedTokenAccount(owner, custody.Mint)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}
	if custody.Mint.Equals(solana.WrappedSol) {
		_, wrapIxs, err := c.prepareWrappedSOL(ctx, owner, 0)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, wrapIxs...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(receivingAccount, owner))
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(receivingAccount, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, true, false),
		solana.NewAccountMeta(pos.Address, true, false),
		solana.NewAccountMeta(pos.State.Custody, true, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(pos.State.Custody, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(custodyTokenAccount, true, false),
	}

	args := struct{ CollateralUsd uint64 }{CollateralUsd: collateralUsd}

	ix, err := newProgramInstruction(c.book.ProgramID, "remove_collateral", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	return bundle, nil
}

// OpenLongWithConditionalSwap opens a long funded by any supported mint.
// The program swaps the funding token into the principal token first, so
// the position's collateral ends up denominated in the asset being longed.
func (t *Trader) OpenLongWithConditionalSwap(ctx context.Context, p OpenPositionParams) (solana.Signature, error) {
	p.Side = SideLong
	bundle, err := t.BuildOpenPositionWithSwap(ctx, t.Owner(), p)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := t.attachSwapWrapping(ctx, bundle, p, SideLong); err != nil {
		return solana.Signature{}, err
	}
	if err := bundle.prependBudget(cuOpenLongWithSwap, t.params.ComputeUnitPriceMicroLamports); err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// OpenShortWithConditionalSwap opens a short funded by any supported mint.
// Collateral is swapped into the stable token per the program's rule.
func (t *Trader) OpenShortWithConditionalSwap(ctx context.Context, p OpenPositionParams) (solana.Signature, error) {
	p.Side = SideShort
	bundle, err := t.BuildOpenPositionWithSwap(ctx, t.Owner(), p)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := t.attachSwapWrapping(ctx, bundle, p, SideShort); err != nil {
		return solana.Signature{}, err
	}
	if err := bundle.prependBudget(cuOpenShortWithSwap, t.params.ComputeUnitPriceMicroLamports); err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// attachSwapWrapping adds the wrap/unwrap or token-account-creation steps
// around an open-with-swap: native SOL on either leg gets a temporary
// wrapped balance; otherwise the swap-destination account is created when
// missing.
func (t *Trader) attachSwapWrapping(ctx context.Context, bundle *Bundle, p OpenPositionParams, side Side) error {
	owner := t.Owner()
	if p.CollateralMint.Equals(solana.WrappedSol) || p.Mint.Equals(solana.WrappedSol) {
		wrapAmount := uint64(0)
		if p.CollateralMint.Equals(solana.WrappedSol) {
			wrapAmount = p.CollateralAmount
		}
		wsolATA, wrapIxs, err := t.prepareWrappedSOL(ctx, owner, wrapAmount)
		if err != nil {
			return err
		}
		bundle.Pre = append(wrapIxs, bundle.Pre...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(wsolATA, owner))
		return nil
	}

	destMint := p.Mint
	if side == SideShort {
		stable, err := t.tokens.Stable()
		if err != nil {
			return err
		}
		destMint = stable.Mint
	}
	_, createIx, err := t.ensureTokenAccount(ctx, owner, owner, destMint)
	if err != nil {
		return err
	}
	if createIx != nil {
		bundle.Pre = append([]solana.Instruction{createIx}, bundle.Pre...)
	}
	return nil
}

// Swap exchanges amountIn of mintIn for at least minAmountOut of mintOut.
func (t *Trader) Swap(ctx context.Context, mintIn, mintOut solana.PublicKey, amountIn, minAmountOut uint64) (solana.Signature, error) {
	if amountIn == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero swap amount", ErrInvalidParameters)
	}
	bundle, err := t.BuildSwap(ctx, t.Owner(), mintIn, mintOut, amountIn, minAmountOut)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := bundle.prependBudget(cuSwap, t.params.ComputeUnitPriceMicroLamports); err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// ClosePosition closes the whole position. price is the slippage-adjusted
// bound the caller accepts.
func (t *Trader) ClosePosition(ctx context.Context, pos LoadedPosition, price uint64) (solana.Signature, error) {
	bundle, err := t.BuildClosePosition(ctx, pos, price)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// AddCollateral tops up an open position. For native SOL collateral the
// wrapped balance is funded with a headroom margin since fees are paid on
// top of the added collateral.
func (t *Trader) AddCollateral(ctx context.Context, pos LoadedPosition, collateral uint64) (solana.Signature, error) {
	bundle, err := t.BuildAddCollateral(pos, collateral)
	if err != nil {
		return solana.Signature{}, err
	}
	custody, err := t.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return solana.Signature{}, err
	}
	if custody.Mint.Equals(solana.WrappedSol) {
		// Fund 10% above the delta so fees can settle from the same
		// wrapped balance.
		wsolATA, wrapIxs, err := t.prepareWrappedSOL(ctx, t.Owner(), collateral+collateral/10)
		if err != nil {
			return solana.Signature{}, err
		}
		bundle.Pre = append(wrapIxs, bundle.Pre...)
		bundle.Post = append(bundle.Post, closeWrappedSOL(wsolATA, t.Owner()))
	}
	return t.submit(ctx, bundle)
}

// SwapAndAddCollateral funds a collateral top-up from a different mint by
// bundling a swap ahead of the add. Falls through to a plain add when no
// swap is needed.
func (t *Trader) SwapAndAddCollateral(ctx context.Context, pos LoadedPosition, mintIn solana.PublicKey, amountIn, minAmountOut, addedCollateral uint64) (solana.Signature, error) {
	custody, err := t.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return solana.Signature{}, err
	}
	if mintIn.Equals(custody.Mint) {
		return t.AddCollateral(ctx, pos, addedCollateral)
	}

	swapBundle, err := t.BuildSwap(ctx, t.Owner(), mintIn, custody.Mint, amountIn, minAmountOut)
	if err != nil {
		return solana.Signature{}, err
	}
	addBundle, err := t.BuildAddCollateral(pos, addedCollateral)
	if err != nil {
		return solana.Signature{}, err
	}

	bundle := &Bundle{
		Pre:  swapBundle.Pre,
		Main: append(swapBundle.Main, addBundle.Main...),
		Post: swapBundle.Post,
	}
	if err := bundle.prependBudget(cuOpenPosition, t.params.ComputeUnitPriceMicroLamports); err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// RemoveCollateral withdraws collateralUsd from an open position.
func (t *Trader) RemoveCollateral(ctx context.Context, pos LoadedPosition, collateralUsd uint64) (solana.Signature, error) {
	bundle, err := t.BuildRemoveCollateral(ctx, pos, collateralUsd)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// PositionView couples a loaded position with the live figures fetched per
// position: program PnL, program liquidation price, and current leverage.
type PositionView struct {
	LoadedPosition
	PnL              *PnL
	LiquidationPrice uint64
	Leverage         float64
}

// LoadUserPositions derives every possible (custody, side) position address
// for the owner, batch-fetches them, then fills PnL and liquidation price
// per live position concurrently.
func (c *Client) LoadUserPositions(ctx context.Context, owner solana.PublicKey) ([]PositionView, error) {
	addresses := make([]solana.PublicKey, 0, len(c.custodies)*2)
	for _, custodyKey := range c.pool.Custodies {
		for _, side := range []Side{SideLong, SideShort} {
			address, err := c.book.PositionPDA(owner, custodyKey, side)
			if err != nil {
				return nil, err
			}
			addresses = append(addresses, address)
		}
	}

	positions, err := c.loader.FetchPositions(ctx, addresses)
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, len(positions))
	var wg sync.WaitGroup
	for i, pos := range positions {
		views[i].LoadedPosition = pos

		wg.Add(2)
		go func(i int, pos LoadedPosition) {
			defer wg.Done()
			pnl, err := c.GetPnL(ctx, pos)
			if err != nil {
				c.log.Warn("pnl view failed", "position", pos.Address, "error", err)
				return
			}
			views[i].PnL = pnl
		}(i, pos)
		go func(i int, pos LoadedPosition) {
			defer wg.Done()
			price, err := c.GetLiquidationPrice(ctx, pos, 0, 0)
			if err != nil {
				c.log.Warn("liquidation price view failed", "position", pos.Address, "error", err)
				return
			}
			views[i].LiquidationPrice = price
		}(i, pos)
	}
	wg.Wait()

	for i := range views {
		if views[i].PnL == nil {
			continue
		}
		leverage, err := Leverage(views[i].State.SizeUsd, views[i].State.CollateralUsd, *views[i].PnL)
		if err != nil {
			continue
		}
		f, _ := leverage.Float64()
		views[i].Leverage = f
	}
	return views, nil
}
