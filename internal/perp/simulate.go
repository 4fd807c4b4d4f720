package perp

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// The program exposes its read paths as instructions that stash a borsh
// payload in return data. Until a direct query path exists, quotes are read
// by simulating those instructions and decoding the payload.

type SwapAmountAndFees struct {
	AmountOut uint64
	FeeIn     uint64
	FeeOut    uint64
}

type OpenPositionWithSwapAmountAndFees struct {
	Size             uint64
	EntryPrice       uint64
	LiquidationPrice uint64
	SwapFeeIn        uint64
	SwapFeeOut       uint64
	OpenPositionFee  uint64
	ExitFee          uint64
	LiquidationFee   uint64
}

type NewPositionPricesAndFee struct {
	EntryPrice       uint64
	LiquidationPrice uint64
	Fee              uint64
}

type ExitPriceAndFee struct {
	Price uint64
	Fee   uint64
}

type AmountAndFee struct {
	Amount uint64
	Fee    uint64
}

// simulateForReturnData runs the instructions without committing state and
// returns the raw return-data payload. A simulation error is classified the
// same way as a real failure; success without a payload is a contract
// violation surfaced as ErrNoReturnData.
func (c *Client) simulateForReturnData(ctx context.Context, instructions []solana.Instruction) ([]byte, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.params.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(c.viewPayer()),
	)
	if err != nil {
		return nil, fmt.Errorf("build view transaction: %w", err)
	}

	resp, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: c.params.Commitment,
	})
	if err != nil {
		return nil, newTxError(StageSimulate, solana.Signature{}, err)
	}
	if resp.Value.Err != nil {
		return nil, programTxError(StageSimulate, solana.Signature{}, resp.Value.Err)
	}
	if resp.Value.ReturnData == nil || len(resp.Value.ReturnData.Data.Content) == 0 {
		return nil, newTxError(StageSimulate, solana.Signature{}, ErrNoReturnData)
	}
	return resp.Value.ReturnData.Data.Content, nil
}

func (c *Client) viewPayer() solana.PublicKey {
	if !c.params.ViewPayer.IsZero() {
		return c.params.ViewPayer
	}
	// Any funded account works as the simulated fee payer.
	return c.book.Pool
}

func decodeReturnData(data []byte, out any) error {
	if err := bin.NewBorshDecoder(data).Decode(out); err != nil {
		return fmt.Errorf("%w: view return payload: %v", ErrDecode, err)
	}
	return nil
}

func (c *Client) runView(ctx context.Context, ixName string, args any, accounts solana.AccountMetaSlice, remaining solana.AccountMetaSlice, out any) error {
	ix, err := newProgramInstruction(c.book.ProgramID, ixName, args, append(accounts, remaining...))
	if err != nil {
		return err
	}
	payload, err := c.simulateForReturnData(ctx, []solana.Instruction{ix})
	if err != nil {
		return err
	}
	return decodeReturnData(payload, out)
}

// GetSwapAmountAndFees quotes a swap of amountIn between two supported
// mints.
func (c *Client) GetSwapAmountAndFees(ctx context.Context, mintIn, mintOut solana.PublicKey, amountIn uint64) (*SwapAmountAndFees, error) {
	inKey, in, err := c.CustodyByMint(mintIn)
	if err != nil {
		return nil, err
	}
	outKey, out, err := c.CustodyByMint(mintOut)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(inKey, false, false),
		solana.NewAccountMeta(in.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(outKey, false, false),
		solana.NewAccountMeta(out.Oracle.OracleAccount, false, false),
	}

	var result SwapAmountAndFees
	args := struct{ AmountIn uint64 }{AmountIn: amountIn}
	if err := c.runView(ctx, "get_swap_amount_and_fees", args, accounts, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOpenPositionWithSwapAmountAndFees quotes opening a position funded by a
// different mint than the one the instruction ultimately consumes. The
// collateral custody follows the same side rule as the real instruction:
// longs collateralize with the principal token, shorts with the stable.
func (c *Client) GetOpenPositionWithSwapAmountAndFees(ctx context.Context, mint, collateralMint solana.PublicKey, collateralAmount uint64, leverage uint32, side Side) (*OpenPositionWithSwapAmountAndFees, error) {
	principalKey, principal, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	receivingKey, receiving, err := c.CustodyByMint(collateralMint)
	if err != nil {
		return nil, err
	}
	collateralKey, collateral, err := c.collateralCustodyForSide(mint, side)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(receivingKey, false, false),
		solana.NewAccountMeta(receiving.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralKey, false, false),
		solana.NewAccountMeta(collateral.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(principalKey, false, false),
		solana.NewAccountMeta(principal.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
	}

	var result OpenPositionWithSwapAmountAndFees
	args := struct {
		CollateralAmount uint64
		Leverage         uint32
		Side             uint8
	}{CollateralAmount: collateralAmount, Leverage: leverage, Side: uint8(side)}
	if err := c.runView(ctx, "get_open_position_with_swap_amount_and_fees", args, accounts, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEntryPriceAndFee quotes the entry price, projected liquidation price,
// and open fee for a new position.
func (c *Client) GetEntryPriceAndFee(ctx context.Context, mint, collateralMint solana.PublicKey, collateral uint64, leverage uint32, side Side) (*NewPositionPricesAndFee, error) {
	custodyKey, custody, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	collateralKey, collateralCustody, err := c.CustodyByMint(collateralMint)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(custodyKey, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(collateralKey, false, false),
		solana.NewAccountMeta(collateralCustody.Oracle.OracleAccount, false, false),
	}

	var result NewPositionPricesAndFee
	args := struct {
		Collateral uint64
		Leverage   uint32
		Side       uint8
	}{Collateral: collateral, Leverage: leverage, Side: uint8(side)}
	if err := c.runView(ctx, "get_entry_price_and_fee", args, accounts, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) positionViewAccounts(pos LoadedPosition) (solana.AccountMetaSlice, error) {
	custody, err := c.CustodyByAddress(pos.State.Custody)
	if err != nil {
		return nil, err
	}
	collateralCustody, err := c.CustodyByAddress(pos.State.CollateralCustody)
	if err != nil {
		return nil, err
	}
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(pos.Address, false, false),
		solana.NewAccountMeta(pos.State.Custody, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(pos.State.CollateralCustody, false, false),
		solana.NewAccountMeta(collateralCustody.Oracle.OracleAccount, false, false),
	}, nil
}

// GetExitPriceAndFee quotes the realized price and fee of closing the
// position now.
func (c *Client) GetExitPriceAndFee(ctx context.Context, pos LoadedPosition) (*ExitPriceAndFee, error) {
	accounts, err := c.positionViewAccounts(pos)
	if err != nil {
		return nil, err
	}
	var result ExitPriceAndFee
	if err := c.runView(ctx, "get_exit_price_and_fee", nil, accounts, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPnL reads the position's unrealized PnL as the program computes it.
func (c *Client) GetPnL(ctx context.Context, pos LoadedPosition) (*PnL, error) {
	accounts, err := c.positionViewAccounts(pos)
	if err != nil {
		return nil, err
	}
	var result struct {
		Profit uint64
		Loss   uint64
	}
	if err := c.runView(ctx, "get_pnl", nil, accounts, nil, &result); err != nil {
		return nil, err
	}
	return &PnL{ProfitUsd: result.Profit, LossUsd: result.Loss}, nil
}

// GetLiquidationPrice reads the program's liquidation price for the
// position, optionally under a hypothetical collateral add or remove.
func (c *Client) GetLiquidationPrice(ctx context.Context, pos LoadedPosition, addCollateral, removeCollateral uint64) (uint64, error) {
	accounts, err := c.positionViewAccounts(pos)
	if err != nil {
		return 0, err
	}
	var result struct{ Price uint64 }
	args := struct {
		AddCollateral    uint64
		RemoveCollateral uint64
	}{AddCollateral: addCollateral, RemoveCollateral: removeCollateral}
	if err := c.runView(ctx, "get_liquidation_price", args, accounts, nil, &result); err != nil {
		return 0, err
	}
	return result.Price, nil
}

// GetAssetsUnderManagement reads the pool's live AUM across all custodies.
func (c *Client) GetAssetsUnderManagement(ctx context.Context) (bin.Uint128, error) {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
	}
	var result struct{ Aum bin.Uint128 }
	if err := c.runView(ctx, "get_assets_under_management", nil, accounts, c.custodiesRemainingAccounts(), &result); err != nil {
		return bin.Uint128{}, err
	}
	return result.Aum, nil
}

// GetAddLiquidityAmountAndFee quotes the LP tokens received (and fee in the
// deposited token) for adding amountIn of mint.
func (c *Client) GetAddLiquidityAmountAndFee(ctx context.Context, mint solana.PublicKey, amountIn uint64) (*AmountAndFee, error) {
	custodyKey, custody, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(custodyKey, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(c.book.LPTokenMint, false, false),
	}
	var result AmountAndFee
	args := struct{ AmountIn uint64 }{AmountIn: amountIn}
	if err := c.runView(ctx, "get_add_liquidity_amount_and_fee", args, accounts, c.custodiesRemainingAccounts(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRemoveLiquidityAmountAndFee quotes the tokens received (and fee, both
// in the withdrawn token) for burning lpAmountIn.
func (c *Client) GetRemoveLiquidityAmountAndFee(ctx context.Context, mint solana.PublicKey, lpAmountIn uint64) (*AmountAndFee, error) {
	custodyKey, custody, err := c.CustodyByMint(mint)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(custodyKey, false, false),
		solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false),
		solana.NewAccountMeta(c.book.LPTokenMint, false, false),
	}
	var result AmountAndFee
	args := struct{ LpAmountIn uint64 }{LpAmountIn: lpAmountIn}
	if err := c.runView(ctx, "get_remove_liquidity_amount_and_fee", args, accounts, c.custodiesRemainingAccounts(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLpTokenPrice reads the current pool token price.
func (c *Client) GetLpTokenPrice(ctx context.Context) (uint64, error) {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.Pool, false, false),
		solana.NewAccountMeta(c.book.LPTokenMint, false, false),
	}
	var result struct{ Price uint64 }
	if err := c.runView(ctx, "get_lp_token_price", nil, accounts, c.custodiesRemainingAccounts(), &result); err != nil {
		return 0, err
	}
	return result.Price, nil
}
