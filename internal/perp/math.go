package perp

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// All math here mirrors the on-chain fixed-point formulas: scale with
// integer multiply, then divide truncating toward zero. Floats are only
// produced at the display boundary.

func mulDivFloor(a, b, denom uint64) uint64 {
	if denom == 0 {
		return 0
	}
	product := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	return product.Div(product, new(big.Int).SetUint64(denom)).Uint64()
}

// ApplySlippage shifts an oracle price by the given basis points bound in
// the direction that protects the program, not the trader: longs pay up,
// shorts receive down. The program aborts if the realized price lands
// outside this bound.
func ApplySlippage(price uint64, slippageBps uint64, side Side) uint64 {
	switch side {
	case SideLong:
		return mulDivFloor(price, BPSDivisor+slippageBps, BPSDivisor)
	case SideShort:
		return mulDivFloor(price, BPSDivisor-slippageBps, BPSDivisor)
	default:
		return price
	}
}

// FeeAmount scales an amount by a basis-point rate, truncating.
func FeeAmount(amount uint64, rateBps uint16) uint64 {
	return mulDivFloor(amount, uint64(rateBps), BPSDivisor)
}

// SwapFees returns the input-side and output-side fees for a swap between
// two custodies, using the stable rate table when both legs are stable.
func SwapFees(amountIn, amountOut uint64, in, out *Custody) (feeIn, feeOut uint64) {
	stableSwap := in.IsStable && out.IsStable
	if stableSwap {
		return FeeAmount(amountIn, in.Fees.StableSwapIn), FeeAmount(amountOut, out.Fees.StableSwapOut)
	}
	return FeeAmount(amountIn, in.Fees.SwapIn), FeeAmount(amountOut, out.Fees.SwapOut)
}

// OpenFeeUsd and CloseFeeUsd scale a position's USD size by the custody's
// trade fee rates.
func OpenFeeUsd(sizeUsd uint64, custody *Custody) uint64 {
	return FeeAmount(sizeUsd, custody.Fees.OpenPosition)
}

func CloseFeeUsd(sizeUsd uint64, custody *Custody) uint64 {
	return FeeAmount(sizeUsd, custody.Fees.ClosePosition)
}

// PnL is a split unsigned profit/loss pair, matching the program's wire
// representation. At most one of the two fields is non-zero.
type PnL struct {
	ProfitUsd uint64
	LossUsd   uint64
}

// Signed collapses the pair into one signed USD value for display math.
func (p PnL) Signed() int64 {
	if p.LossUsd > 0 {
		return -int64(p.LossUsd)
	}
	return int64(p.ProfitUsd)
}

// PriceChangePnL computes the unrealized PnL of a position from its entry
// price and a mark price, both in price-decimal scale. Long profits when the
// mark exceeds entry; short is the mirror.
func PriceChangePnL(side Side, entryPrice, markPrice, sizeUsd uint64) (PnL, error) {
	if entryPrice == 0 {
		return PnL{}, fmt.Errorf("%w: zero entry price", ErrInvalidParameters)
	}
	var gain bool
	var delta uint64
	if markPrice >= entryPrice {
		delta = markPrice - entryPrice
		gain = side == SideLong
	} else {
		delta = entryPrice - markPrice
		gain = side == SideShort
	}
	moved := mulDivFloor(sizeUsd, delta, entryPrice)
	if gain {
		return PnL{ProfitUsd: moved}, nil
	}
	return PnL{LossUsd: moved}, nil
}

// Leverage returns sizeUsd / (collateralUsd + pnl) as a display decimal.
// A non-positive denominator is an invalid state, never coerced to zero or
// infinity.
func Leverage(sizeUsd, collateralUsd uint64, pnl PnL) (decimal.Decimal, error) {
	denom := int64(collateralUsd) + pnl.Signed()
	if denom <= 0 {
		return decimal.Zero, fmt.Errorf("%w: collateral %d with pnl %d", ErrInvalidLeverageState, collateralUsd, pnl.Signed())
	}
	return decimal.NewFromUint64(sizeUsd).Div(decimal.NewFromInt(denom)), nil
}

// MaintenanceMarginUsd is the collateral floor implied by the custody's max
// leverage, below which the position is liquidatable. MaxLeverage is scaled
// like leverage on chain (basis points).
func MaintenanceMarginUsd(sizeUsd uint64, custody *Custody) uint64 {
	if custody.Pricing.MaxLeverage == 0 {
		return 0
	}
	return mulDivFloor(sizeUsd, BPSDivisor, uint64(custody.Pricing.MaxLeverage))
}

// LiquidationPrice solves the entry-price offset at which remaining
// collateral, net of exit and accrued borrow fees, hits the maintenance
// threshold. collateralDeltaUsd previews a hypothetical add (positive) or
// remove (negative) without touching the position. The simulated on-chain
// view stays authoritative; this is the offline approximation used when a
// node round trip is not warranted.
func LiquidationPrice(pos *Position, custody *Custody, collateralDeltaUsd int64) (uint64, error) {
	if pos.SizeUsd == 0 {
		return 0, fmt.Errorf("%w: position has zero size", ErrInvalidParameters)
	}
	collateral := int64(pos.CollateralUsd) + collateralDeltaUsd
	margin := collateral -
		int64(pos.ExitFeeUsd) -
		int64(pos.UnrealizedInterestUsd) -
		int64(MaintenanceMarginUsd(pos.SizeUsd, custody))
	if margin < 0 {
		margin = 0
	}
	// Price move (relative to entry) that burns exactly the margin.
	offset := mulDivFloor(pos.Price, uint64(margin), pos.SizeUsd)
	switch Side(pos.Side) {
	case SideLong:
		if offset >= pos.Price {
			return 0, nil
		}
		return pos.Price - offset, nil
	case SideShort:
		return pos.Price + offset, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %d", ErrInvalidParameters, pos.Side)
	}
}

// AverageLeverage is the open-position-weighted mean leverage across
// custodies for one side. A custody with zero collateral at risk contributes
// to neither numerator nor denominator.
func AverageLeverage(custodies []*Custody, side Side) float64 {
	var totalLeverage float64
	var totalPositions uint64
	for _, custody := range custodies {
		agg := custody.LongPositions
		if side == SideShort {
			agg = custody.ShortPositions
		}
		if agg.CollateralUsd == 0 {
			continue
		}
		leverage := ToUIFloat(agg.SizeUsd, USDDecimals) / ToUIFloat(agg.CollateralUsd, USDDecimals)
		totalLeverage += leverage * float64(agg.OpenPositions)
		totalPositions += agg.OpenPositions
	}
	if totalPositions == 0 {
		return 0
	}
	return totalLeverage / float64(totalPositions)
}

// PoolStats aggregates per-custody rollups into the pool-level figures the
// display layer shows.
type PoolStats struct {
	AumUsd              float64
	TotalFeesUsd        float64
	TotalVolumeUsd      float64
	LongPositionsUsd    float64
	ShortPositionsUsd   float64
	OiLongUsd           float64
	OiShortUsd          float64
	NbOpenLongPositions uint64
	NbOpenShortPositions uint64
	AverageLongLeverage  float64
	AverageShortLeverage float64
}

func ComputePoolStats(pool *Pool, custodies []*Custody) PoolStats {
	stats := PoolStats{
		AumUsd:               uint128ToUIFloat(pool.AumUsd, USDDecimals),
		AverageLongLeverage:  AverageLeverage(custodies, SideLong),
		AverageShortLeverage: AverageLeverage(custodies, SideShort),
	}
	for _, custody := range custodies {
		fees := custody.CollectedFees
		stats.TotalFeesUsd += ToUIFloat(fees.SwapUsd, USDDecimals) +
			ToUIFloat(fees.AddLiquidityUsd, USDDecimals) +
			ToUIFloat(fees.RemoveLiquidityUsd, USDDecimals) +
			ToUIFloat(fees.OpenPositionUsd, USDDecimals) +
			ToUIFloat(fees.ClosePositionUsd, USDDecimals) +
			ToUIFloat(fees.LiquidationUsd, USDDecimals) +
			ToUIFloat(fees.BorrowUsd, USDDecimals)

		volume := custody.VolumeStats
		stats.TotalVolumeUsd += ToUIFloat(volume.SwapUsd, USDDecimals) +
			ToUIFloat(volume.AddLiquidityUsd, USDDecimals) +
			ToUIFloat(volume.RemoveLiquidityUsd, USDDecimals) +
			ToUIFloat(volume.OpenPositionUsd, USDDecimals) +
			ToUIFloat(volume.ClosePositionUsd, USDDecimals) +
			ToUIFloat(volume.LiquidationUsd, USDDecimals)

		stats.LongPositionsUsd += ToUIFloat(custody.LongPositions.SizeUsd, USDDecimals)
		stats.ShortPositionsUsd += ToUIFloat(custody.ShortPositions.SizeUsd, USDDecimals)
		stats.OiLongUsd += ToUIFloat(custody.TradeStats.OiLongUsd, USDDecimals)
		stats.OiShortUsd += ToUIFloat(custody.TradeStats.OiShortUsd, USDDecimals)
		stats.NbOpenLongPositions += custody.LongPositions.OpenPositions
		stats.NbOpenShortPositions += custody.ShortPositions.OpenPositions
	}
	return stats
}

func uint128ToUIFloat(v interface{ BigInt() *big.Int }, decimals uint8) float64 {
	f, _ := decimal.NewFromBigInt(v.BigInt(), -int32(decimals)).Float64()
	return f
}
