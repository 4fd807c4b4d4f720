package perp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplySlippage(t *testing.T) {
	price := uint64(50_000_000_000)

	require.Equal(t, uint64(50_150_000_000), ApplySlippage(price, 30, SideLong))
	require.Equal(t, uint64(49_850_000_000), ApplySlippage(price, 30, SideShort))
	require.Equal(t, price, ApplySlippage(price, 30, Side(0)))
	require.Equal(t, price, ApplySlippage(price, 0, SideLong))
}

func TestFeeAmountTruncates(t *testing.T) {
	// 999 * 30 / 10_000 = 2.997, truncated to 2.
	require.Equal(t, uint64(2), FeeAmount(999, 30))
	require.Equal(t, uint64(0), FeeAmount(0, 30))
	require.Equal(t, uint64(0), FeeAmount(100, 0))
}

func TestSwapFeesStableRoute(t *testing.T) {
	in := &Custody{IsStable: true, Fees: FeeParams{SwapIn: 100, StableSwapIn: 10}}
	out := &Custody{IsStable: true, Fees: FeeParams{SwapOut: 100, StableSwapOut: 10}}

	feeIn, feeOut := SwapFees(10_000, 10_000, in, out)
	require.Equal(t, uint64(10), feeIn)
	require.Equal(t, uint64(10), feeOut)

	out.IsStable = false
	feeIn, feeOut = SwapFees(10_000, 10_000, in, out)
	require.Equal(t, uint64(100), feeIn)
	require.Equal(t, uint64(100), feeOut)
}

func TestPriceChangePnL(t *testing.T) {
	size := uint64(1_000_000_000) // 1000 USD at 6 decimals

	pnl, err := PriceChangePnL(SideLong, 100_000_000, 110_000_000, size)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), pnl.ProfitUsd)
	require.Zero(t, pnl.LossUsd)

	pnl, err = PriceChangePnL(SideShort, 100_000_000, 110_000_000, size)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), pnl.LossUsd)
	require.Zero(t, pnl.ProfitUsd)

	pnl, err = PriceChangePnL(SideShort, 100_000_000, 90_000_000, size)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), pnl.ProfitUsd)

	_, err = PriceChangePnL(SideLong, 0, 100, size)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestPnLSigned(t *testing.T) {
	require.Equal(t, int64(5), PnL{ProfitUsd: 5}.Signed())
	require.Equal(t, int64(-7), PnL{LossUsd: 7}.Signed())
	require.Zero(t, PnL{}.Signed())
}

func TestLeverage(t *testing.T) {
	lev, err := Leverage(10_000_000_000, 1_000_000_000, PnL{})
	require.NoError(t, err)
	require.Equal(t, "10", lev.String())

	// A loss eating half the collateral doubles effective leverage.
	lev, err = Leverage(10_000_000_000, 1_000_000_000, PnL{LossUsd: 500_000_000})
	require.NoError(t, err)
	require.Equal(t, "20", lev.String())
}

func TestLeverageInvalidState(t *testing.T) {
	_, err := Leverage(10_000_000_000, 1_000_000_000, PnL{LossUsd: 1_000_000_000})
	require.ErrorIs(t, err, ErrInvalidLeverageState)

	_, err = Leverage(10_000_000_000, 1_000_000_000, PnL{LossUsd: 2_000_000_000})
	require.ErrorIs(t, err, ErrInvalidLeverageState)
}

func TestMaintenanceMarginUsd(t *testing.T) {
	custody := &Custody{Pricing: PricingParams{MaxLeverage: 1_000_000}} // 100x
	require.Equal(t, uint64(10_000_000), MaintenanceMarginUsd(1_000_000_000, custody))
	require.Zero(t, MaintenanceMarginUsd(1_000_000_000, &Custody{}))
}

func TestLiquidationPriceLong(t *testing.T) {
	custody := &Custody{Pricing: PricingParams{MaxLeverage: 1_000_000}}
	pos := &Position{
		Side:          uint8(SideLong),
		Price:         100_000_000,
		SizeUsd:       1_000_000_000,
		CollateralUsd: 100_000_000,
	}

	price, err := LiquidationPrice(pos, custody, 0)
	require.NoError(t, err)
	require.Less(t, price, pos.Price)

	// Adding collateral moves the liquidation price further from entry.
	withAdd, err := LiquidationPrice(pos, custody, 50_000_000)
	require.NoError(t, err)
	require.Less(t, withAdd, price)

	// Removing collateral moves it toward entry.
	withRemove, err := LiquidationPrice(pos, custody, -50_000_000)
	require.NoError(t, err)
	require.Greater(t, withRemove, price)
}

func TestLiquidationPriceShortMirrors(t *testing.T) {
	custody := &Custody{Pricing: PricingParams{MaxLeverage: 1_000_000}}
	pos := &Position{
		Side:          uint8(SideShort),
		Price:         100_000_000,
		SizeUsd:       1_000_000_000,
		CollateralUsd: 100_000_000,
	}

	price, err := LiquidationPrice(pos, custody, 0)
	require.NoError(t, err)
	require.Greater(t, price, pos.Price)
}

func TestLiquidationPriceZeroSize(t *testing.T) {
	_, err := LiquidationPrice(&Position{}, &Custody{}, 0)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestAverageLeverageSkipsZeroCollateral(t *testing.T) {
	custodies := []*Custody{
		{LongPositions: PositionsAggregate{OpenPositions: 2, SizeUsd: 4_000_000_000, CollateralUsd: 1_000_000_000}},
		{LongPositions: PositionsAggregate{OpenPositions: 5, SizeUsd: 9_000_000_000}}, // zero collateral, skipped
	}

	require.InDelta(t, 4.0, AverageLeverage(custodies, SideLong), 1e-9)
	require.Zero(t, AverageLeverage(custodies, SideShort))
}

func TestComputePoolStatsAggregates(t *testing.T) {
	custodies := []*Custody{
		{
			CollectedFees:  FeeStats{SwapUsd: 1_000_000, OpenPositionUsd: 2_000_000},
			VolumeStats:    VolumeStats{SwapUsd: 10_000_000},
			TradeStats:     TradeStats{OiLongUsd: 5_000_000, OiShortUsd: 3_000_000},
			LongPositions:  PositionsAggregate{OpenPositions: 1, SizeUsd: 2_000_000, CollateralUsd: 1_000_000},
			ShortPositions: PositionsAggregate{OpenPositions: 2, SizeUsd: 6_000_000, CollateralUsd: 2_000_000},
		},
	}

	stats := ComputePoolStats(&Pool{}, custodies)
	require.InDelta(t, 3.0, stats.TotalFeesUsd, 1e-9)
	require.InDelta(t, 10.0, stats.TotalVolumeUsd, 1e-9)
	require.InDelta(t, 5.0, stats.OiLongUsd, 1e-9)
	require.InDelta(t, 3.0, stats.OiShortUsd, 1e-9)
	require.Equal(t, uint64(1), stats.NbOpenLongPositions)
	require.Equal(t, uint64(2), stats.NbOpenShortPositions)
	require.InDelta(t, 2.0, stats.AverageLongLeverage, 1e-9)
	require.InDelta(t, 3.0, stats.AverageShortLeverage, 1e-9)
}
