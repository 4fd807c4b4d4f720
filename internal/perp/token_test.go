package perp

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToNativeTruncates(t *testing.T) {
	require.Equal(t, uint64(1_500_000), ToNative(decimal.RequireFromString("1.5"), 6))
	require.Equal(t, uint64(1_234_567), ToNative(decimal.RequireFromString("1.2345678"), 6))
	require.Equal(t, uint64(0), ToNative(decimal.RequireFromString("0.0000001"), 6))
}

func TestToUIRoundTrip(t *testing.T) {
	ui := decimal.RequireFromString("42.125")
	native := ToNative(ui, 9)
	require.Equal(t, uint64(42_125_000_000), native)
	require.True(t, ui.Equal(ToUI(native, 9)))
}

func TestToNativeFloat(t *testing.T) {
	require.Equal(t, uint64(1_100_000), ToNativeFloat(1.1, 6))
	require.Equal(t, uint64(0), ToNativeFloat(0, 6))
}

func TestToUIFloat(t *testing.T) {
	require.InDelta(t, 1.5, ToUIFloat(1_500_000_000, 9), 1e-12)
}

func TestNewTokenSetRejectsDuplicateMint(t *testing.T) {
	_, err := NewTokenSet([]Token{
		{Mint: testUSDCMint, Symbol: "USDC"},
		{Mint: testUSDCMint, Symbol: "ALSO-USDC"},
	})
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestTokenSetLookups(t *testing.T) {
	custody := mustKey(t)
	set, err := NewTokenSet([]Token{
		{Mint: testUSDCMint, Symbol: "USDC", IsStable: true, Custody: custody},
		{Mint: testBTCMint, Symbol: "BTC"},
	})
	require.NoError(t, err)

	tok, err := set.ByMint(testBTCMint)
	require.NoError(t, err)
	require.Equal(t, "BTC", tok.Symbol)

	_, err = set.ByMint(mustKey(t))
	require.ErrorIs(t, err, ErrNotFound)

	stable, err := set.Stable()
	require.NoError(t, err)
	require.Equal(t, "USDC", stable.Symbol)

	byCustody, err := set.ByCustody(custody)
	require.NoError(t, err)
	require.Equal(t, "USDC", byCustody.Symbol)
}

func TestTokenSetNoStable(t *testing.T) {
	set, err := NewTokenSet([]Token{{Mint: testBTCMint, Symbol: "BTC"}})
	require.NoError(t, err)
	_, err = set.Stable()
	require.ErrorIs(t, err, ErrNotFound)
}
