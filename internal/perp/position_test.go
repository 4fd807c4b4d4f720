package perp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollateralCustodyForSide(t *testing.T) {
	client := newTestClient(t, newFakeRPC())

	stableKey, _, err := client.StableCustody()
	require.NoError(t, err)
	btcKey, _, err := client.CustodyByMint(testBTCMint)
	require.NoError(t, err)

	// Longs collateralize with the principal token itself.
	key, custody, err := client.collateralCustodyForSide(testBTCMint, SideLong)
	require.NoError(t, err)
	require.Equal(t, btcKey, key)
	require.Equal(t, testBTCMint, custody.Mint)

	// Shorts always use the stable custody, whatever the principal is.
	key, custody, err = client.collateralCustodyForSide(testBTCMint, SideShort)
	require.NoError(t, err)
	require.Equal(t, stableKey, key)
	require.True(t, custody.IsStable)

	_, _, err = client.collateralCustodyForSide(testBTCMint, Side(0))
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestCustodiesRemainingAccountsOrder(t *testing.T) {
	client := newTestClient(t, newFakeRPC())

	metas := client.custodiesRemainingAccounts()
	require.Len(t, metas, 4, "two custodies then two oracles")

	require.Equal(t, client.pool.Custodies[0], metas[0].PublicKey)
	require.Equal(t, client.pool.Custodies[1], metas[1].PublicKey)
	require.Equal(t, client.custodies[0].Oracle.OracleAccount, metas[2].PublicKey)
	require.Equal(t, client.custodies[1].Oracle.OracleAccount, metas[3].PublicKey)
	for _, meta := range metas {
		require.False(t, meta.IsWritable)
		require.False(t, meta.IsSigner)
	}
}

func TestOpenPositionParamsValidate(t *testing.T) {
	valid := OpenPositionParams{
		Mint:             testBTCMint,
		CollateralMint:   testBTCMint,
		Price:            50_000_000_000,
		CollateralAmount: 1_000_000,
		Leverage:         40_000,
		Side:             SideLong,
	}
	require.NoError(t, valid.validate())

	p := valid
	p.CollateralAmount = 0
	require.ErrorIs(t, p.validate(), ErrInvalidParameters)

	p = valid
	p.Price = 0
	require.ErrorIs(t, p.validate(), ErrInvalidParameters)

	p = valid
	p.Side = Side(0)
	require.ErrorIs(t, p.validate(), ErrInvalidParameters)
}

func TestBuildOpenPositionAccounts(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	owner := mustKey(t)

	bundle, err := client.BuildOpenPosition(context.Background(), owner, OpenPositionParams{
		Mint:             testBTCMint,
		CollateralMint:   testBTCMint,
		Price:            50_000_000_000,
		CollateralAmount: 1_000_000,
		Leverage:         40_000,
		Side:             SideLong,
	})
	require.NoError(t, err)
	require.Len(t, bundle.Main, 1)
	require.Len(t, bundle.Pre, 1, "compute budget expected")

	ix := bundle.Main[0]
	require.Equal(t, client.book.ProgramID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 26)

	require.Equal(t, owner, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)

	custodyKey, _, err := client.CustodyByMint(testBTCMint)
	require.NoError(t, err)
	require.Equal(t, custodyKey, accounts[13].PublicKey)
	require.Equal(t, custodyKey, accounts[15].PublicKey, "long: collateral custody equals principal custody")

	position, err := client.book.PositionPDA(owner, custodyKey, SideLong)
	require.NoError(t, err)
	require.Equal(t, position, accounts[9].PublicKey)

	// No profile on the fake: optional account falls back to the program id.
	require.Equal(t, client.book.ProgramID, accounts[22].PublicKey)
}

func TestBuildOpenPositionAppliesSlippageBound(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	client.params.SlippageBps = 100
	owner := mustKey(t)

	bundle, err := client.BuildOpenPosition(context.Background(), owner, OpenPositionParams{
		Mint:             testBTCMint,
		CollateralMint:   testBTCMint,
		Price:            50_000_000_000,
		CollateralAmount: 1_000_000,
		Leverage:         40_000,
		Side:             SideLong,
	})
	require.NoError(t, err)

	data, err := bundle.Main[0].Data()
	require.NoError(t, err)

	want, err := encodeInstructionData("open_position", struct {
		Price      uint64
		Collateral uint64
		Leverage   uint32
		Side       uint8
	}{
		Price:      50_500_000_000,
		Collateral: 1_000_000,
		Leverage:   40_000,
		Side:       uint8(SideLong),
	})
	require.NoError(t, err)
	require.Equal(t, want, data)
}

func TestBuildOpenPositionRejectsUnknownMint(t *testing.T) {
	client := newTestClient(t, newFakeRPC())

	_, err := client.BuildOpenPosition(context.Background(), mustKey(t), OpenPositionParams{
		Mint:             mustKey(t),
		CollateralMint:   testBTCMint,
		Price:            1,
		CollateralAmount: 1,
		Side:             SideLong,
	})
	require.ErrorIs(t, err, ErrNotFound)
}
