package perp

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestDerivePositionPDADeterministic(t *testing.T) {
	programID := mustKey(t)
	owner := mustKey(t)
	pool := mustKey(t)
	custody := mustKey(t)

	first, bump1, err := DerivePositionPDA(programID, owner, pool, custody, SideLong)
	require.NoError(t, err)
	second, bump2, err := DerivePositionPDA(programID, owner, pool, custody, SideLong)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, bump1, bump2)
}

func TestDerivePositionPDASidesDiffer(t *testing.T) {
	programID := mustKey(t)
	owner := mustKey(t)
	pool := mustKey(t)
	custody := mustKey(t)

	long, _, err := DerivePositionPDA(programID, owner, pool, custody, SideLong)
	require.NoError(t, err)
	short, _, err := DerivePositionPDA(programID, owner, pool, custody, SideShort)
	require.NoError(t, err)

	require.NotEqual(t, long, short)
}

func TestDerivePositionPDAOwnersDiffer(t *testing.T) {
	programID := mustKey(t)
	pool := mustKey(t)
	custody := mustKey(t)

	a, _, err := DerivePositionPDA(programID, mustKey(t), pool, custody, SideLong)
	require.NoError(t, err)
	b, _, err := DerivePositionPDA(programID, mustKey(t), pool, custody, SideLong)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestDeriveThreadPDAIDSensitive(t *testing.T) {
	automation := mustKey(t)
	authority := mustKey(t)

	a, _, err := DeriveThreadPDA(automation, authority, 1)
	require.NoError(t, err)
	b, _, err := DeriveThreadPDA(automation, authority, 2)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestDeriveCustodyPDAPerMint(t *testing.T) {
	programID := mustKey(t)
	pool := mustKey(t)

	usdc, _, err := DeriveCustodyPDA(programID, pool, testUSDCMint)
	require.NoError(t, err)
	btc, _, err := DeriveCustodyPDA(programID, pool, testBTCMint)
	require.NoError(t, err)

	require.NotEqual(t, usdc, btc)

	tokenAccount, _, err := DeriveCustodyTokenAccountPDA(programID, pool, testUSDCMint)
	require.NoError(t, err)
	require.NotEqual(t, usdc, tokenAccount)
}

func TestSideString(t *testing.T) {
	require.Equal(t, "long", SideLong.String())
	require.Equal(t, "short", SideShort.String())
	require.Equal(t, "side(9)", Side(9).String())
}

func TestNewAddressBookGovernanceOptional(t *testing.T) {
	params := testParams(t)
	params.GovernanceProgramID = solana.PublicKey{}

	book, err := NewAddressBook(params)
	require.NoError(t, err)
	require.True(t, book.GovernanceRealm.IsZero())
	require.False(t, book.Perpetuals.IsZero())
	require.False(t, book.LMStaking.IsZero())
}
