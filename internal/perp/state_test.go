package perp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePositionRoundTrip(t *testing.T) {
	owner := mustKey(t)
	pos := Position{
		Bump:          254,
		Side:          uint8(SideLong),
		Owner:         owner,
		Price:         50_000_000_000,
		SizeUsd:       1_000_000_000,
		CollateralUsd: 100_000_000,
		ExitFeeUsd:    1_600_000,
	}

	decoded, err := DecodePosition(encodeAccount(t, "Position", pos))
	require.NoError(t, err)
	require.Equal(t, pos.Owner, decoded.Owner)
	require.Equal(t, pos.Price, decoded.Price)
	require.Equal(t, pos.SizeUsd, decoded.SizeUsd)
	require.Equal(t, pos.ExitFeeUsd, decoded.ExitFeeUsd)
}

func TestDecodeRejectsWrongDiscriminator(t *testing.T) {
	data := encodeAccount(t, "Custody", Custody{})
	_, err := DecodePosition(data)
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeRejectsShortData(t *testing.T) {
	_, err := DecodePool([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeUserStakingRoundTrip(t *testing.T) {
	acc := UserStaking{
		StakesClaimCronThreadID: 1_700_000_000_000,
		LiquidStake:             LiquidStake{Amount: 5_000_000},
		LockedStakes: []LockedStake{
			{Amount: 1_000_000, Resolved: true, StakeResolutionThreadID: 42},
			{Amount: 2_000_000, EndTime: 1_800_000_000},
		},
	}

	decoded, err := DecodeUserStaking(encodeAccount(t, "UserStaking", acc))
	require.NoError(t, err)
	require.Equal(t, acc.StakesClaimCronThreadID, decoded.StakesClaimCronThreadID)
	require.Len(t, decoded.LockedStakes, 2)
	require.True(t, decoded.LockedStakes[0].Resolved)
	require.Equal(t, uint64(42), decoded.LockedStakes[0].StakeResolutionThreadID)
	require.False(t, decoded.LockedStakes[1].Resolved)
}

func TestLockedStakeElapsed(t *testing.T) {
	stake := LockedStake{EndTime: 1_000}
	require.False(t, stake.Elapsed(999))
	require.True(t, stake.Elapsed(1_000))

	var zero LockedStake
	require.False(t, zero.Elapsed(1_000))
}

func TestUserProfileInitialized(t *testing.T) {
	require.False(t, (&UserProfile{}).Initialized())
	require.True(t, (&UserProfile{CreatedAt: 1_690_000_000}).Initialized())
}
