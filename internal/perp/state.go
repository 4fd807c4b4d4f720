package perp

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Account schemas mirror the on-chain program's borsh layouts. Every account
// starts with an 8-byte anchor discriminator derived from the account name.

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var disc [8]byte
	copy(disc[:], sum[:8])
	return disc
}

// Perpetuals is the program root account.
type Perpetuals struct {
	PermissionlessPoolCreation bool
	PermissionlessOracle       bool
	AllowSwap                  bool
	AllowAddLiquidity          bool
	AllowRemoveLiquidity       bool
	AllowOpenPosition          bool
	AllowClosePosition         bool
	AllowPnlWithdrawal         bool
	AllowCollateralWithdrawal  bool
	AllowSizeChange            bool
	TransferAuthorityBump      uint8
	PerpetualsBump             uint8
	InceptionTime              int64
	Admin                      solana.PublicKey
	Pools                      []solana.PublicKey
}

// Cortex tracks protocol-wide accounting and governance wiring.
type Cortex struct {
	Bump                     uint8
	LmTokenBump              uint8
	GovernanceTokenBump      uint8
	InceptionTime            int64
	Admin                    solana.PublicKey
	FeeConversionDecimals    uint8
	LmTokenMint              solana.PublicKey
	GovernanceProgram        solana.PublicKey
	GovernanceRealm          solana.PublicKey
	CoreContributorBucket    BucketState
	FoundationBucket         BucketState
	EcosystemBucket          BucketState
	PoolsCount               uint64
	UserProfilesCount        uint64
}

type BucketState struct {
	Allocation uint64
	Minted     uint64
}

// VestRegistry lists every vest account plus the aggregate vesting amount.
type VestRegistry struct {
	Vests              []solana.PublicKey
	VestingTokenAmount uint64
	Bump               uint8
}

// Pool is the singleton liquidity pool. Custodies is order significant: the
// program validates remaining-accounts lists against this exact order.
type Pool struct {
	Bump            uint8
	LpTokenBump     uint8
	NbStableCustody uint8
	Initialized     bool
	AllowTrade      bool
	AllowSwap       bool
	LiquidityState  uint8
	RegisteredCustodyCount uint8
	Name            string
	Custodies       []solana.PublicKey
	AumUsd          bin.Uint128
	AumSoftCapUsd   bin.Uint128
	InceptionTime   int64
	WhitelistedSwapper solana.PublicKey
}

// Custody holds one token's share of pool liquidity plus its risk and fee
// configuration and per-side trade statistics.
type Custody struct {
	Bump             uint8
	TokenAccountBump uint8
	Pool             solana.PublicKey
	Mint             solana.PublicKey
	TokenAccount     solana.PublicKey
	Decimals         uint8
	IsStable         bool
	Oracle           OracleParams
	Pricing          PricingParams
	Fees             FeeParams
	BorrowRate       BorrowRateParams
	Assets           AssetsState
	CollectedFees    FeeStats
	VolumeStats      VolumeStats
	TradeStats       TradeStats
	LongPositions    PositionsAggregate
	ShortPositions   PositionsAggregate
	BorrowRateState  BorrowRateState
}

type OracleParams struct {
	OracleAccount solana.PublicKey
	OracleType    uint8
	MaxPriceError uint64
	MaxPriceAgeSec uint32
}

type PricingParams struct {
	UseEma                            bool
	UseUnrealizedPnlInAum             bool
	TradeSpreadLong                   uint16
	TradeSpreadShort                  uint16
	SwapSpread                        uint16
	MinInitialLeverage                uint32
	MaxInitialLeverage                uint32
	MaxLeverage                       uint32
	MaxPositionLockedUsd              uint64
	MaxCumulativeShortPositionSizeUsd uint64
}

// FeeParams holds fee rates in basis points.
type FeeParams struct {
	SwapIn          uint16
	SwapOut         uint16
	StableSwapIn    uint16
	StableSwapOut   uint16
	AddLiquidity    uint16
	RemoveLiquidity uint16
	OpenPosition    uint16
	ClosePosition   uint16
	Liquidation     uint16
	FeeMax          uint16
}

type BorrowRateParams struct {
	MaxHourlyBorrowInterestRate uint64
}

type AssetsState struct {
	Collateral   uint64
	Owned        uint64
	Locked       uint64
	ProtocolFees uint64
}

// FeeStats and VolumeStats are USD-scaled running totals per operation kind.
type FeeStats struct {
	SwapUsd            uint64
	AddLiquidityUsd    uint64
	RemoveLiquidityUsd uint64
	OpenPositionUsd    uint64
	ClosePositionUsd   uint64
	LiquidationUsd     uint64
	BorrowUsd          uint64
}

type VolumeStats struct {
	SwapUsd            uint64
	AddLiquidityUsd    uint64
	RemoveLiquidityUsd uint64
	OpenPositionUsd    uint64
	ClosePositionUsd   uint64
	LiquidationUsd     uint64
}

type TradeStats struct {
	ProfitUsd uint64
	LossUsd   uint64
	OiLongUsd uint64
	OiShortUsd uint64
}

// PositionsAggregate is the per-side rollup of all open positions on a
// custody.
type PositionsAggregate struct {
	OpenPositions              uint64
	CollateralUsd              uint64
	SizeUsd                    uint64
	BorrowSizeUsd              uint64
	LockedAmount               uint64
	WeightedPrice              bin.Uint128
	TotalQuantity              bin.Uint128
	CumulativeInterestUsd      uint64
	CumulativeInterestSnapshot bin.Uint128
}

type BorrowRateState struct {
	CurrentRate        uint64
	CumulativeInterest bin.Uint128
	LastUpdate         int64
}

// Position is one open position; at most one per (owner, custody, side).
type Position struct {
	Bump                       uint8
	Side                       uint8
	Owner                      solana.PublicKey
	Pool                       solana.PublicKey
	Custody                    solana.PublicKey
	CollateralCustody          solana.PublicKey
	OpenTime                   int64
	UpdateTime                 int64
	Price                      uint64
	SizeUsd                    uint64
	BorrowSizeUsd              uint64
	CollateralUsd              uint64
	UnrealizedInterestUsd      uint64
	CumulativeInterestSnapshot bin.Uint128
	LockedAmount               uint64
	CollateralAmount           uint64
	ExitFeeUsd                 uint64
	LiquidationFeeUsd          uint64
	StopLossIsSet              bool
	StopLossLimitPrice         uint64
	StopLossClosePositionPrice uint64
	TakeProfitIsSet            bool
	TakeProfitLimitPrice       uint64
}

// Staking is one per stakeable token mint.
type Staking struct {
	StakingType              uint8
	Bump                     uint8
	StakedTokenVaultBump     uint8
	RewardTokenVaultBump     uint8
	LmRewardTokenVaultBump   uint8
	NbLockedTokens           uint64
	NbLiquidTokens           uint64
	StakedTokenMint          solana.PublicKey
	StakedTokenDecimals      uint8
	RewardTokenMint          solana.PublicKey
	RewardTokenDecimals      uint8
	ResolvedRewardTokenAmount uint64
	ResolvedStakedTokenAmount uint64
	ResolvedLmRewardTokenAmount uint64
	ResolvedLmStakedTokenAmount uint64
	RoundsCount              uint64
}

// LiquidStake is the unlocked stake bucket on a UserStaking account.
type LiquidStake struct {
	Amount        uint64
	StakeTime     int64
	ClaimTime     int64
	OverlapTime   int64
	OverlapAmount uint64
}

// LockedStake is one duration-locked stake entry. Resolved flips once the
// resolution job (or an explicit finalize) has run after EndTime.
type LockedStake struct {
	Amount                      uint64
	StakeTime                   int64
	ClaimTime                   int64
	EndTime                     int64
	LockDuration                uint64
	RewardMultiplier            uint32
	LmRewardMultiplier          uint32
	VoteMultiplier              uint32
	AmountWithRewardMultiplier  uint64
	AmountWithLmRewardMultiplier uint64
	Resolved                    bool
	StakeResolutionThreadID     uint64
}

// Elapsed reports whether the lock window has passed at the given unix time.
func (s *LockedStake) Elapsed(now int64) bool {
	return s.EndTime > 0 && now >= s.EndTime
}

// UserStaking is one per (owner, staking) pair.
type UserStaking struct {
	Bump                   uint8
	ThreadAuthorityBump    uint8
	StakesClaimCronThreadID uint64
	LiquidStake            LiquidStake
	LockedStakes           []LockedStake
}

// Vest is a token release schedule, read-only for this engine.
type Vest struct {
	Amount               uint64
	UnlockStartTimestamp int64
	UnlockEndTimestamp   int64
	ClaimedAmount        uint64
	LastClaimTimestamp   int64
	Owner                solana.PublicKey
	Bump                 uint8
}

// TradeRecord is the per-side lifetime trading rollup on a user profile.
type TradeRecord struct {
	OpenedPositionCount     uint64
	LiquidatedPositionCount uint64
	OpeningAverageLeverage  uint64
	OpeningSizeUsd          uint64
	ProfitsUsd              uint64
	LossesUsd               uint64
	FeePaidUsd              uint64
}

// UserProfile is an optional per-owner account. CreatedAt of zero means the
// account exists on-chain but was never initialized.
type UserProfile struct {
	Bump             uint8
	CreatedAt        int64
	Owner            solana.PublicKey
	Nickname         string
	SwapCount        uint64
	SwapVolumeUsd    uint64
	SwapFeePaidUsd   uint64
	ShortStats       TradeRecord
	LongStats        TradeRecord
}

// Initialized reports whether the profile was ever set up. An existing but
// uninitialized profile must not be treated as missing.
func (p *UserProfile) Initialized() bool { return p.CreatedAt != 0 }

func decodeAccount(data []byte, name string, out any) error {
	disc := accountDiscriminator(name)
	if len(data) < len(disc) {
		return fmt.Errorf("%w: %s account too short (%d bytes)", ErrDecode, name, len(data))
	}
	if [8]byte(data[:8]) != disc {
		return fmt.Errorf("%w: %s discriminator mismatch", ErrDecode, name)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrDecode, name, err)
	}
	return nil
}

func DecodePerpetuals(data []byte) (*Perpetuals, error) {
	var acc Perpetuals
	if err := decodeAccount(data, "Perpetuals", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeCortex(data []byte) (*Cortex, error) {
	var acc Cortex
	if err := decodeAccount(data, "Cortex", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeVestRegistry(data []byte) (*VestRegistry, error) {
	var acc VestRegistry
	if err := decodeAccount(data, "VestRegistry", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodePool(data []byte) (*Pool, error) {
	var acc Pool
	if err := decodeAccount(data, "Pool", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeCustody(data []byte) (*Custody, error) {
	var acc Custody
	if err := decodeAccount(data, "Custody", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodePosition(data []byte) (*Position, error) {
	var acc Position
	if err := decodeAccount(data, "Position", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeStaking(data []byte) (*Staking, error) {
	var acc Staking
	if err := decodeAccount(data, "Staking", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeUserStaking(data []byte) (*UserStaking, error) {
	var acc UserStaking
	if err := decodeAccount(data, "UserStaking", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeVest(data []byte) (*Vest, error) {
	var acc Vest
	if err := decodeAccount(data, "Vest", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func DecodeUserProfile(data []byte) (*UserProfile, error) {
	var acc UserProfile
	if err := decodeAccount(data, "UserProfile", &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}
