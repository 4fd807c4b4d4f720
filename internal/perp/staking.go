package perp

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// stakingAddresses groups the fixed addresses of one staking side (staked
// governance token or staked pool-share token).
type stakingAddresses struct {
	staking       solana.PublicKey
	stakedVault   solana.PublicKey
	rewardVault   solana.PublicKey
	lmRewardVault solana.PublicKey
}

// stakingForMint resolves which staking side a staked mint belongs to. Only
// the two protocol mints can be staked.
func (c *Client) stakingForMint(stakedMint solana.PublicKey) (stakingAddresses, error) {
	switch {
	case stakedMint.Equals(c.book.LMTokenMint):
		return stakingAddresses{
			staking:       c.book.LMStaking,
			stakedVault:   c.book.LMStakingStakedVault,
			rewardVault:   c.book.LMStakingRewardVault,
			lmRewardVault: c.book.LMStakingLMRewardVault,
		}, nil
	case stakedMint.Equals(c.book.LPTokenMint):
		return stakingAddresses{
			staking:       c.book.LPStaking,
			stakedVault:   c.book.LPStakingStakedVault,
			rewardVault:   c.book.LPStakingRewardVault,
			lmRewardVault: c.book.LPStakingLMRewardVault,
		}, nil
	default:
		return stakingAddresses{}, fmt.Errorf("%w: mint %s is not stakeable", ErrInvalidParameters, stakedMint)
	}
}

// userStakingContext is everything the staking builders need that depends on
// the (owner, staked mint) pair: the derived addresses plus the loaded user
// staking account, which is nil until first use.
type userStakingContext struct {
	stakingAddresses
	userStaking     solana.PublicKey
	threadAuthority solana.PublicKey
	account         *UserStaking
}

func (c *Client) loadUserStakingContext(ctx context.Context, owner, stakedMint solana.PublicKey) (*userStakingContext, error) {
	addrs, err := c.stakingForMint(stakedMint)
	if err != nil {
		return nil, err
	}
	userStaking, err := c.book.UserStakingPDA(owner, addrs.staking)
	if err != nil {
		return nil, err
	}
	threadAuthority, err := c.book.ThreadAuthorityPDA(userStaking)
	if err != nil {
		return nil, err
	}
	account, err := c.loader.FetchUserStaking(ctx, userStaking)
	if err != nil {
		return nil, err
	}
	return &userStakingContext{
		stakingAddresses: addrs,
		userStaking:      userStaking,
		threadAuthority:  threadAuthority,
		account:          account,
	}, nil
}

// cronThreadID is the automation thread id used for the recurrent claim job:
// the one recorded on the account once it exists, a fresh wall-clock id for
// the account being created in the same transaction.
func (sc *userStakingContext) cronThreadID(fresh uint64) uint64 {
	if sc.account != nil {
		return sc.account.StakesClaimCronThreadID
	}
	return fresh
}

func newThreadID() uint64 {
	return uint64(time.Now().UnixMilli())
}

// UserStakingAccount loads the owner's staking account for the given staked
// mint. Returns nil when the owner never staked that mint.
func (c *Client) UserStakingAccount(ctx context.Context, owner, stakedMint solana.PublicKey) (*UserStaking, error) {
	addrs, err := c.stakingForMint(stakedMint)
	if err != nil {
		return nil, err
	}
	userStaking, err := c.book.UserStakingPDA(owner, addrs.staking)
	if err != nil {
		return nil, err
	}
	return c.loader.FetchUserStaking(ctx, userStaking)
}

// StakingAccount loads the protocol-wide staking state for a staked mint.
func (c *Client) StakingAccount(ctx context.Context, stakedMint solana.PublicKey) (*Staking, error) {
	addrs, err := c.stakingForMint(stakedMint)
	if err != nil {
		return nil, err
	}
	return c.loader.FetchStaking(ctx, addrs.staking)
}

// initUserStakingInstructions builds the lazy account setup that precedes a
// first stake: reward and staked token accounts when missing, then
// init_user_staking registering the recurrent claim thread.
func (c *Client) initUserStakingInstructions(ctx context.Context, owner, stakedMint solana.PublicKey, sc *userStakingContext, threadID uint64) ([]solana.Instruction, error) {
	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}

	var ixs []solana.Instruction
	rewardTokenAccount, createRewardIx, err := c.ensureTokenAccount(ctx, owner, owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	if createRewardIx != nil {
		ixs = append(ixs, createRewardIx)
	}
	_, createStakedIx, err := c.ensureTokenAccount(ctx, owner, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	if createStakedIx != nil {
		ixs = append(ixs, createStakedIx)
	}

	lmTokenAccount, err := associatedTokenAccount(owner, c.book.LMTokenMint)
	if err != nil {
		return nil, err
	}
	stakesClaimCronThread, err := c.book.ThreadPDA(sc.threadAuthority, threadID)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(lmTokenAccount, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(sc.lmRewardVault, true, false),
		solana.NewAccountMeta(sc.threadAuthority, false, false),
		solana.NewAccountMeta(stakesClaimCronThread, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.StakesClaimPayer, true, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(c.book.AutomationProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	args := struct {
		StakesClaimCronThreadID uint64
	}{StakesClaimCronThreadID: threadID}

	ix, err := newProgramInstruction(c.book.ProgramID, "init_user_staking", args, accounts)
	if err != nil {
		return nil, err
	}
	return append(ixs, ix), nil
}

// BuildAddLiquidStake assembles an unlocked stake of amount of stakedMint.
// First-time stakers get the account setup prepended in the same bundle.
func (c *Client) BuildAddLiquidStake(ctx context.Context, owner, stakedMint solana.PublicKey, amount uint64) (*Bundle, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero stake amount", ErrInvalidParameters)
	}
	sc, err := c.loadUserStakingContext(ctx, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}
	threadID := newThreadID()
	if sc.account == nil {
		ixs, err := c.initUserStakingInstructions(ctx, owner, stakedMint, sc, threadID)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, ixs...)
	} else {
		for _, mint := range []solana.PublicKey{stable.Mint, stakedMint} {
			_, createIx, err := c.ensureTokenAccount(ctx, owner, owner, mint)
			if err != nil {
				return nil, err
			}
			if createIx != nil {
				bundle.Pre = append(bundle.Pre, createIx)
			}
		}
	}

	fundingAccount, err := associatedTokenAccount(owner, stakedMint)
	if err != nil {
		return nil, err
	}
	rewardTokenAccount, err := associatedTokenAccount(owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	lmTokenAccount, err := associatedTokenAccount(owner, c.book.LMTokenMint)
	if err != nil {
		return nil, err
	}
	stakesClaimCronThread, err := c.book.ThreadPDA(sc.threadAuthority, sc.cronThreadID(threadID))
	if err != nil {
		return nil, err
	}
	ownerRecord, err := c.book.GovernanceOwnerRecordPDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(lmTokenAccount, true, false),
		solana.NewAccountMeta(sc.stakedVault, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(sc.lmRewardVault, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(stakesClaimCronThread, true, false),
		solana.NewAccountMeta(sc.threadAuthority, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceTokenMint, true, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealm, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealmConfig, false, false),
		solana.NewAccountMeta(c.book.GovernanceTokenHolding, true, false),
		solana.NewAccountMeta(ownerRecord, true, false),
		solana.NewAccountMeta(c.book.AutomationProgramID, false, false),
		solana.NewAccountMeta(c.book.GovernanceProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	args := struct{ Amount uint64 }{Amount: amount}

	ix, err := newProgramInstruction(c.book.ProgramID, "add_liquid_stake", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	if err := bundle.prependBudget(cuAddLiquidStake, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// BuildAddLockedStake assembles a duration-locked stake. A resolution thread
// id is minted per stake so the automation program can settle it at expiry.
func (c *Client) BuildAddLockedStake(ctx context.Context, owner, stakedMint solana.PublicKey, amount uint64, lockedDays uint32) (*Bundle, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero stake amount", ErrInvalidParameters)
	}
	sc, err := c.loadUserStakingContext(ctx, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}
	threadID := newThreadID()
	if sc.account == nil {
		ixs, err := c.initUserStakingInstructions(ctx, owner, stakedMint, sc, threadID)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, ixs...)
	} else {
		for _, mint := range []solana.PublicKey{stable.Mint, stakedMint} {
			_, createIx, err := c.ensureTokenAccount(ctx, owner, owner, mint)
			if err != nil {
				return nil, err
			}
			if createIx != nil {
				bundle.Pre = append(bundle.Pre, createIx)
			}
		}
	}

	fundingAccount, err := associatedTokenAccount(owner, stakedMint)
	if err != nil {
		return nil, err
	}
	rewardTokenAccount, err := associatedTokenAccount(owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	stakeResolutionThreadID := newThreadID()
	stakeResolutionThread, err := c.book.ThreadPDA(sc.threadAuthority, stakeResolutionThreadID)
	if err != nil {
		return nil, err
	}
	stakesClaimCronThread, err := c.book.ThreadPDA(sc.threadAuthority, sc.cronThreadID(threadID))
	if err != nil {
		return nil, err
	}
	ownerRecord, err := c.book.GovernanceOwnerRecordPDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(fundingAccount, true, false),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(sc.stakedVault, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceTokenMint, true, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealm, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealmConfig, false, false),
		solana.NewAccountMeta(c.book.GovernanceTokenHolding, true, false),
		solana.NewAccountMeta(ownerRecord, true, false),
		solana.NewAccountMeta(stakeResolutionThread, true, false),
		solana.NewAccountMeta(stakesClaimCronThread, true, false),
		solana.NewAccountMeta(sc.threadAuthority, false, false),
		solana.NewAccountMeta(c.book.AutomationProgramID, false, false),
		solana.NewAccountMeta(c.book.GovernanceProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	args := struct {
		StakeResolutionThreadID uint64
		Amount                  uint64
		LockedDays              uint32
	}{
		StakeResolutionThreadID: stakeResolutionThreadID,
		Amount:                  amount,
		LockedDays:              lockedDays,
	}

	ix, err := newProgramInstruction(c.book.ProgramID, "add_locked_stake", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	return bundle, nil
}

// BuildRemoveLiquidStake assembles an unstake of amount from the unlocked
// bucket. The user staking account must already exist.
func (c *Client) BuildRemoveLiquidStake(ctx context.Context, owner, stakedMint solana.PublicKey, amount uint64) (*Bundle, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero unstake amount", ErrInvalidParameters)
	}
	sc, err := c.loadUserStakingContext(ctx, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	if sc.account == nil {
		return nil, fmt.Errorf("%w: no staking account for %s", ErrNotFound, owner)
	}
	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}

	stakedTokenAccount, err := associatedTokenAccount(owner, stakedMint)
	if err != nil {
		return nil, err
	}
	rewardTokenAccount, err := associatedTokenAccount(owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	lmTokenAccount, err := associatedTokenAccount(owner, c.book.LMTokenMint)
	if err != nil {
		return nil, err
	}
	stakesClaimCronThread, err := c.book.ThreadPDA(sc.threadAuthority, sc.account.StakesClaimCronThreadID)
	if err != nil {
		return nil, err
	}
	ownerRecord, err := c.book.GovernanceOwnerRecordPDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(lmTokenAccount, true, false),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(stakesClaimCronThread, true, false),
		solana.NewAccountMeta(sc.stakedVault, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(sc.lmRewardVault, true, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(sc.threadAuthority, false, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceRealm, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealmConfig, false, false),
		solana.NewAccountMeta(c.book.GovernanceTokenHolding, true, false),
		solana.NewAccountMeta(ownerRecord, true, false),
		solana.NewAccountMeta(c.book.AutomationProgramID, false, false),
		solana.NewAccountMeta(c.book.GovernanceProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(stakedTokenAccount, true, false),
	}

	args := struct{ Amount uint64 }{Amount: amount}

	ix, err := newProgramInstruction(c.book.ProgramID, "remove_liquid_stake", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Main: []solana.Instruction{ix}}
	if err := bundle.prependBudget(cuRemoveLiquidStake, c.params.ComputeUnitPriceMicroLamports); err != nil {
		return nil, err
	}
	return bundle, nil
}

// finalizeLockedStakeInstruction settles one elapsed locked stake by thread
// id, standing in for the automation job when it has not run.
func (c *Client) finalizeLockedStakeInstruction(owner solana.PublicKey, sc *userStakingContext, threadID uint64) (solana.Instruction, error) {
	caller, err := c.book.ThreadPDA(sc.threadAuthority, sc.account.StakesClaimCronThreadID)
	if err != nil {
		return nil, err
	}
	ownerRecord, err := c.book.GovernanceOwnerRecordPDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(caller, false, false),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceRealm, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealmConfig, false, false),
		solana.NewAccountMeta(c.book.GovernanceTokenHolding, true, false),
		solana.NewAccountMeta(ownerRecord, true, false),
		solana.NewAccountMeta(c.book.GovernanceProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	args := struct{ ThreadID uint64 }{ThreadID: threadID}

	return newProgramInstruction(c.book.ProgramID, "finalize_locked_stake", args, accounts)
}

// BuildRemoveLockedStake assembles the withdrawal of one locked stake by
// index. An elapsed but unresolved stake is finalized in the same bundle so
// withdrawal never waits on the automation job.
func (c *Client) BuildRemoveLockedStake(ctx context.Context, owner, stakedMint solana.PublicKey, lockedStakeIndex uint32) (*Bundle, error) {
	sc, err := c.loadUserStakingContext(ctx, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	if sc.account == nil {
		return nil, fmt.Errorf("%w: no staking account for %s", ErrNotFound, owner)
	}
	if int(lockedStakeIndex) >= len(sc.account.LockedStakes) {
		return nil, fmt.Errorf("%w: locked stake index %d out of range", ErrInvalidParameters, lockedStakeIndex)
	}
	stake := sc.account.LockedStakes[lockedStakeIndex]

	bundle := &Bundle{}
	if !stake.Resolved {
		finalizeIx, err := c.finalizeLockedStakeInstruction(owner, sc, stake.StakeResolutionThreadID)
		if err != nil {
			return nil, err
		}
		bundle.Pre = append(bundle.Pre, finalizeIx)
	}

	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}
	rewardTokenAccount, err := associatedTokenAccount(owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	lmTokenAccount, err := associatedTokenAccount(owner, c.book.LMTokenMint)
	if err != nil {
		return nil, err
	}
	stakesClaimCronThread, err := c.book.ThreadPDA(sc.threadAuthority, sc.account.StakesClaimCronThreadID)
	if err != nil {
		return nil, err
	}
	ownerRecord, err := c.book.GovernanceOwnerRecordPDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(lmTokenAccount, true, false),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(stakesClaimCronThread, true, false),
		solana.NewAccountMeta(sc.stakedVault, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(sc.lmRewardVault, true, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(sc.threadAuthority, false, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceTokenMint, true, false),
		solana.NewAccountMeta(c.book.GovernanceRealm, false, false),
		solana.NewAccountMeta(c.book.GovernanceRealmConfig, false, false),
		solana.NewAccountMeta(c.book.GovernanceTokenHolding, true, false),
		solana.NewAccountMeta(ownerRecord, true, false),
		solana.NewAccountMeta(c.book.AutomationProgramID, false, false),
		solana.NewAccountMeta(c.book.GovernanceProgramID, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	args := struct{ LockedStakeIndex uint32 }{LockedStakeIndex: lockedStakeIndex}

	ix, err := newProgramInstruction(c.book.ProgramID, "remove_locked_stake", args, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	return bundle, nil
}

// BuildClaimStakes assembles a reward claim for the owner's staking account.
// Reward and governance-token receiving accounts are created when missing.
func (c *Client) BuildClaimStakes(ctx context.Context, owner, stakedMint solana.PublicKey) (*Bundle, error) {
	sc, err := c.loadUserStakingContext(ctx, owner, stakedMint)
	if err != nil {
		return nil, err
	}
	if sc.account == nil {
		return nil, fmt.Errorf("%w: no staking account for %s", ErrNotFound, owner)
	}
	stable, err := c.tokens.Stable()
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{}
	rewardTokenAccount, createRewardIx, err := c.ensureTokenAccount(ctx, owner, owner, stable.Mint)
	if err != nil {
		return nil, err
	}
	if createRewardIx != nil {
		bundle.Pre = append(bundle.Pre, createRewardIx)
	}
	lmTokenAccount, createLMIx, err := c.ensureTokenAccount(ctx, owner, owner, c.book.LMTokenMint)
	if err != nil {
		return nil, err
	}
	if createLMIx != nil {
		bundle.Pre = append(bundle.Pre, createLMIx)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(rewardTokenAccount, true, false),
		solana.NewAccountMeta(lmTokenAccount, true, false),
		solana.NewAccountMeta(sc.rewardVault, true, false),
		solana.NewAccountMeta(sc.lmRewardVault, true, false),
		solana.NewAccountMeta(c.book.TransferAuthority, false, false),
		solana.NewAccountMeta(sc.userStaking, true, false),
		solana.NewAccountMeta(sc.staking, true, false),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(c.book.LMTokenMint, true, false),
		solana.NewAccountMeta(stable.Mint, false, false),
		solana.NewAccountMeta(c.book.ProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	ix, err := newProgramInstruction(c.book.ProgramID, "claim_stakes", nil, accounts)
	if err != nil {
		return nil, err
	}
	bundle.Main = append(bundle.Main, ix)
	return bundle, nil
}

// AddLiquidStake stakes amount of stakedMint without a lock.
func (t *Trader) AddLiquidStake(ctx context.Context, stakedMint solana.PublicKey, amount uint64) (solana.Signature, error) {
	bundle, err := t.BuildAddLiquidStake(ctx, t.Owner(), stakedMint, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// AddLockedStake stakes amount of stakedMint for lockedDays.
func (t *Trader) AddLockedStake(ctx context.Context, stakedMint solana.PublicKey, amount uint64, lockedDays uint32) (solana.Signature, error) {
	bundle, err := t.BuildAddLockedStake(ctx, t.Owner(), stakedMint, amount, lockedDays)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// RemoveLiquidStake unstakes amount from the unlocked bucket.
func (t *Trader) RemoveLiquidStake(ctx context.Context, stakedMint solana.PublicKey, amount uint64) (solana.Signature, error) {
	bundle, err := t.BuildRemoveLiquidStake(ctx, t.Owner(), stakedMint, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// RemoveLockedStake withdraws the locked stake at the given index.
func (t *Trader) RemoveLockedStake(ctx context.Context, stakedMint solana.PublicKey, lockedStakeIndex uint32) (solana.Signature, error) {
	bundle, err := t.BuildRemoveLockedStake(ctx, t.Owner(), stakedMint, lockedStakeIndex)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// ClaimStakes collects pending staking rewards.
func (t *Trader) ClaimStakes(ctx context.Context, stakedMint solana.PublicKey) (solana.Signature, error) {
	bundle, err := t.BuildClaimStakes(ctx, t.Owner(), stakedMint)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}
