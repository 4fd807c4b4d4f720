package perp

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Side is the direction of a perpetual position. The byte values feed
// directly into position PDA seeds.
type Side uint8

const (
	SideLong  Side = 1
	SideShort Side = 2
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func DerivePerpetualsPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("perpetuals")}, programID)
}

func DeriveTransferAuthorityPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("transfer_authority")}, programID)
}

func DeriveCortexPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("cortex")}, programID)
}

func DeriveLPTokenMintPDA(programID, pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("lp_token_mint"), pool.Bytes()}, programID)
}

func DeriveLMTokenMintPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("lm_token_mint")}, programID)
}

func DeriveGovernanceTokenMintPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("governance_token_mint")}, programID)
}

func DeriveCustodyPDA(programID, pool, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("custody"), pool.Bytes(), mint.Bytes()}, programID)
}

func DeriveCustodyTokenAccountPDA(programID, pool, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("custody_token_account"), pool.Bytes(), mint.Bytes()}, programID)
}

func DerivePositionPDA(programID, owner, pool, custody solana.PublicKey, side Side) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		[]byte("position"),
		owner.Bytes(),
		pool.Bytes(),
		custody.Bytes(),
		{uint8(side)},
	}, programID)
}

func DeriveStakingPDA(programID, stakedTokenMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("staking"), stakedTokenMint.Bytes()}, programID)
}

func DeriveUserStakingPDA(programID, owner, staking solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("user_staking"), owner.Bytes(), staking.Bytes()}, programID)
}

func DeriveStakingStakedTokenVaultPDA(programID, staking solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("staking_staked_token_vault"), staking.Bytes()}, programID)
}

func DeriveStakingRewardTokenVaultPDA(programID, staking solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("staking_reward_token_vault"), staking.Bytes()}, programID)
}

func DeriveStakingLMRewardTokenVaultPDA(programID, staking solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("staking_lm_reward_token_vault"), staking.Bytes()}, programID)
}

func DeriveUserProfilePDA(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("user_profile"), owner.Bytes()}, programID)
}

func DeriveVestRegistryPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("vest_registry")}, programID)
}

func DeriveVestPDA(programID, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("vest"), owner.Bytes()}, programID)
}

// DeriveThreadAuthorityPDA derives the per-user authority that owns the
// automation threads attached to a user staking account. Seeded off the
// trading program, not the automation program.
func DeriveThreadAuthorityPDA(programID, userStaking solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("user-staking-thread-authority"), userStaking.Bytes()}, programID)
}

// DeriveThreadPDA derives an automation thread address under the automation
// program for the given authority and numeric thread id.
func DeriveThreadPDA(automationProgramID, threadAuthority solana.PublicKey, threadID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		[]byte("thread"),
		threadAuthority.Bytes(),
		u64LE(threadID),
	}, automationProgramID)
}

func DeriveGovernanceRealmPDA(governanceProgramID solana.PublicKey, realmName string) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("governance"), []byte(realmName)}, governanceProgramID)
}

func DeriveGovernanceRealmConfigPDA(governanceProgramID, realm solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("realm-config"), realm.Bytes()}, governanceProgramID)
}

func DeriveGovernanceGoverningTokenHoldingPDA(governanceProgramID, realm, governingTokenMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		[]byte("governance"),
		realm.Bytes(),
		governingTokenMint.Bytes(),
	}, governanceProgramID)
}

func DeriveGovernanceTokenOwnerRecordPDA(governanceProgramID, realm, governingTokenMint, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		[]byte("governance"),
		realm.Bytes(),
		governingTokenMint.Bytes(),
		owner.Bytes(),
	}, governanceProgramID)
}

func MustDerivePositionPDA(programID, owner, pool, custody solana.PublicKey, side Side) solana.PublicKey {
	pk, _, err := DerivePositionPDA(programID, owner, pool, custody, side)
	if err != nil {
		panic(fmt.Errorf("derive position PDA: %w", err))
	}
	return pk
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
