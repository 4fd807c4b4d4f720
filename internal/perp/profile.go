package perp

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

const maxNicknameLength = 24

func validateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("%w: empty nickname", ErrInvalidParameters)
	}
	if !utf8.ValidString(nickname) || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return fmt.Errorf("%w: nickname %q exceeds %d characters", ErrInvalidParameters, nickname, maxNicknameLength)
	}
	return nil
}

// BuildInitUserProfile creates the owner's profile account. sponsor is
// optional and recorded for referral attribution when set.
func (c *Client) BuildInitUserProfile(owner solana.PublicKey, nickname string, sponsor *solana.PublicKey) (*Bundle, error) {
	if err := validateNickname(nickname); err != nil {
		return nil, err
	}
	userProfile, err := c.book.UserProfilePDA(owner)
	if err != nil {
		return nil, err
	}

	sponsorMeta := solana.NewAccountMeta(c.book.ProgramID, false, false)
	if sponsor != nil {
		sponsorMeta = solana.NewAccountMeta(*sponsor, false, false)
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(c.book.Cortex, true, false),
		solana.NewAccountMeta(c.book.Perpetuals, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(userProfile, true, false),
		solana.NewAccountMeta(owner, true, true),
		sponsorMeta,
	}

	args := struct{ Nickname string }{Nickname: nickname}

	ix, err := newProgramInstruction(c.book.ProgramID, "init_user_profile", args, accounts)
	if err != nil {
		return nil, err
	}
	return &Bundle{Main: []solana.Instruction{ix}}, nil
}

// BuildEditUserProfile renames an existing profile.
func (c *Client) BuildEditUserProfile(owner solana.PublicKey, nickname string) (*Bundle, error) {
	if err := validateNickname(nickname); err != nil {
		return nil, err
	}
	userProfile, err := c.book.UserProfilePDA(owner)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(userProfile, true, false),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(owner, true, true),
	}

	args := struct{ Nickname string }{Nickname: nickname}

	ix, err := newProgramInstruction(c.book.ProgramID, "edit_user_profile", args, accounts)
	if err != nil {
		return nil, err
	}
	return &Bundle{Main: []solana.Instruction{ix}}, nil
}

// UserProfile loads the owner's profile. The second return is false when the
// account does not exist or was allocated but never initialized.
func (c *Client) UserProfile(ctx context.Context, owner solana.PublicKey) (*UserProfile, bool, error) {
	address, err := c.book.UserProfilePDA(owner)
	if err != nil {
		return nil, false, err
	}
	return c.loader.FetchUserProfile(ctx, address)
}

// InitUserProfile creates the caller's profile with the given nickname.
func (t *Trader) InitUserProfile(ctx context.Context, nickname string, sponsor *solana.PublicKey) (solana.Signature, error) {
	bundle, err := t.BuildInitUserProfile(t.Owner(), nickname, sponsor)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}

// EditUserProfile updates the caller's profile nickname.
func (t *Trader) EditUserProfile(ctx context.Context, nickname string) (solana.Signature, error) {
	bundle, err := t.BuildEditUserProfile(t.Owner(), nickname)
	if err != nil {
		return solana.Signature{}, err
	}
	return t.submit(ctx, bundle)
}
