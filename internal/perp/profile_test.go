package perp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateNickname(t *testing.T) {
	require.NoError(t, validateNickname("trader-one"))
	require.NoError(t, validateNickname(strings.Repeat("x", 24)))

	require.ErrorIs(t, validateNickname(""), ErrInvalidParameters)
	require.ErrorIs(t, validateNickname(strings.Repeat("x", 25)), ErrInvalidParameters)
	require.ErrorIs(t, validateNickname(string([]byte{0xff, 0xfe})), ErrInvalidParameters)
}

func TestValidateNicknameCountsRunesNotBytes(t *testing.T) {
	// 24 multibyte runes are fine even though the byte length exceeds 24.
	require.NoError(t, validateNickname(strings.Repeat("é", 24)))
	require.ErrorIs(t, validateNickname(strings.Repeat("é", 25)), ErrInvalidParameters)
}

func TestBuildInitUserProfileSponsorOptional(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	owner := mustKey(t)

	bundle, err := client.BuildInitUserProfile(owner, "trader", nil)
	require.NoError(t, err)
	require.Len(t, bundle.Main, 1)

	accounts := bundle.Main[0].Accounts()
	require.Len(t, accounts, 8)
	require.Equal(t, client.book.ProgramID, accounts[7].PublicKey, "absent sponsor passes the program id")

	sponsor := mustKey(t)
	bundle, err = client.BuildInitUserProfile(owner, "trader", &sponsor)
	require.NoError(t, err)
	require.Equal(t, sponsor, bundle.Main[0].Accounts()[7].PublicKey)
}

func TestBuildInitUserProfileRejectsBadNickname(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	_, err := client.BuildInitUserProfile(mustKey(t), "", nil)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestBuildEditUserProfile(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	owner := mustKey(t)

	bundle, err := client.BuildEditUserProfile(owner, "renamed")
	require.NoError(t, err)
	require.Len(t, bundle.Main, 1)
	require.Equal(t, instructionDiscriminator("edit_user_profile"), ixDiscriminator(t, bundle.Main[0]))

	profilePDA, err := client.book.UserProfilePDA(owner)
	require.NoError(t, err)
	require.Equal(t, profilePDA, bundle.Main[0].Accounts()[1].PublicKey)
}
