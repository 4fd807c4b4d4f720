package perp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeInstructionDataNilArgs(t *testing.T) {
	data, err := encodeInstructionData("claim_stakes", nil)
	require.NoError(t, err)
	require.Len(t, data, 8)
}

func TestEncodeInstructionDataAppendsArgs(t *testing.T) {
	args := struct{ Amount uint64 }{Amount: 123}
	data, err := encodeInstructionData("add_liquid_stake", args)
	require.NoError(t, err)
	require.Len(t, data, 16)
	require.Equal(t, byte(123), data[8])

	// Discriminator depends only on the instruction name.
	other, err := encodeInstructionData("add_liquid_stake", struct{ Amount uint64 }{Amount: 456})
	require.NoError(t, err)
	require.Equal(t, data[:8], other[:8])

	different, err := encodeInstructionData("remove_liquid_stake", args)
	require.NoError(t, err)
	require.NotEqual(t, data[:8], different[:8])
}

func TestBundleInstructionOrder(t *testing.T) {
	signer := newFakeSigner(t)
	pre := testInstructions(t, signer.PublicKey())
	main := testInstructions(t, signer.PublicKey())
	post := testInstructions(t, signer.PublicKey())

	bundle := &Bundle{Pre: pre, Main: main, Post: post}
	all := bundle.Instructions()
	require.Len(t, all, 3)
	require.Equal(t, pre[0], all[0])
	require.Equal(t, main[0], all[1])
	require.Equal(t, post[0], all[2])
}

func TestPrependBudget(t *testing.T) {
	signer := newFakeSigner(t)
	bundle := &Bundle{Main: testInstructions(t, signer.PublicKey())}

	require.NoError(t, bundle.prependBudget(600_000, 5_000))
	require.Len(t, bundle.Pre, 2, "limit and price instructions expected")

	bundle = &Bundle{Main: testInstructions(t, signer.PublicKey())}
	require.NoError(t, bundle.prependBudget(600_000, 0))
	require.Len(t, bundle.Pre, 1, "price instruction skipped when unset")

	bundle = &Bundle{Main: testInstructions(t, signer.PublicKey())}
	require.NoError(t, bundle.prependBudget(0, 0))
	require.Empty(t, bundle.Pre)
}

func TestProfileRefMeta(t *testing.T) {
	programID := mustKey(t)
	profile := mustKey(t)

	absent := WithoutProfile().meta(programID)
	require.Equal(t, programID, absent.PublicKey)
	require.False(t, absent.IsWritable)

	present := WithProfile(profile).meta(programID)
	require.Equal(t, profile, present.PublicKey)
	require.True(t, present.IsWritable)
	require.False(t, present.IsSigner)
}
