package perp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

func testInstructions(t *testing.T, from solana.PublicKey) []solana.Instruction {
	t.Helper()
	return []solana.Instruction{
		system.NewTransferInstruction(1, from, mustKey(t)).Build(),
	}
}

func newTestSubmitter(fake *fakeRPC, signer Signer) *Submitter {
	return NewSubmitter(fake, signer, Params{
		Commitment:               rpc.CommitmentConfirmed,
		ConfirmationPollInterval: time.Millisecond,
		ConfirmationTimeout:      50 * time.Millisecond,
	}, testLogger())
}

func TestSubmitRejectionCarriesNoSignature(t *testing.T) {
	signer := newFakeSigner(t)
	signer.reject = true
	fake := newFakeRPC()
	submitter := newTestSubmitter(fake, signer)

	_, err := submitter.Submit(context.Background(), testInstructions(t, signer.PublicKey()))
	require.ErrorIs(t, err, ErrUserRejected)

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageSign, txErr.Stage)
	require.True(t, txErr.Signature.IsZero())
	require.Zero(t, fake.sendCalls, "rejected transactions must not be broadcast")
}

func TestSubmitBroadcastFailure(t *testing.T) {
	signer := newFakeSigner(t)
	fake := newFakeRPC()
	fake.sendErr = errors.New("node unavailable")
	submitter := newTestSubmitter(fake, signer)

	_, err := submitter.Submit(context.Background(), testInstructions(t, signer.PublicKey()))

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageBroadcast, txErr.Stage)
	require.True(t, txErr.Signature.IsZero())
}

func TestSubmitConfirms(t *testing.T) {
	signer := newFakeSigner(t)
	fake := newFakeRPC()
	fake.sendSig = solana.Signature{42}
	fake.statuses = [][]*rpc.SignatureStatusesResult{
		{nil}, // first poll: not yet visible
		{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}},
	}
	submitter := newTestSubmitter(fake, signer)

	sig, err := submitter.Submit(context.Background(), testInstructions(t, signer.PublicKey()))
	require.NoError(t, err)
	require.Equal(t, fake.sendSig, sig)
}

func TestSubmitProgramFailureCarriesSignatureAndCode(t *testing.T) {
	signer := newFakeSigner(t)
	fake := newFakeRPC()
	fake.sendSig = solana.Signature{7}
	fake.statuses = [][]*rpc.SignatureStatusesResult{
		{{
			ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
			Err:                map[string]any{"InstructionError": []any{float64(2), map[string]any{"Custom": float64(6004)}}},
		}},
	}
	submitter := newTestSubmitter(fake, signer)

	_, err := submitter.Submit(context.Background(), testInstructions(t, signer.PublicKey()))

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageConfirm, txErr.Stage)
	require.Equal(t, fake.sendSig, txErr.Signature)
	require.Equal(t, int64(6004), txErr.Code)
}

func TestSubmitConfirmationTimeoutCarriesSignature(t *testing.T) {
	signer := newFakeSigner(t)
	fake := newFakeRPC()
	fake.sendSig = solana.Signature{9}
	// No statuses configured: every poll sees a pending transaction.
	submitter := newTestSubmitter(fake, signer)

	sig, err := submitter.Submit(context.Background(), testInstructions(t, signer.PublicKey()))
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	require.Equal(t, fake.sendSig, sig)

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageConfirm, txErr.Stage)
	require.Equal(t, fake.sendSig, txErr.Signature)
}

func TestSubmitNoSigner(t *testing.T) {
	submitter := NewSubmitter(newFakeRPC(), nil, Params{}, testLogger())
	_, err := submitter.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestCustomErrorCode(t *testing.T) {
	require.Equal(t, int64(6004), customErrorCode(map[string]any{
		"InstructionError": []any{float64(2), map[string]any{"Custom": float64(6004)}},
	}))
	require.Equal(t, int64(-1), customErrorCode("AccountNotFound"))
	require.Equal(t, int64(-1), customErrorCode(map[string]any{"InstructionError": []any{float64(2)}}))
	require.Equal(t, int64(-1), customErrorCode(nil))
}
