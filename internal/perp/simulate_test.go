package perp

import (
	"context"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

func TestSimulateForReturnDataNoPayloadIsFatal(t *testing.T) {
	fake := newFakeRPC()
	fake.simResp = &rpc.SimulateTransactionResponse{Value: &rpc.SimulateTransactionResult{}}
	client := newTestClient(t, fake)

	ix, err := newProgramInstruction(client.book.ProgramID, "get_lp_token_price", nil, solana.AccountMetaSlice{
		solana.NewAccountMeta(client.book.Pool, false, false),
	})
	require.NoError(t, err)

	_, err = client.simulateForReturnData(context.Background(), []solana.Instruction{ix})
	require.ErrorIs(t, err, ErrNoReturnData)

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageSimulate, txErr.Stage)
	require.True(t, txErr.Signature.IsZero())
}

func TestSimulateForReturnDataProgramError(t *testing.T) {
	fake := newFakeRPC()
	fake.simResp = &rpc.SimulateTransactionResponse{Value: &rpc.SimulateTransactionResult{
		Err: map[string]any{"InstructionError": []any{float64(0), map[string]any{"Custom": float64(6001)}}},
	}}
	client := newTestClient(t, fake)

	ix, err := newProgramInstruction(client.book.ProgramID, "get_lp_token_price", nil, solana.AccountMetaSlice{
		solana.NewAccountMeta(client.book.Pool, false, false),
	})
	require.NoError(t, err)

	_, err = client.simulateForReturnData(context.Background(), []solana.Instruction{ix})

	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, StageSimulate, txErr.Stage)
	require.Equal(t, int64(6001), txErr.Code)
}

func TestSimulateForReturnDataDecodes(t *testing.T) {
	payload, err := bin.MarshalBorsh(ExitPriceAndFee{Price: 49_000_000_000, Fee: 16_000})
	require.NoError(t, err)

	fake := newFakeRPC()
	fake.simResp = &rpc.SimulateTransactionResponse{Value: &rpc.SimulateTransactionResult{
		ReturnData: &rpc.ReturnData{Data: solana.Data{Content: payload}},
	}}
	client := newTestClient(t, fake)

	ix, err := newProgramInstruction(client.book.ProgramID, "get_exit_price_and_fee", nil, solana.AccountMetaSlice{
		solana.NewAccountMeta(client.book.Pool, false, false),
	})
	require.NoError(t, err)

	raw, err := client.simulateForReturnData(context.Background(), []solana.Instruction{ix})
	require.NoError(t, err)

	var out ExitPriceAndFee
	require.NoError(t, decodeReturnData(raw, &out))
	require.Equal(t, uint64(49_000_000_000), out.Price)
	require.Equal(t, uint64(16_000), out.Fee)
}

func TestViewPayerDefaultsToPool(t *testing.T) {
	client := newTestClient(t, newFakeRPC())
	require.Equal(t, client.book.Pool, client.viewPayer())

	payer := mustKey(t)
	client.params.ViewPayer = payer
	require.Equal(t, payer, client.viewPayer())
}

func TestDecodeReturnDataMismatch(t *testing.T) {
	var out ExitPriceAndFee
	err := decodeReturnData([]byte{1, 2}, &out)
	require.ErrorIs(t, err, ErrDecode)
}
