package perp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// fakeRPC serves canned accounts and responses so builders and the submit
// pipeline can run without a node.
type fakeRPC struct {
	accounts map[solana.PublicKey][]byte

	blockhashErr error
	sendSig      solana.Signature
	sendErr      error
	sendCalls    int

	// statuses is consumed one entry per GetSignatureStatuses poll; once
	// drained the last entry repeats.
	statuses [][]*rpc.SignatureStatusesResult

	simResp *rpc.SimulateTransactionResponse
	simErr  error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{accounts: make(map[solana.PublicKey][]byte)}
}

func (f *fakeRPC) setAccount(address solana.PublicKey, data []byte) {
	f.accounts[address] = data
}

func (f *fakeRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	wrapped := rpc.DataBytesOrJSONFromBytes(data)
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: wrapped}}, nil
}

func (f *fakeRPC) GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error) {
	out := make([]*rpc.Account, len(accounts))
	for i, address := range accounts {
		data, ok := f.accounts[address]
		if !ok {
			continue
		}
		wrapped := rpc.DataBytesOrJSONFromBytes(data)
		out[i] = &rpc.Account{Data: wrapped}
	}
	return &rpc.GetMultipleAccountsResult{Value: out}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1}, LastValidBlockHeight: 100},
	}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	return f.sendSig, nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if len(f.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	next := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &rpc.GetSignatureStatusesResult{Value: next}, nil
}

func (f *fakeRPC) SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	if f.simErr != nil {
		return nil, f.simErr
	}
	if f.simResp != nil {
		return f.simResp, nil
	}
	return &rpc.SimulateTransactionResponse{Value: &rpc.SimulateTransactionResult{}}, nil
}

// fakeSigner signs nothing and optionally rejects.
type fakeSigner struct {
	key    solana.PrivateKey
	reject bool
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &fakeSigner{key: key}
}

func (s *fakeSigner) PublicKey() solana.PublicKey { return s.key.PublicKey() }

func (s *fakeSigner) SignTransaction(tx *solana.Transaction) error {
	if s.reject {
		return errors.New("rejected by wallet")
	}
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.key.PublicKey().Equals(key) {
			return &s.key
		}
		return nil
	})
	return err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// encodeAccount produces on-chain bytes for an account struct: the 8-byte
// discriminator followed by the borsh payload.
func encodeAccount(t *testing.T, name string, acc any) []byte {
	t.Helper()
	disc := accountDiscriminator(name)
	buf := append([]byte{}, disc[:]...)
	payload, err := bin.MarshalBorsh(acc)
	require.NoError(t, err)
	return append(buf, payload...)
}

func mustKey(t *testing.T) solana.PublicKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey()
}

var (
	testUSDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	testBTCMint  = solana.MustPublicKeyFromBase58("9n4nbM75f5Ui33ZbPYXn59EwSgE8CGsHtAeTH5YFeJ9E")
)

func testParams(t *testing.T) Params {
	t.Helper()
	return Params{
		ProgramID:           mustKey(t),
		Pool:                mustKey(t),
		GovernanceProgramID: mustKey(t),
		GovernanceRealmName: "TestRealm",
		AutomationProgramID: mustKey(t),
		StakesClaimPayer:    mustKey(t),
		Tokens: []Token{
			{Mint: testUSDCMint, Symbol: "USDC", Decimals: 6, IsStable: true},
			{Mint: testBTCMint, Symbol: "BTC", Decimals: 6},
		},
	}
}

// newTestClient wires a Client against the fake without going through
// NewClient, building the pool snapshot in memory.
func newTestClient(t *testing.T, fake *fakeRPC) *Client {
	t.Helper()
	params := testParams(t)

	book, err := NewAddressBook(params)
	require.NoError(t, err)

	custodyKeys := make([]solana.PublicKey, len(params.Tokens))
	custodies := make([]*Custody, len(params.Tokens))
	for i := range params.Tokens {
		key, err := book.CustodyPDA(params.Tokens[i].Mint)
		require.NoError(t, err)
		params.Tokens[i].Custody = key
		custodyKeys[i] = key
		custodies[i] = &Custody{
			Pool:     params.Pool,
			Mint:     params.Tokens[i].Mint,
			Decimals: params.Tokens[i].Decimals,
			IsStable: params.Tokens[i].IsStable,
			Oracle:   OracleParams{OracleAccount: mustKey(t)},
			Fees: FeeParams{
				SwapIn:        100,
				SwapOut:       100,
				StableSwapIn:  10,
				StableSwapOut: 10,
				OpenPosition:  100,
				ClosePosition: 100,
			},
			Pricing: PricingParams{MaxLeverage: 1_000_000},
		}
	}

	tokens, err := NewTokenSet(params.Tokens)
	require.NoError(t, err)

	return &Client{
		log:    testLogger(),
		rpc:    fake,
		loader: NewLoader(fake, rpc.CommitmentConfirmed),
		book:   book,
		tokens: tokens,
		params: params,
		pool: &Pool{
			Initialized: true,
			Name:        "test-pool",
			Custodies:   custodyKeys,
		},
		custodies: custodies,
	}
}
