package perp

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPC is the slice of the rpc client this package consumes. *rpc.Client
// satisfies it; tests inject fakes.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
}

// Loader fetches and decodes on-chain accounts. Each call returns an
// independent snapshot; there is no shared cache to race on.
type Loader struct {
	rpc        RPC
	commitment rpc.CommitmentType
}

func NewLoader(client RPC, commitment rpc.CommitmentType) *Loader {
	return &Loader{rpc: client, commitment: commitment}
}

// FetchRaw returns the raw bytes of one account, or ErrNotFound when the
// account does not exist.
func (l *Loader) FetchRaw(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	resp, err := l.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: l.commitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
		}
		return nil, fmt.Errorf("fetch account %s: %w", address, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	return resp.Value.Data.GetBinary(), nil
}

// FetchRawMany returns raw bytes per address in the same order, with nil
// entries for accounts that do not exist.
func (l *Loader) FetchRawMany(ctx context.Context, addresses []solana.PublicKey) ([][]byte, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	resp, err := l.rpc.GetMultipleAccountsWithOpts(ctx, addresses, &rpc.GetMultipleAccountsOpts{Commitment: l.commitment})
	if err != nil {
		return nil, fmt.Errorf("fetch %d accounts: %w", len(addresses), err)
	}
	if len(resp.Value) != len(addresses) {
		return nil, fmt.Errorf("expected %d accounts, rpc returned %d", len(addresses), len(resp.Value))
	}
	out := make([][]byte, len(addresses))
	for i, acc := range resp.Value {
		if acc == nil {
			continue
		}
		out[i] = acc.Data.GetBinary()
	}
	return out, nil
}

// Exists reports whether the account is present at the loader's commitment.
func (l *Loader) Exists(ctx context.Context, address solana.PublicKey) (bool, error) {
	_, err := l.FetchRaw(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Loader) FetchPool(ctx context.Context, address solana.PublicKey) (*Pool, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodePool(data)
}

func (l *Loader) FetchCortex(ctx context.Context, address solana.PublicKey) (*Cortex, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodeCortex(data)
}

func (l *Loader) FetchVestRegistry(ctx context.Context, address solana.PublicKey) (*VestRegistry, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodeVestRegistry(data)
}

// FetchCustodies loads the pool's custody accounts preserving the pool's
// on-chain order. Every listed custody must exist.
func (l *Loader) FetchCustodies(ctx context.Context, pool *Pool) ([]*Custody, error) {
	raws, err := l.FetchRawMany(ctx, pool.Custodies)
	if err != nil {
		return nil, err
	}
	custodies := make([]*Custody, len(raws))
	for i, raw := range raws {
		if raw == nil {
			return nil, fmt.Errorf("%w: custody %s listed by pool but absent", ErrNotFound, pool.Custodies[i])
		}
		custody, err := DecodeCustody(raw)
		if err != nil {
			return nil, fmt.Errorf("custody %s: %w", pool.Custodies[i], err)
		}
		custodies[i] = custody
	}
	return custodies, nil
}

func (l *Loader) FetchStaking(ctx context.Context, address solana.PublicKey) (*Staking, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodeStaking(data)
}

// FetchUserStaking returns nil without error when the account does not
// exist, since user staking accounts are created lazily.
func (l *Loader) FetchUserStaking(ctx context.Context, address solana.PublicKey) (*UserStaking, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return DecodeUserStaking(data)
}

// FetchPositions decodes the given position addresses, skipping absent
// accounts. Returned entries carry their address alongside the state.
func (l *Loader) FetchPositions(ctx context.Context, addresses []solana.PublicKey) ([]LoadedPosition, error) {
	raws, err := l.FetchRawMany(ctx, addresses)
	if err != nil {
		return nil, err
	}
	positions := make([]LoadedPosition, 0, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		pos, err := DecodePosition(raw)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", addresses[i], err)
		}
		positions = append(positions, LoadedPosition{Address: addresses[i], State: pos})
	}
	return positions, nil
}

type LoadedPosition struct {
	Address solana.PublicKey
	State   *Position
}

// FetchVests loads the vest accounts listed by the vest registry, skipping
// entries that have been closed since the registry snapshot.
func (l *Loader) FetchVests(ctx context.Context, registry *VestRegistry) ([]LoadedVest, error) {
	raws, err := l.FetchRawMany(ctx, registry.Vests)
	if err != nil {
		return nil, err
	}
	vests := make([]LoadedVest, 0, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		vest, err := DecodeVest(raw)
		if err != nil {
			return nil, fmt.Errorf("vest %s: %w", registry.Vests[i], err)
		}
		vests = append(vests, LoadedVest{Address: registry.Vests[i], State: vest})
	}
	return vests, nil
}

type LoadedVest struct {
	Address solana.PublicKey
	State   *Vest
}

// FetchUserProfile distinguishes three outcomes: the account is missing
// (nil, ErrNotFound wrapped away as nil+false), exists but was never
// initialized (profile, false), or exists and is initialized (profile,
// true).
func (l *Loader) FetchUserProfile(ctx context.Context, address solana.PublicKey) (*UserProfile, bool, error) {
	data, err := l.FetchRaw(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	profile, err := DecodeUserProfile(data)
	if err != nil {
		return nil, false, err
	}
	return profile, profile.Initialized(), nil
}
