package perp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Params is everything needed to address the deployed program set. All PDAs
// are derived from these once at construction.
type Params struct {
	ProgramID           solana.PublicKey
	Pool                solana.PublicKey
	GovernanceProgramID solana.PublicKey
	GovernanceRealmName string
	AutomationProgramID solana.PublicKey
	StakesClaimPayer    solana.PublicKey

	// ViewPayer is the funded account used as the simulated fee payer for
	// view calls. Defaults to the pool account.
	ViewPayer solana.PublicKey

	Commitment rpc.CommitmentType

	// SlippageBps bounds the entry/exit price passed to position
	// instructions. The right value is a risk decision, so it is
	// caller-supplied rather than baked in.
	SlippageBps uint64

	// ComputeUnitPriceMicroLamports, when non-zero, attaches a priority
	// fee instruction to every transaction.
	ComputeUnitPriceMicroLamports uint64

	// ConfirmationPollInterval and ConfirmationTimeout shape the
	// post-broadcast wait. Zero values fall back to defaults.
	ConfirmationPollInterval time.Duration
	ConfirmationTimeout      time.Duration

	Tokens []Token
}

// AddressBook carries every fixed address the instruction builders need,
// derived once. Per-entity addresses (positions, user staking, profiles)
// stay as methods since they depend on the caller.
type AddressBook struct {
	ProgramID           solana.PublicKey
	GovernanceProgramID solana.PublicKey
	AutomationProgramID solana.PublicKey
	StakesClaimPayer    solana.PublicKey

	Pool              solana.PublicKey
	Perpetuals        solana.PublicKey
	TransferAuthority solana.PublicKey
	Cortex            solana.PublicKey
	VestRegistry      solana.PublicKey
	LPTokenMint       solana.PublicKey
	LMTokenMint       solana.PublicKey
	GovernanceTokenMint solana.PublicKey

	LMStaking               solana.PublicKey
	LMStakingStakedVault    solana.PublicKey
	LMStakingRewardVault    solana.PublicKey
	LMStakingLMRewardVault  solana.PublicKey
	LPStaking               solana.PublicKey
	LPStakingStakedVault    solana.PublicKey
	LPStakingRewardVault    solana.PublicKey
	LPStakingLMRewardVault  solana.PublicKey

	GovernanceRealm         solana.PublicKey
	GovernanceRealmConfig   solana.PublicKey
	GovernanceTokenHolding  solana.PublicKey
}

func NewAddressBook(p Params) (*AddressBook, error) {
	book := &AddressBook{
		ProgramID:           p.ProgramID,
		GovernanceProgramID: p.GovernanceProgramID,
		AutomationProgramID: p.AutomationProgramID,
		StakesClaimPayer:    p.StakesClaimPayer,
		Pool:                p.Pool,
	}

	derive := func(name string, fn func() (solana.PublicKey, uint8, error), dst *solana.PublicKey) error {
		pk, _, err := fn()
		if err != nil {
			return fmt.Errorf("derive %s: %w", name, err)
		}
		*dst = pk
		return nil
	}

	steps := []struct {
		name string
		fn   func() (solana.PublicKey, uint8, error)
		dst  *solana.PublicKey
	}{
		{"perpetuals", func() (solana.PublicKey, uint8, error) { return DerivePerpetualsPDA(p.ProgramID) }, &book.Perpetuals},
		{"transfer authority", func() (solana.PublicKey, uint8, error) { return DeriveTransferAuthorityPDA(p.ProgramID) }, &book.TransferAuthority},
		{"cortex", func() (solana.PublicKey, uint8, error) { return DeriveCortexPDA(p.ProgramID) }, &book.Cortex},
		{"vest registry", func() (solana.PublicKey, uint8, error) { return DeriveVestRegistryPDA(p.ProgramID) }, &book.VestRegistry},
		{"lp token mint", func() (solana.PublicKey, uint8, error) { return DeriveLPTokenMintPDA(p.ProgramID, p.Pool) }, &book.LPTokenMint},
		{"lm token mint", func() (solana.PublicKey, uint8, error) { return DeriveLMTokenMintPDA(p.ProgramID) }, &book.LMTokenMint},
		{"governance token mint", func() (solana.PublicKey, uint8, error) { return DeriveGovernanceTokenMintPDA(p.ProgramID) }, &book.GovernanceTokenMint},
	}
	for _, step := range steps {
		if err := derive(step.name, step.fn, step.dst); err != nil {
			return nil, err
		}
	}

	if err := derive("lm staking", func() (solana.PublicKey, uint8, error) {
		return DeriveStakingPDA(p.ProgramID, book.LMTokenMint)
	}, &book.LMStaking); err != nil {
		return nil, err
	}
	if err := derive("lp staking", func() (solana.PublicKey, uint8, error) {
		return DeriveStakingPDA(p.ProgramID, book.LPTokenMint)
	}, &book.LPStaking); err != nil {
		return nil, err
	}

	vaults := []struct {
		name string
		fn   func() (solana.PublicKey, uint8, error)
		dst  *solana.PublicKey
	}{
		{"lm staked vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingStakedTokenVaultPDA(p.ProgramID, book.LMStaking) }, &book.LMStakingStakedVault},
		{"lm reward vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingRewardTokenVaultPDA(p.ProgramID, book.LMStaking) }, &book.LMStakingRewardVault},
		{"lm lm-reward vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingLMRewardTokenVaultPDA(p.ProgramID, book.LMStaking) }, &book.LMStakingLMRewardVault},
		{"lp staked vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingStakedTokenVaultPDA(p.ProgramID, book.LPStaking) }, &book.LPStakingStakedVault},
		{"lp reward vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingRewardTokenVaultPDA(p.ProgramID, book.LPStaking) }, &book.LPStakingRewardVault},
		{"lp lm-reward vault", func() (solana.PublicKey, uint8, error) { return DeriveStakingLMRewardTokenVaultPDA(p.ProgramID, book.LPStaking) }, &book.LPStakingLMRewardVault},
	}
	for _, step := range vaults {
		if err := derive(step.name, step.fn, step.dst); err != nil {
			return nil, err
		}
	}

	if !p.GovernanceProgramID.IsZero() && p.GovernanceRealmName != "" {
		if err := derive("governance realm", func() (solana.PublicKey, uint8, error) {
			return DeriveGovernanceRealmPDA(p.GovernanceProgramID, p.GovernanceRealmName)
		}, &book.GovernanceRealm); err != nil {
			return nil, err
		}
		if err := derive("realm config", func() (solana.PublicKey, uint8, error) {
			return DeriveGovernanceRealmConfigPDA(p.GovernanceProgramID, book.GovernanceRealm)
		}, &book.GovernanceRealmConfig); err != nil {
			return nil, err
		}
		if err := derive("governing token holding", func() (solana.PublicKey, uint8, error) {
			return DeriveGovernanceGoverningTokenHoldingPDA(p.GovernanceProgramID, book.GovernanceRealm, book.GovernanceTokenMint)
		}, &book.GovernanceTokenHolding); err != nil {
			return nil, err
		}
	}

	return book, nil
}

func (b *AddressBook) CustodyPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveCustodyPDA(b.ProgramID, b.Pool, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive custody for %s: %w", mint, err)
	}
	return pk, nil
}

func (b *AddressBook) CustodyTokenAccountPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveCustodyTokenAccountPDA(b.ProgramID, b.Pool, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive custody token account for %s: %w", mint, err)
	}
	return pk, nil
}

func (b *AddressBook) PositionPDA(owner, custody solana.PublicKey, side Side) (solana.PublicKey, error) {
	pk, _, err := DerivePositionPDA(b.ProgramID, owner, b.Pool, custody, side)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s position for %s: %w", side, owner, err)
	}
	return pk, nil
}

func (b *AddressBook) UserStakingPDA(owner, staking solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveUserStakingPDA(b.ProgramID, owner, staking)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive user staking for %s: %w", owner, err)
	}
	return pk, nil
}

func (b *AddressBook) UserProfilePDA(owner solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveUserProfilePDA(b.ProgramID, owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive user profile for %s: %w", owner, err)
	}
	return pk, nil
}

func (b *AddressBook) ThreadAuthorityPDA(userStaking solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveThreadAuthorityPDA(b.ProgramID, userStaking)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive thread authority: %w", err)
	}
	return pk, nil
}

func (b *AddressBook) ThreadPDA(threadAuthority solana.PublicKey, threadID uint64) (solana.PublicKey, error) {
	pk, _, err := DeriveThreadPDA(b.AutomationProgramID, threadAuthority, threadID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive thread %d: %w", threadID, err)
	}
	return pk, nil
}

func (b *AddressBook) GovernanceOwnerRecordPDA(owner solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := DeriveGovernanceTokenOwnerRecordPDA(b.GovernanceProgramID, b.GovernanceRealm, b.GovernanceTokenMint, owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token owner record for %s: %w", owner, err)
	}
	return pk, nil
}

// Client is the read-only query capability: it can derive, load, and quote,
// but never sign. Trader composes it with a signer for the mutating
// operations.
type Client struct {
	log    *slog.Logger
	rpc    RPC
	loader *Loader
	book   *AddressBook
	tokens *TokenSet
	params Params

	pool      *Pool
	custodies []*Custody
}

// NewClient derives the address book, loads the pool and its custodies, and
// cross-checks the configured token set against the custody list.
func NewClient(ctx context.Context, params Params, client RPC, log *slog.Logger) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: rpc client missing", ErrNotReady)
	}
	book, err := NewAddressBook(params)
	if err != nil {
		return nil, err
	}
	for i := range params.Tokens {
		if params.Tokens[i].Custody.IsZero() {
			custody, err := book.CustodyPDA(params.Tokens[i].Mint)
			if err != nil {
				return nil, err
			}
			params.Tokens[i].Custody = custody
		}
	}
	tokens, err := NewTokenSet(params.Tokens)
	if err != nil {
		return nil, err
	}

	c := &Client{
		log:    log,
		rpc:    client,
		loader: NewLoader(client, params.Commitment),
		book:   book,
		tokens: tokens,
		params: params,
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh reloads the pool and custody snapshot. Concurrent readers keep
// the snapshot they already hold.
func (c *Client) Refresh(ctx context.Context) error {
	pool, err := c.loader.FetchPool(ctx, c.book.Pool)
	if err != nil {
		return fmt.Errorf("load pool %s: %w", c.book.Pool, err)
	}
	custodies, err := c.loader.FetchCustodies(ctx, pool)
	if err != nil {
		return fmt.Errorf("load custodies: %w", err)
	}
	c.pool = pool
	c.custodies = custodies
	c.log.Info("pool snapshot loaded",
		"pool", c.book.Pool,
		"custodies", len(custodies),
	)
	return nil
}

func (c *Client) Book() *AddressBook { return c.book }
func (c *Client) Tokens() *TokenSet  { return c.tokens }
func (c *Client) Loader() *Loader    { return c.loader }
func (c *Client) Pool() *Pool        { return c.pool }
func (c *Client) Custodies() []*Custody {
	return c.custodies
}

// Stats recomputes the pool aggregates from the current snapshot.
func (c *Client) Stats() PoolStats {
	return ComputePoolStats(c.pool, c.custodies)
}

// CustodyByAddress resolves a custody from the snapshot by its PDA.
func (c *Client) CustodyByAddress(address solana.PublicKey) (*Custody, error) {
	for i, key := range c.pool.Custodies {
		if key.Equals(address) {
			return c.custodies[i], nil
		}
	}
	return nil, fmt.Errorf("%w: custody %s not in pool", ErrNotFound, address)
}

// CustodyByMint resolves a custody from the snapshot by its token mint.
func (c *Client) CustodyByMint(mint solana.PublicKey) (solana.PublicKey, *Custody, error) {
	for i, custody := range c.custodies {
		if custody.Mint.Equals(mint) {
			return c.pool.Custodies[i], custody, nil
		}
	}
	return solana.PublicKey{}, nil, fmt.Errorf("%w: no custody for mint %s", ErrNotFound, mint)
}

// StableCustody returns the custody shorts must use as collateral.
func (c *Client) StableCustody() (solana.PublicKey, *Custody, error) {
	stable, err := c.tokens.Stable()
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return c.CustodyByMint(stable.Mint)
}

// custodiesRemainingAccounts is the single ordering authority for every
// remaining-accounts list: custodies in pool order, then their oracles in
// the same order. All builders that pass the custody set go through here.
func (c *Client) custodiesRemainingAccounts() solana.AccountMetaSlice {
	metas := make(solana.AccountMetaSlice, 0, len(c.custodies)*2)
	for i := range c.custodies {
		metas = append(metas, solana.NewAccountMeta(c.pool.Custodies[i], false, false))
	}
	for _, custody := range c.custodies {
		metas = append(metas, solana.NewAccountMeta(custody.Oracle.OracleAccount, false, false))
	}
	return metas
}

func (c *Client) slippageBps() uint64 {
	if c.params.SlippageBps == 0 {
		return 30
	}
	return c.params.SlippageBps
}
