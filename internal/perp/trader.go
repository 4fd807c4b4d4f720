package perp

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Trader composes the read-only client with a signing capability. All
// mutating protocol operations live here; Client keeps the query surface.
type Trader struct {
	*Client
	signer    Signer
	submitter *Submitter
}

func NewTrader(client *Client, signer Signer, log *slog.Logger) *Trader {
	return &Trader{
		Client:    client,
		signer:    signer,
		submitter: NewSubmitter(client.rpc, signer, client.params, log),
	}
}

func (t *Trader) Owner() solana.PublicKey { return t.signer.PublicKey() }

func (t *Trader) submit(ctx context.Context, bundle *Bundle) (solana.Signature, error) {
	return t.submitter.Submit(ctx, bundle.Instructions())
}
