package perp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	defaultConfirmPollInterval = 700 * time.Millisecond
	defaultConfirmTimeout      = 60 * time.Second
)

// Submitter signs, broadcasts, and confirms transactions. It is the only
// place failures are classified: signer rejection carries no signature,
// everything after broadcast always does. It never retries; a stale
// blockhash is the caller's cue to rebuild and resubmit.
type Submitter struct {
	log          *slog.Logger
	rpc          RPC
	signer       Signer
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	timeout      time.Duration
}

func NewSubmitter(client RPC, signer Signer, params Params, log *slog.Logger) *Submitter {
	pollInterval := params.ConfirmationPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultConfirmPollInterval
	}
	timeout := params.ConfirmationTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	return &Submitter{
		log:          log,
		rpc:          client,
		signer:       signer,
		commitment:   params.Commitment,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Submit attaches a fresh blockhash and fee payer, signs, broadcasts, and
// waits for confirmation. Returns the signature on success; on failure the
// returned *TxError carries the signature once one was assigned.
func (s *Submitter) Submit(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	if s.signer == nil {
		return solana.Signature{}, newTxError(StageSign, solana.Signature{}, ErrNotReady)
	}

	recent, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		return solana.Signature{}, newTxError(StageBroadcast, solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err))
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(s.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, newTxError(StageBroadcast, solana.Signature{}, fmt.Errorf("build transaction: %w", err))
	}

	if err := s.signer.SignTransaction(tx); err != nil {
		return solana.Signature{}, newTxError(StageSign, solana.Signature{}, fmt.Errorf("%w: %v", ErrUserRejected, err))
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return solana.Signature{}, newTxError(StageBroadcast, solana.Signature{}, fmt.Errorf("broadcast: %w", err))
	}

	s.log.Info("transaction broadcast", "signature", sig)

	if err := s.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}

	s.log.Info("transaction confirmed", "signature", sig)
	return sig, nil
}

func (s *Submitter) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return newTxError(StageConfirm, sig, ctx.Err())
		case <-deadline.C:
			return newTxError(StageConfirm, sig, ErrConfirmationTimeout)
		case <-ticker.C:
			result, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return programTxError(StageConfirm, sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
