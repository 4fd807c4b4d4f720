package perp

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNotReady indicates a required capability (rpc handle, signer) is
	// absent for the requested operation.
	ErrNotReady = errors.New("client not ready")

	// ErrNotFound indicates an expected on-chain account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrDecode indicates the on-chain byte layout did not match the
	// expected account schema.
	ErrDecode = errors.New("account decode mismatch")

	// ErrInvalidParameters indicates caller-supplied business parameters
	// violate an operation precondition.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrInvalidLeverageState indicates a leverage computation with a
	// non-positive denominator (collateral + pnl <= 0).
	ErrInvalidLeverageState = errors.New("invalid leverage state")

	// ErrUserRejected indicates the wallet declined to sign.
	ErrUserRejected = errors.New("user rejected signing")

	// ErrNoReturnData indicates a view simulation succeeded but produced
	// no return payload. This is a contract violation, not a retryable
	// condition.
	ErrNoReturnData = errors.New("view returned no data")

	// ErrConfirmationTimeout indicates the transaction was broadcast but
	// confirmation was not observed in time. The transaction may still
	// land later.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// TxStage identifies where in the submit pipeline a failure occurred.
type TxStage string

const (
	StageSimulate  TxStage = "simulate"
	StageSign      TxStage = "sign"
	StageBroadcast TxStage = "broadcast"
	StageConfirm   TxStage = "confirm"
)

// TxError is a classified transaction failure. Signature is the zero value
// until broadcast assigns one; after broadcast it is always populated so
// callers can look the transaction up even on failure.
type TxError struct {
	Stage     TxStage
	Signature solana.Signature
	// ProgramErr is the raw on-chain error payload as reported by the
	// rpc node, when the failure is a program failure.
	ProgramErr any
	// Code is the program-specific custom error code, when one could be
	// extracted from ProgramErr. Negative when unknown.
	Code int64
	Err  error
}

func (e *TxError) Error() string {
	if e.Signature.IsZero() {
		return fmt.Sprintf("transaction %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("transaction %s failed (sig %s): %v", e.Stage, e.Signature, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

func newTxError(stage TxStage, sig solana.Signature, err error) *TxError {
	return &TxError{Stage: stage, Signature: sig, Code: -1, Err: err}
}

// customErrorCode digs the custom program error code out of the structures
// the rpc layer reports for failed transactions, e.g.
// map[InstructionError:[2 map[Custom:6004]]]. Returns -1 when no custom
// code is present.
func customErrorCode(programErr any) int64 {
	m, ok := programErr.(map[string]any)
	if !ok {
		return -1
	}
	inner, ok := m["InstructionError"].([]any)
	if !ok || len(inner) != 2 {
		return -1
	}
	detail, ok := inner[1].(map[string]any)
	if !ok {
		return -1
	}
	switch code := detail["Custom"].(type) {
	case float64:
		return int64(code)
	case int64:
		return code
	case uint64:
		return int64(code)
	default:
		return -1
	}
}

func programTxError(stage TxStage, sig solana.Signature, programErr any) *TxError {
	return &TxError{
		Stage:      stage,
		Signature:  sig,
		ProgramErr: programErr,
		Code:       customErrorCode(programErr),
		Err:        fmt.Errorf("program error: %v", programErr),
	}
}
