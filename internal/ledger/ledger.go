package ledger

import (
	"context"
	"errors"
	"math"
)

// MinorUnitsPerBase is the ledger's 6-decimal minor-unit denomination
// (spec §4.1: "all external values are base-units, all ledger values are
// minor units; conversion occurs only in this adapter").
const MinorUnitsPerBase = 1_000_000

// Fee is the flat network fee, in base units, every spending service
// subtracts from a sender's required balance before submitting a
// transfer (spec §4.9 step 2 and throughout §4.10-§4.13).
const Fee = 0.001

// ToMinorUnits converts a base-unit amount to the integer minor units the
// ledger RPC expects.
func ToMinorUnits(base float64) int64 {
	return int64(math.Round(base * MinorUnitsPerBase))
}

// ToBaseUnits converts integer minor units back to a base-unit amount.
func ToBaseUnits(minor int64) float64 {
	return float64(minor) / MinorUnitsPerBase
}

// Holding is one asset balance entry returned by AccountAssets.
type Holding struct {
	AssetID int64
	Amount  int64
}

// PendingTxInfo is the confirmation status of a submitted transaction,
// used both by the confirmation-wait loop inside this package and by
// callers honoring §5's "never resubmit a payment whose earlier attempt
// has an unknown outcome without first polling pending_tx_info."
type PendingTxInfo struct {
	TxID           string
	Confirmed      bool
	ConfirmedRound uint64
	PoolError      string
}

// Account is the result of deriving a fresh custodial keypair.
type Account struct {
	Secret   string // implementation-private signing key material, base64
	Address  string // ledgeraddr-encoded public address
	Mnemonic string // human-recoverable phrase for the secret
}

// SubmissionError wraps a LedgerTransient failure that happened after a
// transaction was already signed and submitted to the node — a
// confirmation-wait timeout, or ctx cancellation mid-poll. TxID is the
// ledger's assigned id for that outcome-unknown attempt. Spec §5/§9
// forbid resubmitting a payment in this state without first consulting
// PendingTxInfo(TxID); callers that only check apperr.Kind still see
// LedgerTransient via Unwrap, but a caller that needs to reconcile
// should check for this type (see PendingTxIDFromError).
type SubmissionError struct {
	Err  error
	TxID string
}

func (e *SubmissionError) Error() string { return e.Err.Error() }
func (e *SubmissionError) Unwrap() error { return e.Err }

// PendingTxIDFromError extracts the submitted-but-unconfirmed tx id from
// err, if any. Used by callers (internal/payment) that must poll
// PendingTxInfo before deciding whether it's safe to resubmit.
func PendingTxIDFromError(err error) (string, bool) {
	var se *SubmissionError
	if !errors.As(err, &se) {
		return "", false
	}
	return se.TxID, true
}

// Adapter is the typed boundary every service call crosses to reach the
// external ledger, per spec §4.1. Every mutating method waits for
// confirmation before returning and maps ledger errors onto the §7
// taxonomy (apperr.LedgerTransient / apperr.LedgerFailure).
type Adapter interface {
	DeriveAccount(ctx context.Context) (Account, error)
	Balance(ctx context.Context, address string) (float64, error)
	SendPayment(ctx context.Context, secret, toAddress string, amount float64, note string) (txID string, err error)
	CreateNFT(ctx context.Context, secret, name, unit string, total uint64, metadataURL string) (assetID int64, err error)
	TransferAsset(ctx context.Context, secret, toAddress string, assetID int64, qty uint64) (txID string, err error)
	OptInAsset(ctx context.Context, secret string, assetID int64) (txID string, err error)
	AccountAssets(ctx context.Context, address string) ([]Holding, error)
	PendingTxInfo(ctx context.Context, txID string) (*PendingTxInfo, error)
}
