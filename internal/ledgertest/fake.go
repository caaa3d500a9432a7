// Package ledgertest is an in-memory ledger.Adapter stand-in for
// integration tests that need a real Postgres but can't reach a real
// ledger node. It implements the same balance/transfer/asset semantics
// the HTTP adapter does, just held in a map instead of over the wire.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/ledgeraddr"
)

type Fake struct {
	mu        sync.Mutex
	balances  map[string]float64
	holdings  map[string][]ledger.Holding
	nextAsset int64
	FailNext  bool // when true, the next DeriveAccount, SendPayment or CreateNFT call returns a LedgerTransient error once
}

func New() *Fake {
	return &Fake{
		balances: make(map[string]float64),
		holdings: make(map[string][]ledger.Holding),
	}
}

// Fund directly credits address, for test setup.
func (f *Fake) Fund(address string, amount float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] += amount
}

func (f *Fake) consumeFailure() bool {
	if f.FailNext {
		f.FailNext = false
		return true
	}
	return false
}

func (f *Fake) DeriveAccount(ctx context.Context) (ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeFailure() {
		return ledger.Account{}, apperr.LedgerTransient(fmt.Errorf("simulated derive failure"))
	}
	secret := uuid.New().String()
	addr := fakeAddress(secret)
	return ledger.Account{Secret: secret, Address: addr, Mnemonic: "fake mnemonic"}, nil
}

func (f *Fake) Balance(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *Fake) SendPayment(ctx context.Context, secret, toAddress string, amount float64, note string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeFailure() {
		return "", apperr.LedgerTransient(fmt.Errorf("simulated send failure"))
	}
	from := fakeAddress(secret)
	if f.balances[from] < amount+ledger.Fee {
		return "", apperr.InsufficientBalance("fake ledger: insufficient balance")
	}
	f.balances[from] -= amount + ledger.Fee
	f.balances[toAddress] += amount
	return uuid.New().String(), nil
}

func (f *Fake) CreateNFT(ctx context.Context, secret, name, unit string, total uint64, metadataURL string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeFailure() {
		return 0, apperr.LedgerTransient(fmt.Errorf("simulated mint failure"))
	}
	f.nextAsset++
	from := fakeAddress(secret)
	f.holdings[from] = append(f.holdings[from], ledger.Holding{AssetID: f.nextAsset, Amount: int64(total)})
	return f.nextAsset, nil
}

func (f *Fake) TransferAsset(ctx context.Context, secret, toAddress string, assetID int64, qty uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := fakeAddress(secret)
	holdings := f.holdings[from]
	for i, h := range holdings {
		if h.AssetID == assetID && h.Amount >= int64(qty) {
			holdings[i].Amount -= int64(qty)
			f.holdings[toAddress] = append(f.holdings[toAddress], ledger.Holding{AssetID: assetID, Amount: int64(qty)})
			return uuid.New().String(), nil
		}
	}
	return "", apperr.LedgerFailure(fmt.Errorf("fake ledger: asset not held"))
}

func (f *Fake) OptInAsset(ctx context.Context, secret string, assetID int64) (string, error) {
	return uuid.New().String(), nil
}

func (f *Fake) AccountAssets(ctx context.Context, address string) ([]ledger.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Holding(nil), f.holdings[address]...), nil
}

func (f *Fake) PendingTxInfo(ctx context.Context, txID string) (*ledger.PendingTxInfo, error) {
	return &ledger.PendingTxInfo{TxID: txID, Confirmed: true, ConfirmedRound: 1}, nil
}

// fakeAddress derives a stable, validly-formatted address from a secret
// so the fake's addresses look like the real ledgeraddr encoding.
func fakeAddress(secret string) string {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, secret)
	return ledgeraddr.FromPublicKey(pub)
}
