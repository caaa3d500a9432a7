// Package wallet is the Custodial Wallet Service from spec §4.8: every
// user gets a ledger keypair on first contact, its secret immediately
// encrypted at rest and never returned to a caller outside this package.
// Grounded in the gift-card teacher's wallet.GenerateWallet flow, with
// key custody swapped for crypto.Box and retry.Do wrapping every ledger
// round trip per spec §8.
package wallet

import (
	"context"
	"time"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/crypto"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/retry"
	"chatpay-core/internal/store"
)

type Service struct {
	users   *store.UserRepository
	ledger  ledger.Adapter
	box     *crypto.Box
	retryer retry.Config
}

func NewService(users *store.UserRepository, adapter ledger.Adapter, box *crypto.Box) *Service {
	return &Service{users: users, ledger: adapter, box: box, retryer: retry.DefaultConfig()}
}

// GetOrCreate returns phone's existing custodial account, deriving and
// persisting a fresh one on first contact (spec §4.8 "get_or_create").
func (s *Service) GetOrCreate(ctx context.Context, phone string) (*store.User, error) {
	u, err := s.users.GetByPhone(ctx, phone)
	if err == nil {
		return u, nil
	}
	if err != store.ErrNotFound {
		return nil, apperr.Wrap(err)
	}

	var account ledger.Account
	rerr := retry.Do(ctx, s.retryer, func(ctx context.Context) error {
		a, derr := s.ledger.DeriveAccount(ctx)
		if derr != nil {
			return derr
		}
		account = a
		return nil
	})
	if rerr != nil {
		return nil, classifyLedgerErr(rerr)
	}

	encrypted, eerr := s.box.Encrypt(account.Secret)
	if eerr != nil {
		return nil, apperr.Wrap(eerr)
	}

	u = &store.User{
		Phone:           phone,
		Address:         account.Address,
		EncryptedSecret: encrypted,
		CreatedAt:       time.Now(),
	}
	if cerr := s.users.Create(ctx, u); cerr != nil {
		if cerr == store.ErrAlreadyExists {
			// lost a create race against a concurrent GetOrCreate; the
			// other call's row is authoritative.
			return s.users.GetByPhone(ctx, phone)
		}
		return nil, apperr.Wrap(cerr)
	}
	return u, nil
}

// Secret decrypts phone's signing key for a spend. Callers must not log
// or persist the returned string.
func (s *Service) Secret(ctx context.Context, phone string) (string, error) {
	u, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if err == store.ErrNotFound {
			return "", apperr.NotFoundf("no wallet for %s", phone)
		}
		return "", apperr.Wrap(err)
	}
	secret, derr := s.box.Decrypt(u.EncryptedSecret)
	if derr != nil {
		return "", apperr.Wrap(derr)
	}
	return secret, nil
}

// Balance reports phone's current ledger balance in base units.
func (s *Service) Balance(ctx context.Context, phone string) (float64, error) {
	u, err := s.GetOrCreate(ctx, phone)
	if err != nil {
		return 0, err
	}
	var bal float64
	rerr := retry.Do(ctx, s.retryer, func(ctx context.Context) error {
		b, berr := s.ledger.Balance(ctx, u.Address)
		if berr != nil {
			return berr
		}
		bal = b
		return nil
	})
	if rerr != nil {
		return 0, classifyLedgerErr(rerr)
	}
	return bal, nil
}

func classifyLedgerErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.LedgerTransient(err)
}
