// Package payment is the Payment Service from spec §4.9: direct phone-
// to-phone and phone-to-address sends, each wrapped in the confirmation-
// wait ledger round trip, with a queued fallback when the ledger reports
// a transient failure (spec §4.4, §8 scenario S6). Grounded in the
// gift-card teacher's send-and-wait flow in internal/wallet, generalized
// to the chat-payment domain and the typed apperr taxonomy.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/ledger"
	"chatpay-core/internal/queue"
	"chatpay-core/internal/retry"
	"chatpay-core/internal/store"
	"chatpay-core/internal/wallet"
)

// Service implements queue.Submitter so the durable-retry worker can
// drive it directly for payloads it dequeues.
type Service struct {
	wallet       *wallet.Service
	users        *store.UserRepository
	transactions *store.TransactionRepository
	ledgerA      ledger.Adapter
	queue        *queue.Queue
	retryer      retry.Config
	merchants    *store.MerchantRepository
}

func NewService(w *wallet.Service, users *store.UserRepository, txs *store.TransactionRepository, adapter ledger.Adapter, q *queue.Queue) *Service {
	return &Service{wallet: w, users: users, transactions: txs, ledgerA: adapter, queue: q, retryer: retry.DefaultConfig()}
}

// WithMerchants attaches the merchant repository so sends to a
// registered merchant's phone tag Transaction.merchant_id for
// reconciliation (SPEC_FULL "Merchant / payment-ref"). Optional: nil
// leaves every send untagged.
func (s *Service) WithMerchants(merchants *store.MerchantRepository) *Service {
	s.merchants = merchants
	return s
}

// Send pays amount from senderPhone to receiverPhone, resolving both to
// ledger accounts first. The ledger call runs under the retry policy; if it
// still fails with LedgerTransient after the last attempt (and no submitted
// tx is left unresolved), the payment is enqueued for the durable retry
// worker, the transaction is marked FAILED, and the error is returned.
func (s *Service) Send(ctx context.Context, senderPhone, receiverPhone string, amount float64, note string) (*store.Transaction, error) {
	receiver, err := s.users.GetByPhone(ctx, receiverPhone)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFoundf("no wallet for %s", receiverPhone)
		}
		return nil, apperr.Wrap(err)
	}
	return s.sendToAddress(ctx, senderPhone, &receiverPhone, receiver.Address, amount, note, store.TxSend)
}

// SendToAddress pays amount from senderPhone directly to a bare ledger
// address with no custodial receiver record (spec §4.9's address variant).
func (s *Service) SendToAddress(ctx context.Context, senderPhone, address string, amount float64, note string) (*store.Transaction, error) {
	return s.sendToAddress(ctx, senderPhone, nil, address, amount, note, store.TxSend)
}

func (s *Service) sendToAddress(ctx context.Context, senderPhone string, receiverPhone *string, address string, amount float64, note string, kind store.TransactionType) (*store.Transaction, error) {
	sender, err := s.wallet.GetOrCreate(ctx, senderPhone)
	if err != nil {
		return nil, err
	}

	bal, err := s.wallet.Balance(ctx, senderPhone)
	if err != nil {
		return nil, err
	}
	if bal < amount+ledger.Fee {
		return nil, apperr.InsufficientBalance("balance %.6f is less than %.6f (amount + fee)", bal, amount+ledger.Fee)
	}

	secret, err := s.wallet.Secret(ctx, senderPhone)
	if err != nil {
		return nil, err
	}

	tx := &store.Transaction{
		ID:            uuid.New().String(),
		SenderPhone:   senderPhone,
		SenderAddress: sender.Address,
		ReceiverPhone: receiverPhone,
		ReceiverAddress: address,
		Amount:        amount,
		Type:          kind,
		Status:        store.TxPending,
		Note:          note,
		MerchantID:    s.resolveMerchantID(ctx, receiverPhone),
		CreatedAt:     time.Now(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, apperr.Wrap(err)
	}

	// pendingTxID tracks a prior attempt's ledger tx id once one has been
	// submitted but its confirmation is unknown (a timeout or cancelled
	// poll). Per spec §5/§9, the engine must never resubmit in that state
	// without first consulting PendingTxInfo — so every subsequent
	// attempt in this retry loop polls the outstanding tx instead of
	// signing and sending a second payment.
	var txID, pendingTxID string
	rerr := retry.Do(ctx, s.retryer, func(ctx context.Context) error {
		if pendingTxID != "" {
			info, ierr := s.ledgerA.PendingTxInfo(ctx, pendingTxID)
			if ierr != nil {
				if ae, ok := apperr.As(ierr); ok && ae.Kind == apperr.LedgerFailureErr {
					// the indexer has no record of this attempt; safe to
					// treat it as never having happened.
					pendingTxID = ""
				}
				return ierr
			}
			if info.Confirmed {
				txID = pendingTxID
				return nil
			}
			if info.PoolError != "" {
				pendingTxID = ""
				return apperr.LedgerFailure(fmt.Errorf("ledger rejected tx %s: %s", info.TxID, info.PoolError))
			}
			return apperr.LedgerTransient(fmt.Errorf("tx %s outcome still unknown", info.TxID))
		}

		id, serr := s.ledgerA.SendPayment(ctx, secret, address, amount, note)
		if serr != nil {
			if pending, ok := ledger.PendingTxIDFromError(serr); ok {
				pendingTxID = pending
			}
			return serr
		}
		txID = id
		return nil
	})
	if rerr != nil {
		classified := classifyLedgerErr(rerr)
		if pendingTxID != "" {
			// an attempt was submitted whose outcome this loop never
			// resolved; leave the transaction PENDING for a later
			// reconciliation pass rather than risk a duplicate payment by
			// enqueueing or marking it failed.
			return nil, classified
		}
		if ae, ok := apperr.As(classified); ok && ae.Kind == apperr.LedgerTransientErr && s.queue != nil {
			_ = s.queue.Enqueue(ctx, queue.Normal, queue.Payload{
				Type:       "payment",
				Sender:     senderPhone,
				Receiver:   address,
				Amount:     amount,
				Note:       note,
				Priority:   queue.Normal,
				EnqueuedAt: time.Now(),
				MaxRetries: queue.DefaultMaxRetries,
				Status:     queue.StatusQueued,
			})
		}
		_ = s.transactions.MarkFailed(ctx, tx.ID)
		return nil, classified
	}

	if merr := s.transactions.MarkConfirmed(ctx, tx.ID, txID, time.Now()); merr != nil {
		return nil, apperr.Wrap(merr)
	}
	tx.Status = store.TxConfirmed
	tx.TxID = &txID
	return tx, nil
}

// SubmitQueued implements queue.Submitter: the worker calls this after
// dequeueing a payload the original request couldn't settle inline.
func (s *Service) SubmitQueued(ctx context.Context, sender, receiver string, amount float64, note string) error {
	_, err := s.sendToAddress(ctx, sender, nil, receiver, amount, note, store.TxSend)
	return err
}

// History returns senderOrReceiver's most recent transactions, newest first.
func (s *Service) History(ctx context.Context, phone string, limit int) ([]*store.Transaction, error) {
	out, err := s.transactions.History(ctx, phone, limit)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// resolveMerchantID looks up receiverPhone in the merchant registry,
// returning its id if receiverPhone is a registered merchant. Absence of
// the merchant repository, or the receiver not being a merchant, both
// just leave the transaction untagged.
func (s *Service) resolveMerchantID(ctx context.Context, receiverPhone *string) *string {
	if s.merchants == nil || receiverPhone == nil {
		return nil
	}
	m, err := s.merchants.GetByPhone(ctx, *receiverPhone)
	if err != nil {
		return nil
	}
	return &m.ID
}

func classifyLedgerErr(err error) error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.LedgerTransient(err)
}
