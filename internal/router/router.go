// Package router is the command pipeline's dispatch layer from spec
// §4.1: normalize a command's already-parsed Tag, run the rate limiter
// and conversation lookup, call the right service, and render a reply
// string. Grounded in original_source/bot/telegram_webhook.py's
// handle_message dispatch table and the gift-card teacher's handler
// pattern of one small function per endpoint plus a single error
// translator at the boundary.
package router

import (
	"context"
	"fmt"
	"time"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/commitment"
	"chatpay-core/internal/contact"
	"chatpay-core/internal/conversation"
	"chatpay-core/internal/fund"
	"chatpay-core/internal/merchant"
	"chatpay-core/internal/notify"
	"chatpay-core/internal/parser"
	"chatpay-core/internal/payment"
	"chatpay-core/internal/ratelimit"
	"chatpay-core/internal/split"
	"chatpay-core/internal/ticket"
	"chatpay-core/internal/wallet"
	"chatpay-core/pkg/logger"

	"go.uber.org/zap"
)

// Router wires every domain service behind the single Handle entrypoint
// a transport adapter calls per inbound message.
type Router struct {
	parser      *parser.Parser
	conv        *conversation.Store
	limiter     *ratelimit.Limiter
	wallet      *wallet.Service
	payments    *payment.Service
	splits      *split.Service
	funds       *fund.Service
	tickets     *ticket.Service
	commitments *commitment.Service
	contacts    *contact.Service
	merchants   *merchant.Service
	notifier    *notify.Dispatcher
}

func New(
	conv *conversation.Store,
	limiter *ratelimit.Limiter,
	walletSvc *wallet.Service,
	payments *payment.Service,
	splits *split.Service,
	funds *fund.Service,
	tickets *ticket.Service,
	commitments *commitment.Service,
	contacts *contact.Service,
	merchants *merchant.Service,
	notifier *notify.Dispatcher,
) *Router {
	return &Router{
		parser:      parser.New(),
		conv:        conv,
		limiter:     limiter,
		wallet:      walletSvc,
		payments:    payments,
		splits:      splits,
		funds:       funds,
		tickets:     tickets,
		commitments: commitments,
		contacts:    contacts,
		merchants:   merchants,
		notifier:    notifier,
	}
}

// Handle parses text from phone, enforces the per-phone rate limit,
// dispatches to the matching service, and returns the reply text the
// transport should send back. It never returns an error: every failure
// is rendered as a user-facing message, matching the chat-bot contract
// in spec §4.1 (the caller has no other channel to surface errors on).
func (r *Router) Handle(ctx context.Context, phone, text string) string {
	if r.limiter != nil {
		if err := r.limiter.Check(ctx, phone); err != nil {
			return renderErr(err)
		}
	}

	if st := r.conv.Get(phone); st != nil {
		if reply, handled := r.handleConversation(ctx, phone, text, st); handled {
			return reply
		}
	} else if title, ok := matchStartFlow(text); ok {
		if cmd := r.parser.Parse(text); cmd.Tag == parser.Unknown {
			st := r.conv.Start(phone, flowCreateCommitment)
			r.conv.Advance(phone, 0, map[string]string{"title": title})
			return fmt.Sprintf("let's set up \"%s\"! how much is each person's share (in ALGO)?", st.Slots["title"])
		}
	}

	cmd := r.parser.Parse(text)
	if cmd.ValidationErr != nil {
		return renderErr(cmd.ValidationErr)
	}

	reply, err := r.dispatch(ctx, phone, cmd)
	if err != nil {
		logger.Warn("command failed", zap.String("phone", phone), zap.String("tag", string(cmd.Tag)), zap.Error(err))
		return renderErr(err)
	}
	return reply
}

func (r *Router) dispatch(ctx context.Context, phone string, cmd parser.Command) (string, error) {
	switch cmd.Tag {
	case parser.Help:
		return helpText(), nil
	case parser.Menu:
		return menuText(), nil

	case parser.Balance:
		user, err := r.wallet.GetOrCreate(ctx, phone)
		if err != nil {
			return "", err
		}
		bal, err := r.wallet.Balance(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderBalance(user.Address, bal), nil

	case parser.Pay:
		raw := cmd.String("receiver_raw")
		amount := cmd.Float("amount")
		receiverPhone, address, err := r.contacts.ResolveReceiver(ctx, phone, raw)
		if err != nil {
			return "", err
		}
		var tx *paymentResult
		if receiverPhone != "" {
			t, serr := r.payments.Send(ctx, phone, receiverPhone, amount, "")
			if serr != nil {
				return "", serr
			}
			tx = &paymentResult{txID: derefOr(t.TxID, ""), receiver: receiverPhone}
		} else {
			t, serr := r.payments.SendToAddress(ctx, phone, address, amount, "")
			if serr != nil {
				return "", serr
			}
			tx = &paymentResult{txID: derefOr(t.TxID, ""), receiver: address}
		}
		bal, err := r.wallet.Balance(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderPaymentSuccess(tx.receiver, amount, tx.txID, bal), nil

	case parser.Split:
		bill, err := r.splits.Create(ctx, phone, cmd.String("description"), cmd.Float("amount"), cmd.StringSlice("participants"))
		if err != nil {
			return "", err
		}
		return renderSplitCreated(bill), nil
	case parser.PaySplit:
		if err := r.splits.PayShare(ctx, cmd.String("split_id"), phone); err != nil {
			return "", err
		}
		return "your share has been paid", nil
	case parser.ViewSplit:
		st, err := r.splits.GetStatus(ctx, cmd.String("split_id"))
		if err != nil {
			return "", err
		}
		return renderSplitStatus(st), nil
	case parser.MySplits:
		bills, err := r.splits.ListMine(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderMySplits(bills), nil

	case parser.CreateFund:
		f, err := r.funds.Create(ctx, phone, cmd.String("title"), cmd.Float("goal_amount"), 0)
		if err != nil {
			return "", err
		}
		return renderFundCreated(f), nil
	case parser.Contribute:
		f, err := r.funds.Contribute(ctx, cmd.String("fund_id"), phone, cmd.Float("amount"))
		if err != nil {
			return "", err
		}
		return renderFundContribution(f), nil
	case parser.ViewFund:
		f, err := r.funds.GetByID(ctx, cmd.String("fund_id"))
		if err != nil {
			return "", err
		}
		return renderFundStatus(f), nil
	case parser.ListFunds:
		funds, err := r.funds.ListActive(ctx)
		if err != nil {
			return "", err
		}
		return renderFundList(funds), nil

	case parser.BuyTicket:
		t, ev, err := r.tickets.Purchase(ctx, phone, cmd.String("event_identifier"))
		if err != nil {
			return "", err
		}
		return renderTicketPurchased(t, ev), nil
	case parser.VerifyTicket:
		ok, t, err := r.tickets.Verify(ctx, cmd.String("ticket_number"))
		if err != nil {
			return "", err
		}
		return renderTicketVerify(ok, t), nil
	case parser.MyTickets:
		tickets, err := r.tickets.ListMine(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderMyTickets(tickets), nil
	case parser.ListEvents:
		events, err := r.tickets.ListActiveEvents(ctx)
		if err != nil {
			return "", err
		}
		return renderEventList(events), nil

	case parser.History:
		txs, err := r.payments.History(ctx, phone, 10)
		if err != nil {
			return "", err
		}
		return renderHistory(txs), nil

	case parser.CreateCommitment:
		c, err := r.commitments.Create(ctx, phone, cmd.String("title"), "", cmd.Float("amount"), cmd.Int("participants"), deadlineFromDays(cmd.Int("days")))
		if err != nil {
			return "", err
		}
		r.conv.SetContext(phone, "last_commitment_id", c.ID)
		return renderCommitmentCreated(c), nil
	case parser.CommitFunds:
		commitmentID := resolveCommitmentID(r.conv, phone, cmd.String("commitment_id"))
		if err := r.commitments.LockFunds(ctx, commitmentID, phone); err != nil {
			return "", err
		}
		return "your funds are locked into the commitment", nil
	case parser.ViewCommitment:
		commitmentID := resolveCommitmentID(r.conv, phone, cmd.String("commitment_id"))
		status, err := r.commitments.GetStatus(ctx, commitmentID)
		if err != nil {
			return "", err
		}
		return renderCommitmentStatus(status), nil
	case parser.CancelCommitment:
		commitmentID := resolveCommitmentID(r.conv, phone, cmd.String("commitment_id"))
		if err := r.commitments.Cancel(ctx, commitmentID, phone); err != nil {
			return "", err
		}
		return "the commitment has been canceled and locked funds refunded", nil
	case parser.AddParticipant:
		commitmentID := resolveCommitmentID(r.conv, phone, cmd.String("commitment_id"))
		if _, err := r.commitments.AddParticipant(ctx, commitmentID, cmd.String("phone")); err != nil {
			return "", err
		}
		return "participant added to the commitment", nil
	case parser.Reliability:
		score, err := r.commitments.GetReliability(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderReliability(score), nil
	case parser.MyCommitments:
		return "use `commitment <id>` to check a specific commitment's status", nil

	case parser.AddContact:
		c, err := r.contacts.Save(ctx, phone, cmd.String("nickname"), cmd.String("phone"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("saved %s as %s", c.ContactPhone, c.NicknameLower), nil
	case parser.MyContacts:
		contacts, err := r.contacts.List(ctx, phone)
		if err != nil {
			return "", err
		}
		return renderContacts(contacts), nil

	case parser.RegisterMerchant:
		m, err := r.merchants.Register(ctx, cmd.String("name"), phone)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("registered %s as merchant %q", m.Phone, m.Name), nil

	case parser.DemoStats:
		return "demo stats are not available outside the demo build", nil

	default:
		return unknownText(), nil
	}
}

type paymentResult struct {
	txID     string
	receiver string
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

func deadlineFromDays(days int) time.Time {
	if days <= 0 {
		days = 7
	}
	return time.Now().AddDate(0, 0, days)
}

func resolveCommitmentID(conv *conversation.Store, phone, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return conv.GetContext(phone, "last_commitment_id")
}

// renderErr renders the user-facing message for a service failure.
// Every branch per spec §7 carries a human cause and suggested action;
// Internal/LedgerFailure additionally surface a correlation id so a
// support agent can trace the reply back to the audit/log entry that
// produced it, without ever including the underlying cause or secrets.
func renderErr(err error) string {
	ae, ok := apperr.As(err)
	if !ok {
		return withCorrelation("something went wrong, please try again")
	}
	switch ae.Kind {
	case apperr.Validation:
		return fmt.Sprintf("that didn't look right: %s", ae.Message)
	case apperr.NotFound:
		return fmt.Sprintf("couldn't find that: %s", ae.Message)
	case apperr.State:
		return fmt.Sprintf("can't do that right now: %s", ae.Message)
	case apperr.InsufficientBal:
		return fmt.Sprintf("insufficient balance: %s", ae.Message)
	case apperr.RateLimited:
		return ae.Message
	case apperr.SecurityViolation:
		return "you're not allowed to do that"
	case apperr.LedgerTransientErr:
		return "the network is busy right now; your payment has been queued and will complete shortly"
	case apperr.LedgerFailureErr:
		return withCorrelation("the payment network rejected that request")
	default:
		return withCorrelation("something went wrong, please try again")
	}
}

func withCorrelation(message string) string {
	id := apperr.NewCorrelationID()
	logger.Error("user-facing failure", logger.Correlation(id))
	return fmt.Sprintf("%s (reference: %s)", message, id)
}
