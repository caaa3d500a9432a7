package router

import (
	"fmt"
	"strings"

	"chatpay-core/internal/commitment"
	"chatpay-core/internal/split"
	"chatpay-core/internal/store"
)

func helpText() string {
	return strings.Join([]string{
		"commands:",
		"  balance",
		"  pay <amount> to <phone|address|contact>",
		"  split <amount> <description> with <phones>",
		"  pay split <id>",
		"  create fund <title> goal <amount>",
		"  contribute <amount> to fund <id>",
		"  buy ticket <event>",
		"  verify ticket <number>",
		"  history",
		"  lock create <title> <amount> <participants> <days>",
		"  make a <title> trip - create a commitment step by step",
		"  lock <commitment id>",
		"  commitment <id>",
		"  reliability",
		"  add contact <nickname> <phone>",
		"  contacts",
	}, "\n")
}

func menuText() string {
	return "quick commands: balance, pay, split, history, reliability. type help for the full list."
}

func unknownText() string {
	return "sorry, I didn't understand that. type menu or help to see what I can do."
}

func renderBalance(address string, balance float64) string {
	return fmt.Sprintf("address %s\nbalance: %.6f", shortAddr(address), balance)
}

func renderPaymentSuccess(receiver string, amount float64, txID string, newBalance float64) string {
	return fmt.Sprintf("sent %.6f to %s (tx %s)\nnew balance: %.6f", amount, receiver, shortTx(txID), newBalance)
}

func renderSplitCreated(bill *store.SplitBill) string {
	return fmt.Sprintf("split %s created for %.6f: %s\npay your share with `pay split %s`", bill.ID, bill.TotalAmount, bill.Description, bill.ID)
}

func renderMySplits(bills []*store.SplitBill) string {
	if len(bills) == 0 {
		return "you have no pending split bills"
	}
	var b strings.Builder
	b.WriteString("your split bills:\n")
	for _, s := range bills {
		fmt.Fprintf(&b, "  [%s] %s - %.6f (%s)\n", s.ID, s.Description, s.TotalAmount, s.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSplitStatus(st *split.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "split %s %q: %.6f total, status %s\n", st.Bill.ID, st.Bill.Description, st.Bill.TotalAmount, st.Bill.Status)
	for _, p := range st.Payments {
		paid := "unpaid"
		if p.IsPaid {
			paid = "paid"
		}
		fmt.Fprintf(&b, "  %s: %.6f (%s)\n", p.Participant, p.Amount, paid)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderContacts(contacts []*store.Contact) string {
	if len(contacts) == 0 {
		return "you have no saved contacts"
	}
	var b strings.Builder
	b.WriteString("your contacts:\n")
	for _, c := range contacts {
		fmt.Fprintf(&b, "  %s -> %s\n", c.NicknameLower, c.ContactPhone)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderFundCreated(f *store.Fund) string {
	return fmt.Sprintf("fund %s \"%s\" created, goal %.6f by %s", f.ID, f.Title, f.GoalAmount, f.Deadline.Format("2006-01-02"))
}

func renderFundContribution(f *store.Fund) string {
	msg := fmt.Sprintf("contributed to \"%s\": %.6f / %.6f raised", f.Title, f.CurrentAmount, f.GoalAmount)
	if f.IsGoalMet {
		msg += "\ngoal reached!"
	}
	return msg
}

func renderFundStatus(f *store.Fund) string {
	pct := 0.0
	if f.GoalAmount > 0 {
		pct = 100 * f.CurrentAmount / f.GoalAmount
	}
	return fmt.Sprintf("\"%s\": %.6f / %.6f (%.0f%%), deadline %s", f.Title, f.CurrentAmount, f.GoalAmount, pct, f.Deadline.Format("2006-01-02"))
}

func renderFundList(funds []*store.Fund) string {
	if len(funds) == 0 {
		return "no active funds right now"
	}
	var b strings.Builder
	b.WriteString("active funds:\n")
	for _, f := range funds {
		fmt.Fprintf(&b, "  [%s] %s - %.6f / %.6f\n", f.ID, f.Title, f.CurrentAmount, f.GoalAmount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTicketPurchased(t *store.Ticket, ev *store.Event) string {
	return fmt.Sprintf("ticket %s purchased for %s at %s", t.TicketNumber, ev.Name, ev.Venue)
}

func renderTicketVerify(ok bool, t *store.Ticket) string {
	if !ok || t == nil {
		return "ticket not valid"
	}
	return fmt.Sprintf("ticket %s is valid for %s", t.TicketNumber, t.EventName)
}

func renderMyTickets(tickets []*store.Ticket) string {
	if len(tickets) == 0 {
		return "you have no tickets"
	}
	var b strings.Builder
	b.WriteString("your tickets:\n")
	for _, t := range tickets {
		status := "unused"
		if t.IsUsed {
			status = "used"
		}
		fmt.Fprintf(&b, "  %s - %s (%s)\n", t.TicketNumber, t.EventName, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEventList(events []*store.Event) string {
	if len(events) == 0 {
		return "no events on sale right now"
	}
	var b strings.Builder
	b.WriteString("events on sale:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "  %s at %s - %.6f (%d/%d sold)\n", e.Name, e.Venue, e.TicketPrice, e.TicketsSold, e.TotalCapacity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(txs []*store.Transaction) string {
	if len(txs) == 0 {
		return "no transactions yet"
	}
	var b strings.Builder
	b.WriteString("recent transactions:\n")
	for _, t := range txs {
		fmt.Fprintf(&b, "  %s %.6f %s (%s)\n", t.Type, t.Amount, t.CreatedAt.Format("Jan 2 15:04"), t.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCommitmentCreated(c *store.PaymentCommitment) string {
	return fmt.Sprintf("commitment %s \"%s\" created: %.6f per person, %d participants, due %s",
		c.ID, c.Title, c.AmountPerPerson, c.TotalParticipants, c.Deadline.Format("2006-01-02"))
}

func renderCommitmentStatus(st *commitment.Status) string {
	return fmt.Sprintf("\"%s\": %.0f%% locked (%d/%d), %.1f days until deadline",
		st.Commitment.Title, st.CompletionPercentage, len(st.Locked), st.Commitment.TotalParticipants, st.DaysUntilDeadline)
}

func renderReliability(s *store.ReliabilityScore) string {
	return fmt.Sprintf("reliability score: %d [%s] (%d on-time, %d late, %d missed, %d total)",
		s.Score, commitment.Badge(s.Score), s.FulfilledOnTime, s.FulfilledLate, s.Missed, s.Total)
}

func shortAddr(addr string) string {
	if len(addr) <= 18 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-8:]
}

func shortTx(txID string) string {
	if len(txID) <= 16 {
		return txID
	}
	return txID[:16] + "..."
}
