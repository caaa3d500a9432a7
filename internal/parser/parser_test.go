package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePay(t *testing.T) {
	p := New()
	cmd := p.Parse("pay 25.5 to +14155550123")
	require.NoError(t, cmd.ValidationErr)
	assert.Equal(t, Pay, cmd.Tag)
	assert.Equal(t, 25.5, cmd.Float("amount"))
	assert.Equal(t, "+14155550123", cmd.String("receiver_raw"))
}

func TestParsePayInvalidAmountSetsValidationErr(t *testing.T) {
	p := New()
	cmd := p.Parse("pay 0 to +14155550123")
	assert.Equal(t, Pay, cmd.Tag)
	assert.Error(t, cmd.ValidationErr)
}

func TestParseSplitExtractsParticipants(t *testing.T) {
	p := New()
	cmd := p.Parse("split 90 dinner with +14155550111 +14155550222")
	require.NoError(t, cmd.ValidationErr)
	assert.Equal(t, Split, cmd.Tag)
	assert.Equal(t, 90.0, cmd.Float("amount"))
	assert.Equal(t, "dinner", cmd.String("description"))
	assert.ElementsMatch(t, []string{"+14155550111", "+14155550222"}, cmd.StringSlice("participants"))
}

func TestParseCreateCommitment(t *testing.T) {
	p := New()
	cmd := p.Parse("lock create Goa Trip 500 5 7")
	require.NoError(t, cmd.ValidationErr)
	assert.Equal(t, CreateCommitment, cmd.Tag)
	assert.Equal(t, "goa trip", cmd.String("title"))
	assert.Equal(t, 500.0, cmd.Float("amount"))
	assert.Equal(t, 5, cmd.Int("participants"))
	assert.Equal(t, 7, cmd.Int("days"))
}

func TestParseAddParticipantWithCommitmentID(t *testing.T) {
	p := New()
	cmd := p.Parse("add c-123 +14155550123")
	require.NoError(t, cmd.ValidationErr)
	assert.Equal(t, AddParticipant, cmd.Tag)
	assert.Equal(t, "c-123", cmd.String("commitment_id"))
	assert.Equal(t, "+14155550123", cmd.String("phone"))
}

func TestParseAddParticipantPhoneOnly(t *testing.T) {
	p := New()
	cmd := p.Parse("add +14155550123")
	require.NoError(t, cmd.ValidationErr)
	assert.Equal(t, AddParticipant, cmd.Tag)
	assert.Equal(t, "", cmd.String("commitment_id"))
	assert.Equal(t, "+14155550123", cmd.String("phone"))
}

func TestParseZeroArgCommands(t *testing.T) {
	p := New()
	assert.Equal(t, Balance, p.Parse("balance").Tag)
	assert.Equal(t, Help, p.Parse("help").Tag)
	assert.Equal(t, Menu, p.Parse("menu").Tag)
	assert.Equal(t, History, p.Parse("history").Tag)
	assert.Equal(t, Reliability, p.Parse("reliability").Tag)
	assert.Equal(t, MyCommitments, p.Parse("my commitments").Tag)
}

func TestParseUnknownFallsThrough(t *testing.T) {
	p := New()
	cmd := p.Parse("what a nice day today")
	assert.Equal(t, Unknown, cmd.Tag)
}

func TestParseNLFallbackPreemptsOnStrongMatch(t *testing.T) {
	p := New()
	cmd := p.Parse("please send pay to mom")
	assert.Equal(t, Pay, cmd.Tag)
	assert.GreaterOrEqual(t, cmd.Confidence, 0.8)
}

func TestParseBuyTicketPreservesEventName(t *testing.T) {
	p := New()
	cmd := p.Parse("buy ticket Summer Jam")
	assert.Equal(t, BuyTicket, cmd.Tag)
	assert.Equal(t, "summer jam", cmd.String("event_identifier"))
}

func TestParseContributeBothWordOrders(t *testing.T) {
	p := New()
	a := p.Parse("contribute 20 to fund f-1")
	assert.Equal(t, Contribute, a.Tag)
	assert.Equal(t, 20.0, a.Float("amount"))
	assert.Equal(t, "f-1", a.String("fund_id"))

	b := p.Parse("fund f-1 20")
	assert.Equal(t, Contribute, b.Tag)
	assert.Equal(t, 20.0, b.Float("amount"))
	assert.Equal(t, "f-1", b.String("fund_id"))
}
