package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// rule is one entry in the primary regex table: a tag, its ordered
// candidate patterns (first full match wins), and an extractor that
// turns the regex submatches into typed, validated params.
type rule struct {
	tag      Tag
	patterns []*regexp.Regexp
	extract  func(groups []string) (map[string]any, error)
}

// Parser is the primary regex-table command parser from spec §4.6, with
// an NL fallback consulted on every message per §4.6's last paragraph.
type Parser struct {
	rules []rule
	nlp   *nlFallback
}

func New() *Parser {
	return &Parser{rules: buildRules(), nlp: newNLFallback()}
}

// Parse lowercases and trims text, tries the regex table in order, then
// consults the NL fallback; a fallback result with confidence >= 0.8
// preempts the regex result, per spec §4.6.
func (p *Parser) Parse(text string) Command {
	normalized := strings.ToLower(strings.TrimSpace(text))

	regexCmd := p.parseRegex(normalized, text)

	nlpCmd, ok := p.nlp.classify(normalized, text)
	if ok && nlpCmd.Confidence >= 0.8 {
		return nlpCmd
	}
	return regexCmd
}

func (p *Parser) parseRegex(normalized, raw string) Command {
	for _, r := range p.rules {
		for _, pattern := range r.patterns {
			m := pattern.FindStringSubmatch(normalized)
			if m == nil {
				continue
			}
			params, err := r.extract(m)
			if err != nil {
				return Command{Tag: r.tag, RawText: raw, Confidence: 1.0, ValidationErr: err}
			}
			return Command{Tag: r.tag, Params: params, RawText: raw, Confidence: 1.0}
		}
	}
	return Command{Tag: Unknown, RawText: raw, Confidence: 1.0}
}

func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

func buildRules() []rule {
	return []rule{
		{tag: Menu, patterns: []*regexp.Regexp{re(`^menu$`)}, extract: noParams},
		{tag: Help, patterns: []*regexp.Regexp{re(`^(?:help|start|hi|hello)$`)}, extract: noParams},
		{tag: Balance, patterns: []*regexp.Regexp{re(`^(?:balance|bal|wallet|show balance)$`)}, extract: noParams},
		{
			tag: Pay,
			patterns: []*regexp.Regexp{
				re(`^(?:pay|send)\s+([\d.]+)\s+(?:\w+\s+)?to\s+(\S+)$`),
			},
			extract: func(g []string) (map[string]any, error) {
				amount, err := ValidateAmount(g[1])
				if err != nil {
					return nil, err
				}
				return map[string]any{"amount": amount, "receiver_raw": g[2]}, nil
			},
		},
		{
			tag:      Split,
			patterns: []*regexp.Regexp{re(`^split\s+([\d.]+)\s+(?:\w+\s+)?(.+?)\s+with\s+(.+)$`)},
			extract: func(g []string) (map[string]any, error) {
				amount, err := ValidateAmount(g[1])
				if err != nil {
					return nil, err
				}
				phones := extractPhones(g[3])
				return map[string]any{"amount": amount, "description": strings.TrimSpace(g[2]), "participants": phones}, nil
			},
		},
		{
			tag:      PaySplit,
			patterns: []*regexp.Regexp{re(`^pay split\s+(\S+)$`)},
			extract:  idParam("split_id"),
		},
		{
			tag:      ViewSplit,
			patterns: []*regexp.Regexp{re(`^(?:view|show)\s+split\s+(\S+)$`)},
			extract:  idParam("split_id"),
		},
		{tag: MySplits, patterns: []*regexp.Regexp{re(`^(?:my splits|splits)$`)}, extract: noParams},
		{
			tag:      CreateFund,
			patterns: []*regexp.Regexp{re(`^create fund\s+(.+?)\s+goal\s+([\d.]+)(?:\s+\w+)?$`)},
			extract: func(g []string) (map[string]any, error) {
				amount, err := ValidateAmount(g[2])
				if err != nil {
					return nil, err
				}
				return map[string]any{"title": strings.TrimSpace(g[1]), "goal_amount": amount}, nil
			},
		},
		{
			tag: Contribute,
			patterns: []*regexp.Regexp{
				re(`^contribute\s+([\d.]+)\s+(?:\w+\s+)?to fund\s+(\S+)$`),
				re(`^fund\s+(\S+)\s+([\d.]+)(?:\s+\w+)?$`),
			},
			extract: func(g []string) (map[string]any, error) {
				// group order differs between the two patterns; detect by
				// whether group 1 parses as an amount.
				if amount, err := strconv.ParseFloat(g[1], 64); err == nil && amount > 0 {
					validated, verr := ValidateAmount(g[1])
					if verr != nil {
						return nil, verr
					}
					return map[string]any{"amount": validated, "fund_id": g[2]}, nil
				}
				validated, verr := ValidateAmount(g[2])
				if verr != nil {
					return nil, verr
				}
				return map[string]any{"fund_id": g[1], "amount": validated}, nil
			},
		},
		{
			tag:      ViewFund,
			patterns: []*regexp.Regexp{re(`^(?:view|show)\s+fund\s+(\S+)$`)},
			extract:  idParam("fund_id"),
		},
		{tag: ListFunds, patterns: []*regexp.Regexp{re(`^(?:list|show)\s+funds?$`), re(`^funds?$`)}, extract: noParams},
		{
			tag:      BuyTicket,
			patterns: []*regexp.Regexp{re(`^buy ticket\s+(.+)$`)},
			extract: func(g []string) (map[string]any, error) {
				ident := strings.TrimSpace(g[1])
				return map[string]any{"event_identifier": ident}, nil
			},
		},
		{
			tag:      VerifyTicket,
			patterns: []*regexp.Regexp{re(`^verify ticket\s+(.+)$`)},
			extract: func(g []string) (map[string]any, error) {
				return map[string]any{"ticket_number": strings.ToUpper(strings.TrimSpace(g[1]))}, nil
			},
		},
		{tag: MyTickets, patterns: []*regexp.Regexp{re(`^(?:my tickets|tickets)$`)}, extract: noParams},
		{tag: ListEvents, patterns: []*regexp.Regexp{re(`^(?:list|show)\s+events?$`), re(`^events?$`)}, extract: noParams},
		{tag: History, patterns: []*regexp.Regexp{re(`^(?:history|transactions)$`)}, extract: noParams},
		{tag: DemoStats, patterns: []*regexp.Regexp{re(`^(?:demo stats|demo|stats|show stats)$`)}, extract: noParams},
		{
			tag: CreateCommitment,
			patterns: []*regexp.Regexp{
				re(`^/?lock create\s+(.+?)\s+([\d.]+)\s+(\d+)\s+(\d+)$`),
			},
			extract: func(g []string) (map[string]any, error) {
				amount, err := ValidateAmount(g[2])
				if err != nil {
					return nil, err
				}
				participants, _ := strconv.Atoi(g[3])
				days, _ := strconv.Atoi(g[4])
				return map[string]any{
					"title":        strings.TrimSpace(g[1]),
					"amount":       amount,
					"participants": participants,
					"days":         days,
				}, nil
			},
		},
		{
			tag:      CommitFunds,
			patterns: []*regexp.Regexp{re(`^/?commit\s+(\S+)$`), re(`^/?lock\s+(\S+)$`)},
			extract:  idParam("commitment_id"),
		},
		{
			tag:      ViewCommitment,
			patterns: []*regexp.Regexp{re(`^/?commitment\s+(\S+)$`), re(`^show commitment\s+(\S+)$`)},
			extract:  idParam("commitment_id"),
		},
		{
			tag:      CancelCommitment,
			patterns: []*regexp.Regexp{re(`^/?cancel\s+(\S+)$`), re(`^cancel commitment\s+(\S+)$`)},
			extract:  idParam("commitment_id"),
		},
		{
			tag:      AddParticipant,
			patterns: []*regexp.Regexp{re(`^/?add\s+(\S+)\s+(\+?\d[\d]{9,14})$`)},
			extract: func(g []string) (map[string]any, error) {
				phone, err := ValidatePhone(g[2])
				if err != nil {
					return nil, err
				}
				return map[string]any{"commitment_id": g[1], "phone": phone}, nil
			},
		},
		{
			tag:      AddParticipant,
			patterns: []*regexp.Regexp{re(`^/?add\s+(\+?\d[\d]{9,14})$`)},
			extract: func(g []string) (map[string]any, error) {
				phone, err := ValidatePhone(g[1])
				if err != nil {
					return nil, err
				}
				// commitment_id omitted: router resolves it from
				// conversation-context's last_commitment_id per spec §4.7.
				return map[string]any{"phone": phone}, nil
			},
		},
		{tag: Reliability, patterns: []*regexp.Regexp{re(`^(?:/?reliability|my reliability|score)$`)}, extract: noParams},
		{tag: MyCommitments, patterns: []*regexp.Regexp{re(`^(?:/?commitments?|my commitments?)$`)}, extract: noParams},
		{
			tag:      AddContact,
			patterns: []*regexp.Regexp{re(`^add contact\s+(\S+)\s+(\+?\d[\d]{9,14})$`)},
			extract: func(g []string) (map[string]any, error) {
				phone, err := ValidatePhone(g[2])
				if err != nil {
					return nil, err
				}
				return map[string]any{"nickname": g[1], "phone": phone}, nil
			},
		},
		{tag: MyContacts, patterns: []*regexp.Regexp{re(`^(?:my contacts|contacts)$`)}, extract: noParams},
		{
			tag:      RegisterMerchant,
			patterns: []*regexp.Regexp{re(`^register merchant\s+(.+)$`)},
			extract: func(g []string) (map[string]any, error) {
				return map[string]any{"name": strings.TrimSpace(g[1])}, nil
			},
		},
	}
}

func noParams([]string) (map[string]any, error) { return map[string]any{}, nil }

func idParam(key string) func([]string) (map[string]any, error) {
	return func(g []string) (map[string]any, error) {
		return map[string]any{key: g[1]}, nil
	}
}

var phoneFinder = regexp.MustCompile(`\+\d{10,15}`)

func extractPhones(text string) []string {
	return phoneFinder.FindAllString(text, -1)
}
