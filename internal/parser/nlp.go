package parser

import (
	"regexp"
	"strings"
)

// nlFallback is the natural-language classifier from spec §4.6: a small
// keyword/intent scorer that Parse consults for every message. A result
// with confidence >= 0.8 (two or more keyword hits) preempts the regex
// table's result; a weaker one is discarded and the regex result (UNKNOWN
// included) stands. It catches paraphrases like "how much is in my
// wallet" that the strict patterns in parser.go miss.
type nlFallback struct {
	intents []intent
}

type intent struct {
	tag      Tag
	keywords []string
	extract  func(text string) map[string]any
}

func newNLFallback() *nlFallback {
	return &nlFallback{
		intents: []intent{
			{
				tag:      Pay,
				keywords: []string{"send", "pay", "give"},
				extract: func(text string) map[string]any {
					params := map[string]any{}
					if amt := firstAmount(text); amt != "" {
						if v, err := ValidateAmount(amt); err == nil {
							params["amount"] = v
						}
					}
					if phone := firstPhone(text); phone != "" {
						params["receiver_raw"] = phone
					}
					return params
				},
			},
			{
				tag:      Balance,
				keywords: []string{"balance", "how much", "wallet", "funds do i have"},
				extract:  func(string) map[string]any { return map[string]any{} },
			},
			{
				tag:      History,
				keywords: []string{"history", "past payments", "transactions", "what did i send"},
				extract:  func(string) map[string]any { return map[string]any{} },
			},
			{
				tag:      Help,
				keywords: []string{"help", "what can you do", "how does this work"},
				extract:  func(string) map[string]any { return map[string]any{} },
			},
			{
				tag:      Reliability,
				keywords: []string{"my score", "reliability", "how reliable am i"},
				extract:  func(string) map[string]any { return map[string]any{} },
			},
			{
				tag:      MyCommitments,
				keywords: []string{"my commitments", "what commitments", "commitments am i in"},
				extract:  func(string) map[string]any { return map[string]any{} },
			},
		},
	}
}

// classify scores every intent by keyword overlap and returns the
// highest scoring one with its derived confidence. ok is false if no
// keyword matched at all, letting Parse fall back to the regex result.
func (n *nlFallback) classify(normalized, raw string) (Command, bool) {
	var best intent
	bestScore := 0.0
	matched := false

	for _, i := range n.intents {
		score := keywordScore(normalized, i.keywords)
		if score > bestScore {
			bestScore = score
			best = i
			matched = true
		}
	}
	if !matched {
		return Command{}, false
	}

	return Command{
		Tag:        best.tag,
		Params:     best.extract(normalized),
		Confidence: bestScore,
		RawText:    raw,
	}, true
}

// keywordScore is a plain hit-count heuristic: one keyword match gives a
// baseline confidence, a second corroborating match pushes it over the
// 0.8 preemption threshold from spec §4.6.
func keywordScore(text string, keywords []string) float64 {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	switch {
	case hits == 0:
		return 0
	case hits == 1:
		return 0.6
	default:
		return 0.85
	}
}

var amountFinder = regexp.MustCompile(`\d+(?:\.\d+)?`)

func firstAmount(text string) string {
	return amountFinder.FindString(text)
}

func firstPhone(text string) string {
	return phoneFinder.FindString(text)
}
