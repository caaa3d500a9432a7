// Package ledger is the thin typed layer over the external ledger's two
// JSON-over-HTTP endpoints (a full-node interface and an indexer),
// grounded in the teacher's exchange.fetchJSON/wallet.btc.go HTTP client
// shape and in Sergey-Bar-Alfred's gateway/routing health-tracking struct,
// simplified to the spec's literal failover contract (§4.1, §7).
package ledger

import (
	"sync"
)

// endpointPool holds an ordered primary + backups for one logical ledger
// role (node or indexer) and promotes the next endpoint after
// consecutiveFailThreshold consecutive failures on the current one. A
// full cycle back to the original endpoint resets every counter, per
// spec §4.1: "on full cycle, counts reset."
type endpointPool struct {
	mu       sync.Mutex
	urls     []string
	tokens   []string
	current  int
	fails    int
	failedAt int // how many endpoints have been cycled through since the last reset
}

const consecutiveFailThreshold = 2

func newEndpointPool(primaryURL, primaryToken string, backupURLs, backupTokens []string) *endpointPool {
	urls := append([]string{primaryURL}, backupURLs...)
	tokens := append([]string{primaryToken}, backupTokens...)
	return &endpointPool{urls: urls, tokens: tokens}
}

// Current returns the active endpoint's URL and auth token.
func (p *endpointPool) Current() (url, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urls[p.current], p.tokens[p.current]
}

// RecordSuccess resets the failure streak on the current endpoint.
func (p *endpointPool) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fails = 0
	p.failedAt = 0
}

// RecordFailure bumps the current endpoint's consecutive-failure streak,
// promoting the next endpoint once the threshold is reached. After a full
// cycle through every endpoint without success, all counts reset so the
// pool starts over from the primary rather than getting stuck fail-looping.
func (p *endpointPool) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fails++
	if p.fails < consecutiveFailThreshold {
		return
	}

	p.fails = 0
	p.current = (p.current + 1) % len(p.urls)
	p.failedAt++
	if p.failedAt >= len(p.urls) {
		p.current = 0
		p.failedAt = 0
	}
}

// Len reports how many endpoints (primary + backups) are configured.
func (p *endpointPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}
