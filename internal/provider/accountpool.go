package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/agentserver/agentserver/internal/apierror"
)

// Account is one Gemini OAuth credential in the pool. Quota is tracked
// per-account rather than per-request: a 429 marks the account exhausted
// until ResetAt, at which point it becomes eligible again.
type Account struct {
	ID          string
	Label       string
	TokenSource oauth2.TokenSource

	mu        sync.Mutex
	lastUsed  time.Time
	exhausted bool
	resetAt   time.Time
}

// MarkUsed records that the account was just selected to serve a request.
func (a *Account) MarkUsed(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastUsed = now
	if a.exhausted && now.After(a.resetAt) {
		a.exhausted = false
	}
}

// MarkExhausted marks the account's quota exhausted until resetAt.
func (a *Account) MarkExhausted(resetAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exhausted = true
	a.resetAt = resetAt
}

func (a *Account) available(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.exhausted && now.After(a.resetAt) {
		a.exhausted = false
	}
	return !a.exhausted
}

func (a *Account) snapshotLastUsed() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUsed
}

// AccountPool selects among a set of quota-bearing Gemini OAuth accounts:
// least-recently-used whose quota has not exhausted, round-robin on tie.
type AccountPool struct {
	mu        sync.Mutex
	accounts  []*Account
	rrCounter uint64
}

// NewAccountPool builds a pool over the given accounts in the order given;
// that order is also the round-robin tie-break order.
func NewAccountPool(accounts ...*Account) *AccountPool {
	return &AccountPool{accounts: accounts}
}

// Add registers an additional account with the pool.
func (p *AccountPool) Add(account *Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = append(p.accounts, account)
}

// Select picks the least-recently-used account with unexhausted quota,
// breaking ties between equally-stale accounts by round robin, and marks
// the winner used. now is passed in (rather than time.Now()) so the
// selection logic stays a pure, testable function of state.
func (p *AccountPool) Select(now time.Time) (*Account, error) {
	p.mu.Lock()
	accounts := make([]*Account, len(p.accounts))
	copy(accounts, p.accounts)
	p.mu.Unlock()

	var candidates []*Account
	for _, a := range accounts {
		if a.available(now) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, apierror.New(apierror.KindRateLimited, "no gemini account has available quota")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].snapshotLastUsed().Before(candidates[j].snapshotLastUsed())
	})

	oldest := candidates[0].snapshotLastUsed()
	var tied []*Account
	for _, c := range candidates {
		if c.snapshotLastUsed().Equal(oldest) {
			tied = append(tied, c)
		}
	}

	var chosen *Account
	if len(tied) == 1 {
		chosen = tied[0]
	} else {
		p.mu.Lock()
		idx := int(p.rrCounter % uint64(len(tied)))
		p.rrCounter++
		p.mu.Unlock()
		chosen = tied[idx]
	}

	chosen.MarkUsed(now)
	return chosen, nil
}

// Resolve implements the model/task-level account resolution described in
// the adapter contract: quota-bearing tasks route through the pool, while
// API-key providers have effectively unbounded quota and need no pooling.
func (p *AccountPool) Resolve(ctx context.Context, modelName string) (*Account, error) {
	account, err := p.Select(time.Now())
	if err != nil {
		return nil, fmt.Errorf("resolve account for %s: %w", modelName, err)
	}
	return account, nil
}
