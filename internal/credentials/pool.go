// package credentials distributes batches across accounts and serves their resolved tokens.
package credentials

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared token fetch, which does not follow any single caller's context.
const fetchTimeout = 30 * time.Second

// TokenFetcher exchanges an account's secret for a bearer token.
//
// An empty token with a nil error means the session yielded no usable token.
type TokenFetcher interface {
	FetchToken(ctx context.Context, acct *models.Account) (string, error)
}

// Pool holds the accounts of a batch and a per-credential token cache.
//
// Concurrent first requests for the same credential share a single fetch.
type Pool struct {
	accounts []*models.Account
	fetcher  TokenFetcher

	mu     sync.RWMutex
	tokens map[uint64]string
	group  singleflight.Group

	next atomic.Uint64
}

// NewPool creates a pool over accounts. The fetcher may be nil when every account carries a token.
func NewPool(accounts []*models.Account, fetcher TokenFetcher) *Pool {
	return &Pool{
		accounts: accounts,
		fetcher:  fetcher,
		tokens:   make(map[uint64]string),
	}
}

// Accounts returns the pool's accounts in configuration order.
func (p *Pool) Accounts() []*models.Account {
	return p.accounts
}

// Len is the number of accounts.
func (p *Pool) Len() int { return len(p.accounts) }

// Key is the stable cache key of a credential: a hash of its secret, pre-set token and proxy.
func Key(acct *models.Account) uint64 {
	h := xxhash.New()
	h.WriteString(acct.Secret)
	h.WriteString("\x00")
	h.WriteString(acct.Token)
	h.WriteString("\x00")
	h.WriteString(acct.Proxy)
	return h.Sum64()
}

// ResolveToken returns the cached token for acct, fetching it once if needed.
//
// The shared fetch ignores cancellation of the caller that started it, so other callers waiting on
// the same credential are not failed by it. Fetch failures are returned as is so a retry policy
// around the caller can classify them; an empty token is a [shared.KindCredential] error.
func (p *Pool) ResolveToken(ctx context.Context, acct *models.Account) (string, error) {
	key := Key(acct)

	p.mu.RLock()
	token, ok := p.tokens[key]
	p.mu.RUnlock()
	if ok {
		return token, nil
	}

	if acct.Token != "" {
		p.store(key, acct.Token)
		return acct.Token, nil
	}

	if p.fetcher == nil {
		return "", shared.Errorf(shared.KindCredential, "resolve token", "account %s has no token and no fetcher", acct.Name)
	}

	v, err, _ := p.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		p.mu.RLock()
		cached, ok := p.tokens[key]
		p.mu.RUnlock()
		if ok {
			return cached, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		token, err := p.fetcher.FetchToken(fetchCtx, acct)
		if err != nil {
			return "", err
		}
		if token == "" {
			return "", shared.Errorf(shared.KindCredential, "resolve token", "session for %s returned no access token", acct.Name)
		}
		p.store(key, token)
		return token, nil
	})
	if err != nil {
		return "", fmt.Errorf("account %s: %w", acct.Name, err)
	}
	return v.(string), nil
}

// Invalidate drops the cached token for acct so the next resolve fetches a fresh one.
func (p *Pool) Invalidate(acct *models.Account) {
	p.mu.Lock()
	delete(p.tokens, Key(acct))
	p.mu.Unlock()
}

// Cached reports whether a token is cached for acct.
func (p *Pool) Cached(acct *models.Account) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.tokens[Key(acct)]
	return ok
}

func (p *Pool) store(key uint64, token string) {
	p.mu.Lock()
	p.tokens[key] = token
	p.mu.Unlock()
}

// Next returns accounts cyclically. It returns nil when the pool is empty.
func (p *Pool) Next() *models.Account {
	if len(p.accounts) == 0 {
		return nil
	}
	i := p.next.Add(1) - 1
	return p.accounts[i%uint64(len(p.accounts))]
}

// Distribute slices jobs contiguously across the pool's accounts. See [Distribute].
func (p *Pool) Distribute(jobs []models.Job) *Distribution {
	return Distribute(jobs, p.accounts)
}

// RoundRobin assigns each job to the next account in rotation, one credential per job.
func (p *Pool) RoundRobin(jobs []models.Job) *Distribution {
	if len(p.accounts) == 0 || len(jobs) == 0 {
		return newDistribution(nil)
	}

	byName := make(map[string]int)
	var assignments []Assignment
	for _, job := range jobs {
		acct := p.Next()
		i, ok := byName[acct.Name]
		if !ok {
			i = len(assignments)
			byName[acct.Name] = i
			assignments = append(assignments, Assignment{Account: acct})
		}
		assignments[i].Jobs = append(assignments[i].Jobs, job)
	}
	return newDistribution(assignments)
}
