package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// transports keeps one HTTP transport per proxy route and one rate limiter per account.
type transports struct {
	base    http.RoundTripper
	timeout time.Duration
	rps     float64

	mu       sync.Mutex
	byProxy  map[string]http.RoundTripper
	limiters map[string]*rate.Limiter
}

func newTransports(base http.RoundTripper, timeout time.Duration, rps float64) *transports {
	return &transports{
		base:     base,
		timeout:  timeout,
		rps:      rps,
		byProxy:  make(map[string]http.RoundTripper),
		limiters: make(map[string]*rate.Limiter),
	}
}

// client returns a plain HTTP client routed through the account's proxy.
func (t *transports) client(acct *models.Account) (*http.Client, error) {
	rt, err := t.roundTripper(acct)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: rt, Timeout: t.timeout}, nil
}

// authorized returns a client that sends token as a bearer credential.
func (t *transports) authorized(ctx context.Context, auth Auth) (*http.Client, error) {
	base, err := t.client(auth.Account)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = t.timeout
	return client, nil
}

func (t *transports) roundTripper(acct *models.Account) (http.RoundTripper, error) {
	proxy := ""
	if acct != nil {
		proxy = acct.Proxy
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if rt, ok := t.byProxy[proxy]; ok {
		return rt, nil
	}

	var rt http.RoundTripper
	switch {
	case t.base != nil:
		rt = t.base
	case proxy == "":
		rt = http.DefaultTransport
	default:
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy %q: %v", shared.ErrInvalidConfig, proxy, err)
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.Proxy = http.ProxyURL(u)
		rt = tr
	}
	t.byProxy[proxy] = rt
	return rt, nil
}

// wait paces requests made with acct.
func (t *transports) wait(ctx context.Context, acct *models.Account) error {
	if t.rps <= 0 || acct == nil {
		return nil
	}

	t.mu.Lock()
	l, ok := t.limiters[acct.Name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.rps), 1)
		t.limiters[acct.Name] = l
	}
	t.mu.Unlock()

	if err := l.Wait(ctx); err != nil {
		return shared.NewError(shared.KindCancelled, "rate limit", err)
	}
	return nil
}

// transportError classifies a failed round trip.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return shared.NewError(shared.KindTimeout, op, err)
		}
		return shared.NewError(shared.KindCancelled, op, err)
	}
	if shared.KindOf(err) == shared.KindTimeout {
		return shared.NewError(shared.KindTimeout, op, err)
	}
	return shared.NewError(shared.KindNetwork, op, err)
}

// statusError classifies a non-2xx response.
func statusError(op string, code int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 300 {
		snippet = snippet[:300] + "..."
	}
	cause := fmt.Errorf("HTTP %d: %s", code, snippet)

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return shared.NewError(shared.KindCredential, op, cause)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return shared.NewError(shared.KindServer, op, cause)
	case code >= 500:
		return shared.NewError(shared.KindServer, op, cause)
	default:
		return shared.NewError(shared.KindBadRequest, op, cause)
	}
}
