package racedns

import (
	"context"
	"errors"

	"github.com/miekg/dns"
)

// Upstream is a pool-backed resolver for a single provider. It acquires a
// session for every query and reports transport faults back to the pool so
// the failed session is not reused by the next query.
type Upstream struct {
	provider *Provider
	pool     *Pool
}

var _ Resolver = &Upstream{}

// NewUpstream returns a resolver that queries one provider through the
// session pool.
func NewUpstream(provider *Provider, pool *Pool) *Upstream {
	return &Upstream{provider: provider, pool: pool}
}

// Resolve a DNS query via the provider's DoH session.
func (u *Upstream) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	s, err := u.pool.Acquire(ctx, u.provider.Name)
	if err != nil {
		return nil, err
	}
	defer u.pool.Release(u.provider.Name)

	a, err := s.Resolve(ctx, q)
	if err != nil {
		// A cancelled or expired context is how every losing race branch
		// ends. The session itself is still healthy, only a genuine
		// transport or decode failure leaves it in a state that must not
		// be reused silently.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			u.pool.Fail(u.provider.Name, s)
		}
		return nil, err
	}
	return a, nil
}

func (u *Upstream) String() string {
	return u.provider.Name
}
