package racedns

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Race resolves queries by routing them to a candidate provider set and
// querying all candidates concurrently, answering with the first acceptable
// response. Slower branches are cancelled once a winner is found; their
// results are discarded. Races are stateless, every query starts fresh with
// no learned provider preference.
type Race struct {
	id        string
	router    *Router
	upstreams map[string]Resolver
	opt       RaceOptions
	metrics   *RaceMetrics
}

var _ Resolver = &Race{}

// RaceOptions contain the timeouts applied to every query.
type RaceOptions struct {
	// Overall deadline for one query. Defaults to 3s.
	QueryTimeout time.Duration

	// Timeout for a single provider branch. Capped at QueryTimeout,
	// defaults to QueryTimeout.
	BranchTimeout time.Duration
}

// NewRace returns a race coordinator over the routing index. The upstreams
// map must hold one resolver per provider name in the router, any provider
// without one is a wiring error caught here rather than mid-query.
func NewRace(id string, router *Router, upstreams map[string]Resolver, opt RaceOptions) (*Race, error) {
	for _, p := range router.providers {
		if upstreams[p.Name] == nil {
			return nil, fmt.Errorf("no upstream resolver for provider '%s'", p.Name)
		}
	}
	if opt.QueryTimeout <= 0 {
		opt.QueryTimeout = 3 * time.Second
	}
	if opt.BranchTimeout <= 0 || opt.BranchTimeout > opt.QueryTimeout {
		opt.BranchTimeout = opt.QueryTimeout
	}
	return &Race{
		id:        id,
		router:    router,
		upstreams: upstreams,
		opt:       opt,
		metrics:   NewRaceMetrics(id),
	}, nil
}

// Per-branch outcome classification. Only acceptable responses win a race,
// a soft-failure is kept as fallback, hard-failures never reach the client
// while something better can still arrive.
type outcome int

const (
	acceptable outcome = iota
	softFailure
	hardFailure
)

func classify(a *dns.Msg, err error) outcome {
	if err != nil || a == nil {
		return hardFailure
	}
	switch a.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
		return acceptable
	}
	return softFailure
}

type branchResult struct {
	upstream Resolver
	a        *dns.Msg
	err      error
	rtt      time.Duration
}

// Resolve a DNS query by racing all candidate providers for its name.
func (r *Race) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	log := logger(r.id, q, ci)

	candidates := r.router.Route(qName(q))
	if len(candidates) == 0 {
		r.metrics.fail.Add(1)
		return nil, NoRouteError{name: qName(q)}
	}
	r.metrics.race.Add(1)

	ctx, cancel := context.WithTimeout(ctx, r.opt.QueryTimeout)
	defer cancel()

	// Send the query to all candidates. Responses are collected in a
	// buffered channel so abandoned branches never block.
	responseCh := make(chan branchResult, len(candidates))
	for _, provider := range candidates {
		upstream := r.upstreams[provider.Name]
		go func() {
			bctx, bcancel := context.WithTimeout(ctx, r.opt.BranchTimeout)
			defer bcancel()
			start := time.Now()
			a, err := upstream.Resolve(bctx, q.Copy(), ci)
			responseCh <- branchResult{upstream, a, err, time.Since(start)}
		}()
	}

	// Wait for branches as they complete. The first acceptable response is
	// returned immediately and the remaining branches are cancelled. The
	// first soft-failure is kept in case nothing acceptable arrives.
	var firstSoft *dns.Msg
	pending := len(candidates)
	for pending > 0 {
		select {
		case res := <-responseCh:
			pending--
			blog := log.WithFields(logrus.Fields{
				"provider": res.upstream.String(),
				"rtt":      res.rtt,
			})
			switch classify(res.a, res.err) {
			case acceptable:
				blog.WithField("rcode", rCode(res.a)).Debug("using response from provider")
				r.metrics.win.Add(res.upstream.String(), 1)
				return res.a, nil
			case softFailure:
				blog.WithField("rcode", rCode(res.a)).Debug("provider returned server-side failure, waiting for next response")
				if firstSoft == nil {
					firstSoft = res.a
				}
			default:
				blog.WithError(res.err).Debug("provider failed")
			}
		case <-ctx.Done():
			// Deadline expired, resolve from whatever arrived so far. The
			// channel is buffered, so results that came in just before the
			// deadline are still collected.
			for pending > 0 {
				select {
				case res := <-responseCh:
					pending--
					switch classify(res.a, res.err) {
					case acceptable:
						r.metrics.win.Add(res.upstream.String(), 1)
						return res.a, nil
					case softFailure:
						if firstSoft == nil {
							firstSoft = res.a
						}
					}
				default:
					pending = 0
				}
			}
		}
	}

	if firstSoft != nil {
		log.Debug("no acceptable response, using first server-side failure")
		r.metrics.fallback.Add(1)
		return firstSoft, nil
	}
	r.metrics.fail.Add(1)
	if ctx.Err() != nil {
		return nil, QueryTimeoutError{q}
	}
	return nil, RaceFailedError{q}
}

func (r *Race) String() string {
	return r.id
}
