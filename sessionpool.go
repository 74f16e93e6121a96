package racedns

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Number of concurrent in-flight requests allowed on one provider session.
// HTTP/2 and HTTP/3 multiplex streams over a single connection, the cap
// keeps a stalled provider from absorbing unbounded race branches.
const maxInflight = 8

// Pool manages one reusable DoH session per provider. Sessions are created
// lazily, reused across queries and discarded on transport faults so the
// next acquire transparently establishes a fresh one.
type Pool struct {
	entries map[string]*poolEntry
}

type poolEntry struct {
	provider  *Provider
	tlsConfig *tls.Config
	sem       *semaphore.Weighted

	mu      sync.Mutex
	session *Session
}

// NewPool builds a session pool for every provider in the registry. TLS
// configurations are validated here so certificate problems fail at
// startup, not on the first query.
func NewPool(reg *Registry) (*Pool, error) {
	entries := make(map[string]*poolEntry)
	for _, p := range reg.Providers() {
		tlsConfig, err := TLSClientConfig(p.CAFile, p.ClientCrtFile, p.ClientKeyFile, p.Hostname)
		if err != nil {
			return nil, errors.Wrapf(err, "provider '%s'", p.Name)
		}
		entries[p.Name] = &poolEntry{
			provider:  p,
			tlsConfig: tlsConfig,
			sem:       semaphore.NewWeighted(maxInflight),
		}
	}
	return &Pool{entries: entries}, nil
}

// Acquire returns a usable session for the provider, establishing one on
// demand. It blocks while the provider is at its concurrency limit and
// honors context cancellation, so a query that hits its deadline never
// stays stuck waiting on a slot. Every successful Acquire must be paired
// with a Release.
func (p *Pool) Acquire(ctx context.Context, provider string) (*Session, error) {
	e, ok := p.entries[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider '%s'", provider)
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	s, err := e.current()
	if err != nil {
		e.sem.Release(1)
		return nil, err
	}
	return s, nil
}

// Release returns the concurrency slot taken by Acquire.
func (p *Pool) Release(provider string) {
	if e, ok := p.entries[provider]; ok {
		e.sem.Release(1)
	}
}

// Fail reports a transport fault on a session. The session is discarded if
// it is still the one handed out for this provider; a stale report, where
// another query already replaced the session, is ignored. Discarding only
// locks the one provider's slot, never the whole pool.
func (p *Pool) Fail(provider string, s *Session) {
	e, ok := p.entries[provider]
	if !ok || s == nil {
		return
	}
	e.mu.Lock()
	if e.session != s {
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.mu.Unlock()

	Log.WithField("provider", provider).Debug("discarding failed session")
	s.close()
}

func (e *poolEntry) current() (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return e.session, nil
	}
	Log.WithFields(logrus.Fields{
		"provider": e.provider.Name,
		"addr":     e.provider.Addr,
	}).Debug("establishing session")
	s, err := newSession(e.provider, e.tlsConfig)
	if err != nil {
		return nil, err
	}
	e.session = s
	return s, nil
}
