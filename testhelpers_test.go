package racedns

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/miekg/dns"
)

// TestResolver is a configurable fake resolver that counts invocations.
type TestResolver struct {
	ResolveFunc func(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error)
	hitCount    int32
}

func (r *TestResolver) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	atomic.AddInt32(&r.hitCount, 1)
	if r.ResolveFunc != nil {
		return r.ResolveFunc(ctx, q, ci)
	}
	a := new(dns.Msg)
	a.SetReply(q)
	return a, nil
}

func (r *TestResolver) HitCount() int {
	return int(atomic.LoadInt32(&r.hitCount))
}

func (r *TestResolver) String() string {
	return "TestResolver()"
}

// Returns an A record answer for a query.
func testAnswer(q *dns.Msg) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Answer = []dns.RR{
		&dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Question[0].Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
			},
			A: net.IP{127, 0, 0, 1},
		},
	}
	return a
}

// Find a free local address for a listener.
func getLnAddress() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("127.0.0.1:%d", port), nil
}
