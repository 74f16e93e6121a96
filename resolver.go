package racedns

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// Resolver is an interface to resolve DNS queries. The context bounds the
// whole resolution, including any upstream network operations, and is used
// to cancel branches that lost a race.
type Resolver interface {
	Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error)
	fmt.Stringer
}
