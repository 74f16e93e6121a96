package racedns

import (
	"fmt"

	"github.com/miekg/dns"
)

// QueryTimeoutError is returned when a query times out before any provider
// produced a usable response.
type QueryTimeoutError struct {
	query *dns.Msg
}

func (e QueryTimeoutError) Error() string {
	return fmt.Sprintf("query for '%s' timed out", qName(e.query))
}

// NoRouteError is returned when a query name matches no domain group and
// therefore has no candidate providers. A validated configuration makes this
// unreachable at query time; it exists as a per-query safety net.
type NoRouteError struct {
	name string
}

func (e NoRouteError) Error() string {
	return fmt.Sprintf("no provider route for '%s'", e.name)
}

// RaceFailedError is returned when every candidate provider in a race
// failed hard and no soft-failure response was available to fall back on.
type RaceFailedError struct {
	query *dns.Msg
}

func (e RaceFailedError) Error() string {
	return fmt.Sprintf("no provider returned a response for '%s'", qName(e.query))
}
