package racedns

import (
	"context"
	"net"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DNSListener is a standard DNS listener for UDP or TCP.
type DNSListener struct {
	*dns.Server
	id string
}

var _ Listener = &DNSListener{}

// ListenOptions contain options common to all DNS listeners.
type ListenOptions struct {
	// Networks allowed to query this listener. An empty list allows all.
	AllowedNet []*net.IPNet
}

// NewDNSListener returns an instance of either a UDP or TCP DNS listener.
func NewDNSListener(id, addr, net string, opt ListenOptions, resolver Resolver) *DNSListener {
	return &DNSListener{
		id: id,
		Server: &dns.Server{
			Addr:    addr,
			Net:     net,
			Handler: listenHandler(id, net, addr, resolver, opt.AllowedNet),
		},
	}
}

// Start the DNS listener.
func (s DNSListener) Start() error {
	Log.WithFields(logrus.Fields{
		"id":       s.id,
		"protocol": s.Net,
		"addr":     s.Addr,
	}).Info("starting listener")
	return s.ListenAndServe()
}

// Stop the DNS listener gracefully, waiting for in-flight queries.
func (s DNSListener) Stop() error {
	Log.WithFields(logrus.Fields{
		"id":       s.id,
		"protocol": s.Net,
		"addr":     s.Addr,
	}).Info("stopping listener")
	return s.Shutdown()
}

func (s DNSListener) String() string {
	return s.id
}

// DNS handler to forward all incoming requests to a given resolver.
func listenHandler(id, protocol, addr string, r Resolver, allowedNet []*net.IPNet) dns.HandlerFunc {
	metrics := NewListenerMetrics("listener", id)
	return func(w dns.ResponseWriter, req *dns.Msg) {
		ci := ClientInfo{
			Listener: id,
		}
		switch addr := w.RemoteAddr().(type) {
		case *net.TCPAddr:
			ci.SourceIP = addr.IP
		case *net.UDPAddr:
			ci.SourceIP = addr.IP
		}

		log := logger(id, req, ci).WithFields(logrus.Fields{
			"protocol": protocol,
			"addr":     addr,
		})
		log.Debug("received query")
		metrics.query.Add(1)

		var (
			a   *dns.Msg
			err error
		)
		if isAllowed(allowedNet, ci.SourceIP) {
			log.WithField("resolver", r.String()).Debug("forwarding query to resolver")
			a, err = r.Resolve(context.Background(), req, ci)
			if err != nil {
				// A failed race is answered with SERVFAIL, the client
				// connection is never dropped.
				metrics.err.Add("resolve", 1)
				log.WithError(err).Error("failed to resolve")
				a = servfail(req)
			}
		} else {
			metrics.err.Add("acl", 1)
			log.Debug("refusing client ip")
			a = responseWithCode(req, dns.RcodeRefused)
		}

		if a == nil {
			w.Close()
			metrics.drop.Add(1)
			return
		}

		// Responses came in over HTTPS and may be padded. The client side
		// here is plain DNS, so strip it.
		stripPadding(a)

		// Check the response actually fits if the query was sent over UDP.
		// If not, respond with the TC flag.
		if protocol == "udp" {
			maxSize := dns.MinMsgSize
			if edns0 := req.IsEdns0(); edns0 != nil {
				maxSize = int(edns0.UDPSize())
			}
			a.Truncate(maxSize)
		}

		metrics.response.Add(rCode(a), 1)
		_ = w.WriteMsg(a)
	}
}

func isAllowed(allowedNet []*net.IPNet, ip net.IP) bool {
	if len(allowedNet) == 0 {
		return true
	}
	for _, net := range allowedNet {
		if net.Contains(ip) {
			return true
		}
	}
	return false
}
