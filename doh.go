package racedns

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jtacoma/uritemplates"
	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"
)

// Session is a persistent DNS-over-HTTPS channel to one provider. It owns
// its HTTP client and transport, so a broken session can be discarded and
// rebuilt by the pool without touching other providers. Sessions are shared
// by many concurrent races; all methods are safe for concurrent use.
type Session struct {
	provider *Provider
	client   *http.Client
	template *uritemplates.UriTemplate
	method   string
	udpConns *udpConnPool // only set for the quic transport
	metrics  *ListenerMetrics
}

func newSession(p *Provider, tlsConfig *tls.Config) (*Session, error) {
	template, err := uritemplates.Parse(dohEndpoint(p))
	if err != nil {
		return nil, err
	}

	var (
		tr    http.RoundTripper
		conns *udpConnPool
	)
	switch p.Transport {
	case "tcp", "":
		tr, err = dohTCPTransport(p, tlsConfig)
	case "quic":
		conns = new(udpConnPool)
		tr, err = dohQuicTransport(p, tlsConfig, conns)
	default:
		err = fmt.Errorf("unknown protocol: '%s'", p.Transport)
	}
	if err != nil {
		return nil, err
	}

	method := p.Method
	if method == "" {
		method = "POST"
	}

	return &Session{
		provider: p,
		client:   &http.Client{Transport: tr},
		template: template,
		method:   method,
		udpConns: conns,
		metrics:  NewListenerMetrics("provider", p.Name),
	}, nil
}

// Resolve sends the query over this session and decodes the answer. A
// non-nil error means the session or the response can't be trusted; the
// caller is expected to report the session to the pool.
func (s *Session) Resolve(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	// Add padding before sending the query over HTTPS
	padQuery(q)

	s.metrics.query.Add(1)
	switch s.method {
	case "GET":
		return s.resolveGET(ctx, q)
	default:
		return s.resolvePOST(ctx, q)
	}
}

// resolvePOST resolves a DNS query via DNS-over-HTTPS using the POST method.
func (s *Session) resolvePOST(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	b, err := q.Pack()
	if err != nil {
		s.metrics.err.Add("pack", 1)
		return nil, err
	}
	// The URL is a template. Process it without values since POST doesn't
	// use variables in the URL.
	u, err := s.template.Expand(map[string]interface{}{})
	if err != nil {
		s.metrics.err.Add("template", 1)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(b))
	if err != nil {
		s.metrics.err.Add("http", 1)
		return nil, err
	}
	req.Header.Add("accept", "application/dns-message")
	req.Header.Add("content-type", "application/dns-message")
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.err.Add("post", 1)
		return nil, err
	}
	defer resp.Body.Close()
	return s.responseFromHTTP(resp)
}

// resolveGET resolves a DNS query via DNS-over-HTTPS using the GET method.
func (s *Session) resolveGET(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	b, err := q.Pack()
	if err != nil {
		s.metrics.err.Add("pack", 1)
		return nil, err
	}
	// Encode the query as base64url without padding
	b64 := base64.RawURLEncoding.EncodeToString(b)

	u, err := s.template.Expand(map[string]interface{}{"dns": b64})
	if err != nil {
		s.metrics.err.Add("template", 1)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		s.metrics.err.Add("http", 1)
		return nil, err
	}
	req.Header.Add("accept", "application/dns-message")
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.err.Add("get", 1)
		return nil, err
	}
	defer resp.Body.Close()
	return s.responseFromHTTP(resp)
}

// Check the HTTP response status code and parse out the response DNS message.
func (s *Session) responseFromHTTP(resp *http.Response) (*dns.Msg, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.metrics.err.Add(fmt.Sprintf("http%d", resp.StatusCode), 1)
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, s.provider.Name)
	}
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.err.Add("read", 1)
		return nil, err
	}
	a := new(dns.Msg)
	if err := a.Unpack(rb); err != nil {
		s.metrics.err.Add("unpack", 1)
		return nil, err
	}
	s.metrics.response.Add(rCode(a), 1)
	return a, nil
}

// close tears down the transport. Queries still in flight on this session
// fail and report their own errors.
func (s *Session) close() {
	switch tr := s.client.Transport.(type) {
	case *http.Transport:
		tr.CloseIdleConnections()
	case *http3.RoundTripper:
		s.udpConns.closeAll()
		tr.Close()
	}
}

func (s *Session) String() string {
	return s.provider.Name
}

// The DoH URL for a provider. The hostname only serves SNI, certificate
// validation and the Host header; connections go to the configured address.
func dohEndpoint(p *Provider) string {
	host := p.Hostname
	if _, port, err := net.SplitHostPort(p.Addr); err == nil && port != "443" {
		host = net.JoinHostPort(p.Hostname, port)
	}
	return "https://" + host + "/dns-query{?dns}"
}

func dohTCPTransport(p *Provider, tlsConfig *tls.Config) (http.RoundTripper, error) {
	tr := &http.Transport{
		TLSClientConfig:       tlsConfig,
		DisableCompression:    true,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       30 * time.Second,
	}
	// With a custom tls.Config, HTTP2 isn't enabled by default in the HTTP
	// library. Turn it on for this transport.
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	// Dial the configured provider address rather than resolving the
	// hostname, which would need working DNS before DNS works.
	d := net.Dialer{}
	bootstrap := p.Addr
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.DialContext(ctx, network, bootstrap)
	}
	return tr, nil
}

func dohQuicTransport(p *Provider, tlsConfig *tls.Config, conns *udpConnPool) (http.RoundTripper, error) {
	tlsConfig = tlsConfig.Clone()
	tlsConfig.ServerName = p.Hostname

	// When using a custom dialer, we have to track/close connections ourselves
	dialer := func(ctx context.Context, addr string, tlsConfig *tls.Config, config *quic.Config) (quic.EarlyConnection, error) {
		return quicDial(ctx, p.Addr, tlsConfig, config, conns)
	}
	tr := &http3.RoundTripper{
		TLSClientConfig: tlsConfig,
		QuicConfig: &quic.Config{
			TokenStore: quic.NewLRUTokenStore(10, 10),
		},
		Dial: dialer,
	}
	return tr, nil
}

func quicDial(ctx context.Context, rAddr string, tlsConfig *tls.Config, config *quic.Config, conns *udpConnPool) (quic.EarlyConnection, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", rAddr)
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	conns.add(udpConn)
	return quic.DialEarly(ctx, udpConn, udpAddr, tlsConfig, config)
}

// UDP connection pool for the http3 transport. When using a custom dialer
// that opens its own UDP connections, http3.RoundTripper doesn't close them
// when the remote terminates a connection, or when calling Close(). So we
// keep track of the connections and close them all when the session is
// discarded.
type udpConnPool struct {
	conns []*net.UDPConn
	mu    sync.Mutex
}

func (p *udpConnPool) add(conn *net.UDPConn) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = append(p.conns, conn)
}

func (p *udpConnPool) closeAll() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		conn.Close()
	}
	p.conns = nil
}
