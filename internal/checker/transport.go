package checker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"proxypool/internal/model"
)

// newTransport builds a keep-alive-free transport that routes every request
// through p according to its protocol.
func newTransport(p model.Candidate, timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 0,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	addr := net.JoinHostPort(p.IP, strconv.Itoa(p.Port))

	switch strings.ToLower(p.Protocol) {
	case "", model.ProtocolHTTP, model.ProtocolHTTPS:
		scheme := strings.ToLower(p.Protocol)
		if scheme == "" {
			scheme = model.ProtocolHTTP
		}
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: scheme, Host: addr})

	case model.ProtocolSOCKS5:
		socksDialer, err := proxy.SOCKS5("tcp", addr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		if cd, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, target string) (net.Conn, error) {
				return socksDialer.Dial(network, target)
			}
		}

	case model.ProtocolSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", addr, timeout))
		transport.DialContext = func(_ context.Context, network, target string) (net.Conn, error) {
			return dial(network, target)
		}

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", p.Protocol)
	}

	return transport, nil
}
