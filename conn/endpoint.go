package conn

import (
	"context"
	"net"
	"strings"
)

const defaultPort = "27017"

// Endpoint represents the location of a server.
type Endpoint string

// Canonicalize takes an endpoint and applies some transformations to it.
func (ep Endpoint) Canonicalize() Endpoint {
	s := strings.ToLower(string(ep))
	if !strings.Contains(s, "sock") {
		_, _, err := net.SplitHostPort(s)
		if err != nil && strings.Contains(err.Error(), "missing port in address") {
			s += ":" + defaultPort
		}
	}

	return Endpoint(s)
}

// EndpointDialer is a function that dials an endpoint. Supplying a
// custom dialer is the seam for TLS and unix domain sockets.
type EndpointDialer func(context.Context, Endpoint) (net.Conn, error)

// DialEndpoint dials an endpoint over TCP.
func DialEndpoint(ctx context.Context, endpoint Endpoint) (net.Conn, error) {
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", string(endpoint.Canonicalize()))
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)
	}

	return netConn, nil
}
