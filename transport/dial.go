package transport

import (
	"crypto/tls"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// DialOptions configures DialSocket. ProxyAddr, when non-empty, routes the
// connection through a SOCKS5 proxy rather than dialing addr directly.
type DialOptions struct {
	ProxyAddr string
	ProxyAuth *proxy.Auth
	TLSConfig *tls.Config
	Timeout   time.Duration
}

// DialSocket dials addr (optionally through a SOCKS5 proxy and/or with a
// TLS handshake) and wraps the result as a Socket.
func DialSocket(network, addr string, opts DialOptions) (*Socket, error) {
	dialer := &net.Dialer{Timeout: opts.Timeout}

	var conn net.Conn
	var err error
	if opts.ProxyAddr != "" {
		var d proxy.Dialer
		d, err = proxy.SOCKS5(network, opts.ProxyAddr, opts.ProxyAuth, dialer)
		if err != nil {
			return nil, err
		}
		conn, err = d.Dial(network, addr)
	} else {
		conn, err = dialer.Dial(network, addr)
	}
	if err != nil {
		return nil, err
	}

	if opts.TLSConfig != nil {
		tlsConn := tls.Client(conn, opts.TLSConfig)
		if opts.Timeout > 0 {
			_ = tlsConn.SetDeadline(time.Now().Add(opts.Timeout))
		}
		if err := tlsConn.Handshake(); err != nil {
			tlsConn.Close()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTLSHandshakeTimeout
			}
			return nil, err
		}
		if opts.Timeout > 0 {
			_ = tlsConn.SetDeadline(time.Time{})
		}
		conn = tlsConn
	}

	return NewSocket(conn, 0), nil
}
