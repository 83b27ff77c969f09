// Package network runs the framed TCP endpoints of the authority and the
// level-sites.
package network

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"sync"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Handler serves one accepted connection. The connection is closed when it
// returns.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

type TCPServer struct {
	name     string
	handler  Handler
	tls      *tls.Config
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTCPServer creates a server; tlsConfig may be nil for plain TCP.
func NewTCPServer(name string, handler Handler, tlsConfig *tls.Config) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{name: name, handler: handler, tls: tlsConfig, ctx: ctx, cancel: cancel}
}

// Listen binds addr without accepting yet.
func (s *TCPServer) Listen(addr string) error {
	var (
		listener net.Listener
		err      error
	)
	if s.tls != nil {
		listener, err = tls.Listen("tcp", addr, s.tls)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return common.TransportError("listening on "+addr, err)
	}
	s.listener = listener
	log.Lvlf1("[%s] listening on %s (tls: %v)", s.name, listener.Addr(), s.tls != nil)
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Close, one goroutine per connection.
func (s *TCPServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			log.Lvlf2("[%s] accept error: %v", s.name, err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Start listens on addr and serves.
func (s *TCPServer) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	log.Lvlf3("[%s] connection from %s", s.name, conn.RemoteAddr())
	s.handler.ServeConn(s.ctx, conn)
}

// Close stops accepting and waits for running connections.
func (s *TCPServer) Close() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// Dial connects to addr within timeout, over TLS when tlsConfig is set. A
// deadline on ctx bounds the whole connection.
func Dial(ctx context.Context, addr string, timeout time.Duration, tlsConfig *tls.Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if tlsConfig != nil {
		conn, err = (&tls.Dialer{NetDialer: d, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, common.TransportError("dialing "+addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, common.TransportError("setting deadline", err)
		}
	}
	return conn, nil
}

// ServerTLS loads the listener certificate; nil when TLS is disabled.
func ServerTLS(c config.TLSConfig) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, common.ConfigError("loading certificate", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// ClientTLS builds the dialer configuration; nil when TLS is disabled.
func ClientTLS(c config.TLSConfig) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	out := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.InsecureSkipVerify}
	if c.CA != "" {
		pem, err := os.ReadFile(c.CA)
		if err != nil {
			return nil, common.ConfigError("reading CA", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, common.ConfigError("no certificate in CA file", xerrors.New(c.CA))
		}
		out.RootCAs = pool
	}
	return out, nil
}
