// Package server implements the network front of the core:
// the TCP listener speaking the framed client protocol, plain HTTP with
// WebSocket upgrade on the same port, and the UDP discovery responder.
//
// Connection handling runs on per-connection goroutines; all domain work is
// posted onto the single event loop, so sessions never touch the object
// graph concurrently.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/traintastic"
)

var (
	msgListening      = log.Register(log.Message{Code: "I3001", Severity: log.Info, Format: "listening on %s"})
	msgAcceptError    = log.Register(log.Message{Code: "W3002", Severity: log.Warning, Format: "accept failed: %v"})
	msgWriteQueueDrop = log.Register(log.Message{Code: "W3003", Severity: log.Warning, Format: "write queue full for %s, dropped oldest frame"})
	msgDiscovery      = log.Register(log.Message{Code: "I3004", Severity: log.Info, Format: "discovery responder on udp port %d"})
	msgServerStopped  = log.Register(log.Message{Code: "I3005", Severity: log.Info, Format: "server stopped"})
)

// Config selects the listener addresses. Zero values fall back to the
// root's settings object.
type Config struct {
	Address       string // bind address, default all interfaces
	Port          int
	DiscoveryPort int
}

// Server owns the TCP/HTTP listener, the discovery responder and the set
// of live connections.
type Server struct {
	root   *traintastic.Root
	loop   *eventloop.EventLoop
	logger *log.Registry
	cfg    Config

	ln        net.Listener
	discovery *discoveryResponder

	mu    sync.Mutex
	conns map[*connection]struct{}
}

func New(root *traintastic.Root, loop *eventloop.EventLoop, cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = root.Settings().Port()
	}
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = root.Settings().DiscoveryPort()
	}
	return &Server{
		root:   root,
		loop:   loop,
		logger: root.Logger(),
		cfg:    cfg,
		conns:  make(map[*connection]struct{}),
	}
}

// Start binds the TCP listener (and, when enabled, the UDP discovery
// responder) and begins accepting connections.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Log("", msgListening, ln.Addr())

	if s.root.Settings().DiscoveryEnabled() {
		d, err := newDiscoveryResponder(s.cfg.DiscoveryPort, s.logger)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.discovery = d
		s.logger.Log("", msgDiscovery, s.cfg.DiscoveryPort)
		go d.run()
	}

	go s.acceptLoop()
	return nil
}

// Addr returns the bound TCP address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Log("", msgAcceptError, err)
			}
			return
		}
		go s.serveConn(conn)
	}
}

// serveConn sniffs the first byte: an ASCII uppercase letter means an HTTP
// request line (GET, POST, …) and the connection is handed to the HTTP
// mux; anything else is a binary protocol frame whose first byte is a
// command id.
func (s *Server) serveConn(conn net.Conn) {
	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		_ = conn.Close()
		return
	}
	if first[0] >= 'A' && first[0] <= 'Z' {
		s.serveHTTP(conn, br)
		return
	}
	newConnection(s, &tcpFrameConn{c: conn, br: br})
}

func (s *Server) addConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) removeConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Stop closes the listener, the discovery responder and every live
// connection.
func (s *Server) Stop() {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	if s.discovery != nil {
		s.discovery.stop()
	}
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	s.logger.Log("", msgServerStopped)
}
