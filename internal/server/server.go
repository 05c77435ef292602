package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/fortressbank/bankd/internal/session"
	"github.com/fortressbank/bankd/pkg/logger"
)

// Server accepts TCP connections and hands each one to the session
// handler on its own goroutine. Sessions are independent; a failure in
// one never touches another.
type Server struct {
	addr    string
	handler *session.Handler

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func New(addr string, handler *session.Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listen address and begins accepting. Returns once the
// listener is live.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	logger.Info("server listening", "addr", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr reports the bound address, useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept failed", "error", err)
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handler.Handle(s.ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Shutdown stops accepting, closes every live connection and waits for
// the session goroutines to drain. Closing the connections is what
// unblocks sessions parked in a read, so a silent client cannot hold
// shutdown hostage.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	logger.Info("server stopped")
}
