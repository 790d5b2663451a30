package events

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Server accepts TCP subscribers and registers them with the hub.
type Server struct {
	Addr string
	Hub  *Hub

	logger *zap.Logger
	mu     sync.Mutex
	ln     net.Listener
}

func NewServer(addr string, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Hub: hub, logger: logger}
}

// Run blocks until Close is called or the listener fails.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("tcp event stream listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("tcp accept failed", zap.Error(err))
			continue
		}

		s.Hub.Welcome(conn)
		s.Hub.Add(conn)
		s.logger.Debug("tcp subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

		go func(c net.Conn) {
			defer func() {
				s.Hub.Remove(c)
				s.logger.Debug("tcp subscriber disconnected", zap.String("remote", c.RemoteAddr().String()))
			}()

			// subscribers only listen; drain anything they send
			sc := bufio.NewScanner(c)
			for sc.Scan() {
			}
		}(conn)
	}
}

// ListenAddr is the bound address once Run has started listening.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
