package control

import (
	"net"
	"sync"
)

// ConnectionSlot holds at most one control peer.
type ConnectionSlot struct {
	mu   sync.Mutex
	conn net.Conn
}

// Replace closes the previous connection, if any, then stores conn.
func (s *ConnectionSlot) Replace(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn != conn {
		s.conn.Close()
	}
	s.conn = conn
}

// Current returns the stored connection or nil.
func (s *ConnectionSlot) Current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Release forgets conn without closing it if it is still the stored one.
func (s *ConnectionSlot) Release(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

// Close closes and clears the stored connection.
func (s *ConnectionSlot) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
