package network

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/novaarena/core/internal/player"
	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/wire"
)

// Server is the host side of the UDP transport: it admits sessions,
// authorizes inbound events against the sender's admitted player id, and
// reaps sessions that stop pinging.
type Server struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	sessions map[string]*Session
	players  *player.Manager

	// OnEvent is invoked for every authorized, decoded event from an
	// admitted session. It must not block.
	OnEvent func(playerID uint16, event any)

	// OnTimeout is invoked once per session reaped by ReapTimeouts, after
	// the player slot has already been freed. It must not block.
	OnTimeout func(playerID uint16)

	closed bool
	logger *log.Logger
}

// ListenServer opens a UDP socket on port and returns a Server ready to
// Run. players backs admission (AddPlayer) and removal.
func ListenServer(port int, players *player.Manager, logger *log.Logger) (*Server, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: listen on port %d: %w", port, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		conn:     conn,
		sessions: make(map[string]*Session),
		players:  players,
		logger:   logger,
	}, nil
}

// Close shuts down the listening socket.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

// Run reads datagrams until the socket is closed. Call it from its own
// goroutine; it returns when Close is called.
func (s *Server) Run() {
	buf := make([]byte, rules.MaxPacketSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Printf("[netserver] read error: %v", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handlePacket(addr, data)
	}
}

func (s *Server) handlePacket(addr *net.UDPAddr, data []byte) {
	event, err := wire.Decode(data)
	if err != nil {
		s.logger.Printf("[netserver] malformed packet from %s: %v", addr, err)
		return
	}

	s.mu.Lock()
	sess, admitted := s.sessions[addrKey(addr)]
	s.mu.Unlock()

	if hello, ok := event.(wire.Hello); ok {
		s.admit(addr, hello)
		return
	}

	if !admitted {
		s.logger.Printf("[netserver] event from un-admitted address %s, dropping", addr)
		return
	}
	sess.touch()

	if _, ok := event.(wire.Ping); ok {
		return
	}

	if id, carriesID := wire.PlayerIDOf(event); carriesID && id != sess.PlayerID {
		s.logger.Printf("[netserver] player id mismatch from %s: packet claims %d, session is %d", addr, id, sess.PlayerID)
		return
	}

	if s.OnEvent != nil {
		s.OnEvent(sess.PlayerID, event)
	}
}

func (s *Server) admit(addr *net.UDPAddr, hello wire.Hello) {
	if hello.BuildHash != wire.BuildHash() {
		s.send(addr, wire.Disconnected{Reason: wire.ReasonCompatibility})
		return
	}

	s.mu.Lock()
	if _, already := s.sessions[addrKey(addr)]; already {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.players.HasFreeSlot() {
		s.send(addr, wire.Disconnected{Reason: wire.ReasonServerFull})
		return
	}
	p, err := s.players.AddPlayer()
	if err != nil {
		s.send(addr, wire.Disconnected{Reason: wire.ReasonServerFull})
		return
	}
	if err := s.players.SetSessionHandle(p.ID, addrKey(addr)); err != nil {
		s.logger.Printf("[netserver] SetSessionHandle(%d): %v", p.ID, err)
	}

	sess := &Session{Addr: addr, PlayerID: p.ID, LastSeen: time.Now()}
	s.mu.Lock()
	s.sessions[addrKey(addr)] = sess
	s.mu.Unlock()

	s.send(addr, wire.Connected{PlayerID: p.ID})
	s.logger.Printf("[netserver] admitted %s as player %d", addr, p.ID)
}

// ReapTimeouts disconnects and removes every session that hasn't been
// heard from within rules.ConnectionTimeout. Call it on a timer.
func (s *Server) ReapTimeouts() {
	now := time.Now()

	s.mu.Lock()
	var timedOut []*Session
	for key, sess := range s.sessions {
		if sess.timedOut(now, rules.ConnectionTimeout) {
			timedOut = append(timedOut, sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	for _, sess := range timedOut {
		s.logger.Printf("[netserver] player %d timed out", sess.PlayerID)
		s.players.RemovePlayer(sess.PlayerID)
		if s.OnTimeout != nil {
			s.OnTimeout(sess.PlayerID)
		}
	}
}

// Broadcast sends event to every admitted session.
func (s *Server) Broadcast(event any) {
	s.mu.Lock()
	addrs := make([]*net.UDPAddr, 0, len(s.sessions))
	for _, sess := range s.sessions {
		addrs = append(addrs, sess.Addr)
	}
	s.mu.Unlock()

	for _, addr := range addrs {
		s.send(addr, event)
	}
}

func (s *Server) send(addr *net.UDPAddr, event any) {
	data, err := wire.Encode(event)
	if err != nil {
		s.logger.Printf("[netserver] encode %T: %v", event, err)
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.logger.Printf("[netserver] write to %s: %v", addr, err)
	}
}

// SessionCount reports how many sessions are currently admitted.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
