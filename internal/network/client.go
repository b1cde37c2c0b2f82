package network

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/wire"
)

// Client is the non-host side of the UDP transport: one socket dialed at a
// host, a handshake, and a periodic ping to keep the host's session alive.
type Client struct {
	conn   *net.UDPConn
	logger *log.Logger

	mu        sync.Mutex
	playerID  uint16
	connected bool
	lastPing  time.Time

	// OnEvent is invoked for every decoded event from the host, including
	// Connected/Disconnected. It must not block.
	OnEvent func(event any)
}

// Dial opens a UDP socket toward addr (host:port) and sends the initial
// Hello handshake. It does not block for the server's reply; watch OnEvent
// for Connected or Disconnected.
func Dial(addr string, logger *log.Logger) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("network: dial %q: %w", addr, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{conn: conn, logger: logger}
	if err := c.Send(wire.Hello{BuildHash: wire.BuildHash()}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Close shuts down the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send encodes and writes event to the host.
func (c *Client) Send(event any) error {
	data, err := wire.Encode(event)
	if err != nil {
		return fmt.Errorf("network: encode %T: %w", event, err)
	}
	_, err = c.conn.Write(data)
	return err
}

// Run reads datagrams from the host until the socket is closed.
func (c *Client) Run() {
	buf := make([]byte, rules.MaxPacketSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		event, err := wire.Decode(data)
		if err != nil {
			c.logger.Printf("[netclient] malformed packet from host: %v", err)
			continue
		}

		switch e := event.(type) {
		case wire.Connected:
			c.mu.Lock()
			c.connected = true
			c.playerID = e.PlayerID
			c.mu.Unlock()
		case wire.Disconnected:
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
		case wire.SwitchPlayer:
			c.mu.Lock()
			if c.playerID == e.Old {
				c.playerID = e.New
			}
			c.mu.Unlock()
		}

		if c.OnEvent != nil {
			c.OnEvent(event)
		}
	}
}

// Ping sends a keepalive if rules.PingRate has elapsed since the last one.
// Call it on a fast timer; it no-ops between intervals.
func (c *Client) Ping() {
	c.mu.Lock()
	due := time.Since(c.lastPing) >= rules.PingRate
	if due {
		c.lastPing = time.Now()
	}
	c.mu.Unlock()
	if due {
		c.Send(wire.Ping{})
	}
}

// PlayerID returns the id assigned by the host, valid once Connected.
func (c *Client) PlayerID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Connected reports whether the host has admitted this client.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
