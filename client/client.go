// Package client provides an event-driven relay client. It speaks the same
// framing and cipher as the server's sessions and reports received messages,
// connection state changes and errors through registered handlers.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/kryptos/encryption"
	"github.com/cyberinferno/kryptos/transport"
)

var (
	ErrClosed       = errors.New("client is closed")
	ErrNotConnected = errors.New("not connected")
)

// State is the client's connection state.
type State int

const (
	Disconnected State = iota // Not connected; Connect may be called
	Connecting                // Dial in progress
	Connected                 // Connected to the relay
	Closed                    // Closed for good
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// StateEvent is passed to the OnConnectionState handler.
type StateEvent struct {
	State     State
	Address   string
	Timestamp time.Time
	Error     error // Set when the change was caused by an error
}

// MessageEvent is passed to the OnMessage handler.
type MessageEvent struct {
	Data      []byte // Owned by the handler
	Timestamp time.Time
}

// ErrorEvent is passed to the OnError handler.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

type (
	StateHandler   func(event StateEvent)
	MessageHandler func(event MessageEvent)
	ErrorHandler   func(event ErrorEvent)
)

// Config holds the client settings.
type Config struct {
	// Address is the relay's "host:port".
	Address string
	// Codec must match the relay's cipher and key; nil means plaintext.
	Codec *encryption.Codec
	// ReadBufferSize is the chunk size of plaintext reads.
	ReadBufferSize int
	// WriteTimeout bounds a single Send; 0 means no deadline.
	WriteTimeout time.Duration
	// ConnectionTimeout bounds the dial.
	ConnectionTimeout time.Duration
}

// DefaultConfig returns a plaintext Config for address with a 4096 byte read
// buffer and 10 second write and connection timeouts.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ReadBufferSize:    4096,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
	}
}

// Client is a relay client. Register handlers, then call Connect. Handlers run
// on the client's read goroutine or on the caller's goroutine and must not
// block for long; messages are delivered in arrival order.
type Client struct {
	config Config
	conn   *transport.Conn
	state  State
	closed bool

	onState   StateHandler
	onMessage MessageHandler
	onError   ErrorHandler

	mu      sync.RWMutex
	writeMu sync.Mutex
	wg      sync.WaitGroup

	dial func(network, address string) (net.Conn, error)
}

// NewClient creates a Disconnected client.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//
// Returns:
//   - A new *Client; call Close when done
func NewClient(config Config) *Client {
	dialer := &net.Dialer{Timeout: config.ConnectionTimeout}
	return &Client{
		config: config,
		state:  Disconnected,
		dial:   dialer.Dial,
	}
}

// OnConnectionState replaces the state change handler. nil clears it.
func (c *Client) OnConnectionState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// OnMessage replaces the handler for messages relayed from other clients and
// for acknowledgments. nil clears it.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnError replaces the error handler. nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the relay and starts reading.
//
// Returns:
//   - ErrClosed after Close, an error when already connected, or the dial error
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = Connecting
	c.mu.Unlock()
	c.emitState(Connecting, nil)

	raw, err := c.dial("tcp", c.config.Address)
	if err != nil {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		c.state = Disconnected
		c.mu.Unlock()

		c.emitState(Disconnected, err)
		c.emitError(err)
		return fmt.Errorf("failed to connect to %s: %w", c.config.Address, err)
	}

	conn := transport.NewConn(raw, transport.Options{
		Codec:          c.config.Codec,
		ReadBufferSize: c.config.ReadBufferSize,
		WriteTimeout:   c.config.WriteTimeout,
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = Connected
	c.wg.Add(1)
	c.mu.Unlock()

	c.emitState(Connected, nil)
	go c.readLoop(conn)

	return nil
}

// Send writes one message to the relay.
//
// Returns:
//   - ErrNotConnected when there is no connection, or the write error
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		c.emitError(err)
	}

	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Disconnect drops the current connection. Connect may be called again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if conn == nil || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Disconnected
	c.mu.Unlock()

	err := conn.Close()
	c.wg.Wait()
	c.emitState(Disconnected, nil)

	return err
}

// Close drops the connection, waits for the read goroutine and moves to
// Closed. Calling it more than once is safe.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	c.setState(Closed, nil)

	return nil
}

func (c *Client) readLoop(conn *transport.Conn) {
	defer c.wg.Done()

	for {
		data, status, err := conn.Read()
		switch status {
		case transport.StatusEstablished:
			continue
		case transport.StatusData:
			c.emitMessage(data)
			continue
		}

		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.conn = nil
			c.state = Disconnected
		}
		c.mu.Unlock()

		if !current {
			return
		}
		if err != nil {
			c.emitError(err)
		}
		_ = conn.Close()
		c.emitState(Disconnected, err)

		return
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emitState(state, err)
}

func (c *Client) emitState(state State, err error) {
	c.mu.RLock()
	handler := c.onState
	c.mu.RUnlock()

	if handler != nil {
		handler(StateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitMessage(data []byte) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		handler(MessageEvent{Data: data, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}
