// Package transport adapts a net.Conn into the read/write contract used by
// relay sessions. Encryption, when configured, is applied inside the adapter so
// callers only ever see plaintext application bytes.
package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/kryptos/encryption"
)

// MaxFrameSize is the largest encrypted frame accepted from a peer.
const MaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a peer announces a frame above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Status classifies the outcome of a single Read.
type Status int

const (
	StatusClosed      Status = iota // peer disconnected or the read failed
	StatusEstablished               // connection is up, no payload yet
	StatusData                      // payload bytes were received
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "Closed"
	case StatusEstablished:
		return "Established"
	case StatusData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Transport is the capability a session needs from its connection.
type Transport interface {
	// Read returns the next payload. The first call reports StatusEstablished
	// without reading; later calls block until data arrives or the peer goes
	// away. StatusClosed carries a nil error for a clean EOF.
	Read() ([]byte, Status, error)

	// Write sends p to the peer.
	Write(p []byte) error

	// PeerAddress returns the remote address for diagnostics.
	PeerAddress() string

	// Close closes the underlying connection. Safe to call multiple times.
	Close() error
}

// Options configures a Conn.
type Options struct {
	// Codec encrypts outgoing and decrypts incoming frames. When nil the
	// connection is plaintext and unframed.
	Codec *encryption.Codec
	// ReadBufferSize is the chunk size used for plaintext reads.
	ReadBufferSize int
	// WriteTimeout bounds a single Write; 0 means no deadline.
	WriteTimeout time.Duration
}

// DefaultOptions returns plaintext Options with a 4096 byte read buffer and a
// 10 second write timeout.
func DefaultOptions() Options {
	return Options{
		ReadBufferSize: 4096,
		WriteTimeout:   10 * time.Second,
	}
}

// Conn implements Transport on top of a net.Conn.
//
// With a codec every message travels as a 4-byte little-endian length followed
// by that many ciphertext bytes. Without one, bytes are passed through as they
// arrive, which keeps plain telnet clients working.
type Conn struct {
	conn    net.Conn
	opts    Options
	addr    string
	buf     []byte
	started bool

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn.
//
// Parameters:
//   - conn: The accepted or dialed connection; Conn takes ownership of it
//   - opts: Framing, encryption and timeout settings
//
// Returns:
//   - A Conn ready for Read and Write
func NewConn(conn net.Conn, opts Options) *Conn {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 4096
	}

	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}

	return &Conn{
		conn: conn,
		opts: opts,
		addr: addr,
		buf:  make([]byte, opts.ReadBufferSize),
	}
}

// Read implements Transport. It must not be called concurrently with itself.
func (c *Conn) Read() ([]byte, Status, error) {
	if !c.started {
		c.started = true
		return nil, StatusEstablished, nil
	}

	if c.opts.Codec == nil {
		return c.readChunk()
	}

	return c.readFrame()
}

func (c *Conn) readChunk() ([]byte, Status, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, StatusData, nil
	}

	return nil, StatusClosed, closedErr(err)
}

func (c *Conn) readFrame() ([]byte, Status, error) {
	for {
		var header [4]byte
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			return nil, StatusClosed, closedErr(err)
		}

		size := binary.LittleEndian.Uint32(header[:])
		if size == 0 {
			continue
		}
		if size > MaxFrameSize {
			return nil, StatusClosed, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(c.conn, frame); err != nil {
			return nil, StatusClosed, closedErr(err)
		}

		plain, err := c.opts.Codec.Decrypt(frame)
		if err != nil {
			return nil, StatusClosed, fmt.Errorf("decrypt frame: %w", err)
		}
		if len(plain) == 0 {
			continue
		}

		return plain, StatusData, nil
	}
}

// closedErr maps a clean end of stream to nil.
func closedErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated frame: %w", err)
	}

	return err
}

// Write implements Transport. Callers serialise writes; the session's outbound
// lock does this for relay sessions.
func (c *Conn) Write(p []byte) error {
	payload := p
	if c.opts.Codec != nil {
		ct, err := c.opts.Codec.Encrypt(p)
		if err != nil {
			return err
		}

		var frame bytes.Buffer
		frame.Grow(4 + len(ct))
		_ = binary.Write(&frame, binary.LittleEndian, uint32(len(ct)))
		frame.Write(ct)
		payload = frame.Bytes()
	}

	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = c.conn.SetWriteDeadline(time.Time{})
		}()
	}

	_, err := c.conn.Write(payload)
	return err
}

// PeerAddress implements Transport.
func (c *Conn) PeerAddress() string {
	return c.addr
}

// Close implements Transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}
