// Package session holds the per-connection state of a relay client: its
// identity, its transport and the buffers that sit between them.
package session

import (
	"bytes"
	"sync"

	"github.com/cyberinferno/kryptos/transport"
)

// Handle wraps one accepted connection. It is shared between the session's
// worker, which reads, and the broadcast engine, which writes.
//
// The inbound side and the outbound side are guarded by separate mutexes, so a
// worker blocked in Receive never stops another goroutine from sending to the
// same session.
type Handle struct {
	id      uint64
	address string
	t       transport.Transport

	inMu    sync.Mutex
	inbound bytes.Buffer

	outMu    sync.Mutex
	outbound bytes.Buffer

	closeOnce sync.Once
	closeErr  error
}

// NewHandle creates a Handle for t.
//
// Parameters:
//   - id: The session ID assigned by the accept loop; it never changes
//   - t: The session's transport; the Handle takes ownership of it
//
// Returns:
//   - A new Handle with empty buffers
func NewHandle(id uint64, t transport.Transport) *Handle {
	return &Handle{
		id:      id,
		address: t.PeerAddress(),
		t:       t,
	}
}

// ID returns the session's unique identifier.
func (h *Handle) ID() uint64 {
	return h.id
}

// Address returns the peer address captured when the session was created.
func (h *Handle) Address() string {
	return h.address
}

// Receive performs one transport read under the inbound lock and appends any
// payload to the inbound buffer.
//
// Returns:
//   - The read status (Established, Data or Closed)
//   - The transport error when the status is Closed for a reason other than EOF
func (h *Handle) Receive() (transport.Status, error) {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	data, status, err := h.t.Read()
	if status == transport.StatusData {
		h.inbound.Write(data)
	}

	return status, err
}

// DrainInbound returns a copy of the inbound buffer and clears it.
//
// Returns:
//   - The bytes accumulated since the previous drain; nil if there are none
func (h *Handle) DrainInbound() []byte {
	h.inMu.Lock()
	defer h.inMu.Unlock()

	if h.inbound.Len() == 0 {
		return nil
	}

	msg := bytes.Clone(h.inbound.Bytes())
	h.inbound.Reset()
	return msg
}

// Send queues data on the outbound buffer and flushes it to the transport
// under the outbound lock. The buffer is emptied whether or not the write
// succeeds; nothing is retried.
//
// Parameters:
//   - data: The bytes to send
//
// Returns:
//   - The transport write error, if any
func (h *Handle) Send(data []byte) error {
	h.outMu.Lock()
	defer h.outMu.Unlock()

	h.outbound.Write(data)
	err := h.t.Write(h.outbound.Bytes())
	h.outbound.Reset()
	return err
}

// Close closes the transport. It is safe to call multiple times and from any
// goroutine; a worker blocked in Receive returns with StatusClosed.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.t.Close()
	})

	return h.closeErr
}
