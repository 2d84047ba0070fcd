package transport

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/kryptos/encryption"
)

func testCodec(t *testing.T) *encryption.Codec {
	t.Helper()
	c, err := encryption.New(encryption.AesCtr, []byte("0123456789abcdef"))
	require.NoError(t, err)
	return c
}

func TestConn_FirstReadIsEstablished(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, DefaultOptions())
	defer c.Close()

	data, status, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, StatusEstablished, status)
	assert.Nil(t, data)
}

func TestConn_PlaintextRead(t *testing.T) {
	server, client := net.Pipe()
	c := NewConn(server, DefaultOptions())
	defer c.Close()

	_, _, _ = c.Read()

	go func() {
		_, _ = client.Write([]byte("hello\n"))
		_ = client.Close()
	}()

	data, status, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, StatusData, status)
	assert.Equal(t, []byte("hello\n"), data)

	t.Run("eof is a clean close", func(t *testing.T) {
		data, status, err := c.Read()
		assert.NoError(t, err)
		assert.Equal(t, StatusClosed, status)
		assert.Nil(t, data)
	})
}

func TestConn_PlaintextWrite(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := NewConn(server, DefaultOptions())
	defer c.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Write([]byte("WELCOME")) }()

	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", string(buf[:n]))
	require.NoError(t, <-errCh)
}

func TestConn_EncryptedRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	opts := DefaultOptions()
	opts.Codec = testCodec(t)

	sender := NewConn(a, opts)
	receiver := NewConn(b, opts)
	defer sender.Close()
	defer receiver.Close()

	_, status, _ := receiver.Read()
	require.Equal(t, StatusEstablished, status)

	errCh := make(chan error, 1)
	go func() { errCh <- sender.Write([]byte("secret hello")) }()

	data, status, err := receiver.Read()
	require.NoError(t, err)
	assert.Equal(t, StatusData, status)
	assert.Equal(t, []byte("secret hello"), data)
	require.NoError(t, <-errCh)
}

func TestConn_FrameTooLarge(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := DefaultOptions()
	opts.Codec = testCodec(t)
	c := NewConn(server, opts)
	defer c.Close()
	_, _, _ = c.Read()

	go func() {
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], MaxFrameSize+1)
		_, _ = client.Write(header[:])
	}()

	_, status, err := c.Read()
	assert.Equal(t, StatusClosed, status)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConn_UndecryptableFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := DefaultOptions()
	opts.Codec = testCodec(t)
	c := NewConn(server, opts)
	defer c.Close()
	_, _, _ = c.Read()

	go func() {
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], 3)
		_, _ = client.Write(header[:])
		_, _ = client.Write([]byte{1, 2, 3})
	}()

	_, status, err := c.Read()
	assert.Equal(t, StatusClosed, status)
	assert.ErrorIs(t, err, encryption.ErrCiphertext)
}

func TestConn_WriteTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	opts := DefaultOptions()
	opts.WriteTimeout = 20 * time.Millisecond
	c := NewConn(server, opts)
	defer c.Close()

	// nobody reads from client, so the pipe write blocks until the deadline
	err := c.Write([]byte("stuck"))
	assert.Error(t, err)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, DefaultOptions())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, _, _ = c.Read()
	_, status, err := c.Read()
	assert.Equal(t, StatusClosed, status)
	assert.NoError(t, err)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Closed", StatusClosed.String())
	assert.Equal(t, "Established", StatusEstablished.String())
	assert.Equal(t, "Data", StatusData.String())
	assert.Equal(t, "Unknown", Status(7).String())
}
