package transport

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T, key byte, maxFrame int) (*Session, *Session) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	type result struct {
		session *Session
		err     error
	}
	serverCh := make(chan result, 1)
	go func() {
		s, err := Open(serverConn, maxFrame)
		serverCh <- result{s, err}
	}()

	client, err := OpenClient(clientConn, key, maxFrame)
	require.NoError(t, err)

	server := <-serverCh
	require.NoError(t, server.err)
	return client, server.session
}

func TestHandshake_NegotiatesClientKey(t *testing.T) {
	client, server := openPair(t, 0x5A, 0)
	assert.Equal(t, byte(0x5A), server.Key())
	assert.Equal(t, byte(0x5A), client.Key())
}

func TestSendReceive_RoundTrip(t *testing.T) {
	client, server := openPair(t, 0x21, 0)

	go func() {
		_ = server.Send("Enter your choice: ")
	}()
	got, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, "Enter your choice: ", got)

	go func() {
		_ = client.Send("a")
	}()
	got, err = server.Receive()
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestSendReceive_KeyZeroClient(t *testing.T) {
	// Key 0 is a legal (if useless) client choice; frames pass through
	// unmasked.
	client, server := openPair(t, 0, 0)

	go func() {
		_ = client.Send("100")
	}()
	got, err := server.Receive()
	require.NoError(t, err)
	assert.Equal(t, "100", got)
}

func TestSendReceive_UTF8Payload(t *testing.T) {
	client, server := openPair(t, 0x7F, 0)

	message := "Balance: 500.00 ₹"
	go func() {
		_ = server.Send(message)
	}()
	got, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, message, got)
}

func TestSend_FrameTooLarge(t *testing.T) {
	client, _ := openPair(t, 0x10, 128)

	err := client.Send(strings.Repeat("x", 129))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestReceive_FrameTooLarge(t *testing.T) {
	// Sender accepts a bigger bound than the receiver so the oversized
	// frame is rejected on read, not silently truncated.
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	serverCh := make(chan *Session, 1)
	go func() {
		s, err := Open(serverConn, 64)
		if err != nil {
			serverCh <- nil
			return
		}
		serverCh <- s
	}()

	client, err := OpenClient(clientConn, 0x33, MaxFrameSize)
	require.NoError(t, err)
	server := <-serverCh
	require.NotNil(t, server)

	go func() {
		_ = client.Send(strings.Repeat("y", 65))
	}()
	_, err = server.Receive()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReceive_PeerClosed(t *testing.T) {
	client, server := openPair(t, 0x42, 0)

	require.NoError(t, client.Close())

	_, err := server.Receive()
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestSetIdleDeadline(t *testing.T) {
	_, server := openPair(t, 0x42, 0)

	require.NoError(t, server.SetIdleDeadline(10*time.Millisecond))
	_, err := server.Receive()
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestSetWriteTimeout(t *testing.T) {
	_, server := openPair(t, 0x42, 0)

	// The peer never drains, so the write must fail once the timeout
	// elapses instead of blocking the session.
	server.SetWriteTimeout(10 * time.Millisecond)
	err := server.Send("you have mail")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}
