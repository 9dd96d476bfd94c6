package server_test

import (
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/driftwave/driftws/server"
)

// newEchoFactory builds a handler that mirrors every text and binary
// message back to the sender; it also re-sends any pong it receives as
// a binary message so tests can observe pong receipt without a second
// socket. Ping replies are handled automatically by Connection itself.
func newEchoFactory(readyCh chan struct{}) server.HandlerFactory {
	return func(s *server.Server, c *server.Connection) server.ConnectionHandler {
		return server.HandlerFuncs{
			Ready: func(c *server.Connection) {
				if readyCh != nil {
					select {
					case readyCh <- struct{}{}:
					default:
					}
				}
			},
			Text: func(c *server.Connection, text string) {
				_ = c.SendUTF8(text)
			},
			Binary: func(c *server.Connection, data []byte) {
				_ = c.SendBinary(data)
			},
			Pong: func(c *server.Connection, payload []byte) {
				_ = c.SendBinary(append([]byte("pong:"), payload...))
			},
		}
	}
}

func startTestServer(t *testing.T, factory server.HandlerFactory) (wsURL string, srv *server.Server) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err = server.New(
		server.WithListener(ln),
		server.WithHandlerFactory(factory),
		server.WithSilenceMax(0),
	)
	require.NoError(t, err)

	go func() { _ = srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	u := url.URL{Scheme: "ws", Host: ln.Addr().String(), Path: "/"}
	return u.String(), srv
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHandshakeAndReady(t *testing.T) {
	readyCh := make(chan struct{}, 1)
	wsURL, srv := startTestServer(t, newEchoFactory(readyCh))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	select {
	case <-readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnReady did not fire after the handshake")
	}
}

func TestEchoEmptyTextMessage(t *testing.T) {
	wsURL, srv := startTestServer(t, newEchoFactory(nil))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("")))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	require.Empty(t, payload)
}

func TestEchoLargeBinaryMessage(t *testing.T) {
	wsURL, srv := startTestServer(t, newEchoFactory(nil))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	big := make([]byte, 70000) // over 65535: the echoed frame uses the 64-bit extended length
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, big))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	require.Equal(t, big, payload)
}

func TestEchoFullByteRangeBinaryMessage(t *testing.T) {
	wsURL, srv := startTestServer(t, newEchoFactory(nil))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	full := make([]byte, 256)
	for i := range full {
		full[i] = byte(i)
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, full))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, full, payload)
}

func TestPongEchoedAsBinary(t *testing.T) {
	wsURL, srv := startTestServer(t, newEchoFactory(nil))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.PongMessage, []byte("hi")))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	require.Equal(t, []byte("pong:hi"), payload)
}

func TestCleanCloseWithCustomCode(t *testing.T) {
	wsURL, srv := startTestServer(t, newEchoFactory(nil))
	defer srv.Shutdown()

	conn := dial(t, wsURL)
	defer conn.Close()

	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4242, "bye"), time.Now().Add(time.Second)))

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, fmt.Sprintf("expected close error, got %v", err))
	require.Equal(t, 4242, closeErr.Code)
}
