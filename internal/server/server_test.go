package server

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/traintastic"
	"github.com/traintastic/traintastic-go/internal/version"
	"github.com/traintastic/traintastic-go/internal/wire"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, pc.Close())
	return port
}

func startServer(t *testing.T) (*Server, int, int) {
	t.Helper()
	logger := log.NewRegistry(zap.NewNop().Sugar())
	loop := eventloop.New(256)
	loop.Run()
	t.Cleanup(loop.Stop)

	root, err := traintastic.New(t.TempDir(), loop, logger)
	require.NoError(t, err)
	root.NewWorld()

	tcpPort := freeTCPPort(t)
	udpPort := freeUDPPort(t)
	srv := New(root, loop, Config{Address: "127.0.0.1", Port: tcpPort, DiscoveryPort: udpPort})
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, tcpPort, udpPort
}

func TestDiscoveryResponse(t *testing.T) {
	_, _, udpPort := startServer(t)

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", udpPort))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.EncodeFrame(wire.CommandDiscover, wire.Request, 1, nil))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 1500, "response must fit one IPv4 datagram")

	h, err := wire.DecodeHeader(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, wire.CommandDiscover, h.Command)
	assert.Equal(t, wire.Response, h.Type)
	assert.Equal(t, uint32(1), h.RequestID)

	r := wire.NewReader(buf[wire.HeaderSize:n])
	hostname, err := r.ReadString()
	require.NoError(t, err)
	assert.NotEmpty(t, hostname)
	major, err := r.ReadUint16()
	require.NoError(t, err)
	minor, err := r.ReadUint16()
	require.NoError(t, err)
	patch, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(version.Major), major)
	assert.Equal(t, uint16(version.Minor), minor)
	assert.Equal(t, uint16(version.Patch), patch)
}

func TestTCPLoginAndNewSession(t *testing.T) {
	_, tcpPort, _ := startServer(t)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", tcpPort))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write(wire.EncodeFrame(wire.CommandLogin, wire.Request, 1, nil))
	require.NoError(t, err)
	h, payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.CommandLogin, h.Command)
	assert.Equal(t, wire.Response, h.Type)
	assert.Equal(t, uint32(1), h.RequestID)
	assert.Empty(t, payload)

	_, err = conn.Write(wire.EncodeFrame(wire.CommandNewSession, wire.Request, 2, nil))
	require.NoError(t, err)
	h, payload, err = wire.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.CommandNewSession, h.Command)
	assert.Equal(t, wire.Response, h.Type)
	assert.Equal(t, uint32(2), h.RequestID)

	r := wire.NewReader(payload)
	uuidBytes, err := r.ReadRaw(16)
	require.NoError(t, err)
	assert.Len(t, uuidBytes, 16)
	handle, err := r.ReadUint32()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, handle, uint32(1))
	isNew, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, isNew)
	class, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "traintastic", class)
}

func TestHTTPEndpoints(t *testing.T) {
	_, tcpPort, _ := startServer(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", tcpPort)

	resp, err := http.Get(base + "/version")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, version.String(), string(body))

	resp, err = http.Get(base + "/")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Traintastic")

	resp, err = http.Get(base + "/favicon.ico")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/throttle")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "Throttle")
}

func TestWebSocketClientSpeaksSameProtocol(t *testing.T) {
	_, tcpPort, _ := startServer(t)

	ws, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/client", tcpPort), nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, wire.EncodeFrame(wire.CommandPing, wire.Request, 7, nil)))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	h, err := wire.DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, wire.CommandPing, h.Command)
	assert.Equal(t, wire.Response, h.Type)
	assert.Equal(t, uint32(7), h.RequestID)
}
