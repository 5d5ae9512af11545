package observer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leosat/MMVJ/engine"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Deps{})
	s.port = 0
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		if s.running.Load() {
			_ = s.Stop(time.Second)
		}
	})
	return s
}

func dialIndicator(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	url := "ws://127.0.0.1:" + port + s.path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testFrames() []engine.IndicatorFrame {
	return []engine.IndicatorFrame{
		{
			Mapping:     "mappings[0]",
			Destination: "wheel/ABS_X",
			Value:       1200,
			Angle:       0.25,
			Force:       -0.1,
			HasSteering: true,
		},
	}
}

func TestServer_OfferWithoutClients(t *testing.T) {
	s := New(Deps{})
	s.Offer(testFrames())
	assert.Zero(t, s.FramesDropped())
}

func TestServer_BroadcastsFramesToClient(t *testing.T) {
	s := startTestServer(t)
	conn := dialIndicator(t, s)

	require.Eventually(t, func() bool { return s.Clients() == 1 },
		time.Second, time.Millisecond)

	s.Offer(testFrames())

	var msg frameMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "frames", msg.Type)
	require.Len(t, msg.Frames, 1)
	assert.Equal(t, "wheel/ABS_X", msg.Frames[0].Destination)
	assert.True(t, msg.Frames[0].HasSteering)
	assert.InDelta(t, 0.25, msg.Frames[0].Angle, 1e-9)
}

func TestServer_SlowClientLosesOldestFrames(t *testing.T) {
	s := New(Deps{})
	cl, err := s.newClient(&websocket.Conn{})
	require.NoError(t, err)
	s.clients[cl.conn] = cl

	for i := 0; i < clientBacklogDepth+2; i++ {
		s.Offer(testFrames())
	}

	assert.EqualValues(t, 2, s.FramesDropped())
	assert.Equal(t, clientBacklogDepth, cl.backlog.Size())
}

func TestServer_ClientDisconnectDetected(t *testing.T) {
	s := startTestServer(t)
	conn := dialIndicator(t, s)

	require.Eventually(t, func() bool { return s.Clients() == 1 },
		time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Clients() == 0 },
		time.Second, time.Millisecond)
}

func TestServer_InitializeValidatesPath(t *testing.T) {
	s := New(Deps{Path: "indicator"})
	require.Error(t, s.Initialize())

	s = New(Deps{Path: "/indicator"})
	require.NoError(t, s.Initialize())
}

func TestServer_Lifecycle(t *testing.T) {
	s := New(Deps{})
	s.port = 0

	assert.Error(t, s.Stop(time.Second))
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	assert.True(t, s.Health().Healthy)
	assert.NotEmpty(t, s.Addr())

	require.NoError(t, s.Stop(time.Second))
	assert.Error(t, s.Stop(time.Second))
	assert.False(t, s.Health().Healthy)
}

func TestServer_Meta(t *testing.T) {
	s := New(Deps{})
	meta := s.Meta()
	assert.Equal(t, "indicator", meta.Name)
	assert.Equal(t, "observer", meta.Type)
}
