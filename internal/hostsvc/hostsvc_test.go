package hostsvc

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deckbridge/deckd/internal/inputs"
)

// hostServer plays the host plugin side of the socket: it accepts one
// connection, records every frame the agent sends and can inject inbound
// frames.
type hostServer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	frames chan map[string]any
}

func newHostServer(t *testing.T) *hostServer {
	t.Helper()
	h := &hostServer{
		conns:  make(chan *websocket.Conn, 4),
		frames: make(chan map[string]any, 64),
	}
	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns <- conn
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			h.frames <- frame
		}
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hostServer) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *hostServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-h.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("host never saw a connection")
		return nil
	}
}

func (h *hostServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

type recordingHandler struct {
	mu         sync.Mutex
	images     []SetImageRequest
	brightness []SetBrightnessRequest
}

func (r *recordingHandler) SetImage(_ context.Context, req SetImageRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, req)
	return nil
}

func (r *recordingHandler) SetBrightness(_ context.Context, req SetBrightnessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brightness = append(r.brightness, req)
	return nil
}

func (r *recordingHandler) imageRequests() []SetImageRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SetImageRequest, len(r.images))
	copy(out, r.images)
	return out
}

func (r *recordingHandler) brightnessRequests() []SetBrightnessRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SetBrightnessRequest, len(r.brightness))
	copy(out, r.brightness)
	return out
}

func startService(t *testing.T, url string, handler RequestHandler) *Service {
	t.Helper()
	svc := New(zap.NewNop(), url, WithBackoffTimeout(50*time.Millisecond))
	if handler != nil {
		svc.SetHandler(handler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)
	select {
	case <-svc.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("service never connected")
	}
	return svc
}

func TestOutboundFrames(t *testing.T) {
	host := newHostServer(t)
	svc := startService(t, host.url(), nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDevice(ctx, Registration{
		ID: "n5-A500", Name: "Ajazz AKP05", Rows: 2, Cols: 5,
		Encoders: 4, TouchZones: 4, Class: 7,
	}))
	frame := host.next(t)
	assert.Equal(t, "registerDevice", frame["event"])
	assert.Equal(t, "n5-A500", frame["device"])
	assert.Equal(t, float64(2), frame["rows"])
	assert.Equal(t, float64(5), frame["columns"])
	assert.Equal(t, float64(4), frame["encoders"])
	assert.Equal(t, float64(4), frame["touchZones"])
	assert.Equal(t, float64(7), frame["type"])

	tests := []struct {
		ev   inputs.Event
		want map[string]any
	}{
		{inputs.ButtonPress{Index: 7, Pressed: true},
			map[string]any{"event": "keyDown", "position": float64(7)}},
		{inputs.ButtonPress{Index: 7, Pressed: false},
			map[string]any{"event": "keyUp", "position": float64(7)}},
		{inputs.EncoderPress{Index: 1, Pressed: true},
			map[string]any{"event": "encoderDown", "position": float64(1)}},
		{inputs.EncoderTwist{Index: 2, Delta: -1},
			map[string]any{"event": "encoderChange", "position": float64(2), "ticks": float64(-1)}},
		{inputs.TouchTap{Zone: 3},
			map[string]any{"event": "touchTap", "zone": float64(3)}},
		{inputs.TouchSwipe{Direction: inputs.SwipeLeft},
			map[string]any{"event": "touchSwipe", "direction": "left"}},
		{inputs.Unknown{Code: 0x99, State: 2},
			map[string]any{"event": "unknownInput", "code": float64(0x99), "state": float64(2)}},
	}
	for _, tt := range tests {
		require.NoError(t, svc.ForwardInput(ctx, "n5-A500", tt.ev))
		frame := host.next(t)
		assert.Equal(t, "n5-A500", frame["device"])
		for k, v := range tt.want {
			assert.Equal(t, v, frame[k], "field %q for %T", k, tt.ev)
		}
	}

	require.NoError(t, svc.DeregisterDevice(ctx, "n5-A500"))
	frame = host.next(t)
	assert.Equal(t, "deregisterDevice", frame["event"])
}

func TestSendBeforeConnect(t *testing.T) {
	svc := New(zap.NewNop(), "ws://127.0.0.1:1/never")
	err := svc.DeregisterDevice(context.Background(), "n5-A500")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestInboundSetImage(t *testing.T) {
	host := newHostServer(t)
	handler := &recordingHandler{}
	startService(t, host.url(), handler)
	conn := host.conn(t)

	payload := []byte("fake png bytes")
	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	pos := 3
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event":    "setImage",
		"device":   "n5-A500",
		"position": pos,
		"surface":  "touch",
		"image":    img,
	}))

	require.Eventually(t, func() bool {
		return len(handler.imageRequests()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	req := handler.imageRequests()[0]
	assert.Equal(t, "n5-A500", req.Device)
	assert.True(t, req.HasPosition)
	assert.Equal(t, 3, req.Position)
	assert.True(t, req.Touch)
	assert.Equal(t, payload, req.Payload)
}

func TestInboundSetImageWithoutPositionClearsAll(t *testing.T) {
	host := newHostServer(t)
	handler := &recordingHandler{}
	startService(t, host.url(), handler)
	conn := host.conn(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event":  "setImage",
		"device": "n5-A500",
	}))

	require.Eventually(t, func() bool {
		return len(handler.imageRequests()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	req := handler.imageRequests()[0]
	assert.False(t, req.HasPosition)
	assert.Nil(t, req.Payload)
}

func TestInboundSetImageRejectsBadPayload(t *testing.T) {
	host := newHostServer(t)
	handler := &recordingHandler{}
	startService(t, host.url(), handler)
	conn := host.conn(t)

	// Not a data URL at all, then a data URL with a non-image media type.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "setImage", "device": "n5-A500", "position": 0,
		"image": "http://example.com/icon.png",
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "setImage", "device": "n5-A500", "position": 0,
		"image": "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hi")),
	}))
	// A valid frame afterwards proves the rejects were dropped, not fatal.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "setImage", "device": "n5-A500",
	}))

	require.Eventually(t, func() bool {
		return len(handler.imageRequests()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, handler.imageRequests()[0].HasPosition)
}

func TestInboundSetBrightness(t *testing.T) {
	host := newHostServer(t)
	handler := &recordingHandler{}
	startService(t, host.url(), handler)
	conn := host.conn(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "setBrightness", "device": "n5-A500",
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": "setBrightness", "device": "n5-A500", "brightness": 70,
	}))

	require.Eventually(t, func() bool {
		return len(handler.brightnessRequests()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	req := handler.brightnessRequests()[0]
	assert.Equal(t, "n5-A500", req.Device)
	assert.Equal(t, 70, req.Level)
}

func TestReconnectReleasesConnectionWatchers(t *testing.T) {
	host := newHostServer(t)
	startService(t, host.url(), nil)
	conn := host.conn(t)

	// Let the first connection settle before taking the baseline.
	time.Sleep(100 * time.Millisecond)
	base := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		conn.Close()
		conn = host.conn(t) // wait for the redial
	}

	// Every dropped connection's watcher must exit; only the goroutines of
	// the one live connection remain.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= base+4
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReconnectAfterServerDrop(t *testing.T) {
	host := newHostServer(t)
	svc := startService(t, host.url(), nil)

	first := host.conn(t)
	first.Close()

	// The service redials after backoff and outbound calls work again.
	host.conn(t)
	require.Eventually(t, func() bool {
		return svc.DeregisterDevice(context.Background(), "n5-A500") == nil
	}, 3*time.Second, 25*time.Millisecond)
	frame := host.next(t)
	assert.Equal(t, "deregisterDevice", frame["event"])
}
