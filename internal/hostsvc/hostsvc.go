// Package hostsvc is the host application boundary. It maintains the plugin
// WebSocket connection, announces devices, forwards semantic input events and
// dispatches inbound set-image and set-brightness requests to the session
// manager.
package hostsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"github.com/deckbridge/deckd/internal/inputs"
)

// ErrNotConnected reports that the host socket is down. Callers treat this
// the same as any other host failure: fatal for a registration, logged for a
// forwarded event.
var ErrNotConnected = errors.New("host: not connected")

// Registration announces one device to the host.
type Registration struct {
	ID         string
	Name       string
	Rows       int
	Cols       int
	Encoders   int
	TouchZones int
	Class      uint8
	Protocol   string
}

// Host is the outbound boundary consumed by the session manager.
type Host interface {
	RegisterDevice(ctx context.Context, reg Registration) error
	DeregisterDevice(ctx context.Context, id string) error
	ForwardInput(ctx context.Context, id string, ev inputs.Event) error
}

// SetImageRequest carries a host render request. Payload holds the decoded
// source image bytes; nil means clear. Without a position the whole device is
// cleared.
type SetImageRequest struct {
	Device      string
	Position    int
	HasPosition bool
	Touch       bool
	Payload     []byte
}

type SetBrightnessRequest struct {
	Device string
	Level  int
}

// RequestHandler receives inbound host requests.
type RequestHandler interface {
	SetImage(ctx context.Context, req SetImageRequest) error
	SetBrightness(ctx context.Context, req SetBrightnessRequest) error
}

var defaultOptions = serviceOptions{
	backoffTimeout: 5 * time.Second,
}

type serviceOptions struct {
	backoffTimeout time.Duration
}

type Option func(*serviceOptions)

func WithBackoffTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.backoffTimeout = d
	}
}

// Service implements Host over a WebSocket JSON connection to the host
// plugin socket.
type Service struct {
	log     *zap.Logger
	url     string
	options serviceOptions

	handler RequestHandler

	mu   sync.Mutex
	conn *websocket.Conn

	readyOnce sync.Once
	ready     chan struct{}
}

func New(log *zap.Logger, url string, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:     log,
		url:     url,
		options: options,
		ready:   make(chan struct{}),
	}
}

// SetHandler installs the inbound request handler. Must be called before
// Start.
func (s *Service) SetHandler(h RequestHandler) {
	s.handler = h
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Start dials the host and runs the read pump, reconnecting with backoff
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	for {
		if err := s.runConn(ctx); err != nil {
			s.log.Error("host connection failed", zap.Error(err))
		}
		t := time.NewTimer(s.options.backoffTimeout)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return nil
		case <-t.C:
		}
	}
}

func (s *Service) runConn(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial host at %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Info("connected to host", zap.String("url", s.url))

	connDone := make(chan struct{})
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		close(connDone)
		conn.Close()
	}()

	// Unblock the read pump on cancellation. The watcher must not outlive
	// its connection or every redial would leak one.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("host read failed: %w", err)
		}
		s.dispatch(ctx, frame)
	}
}

func (s *Service) dispatch(ctx context.Context, frame inboundFrame) {
	if s.handler == nil {
		return
	}
	switch frame.Event {
	case eventSetImage:
		req, err := s.imageRequest(frame)
		if err != nil {
			s.log.Warn("rejecting set-image request", zap.String("device", frame.Device), zap.Error(err))
			return
		}
		if err := s.handler.SetImage(ctx, req); err != nil {
			s.log.Warn("set-image failed", zap.String("device", frame.Device), zap.Error(err))
		}
	case eventSetBrightness:
		if frame.Brightness == nil {
			s.log.Warn("set-brightness without a level", zap.String("device", frame.Device))
			return
		}
		req := SetBrightnessRequest{Device: frame.Device, Level: *frame.Brightness}
		if err := s.handler.SetBrightness(ctx, req); err != nil {
			s.log.Warn("set-brightness failed", zap.String("device", frame.Device), zap.Error(err))
		}
	default:
		s.log.Debug("ignoring host event", zap.String("event", frame.Event))
	}
}

func (s *Service) imageRequest(frame inboundFrame) (SetImageRequest, error) {
	req := SetImageRequest{
		Device: frame.Device,
		Touch:  frame.Surface == surfaceTouch,
	}
	if frame.Position != nil {
		req.Position = *frame.Position
		req.HasPosition = true
	}
	if frame.Image == "" {
		return req, nil
	}
	// The host sends images as data URLs.
	du, err := dataurl.DecodeString(frame.Image)
	if err != nil {
		return SetImageRequest{}, fmt.Errorf("malformed image data url: %w", err)
	}
	if du.MediaType.Type != "image" {
		return SetImageRequest{}, fmt.Errorf("unexpected media type %s", du.MediaType.ContentType())
	}
	req.Payload = du.Data
	return req, nil
}

func (s *Service) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(v)
}

func (s *Service) RegisterDevice(_ context.Context, reg Registration) error {
	return s.send(registerFrame{
		Event:      eventRegisterDevice,
		Device:     reg.ID,
		Name:       reg.Name,
		Rows:       reg.Rows,
		Columns:    reg.Cols,
		Encoders:   reg.Encoders,
		TouchZones: reg.TouchZones,
		Class:      reg.Class,
		Protocol:   reg.Protocol,
	})
}

func (s *Service) DeregisterDevice(_ context.Context, id string) error {
	return s.send(deviceFrame{Event: eventDeregisterDevice, Device: id})
}

func (s *Service) ForwardInput(_ context.Context, id string, ev inputs.Event) error {
	switch e := ev.(type) {
	case inputs.ButtonPress:
		event := eventKeyUp
		if e.Pressed {
			event = eventKeyDown
		}
		return s.send(positionFrame{Event: event, Device: id, Position: e.Index})
	case inputs.EncoderPress:
		event := eventEncoderUp
		if e.Pressed {
			event = eventEncoderDown
		}
		return s.send(positionFrame{Event: event, Device: id, Position: e.Index})
	case inputs.EncoderTwist:
		return s.send(encoderChangeFrame{Event: eventEncoderChange, Device: id, Position: e.Index, Ticks: e.Delta})
	case inputs.TouchTap:
		return s.send(touchTapFrame{Event: eventTouchTap, Device: id, Zone: e.Zone})
	case inputs.TouchSwipe:
		return s.send(touchSwipeFrame{Event: eventTouchSwipe, Device: id, Direction: strings.ToLower(string(e.Direction))})
	case inputs.Unknown:
		return s.send(unknownInputFrame{Event: eventUnknownInput, Device: id, Code: e.Code, State: e.State})
	default:
		return fmt.Errorf("unhandled input event %T", ev)
	}
}
