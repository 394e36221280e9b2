package decksvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/internal/hidsvc"
	"github.com/deckbridge/deckd/internal/hostsvc"
	"github.com/deckbridge/deckd/internal/imaging"
	"github.com/deckbridge/deckd/internal/inputs"
)

// State is the session lifecycle phase. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateRegistering
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrSessionBusy reports that the session's command queue is full; the host
// request is rejected, the session keeps streaming.
var ErrSessionBusy = errors.New("session: command queue full")

type sessionCommand interface {
	isCommand()
}

// cmdSetImage renders a payload onto one surface, clears one surface when
// Payload is nil, or clears every button surface when ClearAll is set.
type cmdSetImage struct {
	Surface  imaging.Surface
	Payload  []byte
	ClearAll bool
}

type cmdSetBrightness struct {
	Level int
}

func (cmdSetImage) isCommand()      {}
func (cmdSetBrightness) isCommand() {}

// Session owns one connected device: the exclusive hardware handle, the read
// loop decoding raw reports into semantic events and the command queue
// applying host render requests. All handle I/O happens on the session's own
// goroutine.
type Session struct {
	id      string
	variant catalog.Variant
	desc    hidsvc.Descriptor
	log     *zap.Logger

	hid      *hidsvc.Service
	host     hostsvc.Host
	store    *Store
	registry *Registry
	options  serviceOptions

	cancel   context.CancelFunc
	done     chan struct{}
	state    *atomic.Int32
	commands chan sessionCommand

	brightness *atomic.Int32
}

func newSession(log *zap.Logger, id string, v catalog.Variant, desc hidsvc.Descriptor, hid *hidsvc.Service, host hostsvc.Host, store *Store, registry *Registry, options serviceOptions) *Session {
	return &Session{
		id:         id,
		variant:    v,
		desc:       desc,
		log:        log.With(zap.String("device", id), zap.String("model", string(v.Model))),
		hid:        hid,
		host:       host,
		store:      store,
		registry:   registry,
		options:    options,
		done:       make(chan struct{}),
		state:      atomic.NewInt32(int32(StateConnecting)),
		commands:   make(chan sessionCommand, options.commandBuffer),
		brightness: atomic.NewInt32(int32(options.defaultBrightness)),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Variant() catalog.Variant {
	return s.variant
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel requests cooperative teardown. Idempotent; cancelling a closed
// session is a no-op.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// advance moves the state forward, never backward, and reports whether this
// call performed the transition. Concurrent teardown paths use it to close
// exactly once.
func (s *Session) advance(to State) bool {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// SetImage validates and enqueues a host render request. Surface range
// errors surface immediately; queue pressure rejects the request without
// affecting the stream.
func (s *Session) SetImage(ctx context.Context, req hostsvc.SetImageRequest) error {
	cmd := cmdSetImage{ClearAll: !req.HasPosition}
	if req.HasPosition {
		surface := imaging.Button(req.Position)
		if req.Touch {
			surface = imaging.Touch(req.Position)
		}
		if _, err := imaging.Spec(s.variant, surface); err != nil {
			return err
		}
		cmd.Surface = surface
		cmd.Payload = req.Payload
	}
	return s.enqueue(ctx, cmd)
}

// SetBrightness enqueues a brightness change (0-100).
func (s *Session) SetBrightness(ctx context.Context, level int) error {
	return s.enqueue(ctx, cmdSetBrightness{Level: level})
}

func (s *Session) enqueue(ctx context.Context, cmd sessionCommand) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return fmt.Errorf("session %s is closed", s.id)
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSessionBusy
	}
}

// run drives the full lifecycle. It is the only goroutine touching the
// hardware handle.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	handle, err := s.hid.Open(s.desc)
	if err != nil {
		s.log.Error("failed to open device", zap.Error(err))
		s.close(nil, false)
		return
	}

	if err := s.reset(handle); err != nil {
		s.log.Error("failed to reset device", zap.Error(err))
		s.close(handle, false)
		return
	}

	s.advance(StateRegistering)
	reg := hostsvc.Registration{
		ID:         s.id,
		Name:       s.variant.Name,
		Rows:       s.variant.Rows,
		Cols:       s.variant.Cols,
		Encoders:   s.variant.Encoders,
		TouchZones: s.variant.TouchZones,
		Class:      s.variant.Class,
		Protocol:   s.variant.Protocol,
	}
	if err := s.host.RegisterDevice(ctx, reg); err != nil {
		s.log.Error("host rejected registration", zap.Error(err))
		s.close(handle, false)
		return
	}
	s.log.Info("device registered", zap.String("name", s.variant.Name))

	s.advance(StateStreaming)
	graceful := s.stream(ctx, handle)

	if graceful {
		// Cancellation, not an I/O failure: park the device before
		// letting go of the handle.
		if _, err := handle.Write(shutdownReport()); err != nil {
			s.log.Debug("shutdown report failed", zap.Error(err))
		}
	}
	s.close(handle, true)
}

// reset restores the persisted brightness and blanks every button screen,
// the state a freshly announced device is expected to be in.
func (s *Session) reset(handle hidsvc.Handle) error {
	if rec, err := s.store.Upsert(s.id, s.variant, s.options.defaultBrightness); err == nil {
		s.brightness.Store(int32(rec.Brightness))
	} else {
		s.log.Warn("failed to load device record", zap.Error(err))
	}
	if _, err := handle.SendFeatureReport(brightnessReport(int(s.brightness.Load()))); err != nil {
		return fmt.Errorf("brightness reset failed: %w", err)
	}
	if _, err := handle.Write(clearAllReport()); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	return nil
}

// stream is the steady state: interleave timeout-bounded reads with pending
// host commands on the single exclusively-owned handle. Returns true when
// the loop ended by cancellation rather than an I/O failure.
func (s *Session) stream(ctx context.Context, handle hidsvc.Handle) bool {
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			s.advance(StateDraining)
			return true
		}
		if fatal := s.applyPending(handle); fatal {
			return false
		}

		n, err := handle.Read(buf, s.options.readTimeout)
		switch {
		case errors.Is(err, hidsvc.ErrReadTimeout):
			continue
		case err != nil:
			if ctx.Err() != nil {
				s.advance(StateDraining)
				return true
			}
			s.log.Warn("read failed, disconnecting", zap.Error(err))
			s.advance(StateDraining)
			return false
		}
		s.handleReport(ctx, buf[:n])
	}
}

// applyPending drains queued host commands. Image adaptation failures are
// logged and dropped; handle write failures are fatal for the session.
func (s *Session) applyPending(handle hidsvc.Handle) bool {
	for {
		select {
		case cmd := <-s.commands:
			if err := s.apply(handle, cmd); err != nil {
				s.log.Warn("write failed, disconnecting", zap.Error(err))
				s.advance(StateDraining)
				return true
			}
		default:
			return false
		}
	}
}

func (s *Session) apply(handle hidsvc.Handle, cmd sessionCommand) error {
	switch c := cmd.(type) {
	case cmdSetBrightness:
		level := clampBrightness(c.Level)
		if _, err := handle.SendFeatureReport(brightnessReport(level)); err != nil {
			return err
		}
		s.brightness.Store(int32(level))
		return nil
	case cmdSetImage:
		return s.applyImage(handle, c)
	default:
		return nil
	}
}

func (s *Session) applyImage(handle hidsvc.Handle, c cmdSetImage) error {
	if c.ClearAll {
		_, err := handle.Write(clearAllReport())
		return err
	}
	if c.Payload == nil {
		return s.clearSurface(handle, c.Surface)
	}
	payload, err := imaging.Adapt(s.variant, c.Surface, c.Payload)
	if err != nil {
		// Malformed source image: reject this request only.
		s.log.Warn("rejecting image", zap.String("surface", c.Surface.String()), zap.Error(err))
		return nil
	}
	return s.writeImage(handle, c.Surface, payload)
}

// clearSurface blanks one screen. Button screens have a firmware clear
// command; the touch strip does not, so touch zones are cleared by drawing a
// black tile.
func (s *Session) clearSurface(handle hidsvc.Handle, surface imaging.Surface) error {
	if surface.Kind == imaging.SurfaceButton {
		_, err := handle.Write(clearReport(surface))
		return err
	}
	payload, err := imaging.Blank(s.variant, surface)
	if err != nil {
		return err
	}
	return s.writeImage(handle, surface, payload)
}

func (s *Session) writeImage(handle hidsvc.Handle, surface imaging.Surface, payload []byte) error {
	for _, report := range imageReports(surface, payload) {
		if _, err := handle.Write(report); err != nil {
			return err
		}
	}
	return nil
}

// handleReport decodes one raw input report and forwards the semantic event
// in hardware order.
func (s *Session) handleReport(ctx context.Context, report []byte) {
	code, state, ok := s.parseReport(report)
	if !ok {
		s.log.Debug("short input report", zap.Int("len", len(report)))
		return
	}
	ev := inputs.Decode(s.variant, code, state)
	if u, isUnknown := ev.(inputs.Unknown); isUnknown {
		s.log.Debug("unknown input code",
			zap.Uint8("code", u.Code),
			zap.Uint8("state", u.State))
	}
	if err := s.host.ForwardInput(ctx, s.id, ev); err != nil {
		s.log.Warn("failed to forward input", zap.Error(err))
	}
}

func (s *Session) parseReport(report []byte) (code, state byte, ok bool) {
	ci, si := s.variant.ReportCodeIndex, s.variant.ReportStateIndex
	if len(report) <= ci || len(report) <= si {
		return 0, 0, false
	}
	return report[ci], report[si], true
}

// close is the terminal transition: release the handle, evict the registry
// entry, tell the host the device is gone and persist the brightness.
// Safe to reach from any state; only the first caller performs the work.
func (s *Session) close(handle hidsvc.Handle, registered bool) {
	if !s.advance(StateClosed) {
		return
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			s.log.Debug("handle close failed", zap.Error(err))
		}
	}
	s.registry.Evict(s.id, s)
	if registered {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.host.DeregisterDevice(ctx, s.id); err != nil {
			s.log.Debug("failed to report disconnect", zap.Error(err))
		}
		if err := s.store.SetBrightness(s.id, int(s.brightness.Load())); err != nil {
			s.log.Debug("failed to persist brightness", zap.Error(err))
		}
	}
	s.log.Info("session closed")
}

func clampBrightness(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
