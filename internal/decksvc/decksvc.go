// Package decksvc is the device-session manager. It admits catalog-matching
// devices discovered by the HID service, runs one session per physical unit
// and routes host render requests to the owning session. One device failing
// never affects another: each session is independently cancelled, torn down
// and evicted.
package decksvc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/internal/hidsvc"
	"github.com/deckbridge/deckd/internal/hostsvc"
)

var defaultOptions = serviceOptions{
	readTimeout:       50 * time.Millisecond,
	shutdownTimeout:   5 * time.Second,
	defaultBrightness: 50,
	commandBuffer:     32,
}

type serviceOptions struct {
	readTimeout       time.Duration
	shutdownTimeout   time.Duration
	defaultBrightness int
	commandBuffer     int
}

type Option func(*serviceOptions)

// WithReadTimeout bounds a single blocking read so the session loop can
// interleave host commands and observe cancellation.
func WithReadTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.readTimeout = d
	}
}

// WithShutdownTimeout bounds how long Start waits for draining sessions
// before abandoning them on process shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.shutdownTimeout = d
	}
}

func WithDefaultBrightness(level int) Option {
	return func(o *serviceOptions) {
		o.defaultBrightness = clampBrightness(level)
	}
}

// Service coordinates discovery, admission and session lifecycles.
type Service struct {
	log     *zap.Logger
	hid     *hidsvc.Service
	host    hostsvc.Host
	store   *Store
	options serviceOptions

	table    atomic.Pointer[catalog.Table]
	registry *Registry
	wg       sync.WaitGroup
	ready    chan struct{}
}

func New(log *zap.Logger, table *catalog.Table, hid *hidsvc.Service, host hostsvc.Host, store *Store, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		log:      log,
		hid:      hid,
		host:     host,
		store:    store,
		options:  options,
		registry: NewRegistry(),
		ready:    make(chan struct{}),
	}
	s.table.Store(table)
	return s
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Registry exposes the live session registry, mainly for tests and
// introspection commands.
func (s *Service) Registry() *Registry {
	return s.registry
}

// UpdateTable swaps the variant table. Applies to admissions from this point
// on; live sessions keep the variant they were admitted with.
func (s *Service) UpdateTable(table *catalog.Table) {
	s.table.Store(table)
	s.log.Info("variant table updated")
}

// Start watches for device attach/detach events until ctx is cancelled, then
// drains every live session bounded by the shutdown timeout.
func (s *Service) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.hid.Ready():
	}

	events := s.hid.Subscribe(ctx)
	for _, desc := range s.hid.Attached() {
		s.admit(ctx, desc)
	}
	close(s.ready)
	s.log.Info("session manager started")

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case msg := <-events:
			switch msg.Message.Type {
			case hidsvc.DeviceAttached:
				s.admit(ctx, msg.Message.Descriptor)
			case hidsvc.DeviceDetached:
				s.release(msg.Message.Descriptor)
			}
		}
	}
}

// admit resolves the descriptor against the catalog and spawns a session
// unless the identity is already live. Foreign devices are ignored; a
// duplicate notification is a no-op.
func (s *Service) admit(ctx context.Context, desc hidsvc.Descriptor) {
	variant, ok := s.table.Load().Lookup(desc.VendorID, desc.ProductID)
	if !ok {
		s.log.Debug("ignoring foreign device", zap.String("device", desc.String()))
		return
	}
	id := DeviceID(desc, variant)
	sess := newSession(s.log.Named("session"), id, variant, desc, s.hid, s.host, s.store, s.registry, s.options)
	if !s.registry.Admit(id, sess) {
		s.log.Debug("device already has a live session", zap.String("device", id))
		return
	}
	sctx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	s.log.Info("admitting device", zap.String("device", id), zap.String("model", string(variant.Model)))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		sess.run(sctx)
	}()
}

// release cancels the session for a detached device. Eviction is performed
// by the session's own teardown, not here, so a racing teardown can never
// orphan a live entry.
func (s *Service) release(desc hidsvc.Descriptor) {
	variant, ok := s.table.Load().Lookup(desc.VendorID, desc.ProductID)
	if !ok {
		return
	}
	id := DeviceID(desc, variant)
	sess, ok := s.registry.Get(id)
	if !ok {
		return
	}
	s.log.Info("device detached, cancelling session", zap.String("device", id))
	sess.Cancel()
}

func (s *Service) shutdown() error {
	s.log.Info("shutting down sessions", zap.Int("count", s.registry.Len()))
	s.registry.CancelAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("all sessions drained")
	case <-time.After(s.options.shutdownTimeout):
		s.log.Warn("shutdown timeout, abandoning remaining sessions")
	}
	return nil
}

// SetImage implements hostsvc.RequestHandler by routing the request to the
// owning session.
func (s *Service) SetImage(ctx context.Context, req hostsvc.SetImageRequest) error {
	sess, ok := s.registry.Get(req.Device)
	if !ok {
		return errUnknownDevice(req.Device)
	}
	return sess.SetImage(ctx, req)
}

// SetBrightness implements hostsvc.RequestHandler.
func (s *Service) SetBrightness(ctx context.Context, req hostsvc.SetBrightnessRequest) error {
	sess, ok := s.registry.Get(req.Device)
	if !ok {
		return errUnknownDevice(req.Device)
	}
	return sess.SetBrightness(ctx, req.Level)
}
