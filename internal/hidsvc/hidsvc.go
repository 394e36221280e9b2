// Package hidsvc is the USB-HID transport boundary. It enumerates devices
// matching the catalog queries, watches the bus for hotplug changes and hands
// out exclusive device handles. Everything above this package talks in terms
// of Descriptor, Handle and attach/detach events.
package hidsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/pkg/bus"
)

var (
	// ErrReadTimeout reports that no input report arrived within the read
	// deadline. Not fatal; the caller is expected to poll again.
	ErrReadTimeout = errors.New("hid: read timeout")
	// ErrDisconnected reports that the device is gone.
	ErrDisconnected = errors.New("hid: device disconnected")
)

// Descriptor identifies an attached device before it is opened.
type Descriptor struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	UsagePage    uint16
	Usage        uint16
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%04x:%04x@%s", d.VendorID, d.ProductID, d.Path)
}

// Handle is an open device. A handle is exclusively owned by one session;
// the session interleaves reads and writes itself, so implementations do not
// need internal locking.
type Handle interface {
	// Read blocks for at most timeout waiting for an input report.
	// Returns ErrReadTimeout when no report arrived in time and
	// ErrDisconnected when the device is gone.
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	SendFeatureReport(p []byte) (int, error)
	Close() error
}

// Transport provides raw enumeration and open primitives. The production
// implementation wraps hidapi; tests substitute fakes.
type Transport interface {
	Enumerate(queries []catalog.Query) ([]Descriptor, error)
	Open(d Descriptor) (Handle, error)
}

type EventType uint8

const (
	DeviceAttached EventType = iota
	DeviceDetached
)

// Event is published on the service bus for every hotplug change of a
// catalog-matching device. The key is the descriptor path.
type Event struct {
	Type       EventType
	Descriptor Descriptor
}

var defaultOptions = serviceOptions{
	pollInterval: 1 * time.Second,
}

type serviceOptions struct {
	pollInterval time.Duration
}

type Option func(*serviceOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.pollInterval = d
	}
}

// Service tracks attached devices and publishes hotplug events. Detection is
// driven by a periodic re-enumeration tick plus, on Linux, a udev netlink
// monitor that triggers an immediate refresh.
type Service struct {
	log       *zap.Logger
	transport Transport
	queries   []catalog.Query
	options   serviceOptions

	attached *xsync.MapOf[string, Descriptor]
	bus      *bus.Bus[string, Event]
	ready    chan struct{}
}

func New(log *zap.Logger, transport Transport, queries []catalog.Query, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		log:       log,
		transport: transport,
		queries:   queries,
		options:   options,
		attached:  xsync.NewMapOf[string, Descriptor](),
		bus:       bus.NewBus[string, Event](log.Named("bus")),
		ready:     make(chan struct{}),
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Start runs the hotplug watch until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hid bus: %w", err)
	}

	if err := s.refresh(ctx); err != nil {
		return fmt.Errorf("initial enumeration failed: %w", err)
	}
	close(s.ready)
	s.log.Info("HID service started")

	kick, err := watchHotplug(ctx, s.log)
	if err != nil {
		s.log.Warn("hotplug monitor unavailable, falling back to polling", zap.Error(err))
	}

	ticker := time.NewTicker(s.options.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-kick:
			if !ok {
				kick = nil
				continue
			}
		}
		if err := s.refresh(ctx); err != nil {
			s.log.Error("failed to refresh devices", zap.Error(err))
		}
	}
}

// Subscribe returns a stream of attach/detach events for all matching
// devices.
func (s *Service) Subscribe(ctx context.Context) <-chan bus.Message[string, Event] {
	return s.bus.Subscribe(ctx)
}

// Attached returns a snapshot of the currently attached matching devices.
func (s *Service) Attached() []Descriptor {
	var out []Descriptor
	s.attached.Range(func(_ string, d Descriptor) bool {
		out = append(out, d)
		return true
	})
	return out
}

// Open opens an exclusive handle for the descriptor.
func (s *Service) Open(d Descriptor) (Handle, error) {
	return s.transport.Open(d)
}

func (s *Service) refresh(ctx context.Context) error {
	current, err := s.transport.Enumerate(s.queries)
	if err != nil {
		return err
	}
	seen := make(map[string]Descriptor, len(current))
	for _, d := range current {
		seen[d.Path] = d
	}

	s.attached.Range(func(path string, d Descriptor) bool {
		if _, ok := seen[path]; !ok {
			s.attached.Delete(path)
			s.log.Debug("device detached", zap.String("device", d.String()))
			s.bus.Publish(ctx, path, Event{Type: DeviceDetached, Descriptor: d})
			return true
		}
		delete(seen, path)
		return true
	})
	for path, d := range seen {
		s.attached.Store(path, d)
		s.log.Debug("device attached", zap.String("device", d.String()))
		s.bus.Publish(ctx, path, Event{Type: DeviceAttached, Descriptor: d})
	}
	return nil
}
