package decksvc

import (
	"context"
	"sync"
	"time"

	"github.com/deckbridge/deckd/internal/catalog"
	"github.com/deckbridge/deckd/internal/hidsvc"
	"github.com/deckbridge/deckd/internal/hostsvc"
	"github.com/deckbridge/deckd/internal/inputs"
)

// fakeHandle is an in-memory device handle. Input reports are injected with
// emit; closing the input channel simulates a disconnect.
type fakeHandle struct {
	reports chan []byte

	mu       sync.Mutex
	writes   [][]byte
	features [][]byte
	closed   bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{reports: make(chan []byte, 16)}
}

func (h *fakeHandle) emit(report []byte) {
	h.reports <- report
}

func (h *fakeHandle) disconnect() {
	close(h.reports)
}

func (h *fakeHandle) Read(p []byte, timeout time.Duration) (int, error) {
	select {
	case r, ok := <-h.reports:
		if !ok {
			return 0, hidsvc.ErrDisconnected
		}
		return copy(p, r), nil
	case <-time.After(timeout):
		return 0, hidsvc.ErrReadTimeout
	}
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	h.writes = append(h.writes, buf)
	return len(p), nil
}

func (h *fakeHandle) SendFeatureReport(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	h.features = append(h.features, buf)
	return len(p), nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) featureCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.features)
}

func (h *fakeHandle) writeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.writes)
}

func (h *fakeHandle) writtenReports() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.writes))
	copy(out, h.writes)
	return out
}

// fakeTransport serves a mutable set of descriptors and hands out the
// registered handles.
type fakeTransport struct {
	mu      sync.Mutex
	devices map[string]hidsvc.Descriptor
	handles map[string]*fakeHandle
	openErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		devices: make(map[string]hidsvc.Descriptor),
		handles: make(map[string]*fakeHandle),
	}
}

func (t *fakeTransport) attach(desc hidsvc.Descriptor, handle *fakeHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices[desc.Path] = desc
	t.handles[desc.Path] = handle
}

func (t *fakeTransport) detach(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, path)
}

func (t *fakeTransport) Enumerate(queries []catalog.Query) ([]hidsvc.Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []hidsvc.Descriptor
	for _, d := range t.devices {
		for _, q := range queries {
			if d.VendorID == q.VendorID && d.ProductID == q.ProductID {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (t *fakeTransport) Open(d hidsvc.Descriptor) (hidsvc.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	h, ok := t.handles[d.Path]
	if !ok {
		return nil, hidsvc.ErrDisconnected
	}
	return h, nil
}

// fakeHost records every outbound call.
type fakeHost struct {
	mu           sync.Mutex
	registered   []hostsvc.Registration
	deregistered []string
	events       []inputs.Event
	registerErr  error
}

func (f *fakeHost) RegisterDevice(_ context.Context, reg hostsvc.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, reg)
	return nil
}

func (f *fakeHost) DeregisterDevice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, id)
	return nil
}

func (f *fakeHost) ForwardInput(_ context.Context, _ string, ev inputs.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeHost) registrations() []hostsvc.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hostsvc.Registration, len(f.registered))
	copy(out, f.registered)
	return out
}

func (f *fakeHost) deregistrations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deregistered))
	copy(out, f.deregistered)
	return out
}

func (f *fakeHost) forwarded() []inputs.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]inputs.Event, len(f.events))
	copy(out, f.events)
	return out
}
