package hidsvc

import (
	"fmt"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/deckbridge/deckd/internal/catalog"
)

// HidapiTransport implements Transport on top of hidapi.
type HidapiTransport struct{}

func NewHidapiTransport() (*HidapiTransport, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	return &HidapiTransport{}, nil
}

func (t *HidapiTransport) Enumerate(queries []catalog.Query) ([]Descriptor, error) {
	var out []Descriptor
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		for _, q := range queries {
			if info.VendorID != q.VendorID || info.ProductID != q.ProductID {
				continue
			}
			if info.UsagePage != q.UsagePage || info.Usage != q.Usage {
				continue
			}
			out = append(out, Descriptor{
				Path:         info.Path,
				VendorID:     info.VendorID,
				ProductID:    info.ProductID,
				SerialNumber: info.SerialNbr,
				UsagePage:    info.UsagePage,
				Usage:        info.Usage,
			})
			break
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumeration failed: %w", err)
	}
	return out, nil
}

func (t *HidapiTransport) Open(d Descriptor) (Handle, error) {
	dev, err := hid.OpenPath(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d, err)
	}
	return &hidapiHandle{dev: dev}, nil
}

type hidapiHandle struct {
	dev *hid.Device
}

func (h *hidapiHandle) Read(p []byte, timeout time.Duration) (int, error) {
	n, err := h.dev.ReadWithTimeout(p, timeout)
	if err != nil {
		// hidapi reports a vanished device as a generic read failure;
		// from the session's point of view that is a disconnect.
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

func (h *hidapiHandle) Write(p []byte) (int, error) {
	n, err := h.dev.Write(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return n, nil
}

func (h *hidapiHandle) SendFeatureReport(p []byte) (int, error) {
	n, err := h.dev.SendFeatureReport(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return n, nil
}

func (h *hidapiHandle) Close() error {
	return h.dev.Close()
}
