//go:build linux

package hidsvc

import (
	"context"

	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"
)

// watchHotplug subscribes to udev netlink events for the hidraw subsystem and
// signals the returned channel whenever a device appears or disappears. The
// caller re-enumerates on every signal; the udev payload itself is not
// inspected.
func watchHotplug(ctx context.Context, log *zap.Logger) (<-chan struct{}, error) {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if err := monitor.FilterAddMatchSubsystem("hidraw"); err != nil {
		return nil, err
	}
	devices, err := monitor.DeviceChan(ctx)
	if err != nil {
		return nil, err
	}
	kick := make(chan struct{}, 1)
	go func() {
		defer close(kick)
		for range devices {
			select {
			case kick <- struct{}{}:
			default:
				// A refresh is already pending.
			}
		}
	}()
	log.Debug("udev hotplug monitor started")
	return kick, nil
}
