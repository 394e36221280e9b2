//go:build !linux

package hidsvc

import (
	"context"

	"go.uber.org/zap"
)

// watchHotplug has no netlink source off Linux; detection relies on the poll
// ticker alone.
func watchHotplug(_ context.Context, _ *zap.Logger) (<-chan struct{}, error) {
	return nil, nil
}
