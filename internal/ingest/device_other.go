//go:build !linux

package ingest

import (
	"context"

	"dashjoin/internal/logging"
)

// Run is a no-op on platforms without udev.
func (m *DeviceMonitor) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.logger.Warn("device rescans need udev; ignoring watch.rescan_device",
		logging.String("device", m.device),
	)
	return nil
}
