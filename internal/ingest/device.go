package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"dashjoin/internal/logging"
)

const defaultSettleDelay = 3 * time.Second

// DeviceMonitor rescans the watch directory when a block device is attached
// or changes, so an SD card put back into the reader is picked up without a
// restart.
type DeviceMonitor struct {
	device string
	dir    string
	sink   Sink
	settle time.Duration
	logger *slog.Logger
	scan   func(ctx context.Context, dir string, sink Sink, logger *slog.Logger) (int, error)
}

// NewDeviceMonitor returns nil when device is empty.
func NewDeviceMonitor(device, dir string, sink Sink, logger *slog.Logger) *DeviceMonitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	return &DeviceMonitor{
		device: device,
		dir:    dir,
		sink:   sink,
		settle: defaultSettleDelay,
		logger: logging.NewComponentLogger(logger, "device-monitor"),
		scan:   Scan,
	}
}

// Device returns the configured device node.
func (m *DeviceMonitor) Device() string {
	if m == nil {
		return ""
	}
	return m.device
}

// matches accepts the device itself and its partitions (/dev/sdb, /dev/sdb1,
// /dev/mmcblk0p1).
func (m *DeviceMonitor) matches(devname string) bool {
	if devname == m.device {
		return true
	}
	if !strings.HasPrefix(devname, m.device) {
		return false
	}
	rest := strings.TrimPrefix(devname[len(m.device):], "p")
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// trigger waits for the mount to settle and rescans.
func (m *DeviceMonitor) trigger(ctx context.Context, devname, action string) {
	m.logger.Info("device event; rescanning watch directory",
		logging.String(logging.FieldEventType, "device_rescan"),
		logging.String("device", devname),
		logging.String("action", action),
	)
	if m.settle > 0 {
		timer := time.NewTimer(m.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	if _, err := m.scan(ctx, m.dir, m.sink, m.logger); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(m.logger, "device rescan failed", "device_rescan_failed",
			logging.Error(err),
			logging.String("dir", m.dir),
			logging.String(logging.FieldErrorHint, "check that the card is mounted at the watch directory"),
		)
	}
}

func deviceName(env map[string]string) string {
	if devname := env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}
	devpath := env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
