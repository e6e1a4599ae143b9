//go:build linux

package ingest

import (
	"context"

	"github.com/pilebones/go-udev/netlink"

	"dashjoin/internal/logging"
)

// Run listens for udev uevents until ctx ends. A netlink failure is logged
// and Run returns nil; the live watcher keeps working without it.
func (m *DeviceMonitor) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "netlink unavailable; device rescans disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String("device", m.device),
			logging.String(logging.FieldErrorHint, "ensure the process may open netlink sockets"),
			logging.String(logging.FieldImpact, "re-inserted cards are only picked up by the live watcher"),
		)
		return nil
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, blockDeviceMatcher())
	defer close(quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"),
		logging.String("device", m.device),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case uevent := <-queue:
			devname := deviceName(uevent.Env)
			if !m.matches(devname) {
				continue
			}
			m.trigger(ctx, devname, string(uevent.Action))
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a device event may have been missed"),
			)
		}
	}
}

func blockDeviceMatcher() netlink.Matcher {
	action := "add|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "block"},
	})
	return rules
}
