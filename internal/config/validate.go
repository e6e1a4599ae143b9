package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dashjoin/internal/services"
	"dashjoin/internal/timestamp"
)

// ErrConfiguration marks every validation failure.
var ErrConfiguration = services.ErrConfiguration

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.WatchDir == "" {
		errs = append(errs, errors.New("paths.watch_dir must be set"))
	}
	if c.Paths.OutputDir == "" {
		errs = append(errs, errors.New("paths.output_dir must be set"))
	}
	if c.Paths.StateDir == "" {
		errs = append(errs, errors.New("paths.state_dir must be set"))
	}
	if c.Grouping.ThresholdSeconds <= 0 {
		errs = append(errs, fmt.Errorf("grouping.threshold_seconds must be positive, got %d", c.Grouping.ThresholdSeconds))
	}
	loc, err := loadLocation(c.Grouping.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("grouping.timezone: %w", err))
	} else if err := timestamp.SelfTest(c.Grouping.TimestampPattern, loc); err != nil {
		errs = append(errs, fmt.Errorf("grouping.timestamp_pattern: %w", err))
	}
	if c.Merge.Workers <= 0 {
		errs = append(errs, fmt.Errorf("merge.workers must be positive, got %d", c.Merge.Workers))
	}
	if c.Merge.ShutdownGraceSeconds < 0 {
		errs = append(errs, errors.New("merge.shutdown_grace_seconds must not be negative"))
	}
	switch c.Watch.Mode {
	case WatchModeAuto, WatchModeInotify, WatchModePoll:
	default:
		errs = append(errs, fmt.Errorf("watch.mode must be auto, inotify, or poll, got %q", c.Watch.Mode))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

// ValidateWatchDir checks that the watch directory exists. It runs at session
// start rather than in Validate so `config show` works before the card mounts.
func (c *Config) ValidateWatchDir() error {
	info, err := os.Stat(c.Paths.WatchDir)
	if err != nil {
		return fmt.Errorf("%w: paths.watch_dir: %w", ErrConfiguration, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: paths.watch_dir %s is not a directory", ErrConfiguration, c.Paths.WatchDir)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	default:
		return time.LoadLocation(name)
	}
}
