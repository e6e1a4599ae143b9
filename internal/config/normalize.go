package config

import (
	"fmt"
	"strings"
)

// Normalize expands paths and canonicalizes string settings. Load calls it;
// callers that mutate a loaded Config (CLI flag overrides) call it again.
func (c *Config) Normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGrouping()
	c.normalizeMerge()
	c.normalizeWatch()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultRequestTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"paths.watch_dir", &c.Paths.WatchDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.state_dir", &c.Paths.StateDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeGrouping() {
	c.Grouping.TimestampPattern = strings.TrimSpace(c.Grouping.TimestampPattern)
	if c.Grouping.TimestampPattern == "" {
		c.Grouping.TimestampPattern = defaultTimestampPattern
	}
	c.Grouping.Extension = NormalizeExtension(c.Grouping.Extension)
	if c.Grouping.Extension == "" {
		c.Grouping.Extension = defaultExtension
	}
	c.Grouping.Timezone = strings.TrimSpace(c.Grouping.Timezone)
	if c.Grouping.Timezone == "" {
		c.Grouping.Timezone = defaultTimezone
	}
}

// NormalizeExtension lowercases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (c *Config) normalizeMerge() {
	c.Merge.FFmpegBinary = strings.TrimSpace(c.Merge.FFmpegBinary)
	if c.Merge.FFmpegBinary == "" {
		c.Merge.FFmpegBinary = defaultFFmpegBinary
	}
	c.Merge.FFprobeBinary = strings.TrimSpace(c.Merge.FFprobeBinary)
	if c.Merge.FFprobeBinary == "" {
		c.Merge.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeWatch() {
	c.Watch.Mode = strings.ToLower(strings.TrimSpace(c.Watch.Mode))
	if c.Watch.Mode == "" {
		c.Watch.Mode = defaultWatchMode
	}
	if c.Watch.PollIntervalSeconds <= 0 {
		c.Watch.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	c.Watch.RescanDevice = strings.TrimSpace(c.Watch.RescanDevice)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
