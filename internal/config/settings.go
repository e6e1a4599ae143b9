package config

import (
	"fmt"
	"time"

	"dashjoin/internal/timestamp"
)

// Settings is the immutable grouping configuration captured when a session
// starts. Changing it requires a new session.
type Settings struct {
	Threshold time.Duration
	Extension string
	WatchDir  string
	OutputDir string
	Parser    *timestamp.Parser
}

// Settings derives session settings from a validated config.
func (c *Config) Settings() (Settings, error) {
	if c.Grouping.ThresholdSeconds <= 0 {
		return Settings{}, fmt.Errorf("%w: grouping.threshold_seconds must be positive", ErrConfiguration)
	}
	loc, err := loadLocation(c.Grouping.Timezone)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: grouping.timezone: %w", ErrConfiguration, err)
	}
	if err := timestamp.SelfTest(c.Grouping.TimestampPattern, loc); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	parser, err := timestamp.New(c.Grouping.TimestampPattern, loc)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return Settings{
		Threshold: time.Duration(c.Grouping.ThresholdSeconds) * time.Second,
		Extension: NormalizeExtension(c.Grouping.Extension),
		WatchDir:  c.Paths.WatchDir,
		OutputDir: c.Paths.OutputDir,
		Parser:    parser,
	}, nil
}

// Pattern returns the timestamp pattern the session parses filenames with.
func (s Settings) Pattern() string {
	if s.Parser == nil {
		return ""
	}
	return s.Parser.Pattern()
}
