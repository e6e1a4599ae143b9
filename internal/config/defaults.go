package config

const (
	defaultWatchDir             = "~/dashcam/incoming"
	defaultOutputDir            = "~/dashcam/merged"
	defaultLogDir               = "~/.local/share/dashjoin/logs"
	defaultStateDir             = "~/.local/share/dashjoin"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultThresholdSeconds     = 90
	defaultTimestampPattern     = "%Y%m%d_%H%M%S"
	defaultExtension            = ".mp4"
	defaultTimezone             = "Local"
	defaultWorkers              = 2
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultShutdownGraceSeconds = 30
	defaultWatchMode            = WatchModeAuto
	defaultPollIntervalSeconds  = 5
	defaultRequestTimeout       = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Watch modes accepted by watch.mode.
const (
	WatchModeAuto    = "auto"
	WatchModeInotify = "inotify"
	WatchModePoll    = "poll"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:  defaultWatchDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
			APIBind:   defaultAPIBind,
		},
		Grouping: Grouping{
			ThresholdSeconds: defaultThresholdSeconds,
			TimestampPattern: defaultTimestampPattern,
			Extension:        defaultExtension,
			Timezone:         defaultTimezone,
		},
		Merge: Merge{
			Workers:              defaultWorkers,
			FFmpegBinary:         defaultFFmpegBinary,
			FFprobeBinary:        defaultFFprobeBinary,
			VerifyOutput:         true,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
		},
		Watch: Watch{
			Mode:                defaultWatchMode,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			ScanExisting:        true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			Merged:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
