package config

const (
	defaultDatabasePath       = "~/.local/share/vpo/library.db"
	defaultLogDir             = "~/.local/share/vpo/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultWorkerCount        = 2
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 10
	defaultHeartbeatTimeout   = 120
	defaultJobRetentionDays   = 30
	defaultTranscodeTimeout   = 6 * 60 * 60
	defaultOnError            = "fail"
	defaultScaleAlgorithm     = "lanczos"
)

// HardwareAccelModes enumerates the accepted hardware_acceleration values.
var HardwareAccelModes = []string{"none", "nvenc", "vaapi", "qsv", "amf", "videotoolbox"}

// OnErrorModes enumerates the accepted per-phase error handling modes.
var OnErrorModes = []string{"fail", "skip", "continue"}

// DefaultCommentaryPatterns are the title substrings treated as commentary
// markers when the operator does not supply their own.
var DefaultCommentaryPatterns = []string{"commentary", "director", "isolated score"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatabasePath: defaultDatabasePath,
			LogDir:       defaultLogDir,
		},
		Workers: Workers{
			Count:              defaultWorkerCount,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			JobRetentionDays:   defaultJobRetentionDays,
		},
		Transcode: Transcode{
			HardwareAccel:  "none",
			FallbackToCPU:  true,
			BackupOriginal: false,
			TimeoutSeconds: defaultTranscodeTimeout,
			ScaleAlgorithm: defaultScaleAlgorithm,
		},
		Execution: Execution{
			OnError:            defaultOnError,
			CommentaryPatterns: append([]string{}, DefaultCommentaryPatterns...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
