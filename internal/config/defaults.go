package config

const (
	defaultWorkDir              = "~/.local/share/reelforge/work"
	defaultOutputDir            = "~/Videos/reelforge"
	defaultLogDir               = "~/.local/share/reelforge/logs"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultMaxConcurrentJobs    = 2
	defaultRetryCount           = 2
	defaultBackoffBaseMs        = 500
	defaultBackoffMaxMs         = 30_000
	defaultMaxCPULoad           = 0.9
	defaultMinFreeMemoryPercent = 5
	defaultMinFreeDiskMB        = 512
	defaultAdmissionPollMs      = 1000
	defaultRetentionMinutes     = 60
	defaultEventBuffer          = 256
	defaultWorkDirRetentionHrs  = 24
	defaultNotifyTimeout        = 10
)

var (
	defaultAlternateFields = []string{"output_path", "video_path", "render_path", "output_file", "file", "path"}
	defaultExtensions      = []string{".mp4", ".mkv", ".webm", ".mov", ".gif"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Queue: Queue{
			MaxConcurrentJobs:     defaultMaxConcurrentJobs,
			RetryCount:            defaultRetryCount,
			BackoffBaseMs:         defaultBackoffBaseMs,
			BackoffMaxMs:          defaultBackoffMaxMs,
			MaxCPULoad:            defaultMaxCPULoad,
			MinFreeMemoryPercent:  defaultMinFreeMemoryPercent,
			MinFreeDiskMB:         defaultMinFreeDiskMB,
			AdmissionPollMs:       defaultAdmissionPollMs,
			RetentionMinutes:      defaultRetentionMinutes,
			EventBuffer:           defaultEventBuffer,
			WorkDirRetentionHours: defaultWorkDirRetentionHrs,
		},
		Stages: Stages{
			Script:      StageSettings{TimeoutSeconds: 120, Required: true},
			Narration:   StageSettings{TimeoutSeconds: 300, Required: true},
			Visuals:     StageSettings{TimeoutSeconds: 300, Required: true},
			Composition: StageSettings{TimeoutSeconds: 900, Required: true},
			Export:      StageSettings{TimeoutSeconds: 120, Required: true},
		},
		Providers: Providers{
			Script: ProviderChain{
				Tier: "ProIfAvailable",
				Pro:  []string{"openai", "anthropic", "gemini"},
				Free: []string{"ollama"},
			},
			Narration: ProviderChain{
				Tier: "ProIfAvailable",
				Pro:  []string{"elevenlabs", "playht"},
				Free: []string{"piper", "espeak"},
			},
			Visuals: ProviderChain{
				Tier: "ProIfAvailable",
				Pro:  []string{"stability", "dalle"},
				Free: []string{"pexels"},
			},
			Composition: ProviderChain{
				Tier: "Free",
				Pro:  []string{"ffmpeg-nvenc"},
				Free: []string{"ffmpeg"},
			},
			Export: ProviderChain{
				Tier: "Guaranteed",
			},
		},
		Artifacts: Artifacts{
			AlternateFields: append([]string(nil), defaultAlternateFields...),
			Extensions:      append([]string(nil), defaultExtensions...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
