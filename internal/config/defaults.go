package config

const (
	defaultConfigPath                = "~/.config/matchreel/config.toml"
	defaultWorkDir                   = "~/.local/share/matchreel/work"
	defaultDataDir                   = "~/.local/share/matchreel"
	defaultLogDir                    = "~/.local/share/matchreel/logs"
	defaultLogRetentionDays          = 30
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultAPIBind                   = "127.0.0.1:7490"
	defaultWorkerConcurrency         = 2
	defaultWorkerMaxAttempts         = 3
	defaultWorkerPollInterval        = 5
	defaultWorkerErrorRetryInterval  = 10
	defaultWorkerHeartbeatInterval   = 15
	defaultWorkerHeartbeatTimeout    = 120
	defaultAttemptBackoffInitial     = 30
	defaultAttemptBackoffMax         = 900
	defaultStageTimeoutSeconds       = 1800
	defaultWorkDirRetentionHours     = 48
	defaultRetryMaxAttempts          = 4
	defaultRetryInitialMillis        = 1000
	defaultRetryMaxMillis            = 30000
	defaultRetryMultiplier           = 2.0
	defaultVisualSampleRate          = 2.0
	defaultMotionSampleRate          = 1.0
	defaultNoteBufferSeconds         = 15.0
	defaultMergeThresholdSeconds     = 10.0
	defaultMinConfidence             = 0.5
	defaultFrameConfidence           = 0.6
	defaultMinSignificantDetectors   = 2
	defaultCacheSize                 = 1000
	defaultMotionThreshold           = 0.5
	defaultMotionSustainSamples      = 3
	defaultConfirmationBoost         = 0.2
	defaultFrameWidth                = 160
	defaultFrameHeight               = 90
	defaultMinClipSeconds            = 6.0
	defaultMaxClipSeconds            = 45.0
	defaultMaxParallelUploads        = 3
	defaultStorageRetentionDays      = 30
	defaultStorageCleanupInterval    = 21600
	defaultStorageWarningThreshold   = 0.75
	defaultStorageCriticalThreshold  = 0.90
	defaultStorageEmergencyThreshold = 0.95
	defaultHostTimeoutSeconds        = 120
	defaultHostPrivacy               = "unlisted"
	defaultArchiveBucket             = "matchreel-archive"
	defaultArchivePrefix             = "clips"
	defaultArchiveCapacityBytes      = 50 << 30
	defaultHealthInterval            = 60
	defaultHealthTimeoutSeconds      = 30
	defaultHealthSlowSeconds         = 10
	defaultHealthFailureThreshold    = 3
	defaultHealthRetryAttempts       = 2
	defaultHealthUptimeInterval      = 300
	defaultHealthHistoryHours        = 24
	defaultNotifyRequestTimeout      = 10
	defaultWebhookTimeoutSeconds     = 15
	defaultWebhookMaxAttempts        = 3
	defaultWebhookUserAgent          = "matchreel-webhook/1.0"
	defaultIntakeExchange            = "matchreel"
	defaultIntakeQueue               = "matchreel.jobs"
	defaultIntakeRoutingKey          = "jobs.submit"
	defaultIntakePrefetch            = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Worker: Worker{
			Concurrency:           defaultWorkerConcurrency,
			MaxAttempts:           defaultWorkerMaxAttempts,
			PollInterval:          defaultWorkerPollInterval,
			ErrorRetryInterval:    defaultWorkerErrorRetryInterval,
			HeartbeatInterval:     defaultWorkerHeartbeatInterval,
			HeartbeatTimeout:      defaultWorkerHeartbeatTimeout,
			AttemptBackoffInitial: defaultAttemptBackoffInitial,
			AttemptBackoffMax:     defaultAttemptBackoffMax,
			StageTimeouts: map[string]int{
				"default":       defaultStageTimeoutSeconds,
				"downloading":   3600,
				"parsing_notes": 60,
				"analyzing":     7200,
				"assembling":    3600,
				"uploading":     7200,
			},
			WorkDirRetentionHours: defaultWorkDirRetentionHours,
		},
		Retry: Retry{
			MaxAttempts:   defaultRetryMaxAttempts,
			InitialMillis: defaultRetryInitialMillis,
			MaxMillis:     defaultRetryMaxMillis,
			Multiplier:    defaultRetryMultiplier,
		},
		Analysis: Analysis{
			VisualSampleRate:        defaultVisualSampleRate,
			MotionSampleRate:        defaultMotionSampleRate,
			NoteBufferSeconds:       defaultNoteBufferSeconds,
			MergeThresholdSeconds:   defaultMergeThresholdSeconds,
			MinConfidence:           defaultMinConfidence,
			FrameConfidence:         defaultFrameConfidence,
			MinSignificantDetectors: defaultMinSignificantDetectors,
			CacheSize:               defaultCacheSize,
			MotionThreshold:         defaultMotionThreshold,
			MotionSustainSamples:    defaultMotionSustainSamples,
			ConfirmationBoost:       defaultConfirmationBoost,
			FrameWidth:              defaultFrameWidth,
			FrameHeight:             defaultFrameHeight,
			MinClipSeconds:          defaultMinClipSeconds,
			MaxClipSeconds:          defaultMaxClipSeconds,
			Weights: map[string]float64{
				"player_activity": 0.35,
				"ball":            0.20,
				"crowd":           0.20,
				"goal_area":       0.25,
			},
			Thresholds: map[string]float64{
				"player_activity": 0.5,
				"ball":            0.5,
				"crowd":           0.5,
				"goal_area":       0.5,
			},
		},
		Storage: Storage{
			MaxParallelUploads: defaultMaxParallelUploads,
			RetentionDays:      defaultStorageRetentionDays,
			CleanupInterval:    defaultStorageCleanupInterval,
			WarningThreshold:   defaultStorageWarningThreshold,
			CriticalThreshold:  defaultStorageCriticalThreshold,
			EmergencyThreshold: defaultStorageEmergencyThreshold,
			Host: Host{
				TimeoutSeconds: defaultHostTimeoutSeconds,
				DefaultPrivacy: defaultHostPrivacy,
			},
			Archive: Archive{
				Bucket:        defaultArchiveBucket,
				Prefix:        defaultArchivePrefix,
				UseSSL:        true,
				CapacityBytes: defaultArchiveCapacityBytes,
			},
		},
		Health: Health{
			Interval:             defaultHealthInterval,
			TimeoutSeconds:       defaultHealthTimeoutSeconds,
			SlowThresholdSeconds: defaultHealthSlowSeconds,
			FailureThreshold:     defaultHealthFailureThreshold,
			RetryAttempts:        defaultHealthRetryAttempts,
			UptimeInterval:       defaultHealthUptimeInterval,
			HistoryWindowHours:   defaultHealthHistoryHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobErrors:      true,
			HealthAlerts:   true,
			StorageAlerts:  true,
		},
		Webhook: Webhook{
			TimeoutSeconds: defaultWebhookTimeoutSeconds,
			MaxAttempts:    defaultWebhookMaxAttempts,
			UserAgent:      defaultWebhookUserAgent,
		},
		Intake: Intake{
			Exchange:   defaultIntakeExchange,
			Queue:      defaultIntakeQueue,
			RoutingKey: defaultIntakeRoutingKey,
			Prefetch:   defaultIntakePrefetch,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
