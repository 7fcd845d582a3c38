package config

const (
	defaultStateDir          = "~/.local/share/brightd"
	defaultLogDir            = "~/.local/share/brightd/logs"
	defaultMaxMonitors       = 4
	defaultWorkers           = 4
	defaultUpdateInterval    = 10
	defaultSettleDelayMS     = 3000
	defaultCallTimeout       = 20
	defaultDDCWriteDelayMS   = 50
	defaultDDCReplyDelayMS   = 40
	defaultDDCRetries        = 3
	defaultDDCLockTimeoutMS  = 2000
	defaultDRMDir            = "/sys/class/drm"
	defaultBacklightDir      = "/sys/class/backlight"
	defaultDevDir            = "/dev"
	defaultCoalesceWindowMS  = 500
	defaultJournalRetention  = 14
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	maxMonitorsUpperBound    = 64
	maxWorkersUpperBound     = 32
	maxDDCRetriesUpperBound  = 10
	minUpdateIntervalSeconds = 1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Scheduler: Scheduler{
			MaxMonitors:    defaultMaxMonitors,
			Workers:        defaultWorkers,
			UpdateInterval: defaultUpdateInterval,
			SettleDelay:    defaultSettleDelayMS,
			CallTimeout:    defaultCallTimeout,
		},
		DDC: DDC{
			Enabled:       true,
			WriteDelayMS:  defaultDDCWriteDelayMS,
			ReplyDelayMS:  defaultDDCReplyDelayMS,
			Retries:       defaultDDCRetries,
			LockTimeoutMS: defaultDDCLockTimeoutMS,
		},
		Sysfs: Sysfs{
			DRMDir:       defaultDRMDir,
			BacklightDir: defaultBacklightDir,
			DevDir:       defaultDevDir,
		},
		Backlight: Backlight{
			Enabled:   true,
			UseLogind: true,
		},
		Watch: Watch{
			Udev:             true,
			Logind:           true,
			CoalesceWindowMS: defaultCoalesceWindowMS,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetention,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
