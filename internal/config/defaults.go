package config

const (
	defaultConfigPath         = "~/.config/trustwatch/config.toml"
	defaultStateDir           = "~/.local/share/trustwatch"
	defaultLogDir             = "~/.local/share/trustwatch/logs"
	defaultSnapshotPath       = "~/.local/share/trustwatch/logs.json"
	defaultSQLitePath         = "~/.local/share/trustwatch/snapshot.db"
	defaultAPIBaseURL         = "https://hackatime.hackclub.com/api/v1/users"
	defaultAPIUserAgent       = "trustwatch/0.1.0"
	defaultAPIRequestTimeout  = 10
	defaultMaxID              = 25992
	defaultScanConcurrency    = 50
	defaultStatsConcurrency   = 75
	defaultScanInterval       = 600
	defaultLabelAttempts      = 2
	defaultLabelRetryDelayMS  = 50
	defaultScanProgressEvery  = 1000
	defaultLabelProgressEvery = 500
	defaultPollInterval       = 1
	defaultSlackAPIURL        = "https://slack.com/api/chat.postMessage"
	defaultNotifyTimeout      = 10
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultRedisKey           = "trustwatch:snapshot"
	defaultServerBind         = ":3000"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Scan isolation modes.
const (
	IsolationInline  = "inline"
	IsolationProcess = "process"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			UserAgent:      defaultAPIUserAgent,
			RequestTimeout: defaultAPIRequestTimeout,
		},
		Scan: Scan{
			MaxID:              defaultMaxID,
			ScanConcurrency:    defaultScanConcurrency,
			StatsConcurrency:   defaultStatsConcurrency,
			IntervalSeconds:    defaultScanInterval,
			Isolation:          IsolationInline,
			LabelAttempts:      defaultLabelAttempts,
			LabelRetryDelayMS:  defaultLabelRetryDelayMS,
			ScanProgressEvery:  defaultScanProgressEvery,
			LabelProgressEvery: defaultLabelProgressEvery,
			PrimaryLevel:       "red",
			PrimaryValue:       1,
			SecondaryLevel:     "green",
			SecondaryValue:     2,
		},
		Snapshot: Snapshot{
			Backend:    BackendFile,
			Path:       defaultSnapshotPath,
			SQLitePath: defaultSQLitePath,
			RedisAddr:  defaultRedisAddr,
			RedisKey:   defaultRedisKey,
		},
		Watch: Watch{
			PollInterval: defaultPollInterval,
		},
		Notifications: Notifications{
			SlackAPIURL:    defaultSlackAPIURL,
			RequestTimeout: defaultNotifyTimeout,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
