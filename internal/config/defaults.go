package config

const (
	defaultDataDir              = "~/.local/share/scribe"
	defaultLogDir               = "~/.local/share/scribe/logs"
	defaultSheetBaseURL         = "https://sheets.googleapis.com/v4"
	defaultProductsSheet        = "products"
	defaultKeywordsSheet        = "keywords"
	defaultRequestsPerMinute    = 50
	defaultMinIntervalMS        = 1200
	defaultMaxWaitSeconds       = 90
	defaultDedupTTLSeconds      = 300
	defaultMarketTimeoutSeconds = 15
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMTimeoutSeconds    = 60
	defaultPublisherTimeout     = 30
	defaultIntervalMinutes      = 60
	defaultBatchIntervalMinutes = 30
	defaultMaxSlotsPerDay       = 10
	defaultMaxKeywordsPerRun    = 3
	defaultRetryAttempts        = 3
	defaultEnrichCacheTTLHours  = 720
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Sheet: Sheet{
			BaseURL:         defaultSheetBaseURL,
			ProductsSheet:   defaultProductsSheet,
			KeywordsSheet:   defaultKeywordsSheet,
			RequestsPerMin:  defaultRequestsPerMinute,
			MinIntervalMS:   defaultMinIntervalMS,
			MaxWaitSeconds:  defaultMaxWaitSeconds,
			DedupTTLSeconds: defaultDedupTTLSeconds,
		},
		Market: Market{
			TimeoutSeconds: defaultMarketTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Publisher: Publisher{
			TimeoutSeconds: defaultPublisherTimeout,
		},
		Scheduler: Scheduler{
			IntervalMinutes:      defaultIntervalMinutes,
			BatchIntervalMinutes: defaultBatchIntervalMinutes,
			MaxSlotsPerDay:       defaultMaxSlotsPerDay,
		},
		Workflow: Workflow{
			MaxKeywordsPerRun: defaultMaxKeywordsPerRun,
			RetryAttempts:     defaultRetryAttempts,
		},
		EnrichCache: EnrichCache{
			Enabled:  true,
			TTLHours: defaultEnrichCacheTTLHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Runs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
