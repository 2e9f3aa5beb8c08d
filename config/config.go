package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// HTTP API
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5250"`

	// Path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/kvartometr.db"`

	// Directory with optional per-city district boundary GeoJSON files
	BoundaryDir string `env:"BOUNDARY_DIR" envDefault:"config/districts"`

	Fetch struct {
		// Minimum interval between requests to one source (milliseconds)
		PolitenessMs int `env:"FETCH_POLITENESS_MS" envDefault:"500"`

		// Request timeout (seconds)
		TimeoutSec int `env:"FETCH_TIMEOUT_SEC" envDefault:"15"`

		// Retry attempts for a single fetch unit
		MaxAttempts int `env:"FETCH_MAX_ATTEMPTS" envDefault:"4"`

		// Base delay for exponential backoff (milliseconds)
		BackoffBaseMs int `env:"FETCH_BACKOFF_BASE_MS" envDefault:"250"`

		// Consecutive failures before the circuit opens for a source
		BreakerThreshold int `env:"FETCH_BREAKER_THRESHOLD" envDefault:"5"`

		// Hard cap on search pages per source per run (0 = no cap)
		MaxPages int `env:"FETCH_MAX_PAGES" envDefault:"0"`
	}

	BatchProcessing struct {
		// Listings accumulated before a batch is pushed to the queue
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"50"`

		// Queue buffer size in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"64"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	Geocoding struct {
		Enabled  bool   `env:"GEOCODE_ENABLED" envDefault:"false"`
		CacheDir string `env:"GEOCODE_CACHE_DIR" envDefault:""`
	}

	Notify struct {
		// AMQP connection URL; empty disables the notifier
		AmqpURL  string `env:"AMQP_URL" envDefault:""`
		Exchange string `env:"AMQP_EXCHANGE" envDefault:"kvartometr.runs"`

		// Telegram notifications; both must be set to enable
		TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
		TelegramChatID   string `env:"TELEGRAM_CHAT_ID" envDefault:""`
	}

	Schedule struct {
		Enabled bool `env:"SCHEDULE_ENABLED" envDefault:"false"`
		// Hour of day (local time) for the daily full crawl
		Hour int `env:"SCHEDULE_HOUR" envDefault:"2"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
