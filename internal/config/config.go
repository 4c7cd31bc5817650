package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	DBHost            string        `env:"DB_HOST,required"`
	DBPort            int           `env:"DB_PORT,default=5432"`
	DBUser            string        `env:"DB_USER,required"`
	DBPassword        string        `env:"DB_PASSWORD,required"`
	DBName            string        `env:"DB_NAME,required"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	HTTPAddr         string   `env:"HTTP_ADDR,default=:8080"`
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS,default=http://localhost:3000"`

	CollectInterval     time.Duration `env:"COLLECT_INTERVAL,default=1h"`
	CollectWorkers      int           `env:"COLLECT_WORKERS,default=8"`
	CollectHistoryLimit int           `env:"COLLECT_HISTORY_LIMIT,default=30"`

	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT,default=10s"`
	FetchAttempts   int           `env:"FETCH_ATTEMPTS,default=3"`
	FetchBackoff    time.Duration `env:"FETCH_BACKOFF,default=1s"`
	FetchRatePerSec float64       `env:"FETCH_RATE_PER_SEC,default=5"`

	JobMaxAttempts      int           `env:"JOB_MAX_ATTEMPTS,default=3"`
	JobBackoff          time.Duration `env:"JOB_BACKOFF,default=1s"`
	JobPollInterval     time.Duration `env:"JOB_POLL_INTERVAL,default=5s"`
	JobLease            time.Duration `env:"JOB_LEASE,default=30m"`
	SchedulerRunOnStart bool          `env:"SCHEDULER_RUN_ON_START,default=true"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM,default=alerts@pricewatch.local"`

	WSHeartbeat    time.Duration `env:"WS_HEARTBEAT,default=30s"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT,default=5s"`
	SinkTimeout    time.Duration `env:"SINK_TIMEOUT,default=30s"`

	TelegramBotToken        string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs         []int64 `env:"TELEGRAM_CHAT_IDS"`
	TelegramMinSignificance string  `env:"TELEGRAM_MIN_SIGNIFICANCE,default=HIGH"`
	TelegramPollTimeout     int     `env:"TELEGRAM_POLL_TIMEOUT,default=60"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS"`
	KafkaAlertTopic string   `env:"KAFKA_ALERT_TOPIC,default=pricewatch.alerts"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// ClientConfig configures the offline-tolerant consumer client.
type ClientConfig struct {
	APIURL          string        `env:"CLIENT_API_URL,default=http://localhost:8080"`
	DataDir         string        `env:"CLIENT_DATA_DIR"`
	RequestTimeout  time.Duration `env:"CLIENT_REQUEST_TIMEOUT,default=10s"`
	QueueInterval   time.Duration `env:"CLIENT_QUEUE_INTERVAL,default=30s"`
	QueueMaxRetries int           `env:"CLIENT_QUEUE_MAX_RETRIES,default=10"`
	LiveReadTimeout time.Duration `env:"CLIENT_LIVE_READ_TIMEOUT,default=90s"`
	LiveRetry       time.Duration `env:"CLIENT_LIVE_RETRY,default=5s"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
}

func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadClient(ctx context.Context) (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
