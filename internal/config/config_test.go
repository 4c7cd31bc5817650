package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "pricewatch")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "pricewatch")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CollectInterval != time.Hour {
		t.Errorf("CollectInterval = %v, want 1h", cfg.CollectInterval)
	}
	if cfg.CollectHistoryLimit != 30 {
		t.Errorf("CollectHistoryLimit = %d, want 30", cfg.CollectHistoryLimit)
	}
	if cfg.FetchAttempts != 3 || cfg.FetchBackoff != time.Second {
		t.Errorf("fetch retry = %d/%v, want 3/1s", cfg.FetchAttempts, cfg.FetchBackoff)
	}
	if cfg.JobMaxAttempts != 3 {
		t.Errorf("JobMaxAttempts = %d, want 3", cfg.JobMaxAttempts)
	}
	if cfg.WSHeartbeat != 30*time.Second {
		t.Errorf("WSHeartbeat = %v, want 30s", cfg.WSHeartbeat)
	}
	if cfg.TelegramMinSignificance != "HIGH" {
		t.Errorf("TelegramMinSignificance = %q, want HIGH", cfg.TelegramMinSignificance)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want empty", cfg.KafkaBrokers)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	if _, err := Load(context.Background()); err == nil {
		t.Fatal("expected error for missing DB settings")
	}
}

func TestLoad_Lists(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TELEGRAM_CHAT_IDS", "100,-200")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if len(cfg.TelegramChatIDs) != 2 || cfg.TelegramChatIDs[1] != -200 {
		t.Errorf("TelegramChatIDs = %v", cfg.TelegramChatIDs)
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	cfg, err := LoadClient(context.Background())
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.QueueInterval != 30*time.Second {
		t.Errorf("QueueInterval = %v, want 30s", cfg.QueueInterval)
	}
	if cfg.QueueMaxRetries != 10 {
		t.Errorf("QueueMaxRetries = %d, want 10", cfg.QueueMaxRetries)
	}
}
