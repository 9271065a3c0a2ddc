package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
}

func TestConfig_DatabaseSettings(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Database.MaxOpenConns == 0 {
		t.Error("expected MaxOpenConns to be set")
	}
	if cfg.Database.MaxIdleConns == 0 {
		t.Error("expected MaxIdleConns to be set")
	}
	if cfg.Database.ConnMaxLifetime < time.Minute {
		t.Error("connection max lifetime should be at least 1 minute")
	}
}

func TestConfig_EngineDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Engine.QueueSize == 0 {
		t.Error("expected engine queue size to be set")
	}
	if cfg.Engine.Workers == 0 {
		t.Error("expected engine workers to be set")
	}
}

func TestConfig_ScannerDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Scanner.Enabled {
		t.Error("expected scanner to be enabled by default")
	}
	if cfg.Scanner.Interval < time.Minute {
		t.Error("scanner interval should be at least 1 minute")
	}
	if cfg.Scanner.FireCooldown < time.Hour {
		t.Error("fire cooldown should be at least 1 hour")
	}
}

func TestConfig_WebhookDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Webhook.Timeout == 0 {
		t.Error("expected webhook timeout to be set")
	}
	if cfg.Webhook.MaxRetries == 0 {
		t.Error("expected webhook max retries to be set")
	}
	if cfg.Webhook.RetryDelay < time.Second {
		t.Error("webhook retry delay should be at least 1 second")
	}
}

func TestConfig_TracingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Monitoring.Tracing.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Monitoring.Tracing.Endpoint == "" {
		t.Error("expected tracing endpoint to be set")
	}
	if cfg.Monitoring.Tracing.SampleRatio == 0 {
		t.Error("expected sample ratio to be set")
	}
}

func TestConfig_RateLimiting(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected requests per minute to be set")
	}
	if cfg.Security.RateLimiting.Burst == 0 {
		t.Error("expected burst to be set")
	}
}

func TestInitLogger_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Level = "invalid"
	cfg.Log.Output = "stdout"

	// 应该使用默认的 info 级别
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with invalid level failed: %v", err)
	}
}

func TestInitLogger_TextFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with text format failed: %v", err)
	}
}

func TestInitLogger_FileOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "file"
	cfg.Log.FilePath = t.TempDir() + "/autoflow-test.log"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with file output failed: %v", err)
	}
}

func TestInitLogger_BothOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "both"
	cfg.Log.FilePath = t.TempDir() + "/autoflow-both.log"

	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with both output failed: %v", err)
	}
}

func TestInitLogger_InvalidOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Log.Output = "invalid"

	// 应该回退到 stdout
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("InitLogger with invalid output failed: %v", err)
	}
}
