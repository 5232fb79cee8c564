package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Search.EscalationThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for openai provider without api key")
	}

	cfg.Embedding.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with key set: %v", err)
	}

	cfg.Embedding.Provider = "anthropic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()

	if cfg.Search.EscalationThreshold != 0.85 {
		t.Errorf("escalation threshold default: %v", cfg.Search.EscalationThreshold)
	}
	if cfg.Fuzzy.EditWeight != 0.5 || cfg.Fuzzy.BackendWeight != 0.2 || cfg.Fuzzy.OverlapWeight != 0.3 {
		t.Errorf("fuzzy blend defaults: %+v", cfg.Fuzzy)
	}
	if cfg.Database.KeyPrefix != "sanctex:" || cfg.Database.IndexName != "watchlist" {
		t.Errorf("database defaults: %+v", cfg.Database)
	}
	if cfg.Cache.ResultTTL().Seconds() != 300 {
		t.Errorf("result ttl default: %v", cfg.Cache.ResultTTL())
	}
	if cfg.Fuzzy.FuzzyTimeout().Milliseconds() != 2000 {
		t.Errorf("fuzzy timeout default: %v", cfg.Fuzzy.FuzzyTimeout())
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("SANCTEX_TEST_ADDR", "redis:6379")
	defer os.Unsetenv("SANCTEX_TEST_ADDR")

	in := []byte("addr: ${SANCTEX_TEST_ADDR}\nprefix: ${SANCTEX_TEST_MISSING:-sanctex:}\n")
	out := string(expandEnvVars(in))

	if out != "addr: redis:6379\nprefix: sanctex:\n" {
		t.Errorf("unexpected expansion: %q", out)
	}
}
