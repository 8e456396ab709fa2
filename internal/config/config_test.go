package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GHL_API_KEY", "key")
	t.Setenv("GHL_LOCATION_ID", "loc")
	t.Setenv("GHL_CALENDAR_ID", "cal")
	t.Setenv("GHL_WEBHOOK_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("MINIMUM_BUDGET", "")
	t.Setenv("BOOKABLE_DAYS", "")
	t.Setenv("PROFILE_STORE", "")
	t.Setenv("DEFAULT_PHONE_REGION", "")
	cfg := Load()
	if cfg.Port != "8000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MinimumBudget != 300 {
		t.Fatalf("expected default minimum budget 300, got %v", cfg.MinimumBudget)
	}
	if strings.Join(cfg.BookableDays, ",") != "tuesday,wednesday,thursday,friday" {
		t.Fatalf("unexpected default bookable days %v", cfg.BookableDays)
	}
	if cfg.ProfileStore != "memory" {
		t.Fatalf("expected memory profile store, got %s", cfg.ProfileStore)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Fatalf("expected 30 requests per minute, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.HistoryLimit != 20 {
		t.Fatalf("expected history limit 20, got %d", cfg.HistoryLimit)
	}
	if cfg.PhoneRegion != "US" {
		t.Fatalf("expected US phone region, got %q", cfg.PhoneRegion)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MINIMUM_BUDGET", "450.5")
	t.Setenv("BOOKABLE_DAYS", " Monday, FRIDAY ,")
	t.Setenv("GHL_RETRY_BASE_DELAY", "2s")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("PROFILE_STORE", " Redis ")
	t.Setenv("GHL_FIELD_BOOKING_STEP", "fld-step")
	t.Setenv("GHL_FIELD_LANGUAGE", "fld-lang")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.MinimumBudget != 450.5 {
		t.Fatalf("expected minimum budget override, got %v", cfg.MinimumBudget)
	}
	if strings.Join(cfg.BookableDays, ",") != "monday,friday" {
		t.Fatalf("unexpected bookable days %v", cfg.BookableDays)
	}
	if cfg.RetryBaseDelay != 2*time.Second {
		t.Fatalf("expected retry delay override, got %s", cfg.RetryBaseDelay)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.ProfileStore != "redis" {
		t.Fatalf("expected normalized profile store, got %q", cfg.ProfileStore)
	}
	if cfg.GHLFieldIDs["booking_step"] != "fld-step" || cfg.GHLFieldIDs["language"] != "fld-lang" {
		t.Fatalf("unexpected field ids %v", cfg.GHLFieldIDs)
	}
	if _, ok := cfg.GHLFieldIDs["customer_email"]; ok {
		t.Fatalf("unset field ids should be absent")
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	t.Setenv("GHL_API_KEY", "")
	t.Setenv("GHL_LOCATION_ID", "")
	t.Setenv("GHL_CALENDAR_ID", "")
	t.Setenv("GHL_WEBHOOK_SECRET", "")
	err := Load().Validate()
	if err == nil {
		t.Fatal("expected configuration failure")
	}
	for _, name := range []string{"GHL_API_KEY", "GHL_LOCATION_ID", "GHL_CALENDAR_ID", "GHL_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %v", name, err)
		}
	}
}

func TestValidateBackendSettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"valid defaults", nil, ""},
		{"redis without addr", map[string]string{"PROFILE_STORE": "redis", "REDIS_ADDR": ""}, "REDIS_ADDR"},
		{"postgres without url", map[string]string{"PROFILE_STORE": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"dynamo without table", map[string]string{"PROFILE_STORE": "dynamodb", "DYNAMODB_PROFILES_TABLE": ""}, "DYNAMODB_PROFILES_TABLE"},
		{"unknown store", map[string]string{"PROFILE_STORE": "cassandra"}, "PROFILE_STORE"},
		{"llm without model", map[string]string{"EXTRACTOR_MODE": "llm", "GEMINI_API_KEY": "", "BEDROCK_MODEL_ID": ""}, "EXTRACTOR_MODE"},
		{"twilio without sid", map[string]string{"MESSAGING_PROVIDER": "twilio", "TWILIO_ACCOUNT_SID": ""}, "TWILIO_ACCOUNT_SID"},
		{"sendgrid without key", map[string]string{"EMAIL_PROVIDER": "sendgrid", "SENDGRID_API_KEY": ""}, "SENDGRID_API_KEY"},
		{"bad weekday", map[string]string{"BOOKABLE_DAYS": "tuesday,funday"}, "funday"},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWeekdays(t *testing.T) {
	cfg := &Config{BookableDays: []string{"tuesday", "nope", "Friday"}}
	days := cfg.Weekdays()
	if len(days) != 2 || days[0] != time.Tuesday || days[1] != time.Friday {
		t.Fatalf("unexpected weekdays %v", days)
	}
}
