package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Business rules
	BusinessName  string
	MinimumBudget float64
	BookableDays  []string
	Timezone      string
	CatalogPath   string

	// GoHighLevel
	GHLAPIKey        string
	GHLLocationID    string
	GHLCalendarID    string
	GHLBaseURL       string
	GHLWebhookSecret string
	GHLFieldIDs      map[string]string

	// Collaborator call behaviour
	CollaboratorTimeout time.Duration
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	AppointmentDuration time.Duration

	// Storage
	ProfileStore        string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	DynamoProfilesTable string
	ProfileTTL          time.Duration
	LockTTL             time.Duration
	HistoryLimit        int
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Extraction
	ExtractorMode  string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string

	// Messaging
	MessagingProvider string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string

	// Email confirmation
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	NotifyRecipients  []string

	// HTTP surface
	AdminJWTSecret     string
	RateLimitPerMinute int
	WebhookTimeout     time.Duration
	PhoneRegion        string
}

// GHL custom field names recognised in GHL_FIELD_* env vars.
var ghlFieldNames = []string{
	"booking_step",
	"language",
	"customer_pain_point",
	"customer_email",
	"customer_budget",
	"appointment_id",
	"conversation_started",
	"last_interaction",
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BusinessName:  getEnv("BUSINESS_NAME", "AI Outlet Media"),
		MinimumBudget: getEnvAsFloat("MINIMUM_BUDGET", 300),
		BookableDays:  getEnvAsList("BOOKABLE_DAYS", []string{"tuesday", "wednesday", "thursday", "friday"}),
		Timezone:      getEnv("TIMEZONE", "America/Chicago"),
		CatalogPath:   getEnv("CATALOG_PATH", ""),

		GHLAPIKey:        getEnv("GHL_API_KEY", ""),
		GHLLocationID:    getEnv("GHL_LOCATION_ID", ""),
		GHLCalendarID:    getEnv("GHL_CALENDAR_ID", ""),
		GHLBaseURL:       getEnv("GHL_BASE_URL", "https://services.leadconnectorhq.com"),
		GHLWebhookSecret: getEnv("GHL_WEBHOOK_SECRET", ""),
		GHLFieldIDs:      loadFieldIDs(),

		CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 10*time.Second),
		RetryAttempts:       getEnvAsInt("GHL_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:      getEnvAsDuration("GHL_RETRY_BASE_DELAY", 250*time.Millisecond),
		AppointmentDuration: getEnvAsDuration("APPOINTMENT_DURATION", 30*time.Minute),

		ProfileStore:        strings.ToLower(strings.TrimSpace(getEnv("PROFILE_STORE", "memory"))),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		DynamoProfilesTable: getEnv("DYNAMODB_PROFILES_TABLE", ""),
		ProfileTTL:          getEnvAsDuration("PROFILE_TTL", 30*24*time.Hour),
		LockTTL:             getEnvAsDuration("CONTACT_LOCK_TTL", 30*time.Second),
		HistoryLimit:        getEnvAsInt("HISTORY_LIMIT", 20),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ExtractorMode:  strings.ToLower(strings.TrimSpace(getEnv("EXTRACTOR_MODE", "rules"))),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		MessagingProvider: strings.ToLower(strings.TrimSpace(getEnv("MESSAGING_PROVIDER", "ghl"))),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_WHATSAPP_FROM", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AI Outlet Media"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		NotifyRecipients:  getEnvAsList("NOTIFY_EMAIL_RECIPIENTS", nil),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		WebhookTimeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", 45*time.Second),
		PhoneRegion:        strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),
	}
}

// Validate reports every missing setting that would prevent the service
// from handling traffic. A non-nil result is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("config: %s is required", name))
		}
	}

	require(c.GHLAPIKey, "GHL_API_KEY")
	require(c.GHLLocationID, "GHL_LOCATION_ID")
	require(c.GHLCalendarID, "GHL_CALENDAR_ID")
	require(c.GHLWebhookSecret, "GHL_WEBHOOK_SECRET")

	if c.MinimumBudget <= 0 {
		errs = append(errs, errors.New("config: MINIMUM_BUDGET must be positive"))
	}
	if len(c.BookableDays) == 0 {
		errs = append(errs, errors.New("config: BOOKABLE_DAYS must list at least one weekday"))
	}
	for _, day := range c.BookableDays {
		if _, ok := ParseWeekday(day); !ok {
			errs = append(errs, fmt.Errorf("config: BOOKABLE_DAYS contains unknown weekday %q", day))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: TIMEZONE %q: %w", c.Timezone, err))
	}

	switch c.ProfileStore {
	case "memory":
	case "redis":
		require(c.RedisAddr, "REDIS_ADDR")
	case "postgres":
		require(c.DatabaseURL, "DATABASE_URL")
	case "dynamodb":
		require(c.DynamoProfilesTable, "DYNAMODB_PROFILES_TABLE")
	default:
		errs = append(errs, fmt.Errorf("config: unknown PROFILE_STORE %q", c.ProfileStore))
	}

	switch c.ExtractorMode {
	case "rules":
	case "llm":
		if c.GeminiAPIKey == "" && c.BedrockModelID == "" {
			errs = append(errs, errors.New("config: EXTRACTOR_MODE=llm needs GEMINI_API_KEY or BEDROCK_MODEL_ID"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown EXTRACTOR_MODE %q", c.ExtractorMode))
	}

	switch c.MessagingProvider {
	case "ghl", "log":
	case "twilio", "failover":
		require(c.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
		require(c.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
		require(c.TwilioFromNumber, "TWILIO_WHATSAPP_FROM")
	default:
		errs = append(errs, fmt.Errorf("config: unknown MESSAGING_PROVIDER %q", c.MessagingProvider))
	}

	switch c.EmailProvider {
	case "none", "", "stub":
	case "sendgrid":
		require(c.SendGridAPIKey, "SENDGRID_API_KEY")
		require(c.SendGridFromEmail, "SENDGRID_FROM_EMAIL")
	case "ses":
		require(c.SESFromEmail, "SES_FROM_EMAIL")
	default:
		errs = append(errs, fmt.Errorf("config: unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}

	return errors.Join(errs...)
}

// ParseWeekday resolves an English weekday name.
func ParseWeekday(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	}
	return 0, false
}

// Weekdays returns BookableDays as time.Weekday values, skipping unknown names.
func (c *Config) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(c.BookableDays))
	for _, name := range c.BookableDays {
		if day, ok := ParseWeekday(name); ok {
			out = append(out, day)
		}
	}
	return out
}

func loadFieldIDs() map[string]string {
	ids := make(map[string]string)
	for _, name := range ghlFieldNames {
		if id := getEnv("GHL_FIELD_"+strings.ToUpper(name), ""); id != "" {
			ids[name] = id
		}
	}
	return ids
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, lowercasing each entry.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
