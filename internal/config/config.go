package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string

	AIAPIKey  string
	AIBaseURL string
	AIModel   string

	// NotifyChannel selects the outbound channel: twilio, telegram or log.
	NotifyChannel    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TelegramToken    string

	ListenAddr     string
	CheckInterval  time.Duration
	CleanupExpired bool
	Timezone       string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	interval, err := parseDuration(getEnvOrDefault("CHECK_INTERVAL", "60s"))
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURI:      os.Getenv("DATABASE_URI"),
		AIAPIKey:         os.Getenv("AI_API_KEY"),
		AIBaseURL:        getEnvOrDefault("AI_BASE_URL", "https://api.openai.com/v1"),
		AIModel:          getEnvOrDefault("AI_MODEL", "gpt-4o-mini"),
		NotifyChannel:    getEnvOrDefault("NOTIFY_CHANNEL", "log"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		ListenAddr:       getEnvOrDefault("LISTEN_ADDR", ":8080"),
		CheckInterval:    interval,
		CleanupExpired:   os.Getenv("CLEANUP_EXPIRED") == "true",
		Timezone:         getEnvOrDefault("TIMEZONE", "Local"),
	}, nil
}

func (c *Config) Validate() error {
	switch c.NotifyChannel {
	case "log":
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFrom == "" {
			return fmt.Errorf("twilio channel requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_NUMBER")
		}
	case "telegram":
		if c.TelegramToken == "" {
			return fmt.Errorf("telegram channel requires TELEGRAM_TOKEN")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_CHANNEL %q", c.NotifyChannel)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid CHECK_INTERVAL %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("CHECK_INTERVAL must be positive, got %s", d)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
