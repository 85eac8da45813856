// Package config defines the environment-driven service configuration.
package config

import (
	"time"

	"github.com/pitabwire/frame/config"
)

// OrderdeskConfig holds configuration for the orderdesk service.
type OrderdeskConfig struct {
	config.ConfigurationDefault

	// Flow scripts
	ScriptDir     string `envDefault:"./scripts" env:"SCRIPT_DIR"`
	DefaultScript string `envDefault:"order"     env:"DEFAULT_SCRIPT"`
	WatchScripts  bool   `envDefault:"true"      env:"WATCH_SCRIPTS"`

	// Sessions
	SessionTTLMin     int `envDefault:"30" env:"SESSION_TTL_MIN"`
	ReapIntervalSec   int `envDefault:"60" env:"REAP_INTERVAL_SEC"`
	InputSubmitSec    int `envDefault:"5"  env:"INPUT_SUBMIT_TIMEOUT_SEC"`
	InputResultSec    int `envDefault:"10" env:"INPUT_RESULT_TIMEOUT_SEC"`

	// Telegram transport
	TelegramBotToken string `envDefault:"" env:"TELEGRAM_BOT_TOKEN"`
	TelegramAPIBase  string `envDefault:"" env:"TELEGRAM_API_BASE"`

	// Webhooks
	WebhookWorkers    int `envDefault:"16"  env:"WEBHOOK_WORKERS"`
	WebhookMaxRetries int `envDefault:"5"   env:"WEBHOOK_MAX_RETRIES"`
	WebhookTimeoutSec int `envDefault:"10"  env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffSec int `envDefault:"1"   env:"WEBHOOK_BACKOFF_INITIAL_SEC"`
	WebhookBackoffMax int `envDefault:"300" env:"WEBHOOK_BACKOFF_MAX_SEC"`
	CBFailThreshold   int `envDefault:"5"   env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int `envDefault:"60"  env:"CB_RESET_TIMEOUT_SEC"`
}

// SessionTTL returns the idle session time-to-live.
func (c *OrderdeskConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// ReapInterval returns how often the session reaper runs.
func (c *OrderdeskConfig) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSec) * time.Second
}
