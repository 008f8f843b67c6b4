package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all server configuration, loaded from ENROLL_* environment
// variables.
type Config struct {
	Addr    string `env:"ENROLL_ADDR"     envDefault:":8080"`
	Env     string `env:"ENROLL_ENV"      envDefault:"development"`
	DBPath  string `env:"ENROLL_DB_PATH"  envDefault:"enrollment.db"`
	BaseURL string `env:"ENROLL_BASE_URL" envDefault:"http://localhost:8080"`

	ResendKey string `env:"ENROLL_RESEND_KEY"`
	EmailFrom string `env:"ENROLL_EMAIL_FROM" envDefault:"Workshops <noreply@example.com>"`
	ReplyTo   string `env:"ENROLL_REPLY_TO"   envDefault:"hello@example.com"`

	StripeKey           string `env:"ENROLL_STRIPE_KEY"`
	StripeWebhookSecret string `env:"ENROLL_STRIPE_WEBHOOK_SECRET"`
	StripeSuccessURL    string `env:"ENROLL_STRIPE_SUCCESS_URL" envDefault:"http://localhost:8080/enrolled"`
	StripeCancelURL     string `env:"ENROLL_STRIPE_CANCEL_URL"  envDefault:"http://localhost:8080/cancelled"`

	// OperatorKeyHash is the bcrypt hash of the key required by operator
	// endpoints (refunds, workshop management, exports). Empty disables them.
	OperatorKeyHash string `env:"ENROLL_OPERATOR_KEY_HASH"`

	CSRFKey string `env:"ENROLL_CSRF_KEY"`

	ClaimTTL       time.Duration `env:"ENROLL_CLAIM_TTL"       envDefault:"48h"`
	DedupRetention time.Duration `env:"ENROLL_DEDUP_RETENTION" envDefault:"72h"`
	SweepInterval  time.Duration `env:"ENROLL_SWEEP_INTERVAL"  envDefault:"1m"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool {
	return c.Env == "production"
}
