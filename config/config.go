package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var envLoaded bool

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RedirectURI  string `json:"redirect_uri"`
	StateSecret  string `json:"-"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address" validate:"required_if=Enabled true"`
	Password string `json:"-"`
	DB       int    `json:"db" validate:"gte=0"`
}

type DatabaseConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         string `json:"port"`
	User         string `json:"user"`
	Password     string `json:"-"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port" validate:"gte=0,lte=65535"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// VerifierConfig drives the RCPT probe. Sender is the MAIL FROM identity
// presented to remote exchangers.
type VerifierConfig struct {
	Sender   string        `json:"sender" validate:"omitempty,email"`
	HeloName string        `json:"helo_name" validate:"required"`
	Port     int           `json:"port" validate:"gt=0,lte=65535"`
	Timeout  time.Duration `json:"timeout" validate:"gt=0"`
}

type CampaignConfig struct {
	RecipientsFile   string        `json:"recipients_file" validate:"required"`
	StrictRecipients bool          `json:"strict_recipients"`
	DefaultName      string        `json:"default_name"`
	Template         string        `json:"template" validate:"oneof=introduction follow_up"`
	Subject          string        `json:"subject"`
	FromName         string        `json:"from_name"`
	FromEmail        string        `json:"from_email" validate:"omitempty,email"`
	Cc               []string      `json:"cc" validate:"dive,email"`
	SenderTitle      string        `json:"sender_title"`
	CompanyName      string        `json:"company_name"`
	CompanyURL       string        `json:"company_url" validate:"omitempty,url"`
	Phone            string        `json:"phone"`
	SendDelay        time.Duration `json:"send_delay" validate:"gte=0"`
	VerifyRecipients bool          `json:"verify_recipients"`
	DryRun           bool          `json:"dry_run"`
	TriggerLimit     int           `json:"trigger_limit" validate:"gt=0"`
}

type Config struct {
	Environment        string         `json:"environment"`
	ServerPort         string         `json:"server_port" validate:"required,numeric"`
	LogLevel           string         `json:"log_level"`
	LogFormat          string         `json:"log_format" validate:"oneof=text json"`
	Google             OAuthConfig    `json:"google"`
	Campaign           CampaignConfig `json:"campaign"`
	Verifier           VerifierConfig `json:"verifier"`
	SMTP               SMTPConfig     `json:"smtp"`
	Redis              RedisConfig    `json:"redis"`
	Database           DatabaseConfig `json:"database"`
	SentryDSN          string         `json:"-"`
	CORSAllowedOrigins []string       `json:"cors_allowed_origins"`
}

var validate = validator.New()

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

// LoadEnvFile loads an additional env file on top of the process environment.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	return godotenv.Overload(path)
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "3000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Google: OAuthConfig{
			ClientID:     getEnvWithLegacy("GOOGLE_CLIENT_ID", "CLIENT_ID"),
			ClientSecret: getEnvWithLegacy("GOOGLE_CLIENT_SECRET", "CLIENT_SECRET"),
			RedirectURI:  getEnvWithLegacy("GOOGLE_REDIRECT_URI", "REDIRECT_URI"),
			StateSecret:  getEnv("OAUTH_STATE_SECRET", ""),
		},
		Campaign: CampaignConfig{
			RecipientsFile:   getEnv("CAMPAIGN_RECIPIENTS_FILE", "email-api.xlsx"),
			StrictRecipients: getEnvAsBool("CAMPAIGN_STRICT_RECIPIENTS", true),
			DefaultName:      getEnv("CAMPAIGN_DEFAULT_NAME", "Valued Client"),
			Template:         getEnv("CAMPAIGN_TEMPLATE", "follow_up"),
			Subject:          getEnv("CAMPAIGN_SUBJECT", ""),
			FromName:         getEnv("CAMPAIGN_FROM_NAME", ""),
			FromEmail:        getEnv("CAMPAIGN_FROM_EMAIL", ""),
			Cc:               getEnvAsList("CAMPAIGN_CC"),
			SenderTitle:      getEnv("CAMPAIGN_SENDER_TITLE", ""),
			CompanyName:      getEnv("CAMPAIGN_COMPANY_NAME", ""),
			CompanyURL:       getEnv("CAMPAIGN_COMPANY_URL", ""),
			Phone:            getEnv("CAMPAIGN_PHONE", ""),
			SendDelay:        getEnvAsDuration("CAMPAIGN_SEND_DELAY", 5*time.Second),
			VerifyRecipients: getEnvAsBool("CAMPAIGN_VERIFY_RECIPIENTS", true),
			DryRun:           getEnvAsBool("CAMPAIGN_DRY_RUN", false),
			TriggerLimit:     getEnvAsInt("CAMPAIGN_TRIGGER_LIMIT", 5),
		},
		Verifier: VerifierConfig{
			Sender:   getEnv("VERIFIER_SENDER", ""),
			HeloName: getEnv("VERIFIER_HELO_NAME", "localhost"),
			Port:     getEnvAsInt("VERIFIER_PORT", 25),
			Timeout:  getEnvAsDuration("VERIFIER_TIMEOUT", 15*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:      getEnvAsBool("DB_ENABLED", false),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "outreach"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		},
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs the struct tags first, then the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// the verify endpoints open SMTP sessions even when campaigns skip verification
	if c.Verifier.Sender == "" {
		return errors.New("VERIFIER_SENDER is required")
	}
	if c.Database.Enabled && c.Database.Password == "" {
		return errors.New("DB_PASSWORD is required when DB_ENABLED is set")
	}
	if c.Environment == "production" {
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			return errors.New("Google OAuth credentials are required in production")
		}
		if c.Google.StateSecret == "" {
			return errors.New("OAUTH_STATE_SECRET is required in production")
		}
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

// getEnvWithLegacy reads key, falling back to the variable name used by the
// first release of the campaign script.
func getEnvWithLegacy(key, legacy string) string {
	if value := getEnv(key, ""); value != "" {
		return value
	}
	if value, exists := os.LookupEnv(legacy); exists && value != "" {
		log.Printf("deprecated env var %s used, prefer %s", legacy, key)
		return value
	}
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		log.Printf("invalid %s=%q, using default %s", key, valueStr, fallback)
		return fallback
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return []string{}
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

// LogConfig prints a redacted summary of the loaded configuration.
func (c *Config) LogConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", c.Environment)
	log.Printf("Server Port: %s", c.ServerPort)
	log.Printf("Recipients: %s (strict=%t, template=%s)",
		c.Campaign.RecipientsFile,
		c.Campaign.StrictRecipients,
		c.Campaign.Template)
	log.Printf("Pacing: %s between sends, verification=%t, dry-run=%t",
		c.Campaign.SendDelay,
		c.Campaign.VerifyRecipients,
		c.Campaign.DryRun)
	log.Printf("OAuth: Google(%t)", c.Google.ClientID != "")
	log.Printf("Redis limiter storage: %t, delivery log: %t", c.Redis.Enabled, c.Database.Enabled)
}
