package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN returns the GORM postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// DatabaseURL returns the URL form used by the migration runner.
func (c DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// KafkaConfig holds broker addresses and the consumer group prefix.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// JWTConfig holds token verification settings.
type JWTConfig struct {
	Secret string
}

// GatewayConfig holds outbound endpoint settings for the payment provider
// and the settlement system.
type GatewayConfig struct {
	PaymentsBaseURL string
	PaymentsAPIKey  string
	SettlementURL   string
}

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port    string
	AppEnv  string
	DB      DatabaseConfig
	Kafka   KafkaConfig
	JWT     JWTConfig
	Gateway GatewayConfig

	// AdminUserID identifies the operator account allowed on admin routes.
	AdminUserID string
	// OpsSecret guards the internal sweep endpoint.
	OpsSecret string

	// DepositAmountCents is the refundable deposit both parties post.
	DepositAmountCents int64
	// RebookCreditCents is the standard rebooking credit amount.
	RebookCreditCents int64
	Currency          string

	// SweepSchedule is the cron expression for the acceptance-expiry sweep.
	SweepSchedule string
	SweepPageSize int
}

// Load reads configuration from the environment with the BOOKING_ prefix.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "booking")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "spokeshare.")
	v.SetDefault("DEPOSIT_AMOUNT_CENTS", 15000)
	v.SetDefault("REBOOK_CREDIT_CENTS", 15000)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("SWEEP_SCHEDULE", "*/5 * * * *")
	v.SetDefault("SWEEP_PAGE_SIZE", 100)

	cfg := &ServiceConfig{
		Port:   ":" + strings.TrimPrefix(v.GetString("SERVICE_PORT"), ":"),
		AppEnv: v.GetString("APP_ENV"),
		DB: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(v.GetString("KAFKA_BROKERS"), ","),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Gateway: GatewayConfig{
			PaymentsBaseURL: v.GetString("PAYMENTS_BASE_URL"),
			PaymentsAPIKey:  v.GetString("PAYMENTS_API_KEY"),
			SettlementURL:   v.GetString("SETTLEMENT_URL"),
		},
		AdminUserID:        v.GetString("ADMIN_USER_ID"),
		OpsSecret:          v.GetString("OPS_SECRET"),
		DepositAmountCents: v.GetInt64("DEPOSIT_AMOUNT_CENTS"),
		RebookCreditCents:  v.GetInt64("REBOOK_CREDIT_CENTS"),
		Currency:           v.GetString("CURRENCY"),
		SweepSchedule:      v.GetString("SWEEP_SCHEDULE"),
		SweepPageSize:      v.GetInt("SWEEP_PAGE_SIZE"),
	}

	if cfg.JWT.Secret == "" && cfg.AppEnv != "development" {
		return nil, fmt.Errorf("BOOKING_JWT_SECRET is required outside development")
	}
	return cfg, nil
}
