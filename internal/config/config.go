/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	TransactionExchange  string `mapstructure:"TRANSACTION_EVENT_EXCHANGE"`
	TopupAPIBaseURL      string `mapstructure:"TOPUP_API_BASE_URL"`
	TopupAPIKey          string `mapstructure:"TOPUP_API_KEY"`
	TopupProxyURL        string `mapstructure:"TOPUP_PROXY_URL"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`

	TransferCommissionPercent     int `mapstructure:"TRANSFER_COMMISSION_PERCENT"`
	SubscriptionCommissionPercent int `mapstructure:"SUBSCRIPTION_COMMISSION_PERCENT"`
	AirtimeCommissionPercent      int `mapstructure:"AIRTIME_COMMISSION_PERCENT"`

	ProcessingDelayMs             int    `mapstructure:"PROCESSING_DELAY_MS"`
	RunTTLMinutes                 int    `mapstructure:"RUN_TTL_MINUTES"`
	RunJanitorSchedule            string `mapstructure:"RUN_JANITOR_SCHEDULE"`
	EligibilityRateLimitPerMinute int    `mapstructure:"ELIGIBILITY_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("TRANSACTION_EVENT_EXCHANGE", "wallet_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "sikapay:rate_limit")
	viper.SetDefault("TRANSFER_COMMISSION_PERCENT", 3)
	viper.SetDefault("SUBSCRIPTION_COMMISSION_PERCENT", 2)
	viper.SetDefault("AIRTIME_COMMISSION_PERCENT", 3)
	viper.SetDefault("PROCESSING_DELAY_MS", 1500)
	viper.SetDefault("RUN_TTL_MINUTES", 30)
	viper.SetDefault("RUN_JANITOR_SCHEDULE", "@every 5m")
	viper.SetDefault("ELIGIBILITY_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRANSACTION_EVENT_EXCHANGE")
	_ = viper.BindEnv("TOPUP_API_BASE_URL")
	_ = viper.BindEnv("TOPUP_API_KEY")
	_ = viper.BindEnv("TOPUP_PROXY_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "WALLET_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("TRANSFER_COMMISSION_PERCENT")
	_ = viper.BindEnv("SUBSCRIPTION_COMMISSION_PERCENT")
	_ = viper.BindEnv("AIRTIME_COMMISSION_PERCENT")
	_ = viper.BindEnv("PROCESSING_DELAY_MS")
	_ = viper.BindEnv("RUN_TTL_MINUTES")
	_ = viper.BindEnv("RUN_JANITOR_SCHEDULE")
	_ = viper.BindEnv("ELIGIBILITY_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-injected port (e.g. on PaaS deploys) wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("WALLET_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "sikapay:rate_limit"
	}

	// A commission percentage outside 0..100 is always a misconfiguration.
	clampPercent(&config.TransferCommissionPercent, "TRANSFER_COMMISSION_PERCENT", 3)
	clampPercent(&config.SubscriptionCommissionPercent, "SUBSCRIPTION_COMMISSION_PERCENT", 2)
	clampPercent(&config.AirtimeCommissionPercent, "AIRTIME_COMMISSION_PERCENT", 3)

	if config.ProcessingDelayMs < 0 {
		log.Printf("level=warn component=config msg=\"negative processing delay configured; coercing to zero\" delay_ms=%d", config.ProcessingDelayMs)
		config.ProcessingDelayMs = 0
	}
	if config.RunTTLMinutes <= 0 {
		config.RunTTLMinutes = 30
	}
	if strings.TrimSpace(config.RunJanitorSchedule) == "" {
		config.RunJanitorSchedule = "@every 5m"
	}
	if config.EligibilityRateLimitPerMinute < 0 {
		config.EligibilityRateLimitPerMinute = 0
	}

	return
}

func clampPercent(value *int, name string, fallback int) {
	if *value < 0 || *value > 100 {
		log.Printf("level=warn component=config msg=\"commission percent out of range; using default\" key=%s value=%d default=%d", name, *value, fallback)
		*value = fallback
	}
}
