package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
	"github.com/shopspring/decimal"
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	NATSURL    string // NATS server URL for the outbox dispatcher

	PayHeroBaseURL   string // Payment gateway base URL
	PayHeroUsername  string // Gateway API username
	PayHeroPassword  string // Gateway API password
	PayHeroChannelID int    // Gateway payment channel
	CallbackBaseURL  string // Public base URL the gateway calls back on

	RatesBaseURL string // Exchange rate provider base URL
	RatesAPIKey  string // Exchange rate provider API key

	CardPriceKES    decimal.Decimal // Virtual card purchase price
	WithdrawFeeRate decimal.Decimal // Fraction charged on withdrawals

	IsProd bool // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	channelID, _ := strconv.Atoi(os.Getenv("PAYHERO_CHANNEL_ID"))
	return &Config{
		AppPort:    os.Getenv("APP_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBName:     os.Getenv("DB_NAME"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		RedisPass:  os.Getenv("REDIS_PASS"),
		RedisDB:    redisDB,
		NATSURL:    os.Getenv("NATS_URL"),

		PayHeroBaseURL:   os.Getenv("PAYHERO_BASE_URL"),
		PayHeroUsername:  os.Getenv("PAYHERO_USERNAME"),
		PayHeroPassword:  os.Getenv("PAYHERO_PASSWORD"),
		PayHeroChannelID: channelID,
		CallbackBaseURL:  os.Getenv("CALLBACK_BASE_URL"),

		RatesBaseURL: os.Getenv("RATES_BASE_URL"),
		RatesAPIKey:  os.Getenv("RATES_API_KEY"),

		CardPriceKES:    decimalEnv("CARD_PRICE_KES", "300"),
		WithdrawFeeRate: decimalEnv("WITHDRAW_FEE_RATE", "0"),

		IsProd: os.Getenv("IS_PROD") == "true",
	}
}

// decimalEnv parses a decimal env var, falling back to def on any problem.
func decimalEnv(key, def string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(def)
}
