package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Paystack PaystackConfig
	SMS      SMSConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type PaystackConfig struct {
	SecretKey   string
	CallbackURL string
}

type SMSConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
}

func Load() *Config {
	godotenv.Load() // .env dosyasını yükle

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Paystack: PaystackConfig{
			SecretKey:   getEnv("PAYSTACK_SECRET_KEY", ""),
			CallbackURL: getEnv("PAYSTACK_CALLBACK_URL", ""),
		},
		SMS: SMSConfig{
			Endpoint: getEnv("SMS_API_ENDPOINT", "https://sms.arkesel.com/api/v2/sms/send"),
			APIKey:   getEnv("SMS_API_KEY", ""),
			Sender:   getEnv("SMS_SENDER_ID", "TileMate"),
		},
	}
}

// Validate rejects configurations that would only fail at first request.
// The gateway secret in particular must be caught at boot.
func (c *Config) Validate() error {
	if c.Paystack.SecretKey == "" {
		return errors.New("PAYSTACK_SECRET_KEY is not set")
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
