package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig
	Graph  GraphConfig
	Store  StoreConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Port string
}

type GraphConfig struct {
	AppID     string
	AppSecret string
	// VerifyToken is echoed back during webhook verification.
	VerifyToken string
	// UserToken is an optional freshly issued short-lived token supplied at
	// boot; with it the startup sequence runs immediately instead of
	// waiting for a browser login.
	UserToken string
	// BaseURL is overridable so tests can point the client at a fake API.
	BaseURL string
}

type StoreConfig struct {
	URL string
}

type RedisConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("💡 Using platform environment variables (no .env file)")
	}

	cfg := &Config{}
	cfg.Server.Port = getEnvOrDefault("PORT", "8080")
	cfg.Graph.AppID = getEnvOrDie("FACEBOOK_APP_ID")
	cfg.Graph.AppSecret = getEnvOrDie("FACEBOOK_APP_SECRET")
	cfg.Graph.VerifyToken = getEnvOrDie("VERIFY_TOKEN")
	cfg.Graph.UserToken = os.Getenv("FACEBOOK_USER_TOKEN")
	cfg.Graph.BaseURL = os.Getenv("GRAPH_API_URL")
	cfg.Store.URL = getEnvOrDie("TOKEN_STORE_URL")
	cfg.Redis.Host = getEnvOrDefault("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvOrDefault("REDIS_PORT", "6379")
	cfg.Redis.Username = os.Getenv("REDIS_USERNAME")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	return cfg
}

func getEnvOrDie(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("❌ %s environment variable is not set", key)
	}
	return value
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
