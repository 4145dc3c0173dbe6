package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置，启动时加载一次后显式传给各组件
type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	StoreDriver       string // postgres | mongo | memory
	DatabaseURL       string
	MongoURI          string
	MongoDB           string
	MongoTransactions bool

	JWTSecret     string
	JWTTTL        time.Duration
	SessionSecret string
	CORSOrigins   []string
	AuthRateLimit float64 // 每个 IP 每秒请求数

	GoogleClientID     string
	GoogleClientSecret string
	SiteURL            string

	AWSRegion    string
	S3Bucket     string
	UploadURLTTL time.Duration

	RedisAddr   string
	RabbitMQURL string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	ReconcileCron string
}

// Load 读取 .env（如果存在）和环境变量
func Load() (*Config, error) {
	// .env 缺失时直接使用系统环境变量
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "3000"),
		GinMode:  getEnv("GIN_MODE", "release"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDB:           getEnv("MONGO_DB", "blogsphere"),
		MongoTransactions: getEnvAsBool("MONGO_TRANSACTIONS", false),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTTTL:        getEnvAsDuration("JWT_TTL", 7*24*time.Hour),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		CORSOrigins:   getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		AuthRateLimit: getEnvAsFloat("AUTH_RATE_LIMIT", 1),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		SiteURL:            getEnv("SITE_URL", "http://localhost:3000"),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		UploadURLTTL: getEnvAsDuration("UPLOAD_URL_TTL", 1000*time.Second),

		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		SMTPHost: getEnv("SMTP_HOST", ""),
		SMTPPort: getEnvAsInt("SMTP_PORT", 587),
		SMTPUser: getEnv("SMTP_USER", ""),
		SMTPPass: getEnv("SMTP_PASS", ""),
		SMTPFrom: getEnv("SMTP_FROM", ""),

		ReconcileCron: getEnv("RECONCILE_CRON", "0 3 * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SessionSecret == "" {
		c.SessionSecret = c.JWTSecret
	}
	return nil
}

// GoogleEnabled 未配置 client 时不注册 Google 登录
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration 支持 "15m" 这样的写法，纯数字按秒处理
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
