// Package config предоставляет структуры и функции для загрузки конфигурации сервиса биллинга.
// Конфиг читается из YAML по пути CONFIG_PATH, секреты переопределяются переменными окружения.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Razorpay                Razorpay  `yaml:"razorpay"`
	RabbitMQ                RabbitMQ  `yaml:"rabbitmq"`
	SMTP                    SMTP      `yaml:"smtp"`
	Sweeper                 Sweeper   `yaml:"sweeper"`
	RateLimit               RateLimit `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
	PlansTTL     time.Duration `yaml:"plans_ttl" env-default:"10m"`
	WebhookTTL   time.Duration `yaml:"webhook_ttl" env-default:"5m"`
}

// JWTToken структура для проверки jwt-токенов
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Razorpay настройки платёжного провайдера
type Razorpay struct {
	KeyID           string        `yaml:"key_id" env:"RAZORPAY_KEY_ID"`
	KeySecret       string        `yaml:"key_secret" env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret   string        `yaml:"webhook_secret" env:"RAZORPAY_WEBHOOK_SECRET"`
	Currency        string        `yaml:"currency" env-default:"INR"`
	BreakerFailures uint32        `yaml:"breaker_failures" env-default:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" env-default:"30s"`
}

// RabbitMQ настройки брокера событий, пустой URL отключает публикацию
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP настройки почтового сервера для рассылки уведомлений
type SMTP struct {
	Host string `yaml:"host" env:"SMTP_HOST"`
	Port string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
	From string `yaml:"from" env:"SMTP_FROM"`
}

// Sweeper настройки фоновой проверки истёкших подписок
type Sweeper struct {
	Interval       time.Duration `yaml:"interval" env-default:"1h"`
	ReminderWindow time.Duration `yaml:"reminder_window" env-default:"24h"`
}

// RateLimit ограничение частоты запросов к API
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"10"`
	Burst int     `yaml:"burst" env-default:"20"`
}

// Load читает конфиг из файла path.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает .env (если есть) и конфиг по пути из CONFIG_PATH, завершая процесс при ошибке.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}
