package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"MedTrain"`
		Port int    `envconfig:"PORT" default:"8080"`
		// Comma separated list of browser origins allowed to call the API.
		AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"medtrain"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Auth struct {
		JWTSecret       string        `envconfig:"JWT_SECRET"`
		CustomerTTL     time.Duration `envconfig:"CUSTOMER_SESSION_TTL" default:"24h"`
		AdminTTL        time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"8h"`
		CodeTTL         time.Duration `envconfig:"OTP_TTL" default:"10m"`
		MaxCodeAttempts int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`
	}

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		Password string `envconfig:"REDIS_PASSWORD" default:""`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	AMQP struct {
		// Empty URL keeps notifications in the application log.
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"medtrain.notifications"`
		Queue    string `envconfig:"AMQP_QUEUE" default:"medtrain.notifications.delivery"`
	}

	Meeting struct {
		// Empty token selects the simulated provisioner.
		APIToken string `envconfig:"MEETING_API_TOKEN"`
		BaseURL  string `envconfig:"MEETING_BASE_URL" default:"https://api.zoom.us/v2"`
		HostUser string `envconfig:"MEETING_HOST_USER" default:"me"`
	}

	Booking struct {
		RefPrefix string `envconfig:"BOOKING_REF_PREFIX" default:"MIAD"`
		Currency  string `envconfig:"BOOKING_CURRENCY" default:"GBP"`
	}

	Reminder struct {
		Interval time.Duration `envconfig:"REMINDER_INTERVAL" default:"5m"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
