package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
	DryRun       bool   `yaml:"dry_run"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig covers the OTP flow and session tokens.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	OTPTTL          time.Duration `yaml:"otp_ttl"`
	MaxAttempts     int           `yaml:"max_attempts"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	RateLimitCount  int           `yaml:"rate_limit_count"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type ReportsConfig struct {
	FontPath   string `yaml:"font_path"`
	ClinicName string `yaml:"clinic_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// AllowOrigins lists CORS origins; empty allows any origin.
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Redis   RedisConfig   `yaml:"redis"`
	Email   EmailConfig   `yaml:"email"`
	Auth    AuthConfig    `yaml:"auth"`
	Reports ReportsConfig `yaml:"reports"`
	Log     LogConfig     `yaml:"log"`
}

// LoadConfig reads the YAML file (MEDICARE_CONFIG or config/config.yaml) and panics on failure.
func LoadConfig() *Config {
	path := os.Getenv("MEDICARE_CONFIG")
	if path == "" {
		path = defaultPath
	}
	// .env is optional; variables already in the environment win
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.Email.SMTPPassword = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.OTPTTL <= 0 {
		c.Auth.OTPTTL = 10 * time.Minute
	}
	if c.Auth.MaxAttempts <= 0 {
		c.Auth.MaxAttempts = 3
	}
	if c.Auth.SweepInterval <= 0 {
		c.Auth.SweepInterval = 5 * time.Minute
	}
	if c.Auth.RateLimitCount <= 0 {
		c.Auth.RateLimitCount = 5
	}
	if c.Auth.RateLimitWindow <= 0 {
		c.Auth.RateLimitWindow = 15 * time.Minute
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "MediCare Clinic"
	}
	if c.Reports.ClinicName == "" {
		c.Reports.ClinicName = "MediCare Clinic"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
