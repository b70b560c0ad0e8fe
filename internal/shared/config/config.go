package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the server reads at startup.
type Config struct {
	HTTPAddr    string
	StoreDriver string // "postgres" or "memory"
	DB          DatabaseConfig
	Redis       RedisConfig
	NATSURL     string
	Policy      PolicyConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PolicyConfig groups the tunables of the bidding core. It can be overridden by a YAML
// file pointed to by AUCTION_POLICY_FILE.
type PolicyConfig struct {
	OvertimeSeconds    int           `yaml:"overtime_seconds"`
	MaxBidAmount       float64       `yaml:"max_bid_amount"`
	AllowSelfOutbid    bool          `yaml:"allow_self_outbid"`
	RequireStanding    bool          `yaml:"require_standing"`
	MinStandingPoints  int64         `yaml:"min_standing_points"`
	QueueDepth         int           `yaml:"queue_depth"`
	AdmissionWait      time.Duration `yaml:"admission_wait"`
	StoreTimeout       time.Duration `yaml:"store_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	ReplayBuffer       int           `yaml:"replay_buffer"`
	SubscriberBuffer   int           `yaml:"subscriber_buffer"`
	ArchiveTimeout     time.Duration `yaml:"archive_timeout"`
	SSEHeartbeat       time.Duration `yaml:"sse_heartbeat"`
	ViewerRegistration time.Duration `yaml:"viewer_registration_ttl"`
	ClosedRetention    time.Duration `yaml:"closed_retention"`
}

// DefaultPolicy mirrors the production defaults: 30s overtime window, 2s admission wait.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		OvertimeSeconds:    30,
		MaxBidAmount:       1_000_000_000,
		AllowSelfOutbid:    false,
		RequireStanding:    false,
		QueueDepth:         256,
		AdmissionWait:      2 * time.Second,
		StoreTimeout:       3 * time.Second,
		SweepInterval:      5 * time.Second,
		ReplayBuffer:       512,
		SubscriberBuffer:   64,
		ArchiveTimeout:     5 * time.Second,
		SSEHeartbeat:       15 * time.Second,
		ViewerRegistration: 24 * time.Hour,
		ClosedRetention:    10 * time.Minute,
	}
}

// Load reads .env (if present), the environment and the optional policy file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":9000"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DB: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "auctions"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 0)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATSURL: os.Getenv("NATS_URL"),
		Policy:  DefaultPolicy(),
	}

	if path := os.Getenv("AUCTION_POLICY_FILE"); path != "" {
		if err := loadPolicyFile(path, &cfg.Policy); err != nil {
			return nil, err
		}
	}
	cfg.Policy.OvertimeSeconds = getEnvAsInt("AUCTION_OVERTIME_SECONDS", cfg.Policy.OvertimeSeconds)
	cfg.Policy.AllowSelfOutbid = getEnvAsBool("AUCTION_ALLOW_SELF_OUTBID", cfg.Policy.AllowSelfOutbid)
	cfg.Policy.RequireStanding = getEnvAsBool("AUCTION_REQUIRE_STANDING", cfg.Policy.RequireStanding)
	cfg.Policy.MinStandingPoints = int64(getEnvAsInt("AUCTION_MIN_STANDING_POINTS", int(cfg.Policy.MinStandingPoints)))
	cfg.Policy.QueueDepth = getEnvAsInt("AUCTION_QUEUE_DEPTH", cfg.Policy.QueueDepth)
	cfg.Policy.AdmissionWait = getEnvAsDuration("AUCTION_ADMISSION_WAIT", cfg.Policy.AdmissionWait)
	cfg.Policy.ClosedRetention = getEnvAsDuration("AUCTION_CLOSED_RETENTION", cfg.Policy.ClosedRetention)

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN builds the connection string the way the pgx pool and the migrator expect it.
func (c DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

func (p PolicyConfig) Validate() error {
	switch {
	case p.OvertimeSeconds <= 0:
		return fmt.Errorf("config: overtime_seconds must be positive, got %d", p.OvertimeSeconds)
	case p.QueueDepth <= 0:
		return fmt.Errorf("config: queue_depth must be positive, got %d", p.QueueDepth)
	case p.AdmissionWait <= 0:
		return fmt.Errorf("config: admission_wait must be positive, got %s", p.AdmissionWait)
	case p.MinStandingPoints < 0:
		return fmt.Errorf("config: min_standing_points must not be negative, got %d", p.MinStandingPoints)
	case p.SubscriberBuffer <= 0 || p.ReplayBuffer < 0:
		return fmt.Errorf("config: invalid broadcast buffers (subscriber=%d replay=%d)", p.SubscriberBuffer, p.ReplayBuffer)
	}
	return nil
}

func loadPolicyFile(path string, policy *PolicyConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
