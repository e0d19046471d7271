package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string
	LogLevel string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	Rail         RailConfig
	Kafka        KafkaConfig
	Policy       PolicyConfig
	Fees         FeeConfig
	Trust        TrustConfig
	SweepLockTTL time.Duration
}

type RailConfig struct {
	// BaseURL empty selects the in-process sandbox rail.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type KafkaConfig struct {
	// Brokers empty selects the log notifier.
	Brokers          string
	Topic            string
	ClientID         string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
}

type PolicyConfig struct {
	MaxRetries          int
	Backoff             string // "fixed" or "exponential"
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	ReminderWindowDays  int
	RestrictionCooldown time.Duration
	StaleTransferAfter  time.Duration
}

type FeeConfig struct {
	RepaymentPercent float64
	RepaymentFixed   float64
}

type TrustConfig struct {
	EarlyPaymentPoints  int
	OntimePaymentPoints int
	LatePaymentPoints   int
	DefaultPenalty      int
	VoucherPenalty      int
	CompletionBonus     int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	}
	return d
}

// Load reads configuration from the environment, after loading a .env file
// if one is present in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "lending"),
		MySQLUser: getenv("MYSQL_USER", "lending"),
		MySQLPass: getenv("MYSQL_PASS", "lending"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:      getenvInt("REDIS_DB", 0),
		IdempTTLSecs: getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),

		Rail: RailConfig{
			BaseURL: getenv("RAIL_BASE_URL", ""),
			APIKey:  getenv("RAIL_API_KEY", ""),
			Timeout: getenvDuration("RAIL_TIMEOUT", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:          getenv("KAFKA_BROKERS", ""),
			Topic:            getenv("KAFKA_NOTIFICATION_TOPIC", "loan-servicing-notifications"),
			ClientID:         getenv("KAFKA_CLIENT_ID", "loan-servicing"),
			SecurityProtocol: getenv("KAFKA_SECURITY_PROTOCOL", "plaintext"),
			SASLMechanism:    getenv("KAFKA_SASL_MECHANISM", ""),
			SASLUsername:     getenv("KAFKA_SASL_USERNAME", ""),
			SASLPassword:     getenv("KAFKA_SASL_PASSWORD", ""),
		},
		Policy: PolicyConfig{
			MaxRetries:          getenvInt("COLLECTION_MAX_RETRIES", 3),
			Backoff:             strings.ToLower(getenv("COLLECTION_BACKOFF", "exponential")),
			BackoffBase:         getenvDuration("COLLECTION_BACKOFF_BASE", 24*time.Hour),
			BackoffMax:          getenvDuration("COLLECTION_BACKOFF_MAX", 72*time.Hour),
			ReminderWindowDays:  getenvInt("REMINDER_WINDOW_DAYS", 3),
			RestrictionCooldown: getenvDuration("RESTRICTION_COOLDOWN", 30*24*time.Hour),
			StaleTransferAfter:  getenvDuration("STALE_TRANSFER_AFTER", 30*time.Minute),
		},
		Fees: FeeConfig{
			RepaymentPercent: getenvFloat("REPAYMENT_FEE_PERCENT", 1.0),
			RepaymentFixed:   getenvFloat("REPAYMENT_FEE_FIXED", 0),
		},
		Trust: TrustConfig{
			EarlyPaymentPoints:  getenvInt("TRUST_EARLY_POINTS", 7),
			OntimePaymentPoints: getenvInt("TRUST_ONTIME_POINTS", 5),
			LatePaymentPoints:   getenvInt("TRUST_LATE_POINTS", 1),
			DefaultPenalty:      getenvInt("TRUST_DEFAULT_PENALTY", 100),
			VoucherPenalty:      getenvInt("TRUST_VOUCHER_PENALTY", 25),
			CompletionBonus:     getenvInt("TRUST_COMPLETION_BONUS", 20),
		},
		SweepLockTTL: getenvDuration("SWEEP_LOCK_TTL", 20*time.Hour),
	}
	return c
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.Policy.MaxRetries < 1 {
		return fmt.Errorf("COLLECTION_MAX_RETRIES must be >= 1, got %d", c.Policy.MaxRetries)
	}
	switch c.Policy.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("unknown COLLECTION_BACKOFF %q", c.Policy.Backoff)
	}
	if c.Fees.RepaymentPercent < 0 || c.Fees.RepaymentFixed < 0 {
		return errors.New("repayment fees must not be negative")
	}
	// payments must raise a score and defaults must lower it
	for name, v := range map[string]int{
		"TRUST_EARLY_POINTS":     c.Trust.EarlyPaymentPoints,
		"TRUST_ONTIME_POINTS":    c.Trust.OntimePaymentPoints,
		"TRUST_LATE_POINTS":      c.Trust.LatePaymentPoints,
		"TRUST_DEFAULT_PENALTY":  c.Trust.DefaultPenalty,
		"TRUST_VOUCHER_PENALTY":  c.Trust.VoucherPenalty,
		"TRUST_COMPLETION_BONUS": c.Trust.CompletionBonus,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", name, v)
		}
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
