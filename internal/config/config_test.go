package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("COLLECTION_MAX_RETRIES", "")
	c := Load()
	if c.Policy.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", c.Policy.MaxRetries)
	}
	if c.Policy.Backoff != "exponential" {
		t.Fatalf("Backoff = %q", c.Policy.Backoff)
	}
	if c.IdempTTLSecs != 300 {
		t.Fatalf("IdempTTLSecs = %d", c.IdempTTLSecs)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COLLECTION_MAX_RETRIES", "5")
	t.Setenv("COLLECTION_BACKOFF", "FIXED")
	t.Setenv("RESTRICTION_COOLDOWN", "48h")
	t.Setenv("REPAYMENT_FEE_PERCENT", "2.5")
	t.Setenv("REDIS_DB", "not-a-number")

	c := Load()
	if c.Policy.MaxRetries != 5 || c.Policy.Backoff != "fixed" {
		t.Fatalf("policy = %+v", c.Policy)
	}
	if c.Policy.RestrictionCooldown != 48*time.Hour {
		t.Fatalf("cooldown = %v", c.Policy.RestrictionCooldown)
	}
	if c.Fees.RepaymentPercent != 2.5 {
		t.Fatalf("fee percent = %v", c.Fees.RepaymentPercent)
	}
	if c.RedisDB != 0 {
		t.Fatalf("bad REDIS_DB should fall back to 0, got %d", c.RedisDB)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing host":    func(c *Config) { c.MySQLHost = "" },
		"bad port":        func(c *Config) { c.MySQLPort = "not-a-port-name" },
		"zero retries":    func(c *Config) { c.Policy.MaxRetries = 0 },
		"unknown backoff": func(c *Config) { c.Policy.Backoff = "linear" },
		"negative fee":    func(c *Config) { c.Fees.RepaymentFixed = -1 },
		"zero ontime":     func(c *Config) { c.Trust.OntimePaymentPoints = 0 },
		"zero late":       func(c *Config) { c.Trust.LatePaymentPoints = 0 },
		"negative defpen": func(c *Config) { c.Trust.DefaultPenalty = -100 },
		"zero voucher":    func(c *Config) { c.Trust.VoucherPenalty = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Load()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	c := &Config{MySQLUser: "u", MySQLPass: "p", MySQLHost: "db", MySQLPort: "3306", MySQLDB: "lending"}
	dsn := c.MySQLDSN()
	if !strings.HasPrefix(dsn, "u:p@tcp(db:3306)/lending?") || !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("dsn = %s", dsn)
	}
}

func TestValidate_TrustPointsFromEnv(t *testing.T) {
	t.Setenv("TRUST_VOUCHER_PENALTY", "-5")
	c := Load()
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "TRUST_VOUCHER_PENALTY") {
		t.Fatalf("Validate = %v", err)
	}
}
