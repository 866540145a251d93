package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

type GuardianSeed struct {
	Identity common.Address
	Weight   uint64
}

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	LogLevel                string

	JWTSecret        string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	AuthChallengeTTL time.Duration
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	Owner            common.Address
	Signer           common.Address
	RequiredWeight   uint64
	RecoveryDelay    time.Duration
	InitialGuardians []GuardianSeed
	RevokeMaxBatch   int
	AuditLogFile     string
}

// Load reads the environment (and .env when present) and validates the
// full server configuration.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads the environment without validating it. Malformed addresses
// and guardian lists are still reported.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:           getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		AuthChallengeTTL:        getDuration("AUTH_CHALLENGE_TTL", 5*time.Minute),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		StoreDriver:             strings.ToLower(getEnv("STORE_DRIVER", StoreDriverSQLite)),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 1)),
		SQLitePath:              getEnv("SQLITE_PATH", "./state/recovery.db"),
		RequiredWeight:          getUint64("REQUIRED_WEIGHT", 2),
		RecoveryDelay:           getDuration("RECOVERY_DELAY", 24*time.Hour),
		RevokeMaxBatch:          getInt("REVOKE_MAX_BATCH", 50),
		AuditLogFile:            getEnv("AUDIT_LOG_FILE", "./state/audit.log"),
	}

	var err error
	if cfg.Owner, err = getAddress("OWNER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Signer, err = getAddress("SIGNER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.InitialGuardians, err = ParseGuardians(os.Getenv("INITIAL_GUARDIANS")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.AuthChallengeTTL <= 0 {
		return fmt.Errorf("AUTH_CHALLENGE_TTL must be positive")
	}

	if c.Owner == (common.Address{}) {
		return fmt.Errorf("OWNER_ADDRESS is required")
	}

	if c.Signer == (common.Address{}) {
		return fmt.Errorf("SIGNER_ADDRESS is required")
	}

	if c.RequiredWeight == 0 {
		return fmt.Errorf("REQUIRED_WEIGHT must be positive")
	}

	if c.RequiredWeight > math.MaxInt64 {
		return fmt.Errorf("REQUIRED_WEIGHT must not exceed %d", int64(math.MaxInt64))
	}

	if c.RecoveryDelay < 0 {
		return fmt.Errorf("RECOVERY_DELAY must not be negative")
	}

	// The delay is persisted in milliseconds.
	if c.RecoveryDelay%time.Millisecond != 0 {
		return fmt.Errorf("RECOVERY_DELAY must be a whole number of milliseconds, got %s", c.RecoveryDelay)
	}

	if c.RevokeMaxBatch <= 0 {
		return fmt.Errorf("REVOKE_MAX_BATCH must be positive")
	}

	if strings.TrimSpace(c.AuditLogFile) == "" {
		return fmt.Errorf("AUDIT_LOG_FILE cannot be empty")
	}

	return c.ValidateStore()
}

// ValidateStore checks only the settings needed to open the state store.
func (c *Config) ValidateStore() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory; got %q", c.StoreDriver)
	}

	return nil
}

// ParseGuardians parses "0xaddr:weight,0xaddr:weight".
func ParseGuardians(raw string) ([]GuardianSeed, error) {
	entries := splitCSV(raw)
	if len(entries) == 0 {
		return nil, nil
	}

	seen := map[common.Address]bool{}
	out := make([]GuardianSeed, 0, len(entries))
	for _, entry := range entries {
		rawAddress, rawWeight, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("INITIAL_GUARDIANS entry %q must be address:weight", entry)
		}

		rawAddress = strings.TrimSpace(rawAddress)
		if !common.IsHexAddress(rawAddress) {
			return nil, fmt.Errorf("INITIAL_GUARDIANS entry %q has an invalid address", entry)
		}
		identity := common.HexToAddress(rawAddress)
		if seen[identity] {
			return nil, fmt.Errorf("INITIAL_GUARDIANS lists %s twice", identity.Hex())
		}
		seen[identity] = true

		weight, err := strconv.ParseUint(strings.TrimSpace(rawWeight), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("INITIAL_GUARDIANS entry %q has an invalid weight: %w", entry, err)
		}

		out = append(out, GuardianSeed{Identity: identity, Weight: weight})
	}

	return out, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getAddress(key string) (common.Address, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return common.Address{}, nil
	}

	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a valid address: %q", key, raw)
	}

	return common.HexToAddress(raw), nil
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getUint64(key string, fallback uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
