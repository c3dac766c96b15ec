package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Credential encryption keys, base64 AES-256, by version. Version 1 is
	// MASTER_ENCRYPTION_KEY, later versions MASTER_ENCRYPTION_KEY_V2 etc.
	EncryptionKeys map[int]string

	// Binance public endpoints (market feed); per-user credentials live in
	// the connections table.
	BinanceTestnet bool

	// Paper trading
	PaperSeedCurrency string
	PaperSeedAmount   float64
	PaperFeeRate      float64 // decimal (e.g. 0.001 = 10 bps)

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerResetTimeout     time.Duration
	BreakerCallTimeout      time.Duration

	// Market feed symbols polled into the mark-price cache.
	FeedSymbols []string

	// Swarm
	SwarmRosterPath string

	// Idle account cleanup
	AccountIdleTTL time.Duration
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DBPath:                  getEnv("DB_PATH", "./data/execution.db"),
		JWTSecret:               getEnv("JWT_SECRET", "dev-secret"),
		EncryptionKeys:          loadEncryptionKeys(),
		BinanceTestnet:          getEnv("BINANCE_TESTNET", "false") == "true",
		PaperSeedCurrency:       getEnv("PAPER_SEED_CURRENCY", "USDT"),
		PaperSeedAmount:         getEnvFloat("PAPER_SEED_AMOUNT", 100000),
		PaperFeeRate:            getEnvFloat("PAPER_FEE_RATE", 0),
		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 2),
		BreakerResetTimeout:     getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		BreakerCallTimeout:      getEnvDuration("BREAKER_CALL_TIMEOUT", 10*time.Second),
		FeedSymbols:             getEnvList("FEED_SYMBOLS", []string{"BTC/USDT", "ETH/USDT"}),
		SwarmRosterPath:         getEnv("SWARM_ROSTER_PATH", ""),
		AccountIdleTTL:          getEnvDuration("ACCOUNT_IDLE_TTL", 24*time.Hour),
	}
	return cfg, nil
}

// loadEncryptionKeys gathers MASTER_ENCRYPTION_KEY and its _V2.._V10
// rotation successors.
func loadEncryptionKeys() map[int]string {
	keys := make(map[int]string)
	if k := os.Getenv("MASTER_ENCRYPTION_KEY"); k != "" {
		keys[1] = k
	}
	for v := 2; v <= 10; v++ {
		name := "MASTER_ENCRYPTION_KEY_V" + strconv.Itoa(v)
		if k := os.Getenv(name); k != "" {
			keys[v] = k
		}
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
