package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the ingestion and promotion jobs.
type Config struct {
	MySQLDSN      string
	DBMaxOpen     int
	DBMaxIdle     int
	DBMaxLifetime time.Duration
	ListenAddr    string
	AdminUsername string
	AdminPassword string
	LogLevel      string
	Location      *time.Location

	SourcesFile          string
	IngestLimitPerSource int
	IngestDelayMin       time.Duration
	IngestDelayMax       time.Duration
	IngestContactDedup   bool
	IngestBotUserID      int64
	ListingTTL           time.Duration

	FetchTimeout   time.Duration
	FetchRPS       float64
	FetchUserAgent string
	BrowserEnabled bool

	BumpBatchSize    int
	BumpTickInterval time.Duration
	SweepInterval    time.Duration
	LockBackend      string
	RedisURL         string
	LockTTL          time.Duration

	ClassifierBlocklist []string
	ClassifierURL       string
	ClassifierAPIKey    string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	TelegramBotToken    string
	TelegramAlertChatID int64
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBMaxOpen:            getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdle:            getInt("DB_MAX_IDLE_CONNS", 5),
		DBMaxLifetime:        time.Minute * time.Duration(getInt("DB_CONN_MAX_LIFETIME_MINUTES", 5)),
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        os.Getenv("ADMIN_PASSWORD"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		SourcesFile:          getEnv("SOURCES_FILE", "sources.json"),
		IngestLimitPerSource: getInt("INGEST_LIMIT_PER_SOURCE", 20),
		IngestDelayMin:       time.Millisecond * time.Duration(getInt("INGEST_DELAY_MIN_MS", 1000)),
		IngestDelayMax:       time.Millisecond * time.Duration(getInt("INGEST_DELAY_MAX_MS", 3000)),
		IngestContactDedup:   getBool("INGEST_CONTACT_DEDUP", true),
		IngestBotUserID:      getInt64("INGEST_BOT_USER_ID", 0),
		ListingTTL:           24 * time.Hour * time.Duration(getInt("LISTING_TTL_DAYS", 30)),
		FetchTimeout:         time.Second * time.Duration(getInt("FETCH_TIMEOUT_SECONDS", 20)),
		FetchRPS:             getFloat("FETCH_RPS", 0),
		FetchUserAgent:       getEnv("FETCH_USER_AGENT", defaultUserAgent),
		BrowserEnabled:       getBool("BROWSER_ENABLED", false),
		BumpBatchSize:        getInt("BUMP_BATCH_SIZE", 100),
		BumpTickInterval:     time.Minute * time.Duration(getInt("BUMP_TICK_MINUTES", 15)),
		SweepInterval:        time.Minute * time.Duration(getInt("EXPIRY_SWEEP_MINUTES", 60)),
		LockBackend:          strings.ToLower(getEnv("LOCK_BACKEND", "mysql")),
		RedisURL:             os.Getenv("REDIS_URL"),
		LockTTL:              time.Second * time.Duration(getInt("LOCK_TTL_SECONDS", 900)),
		ClassifierBlocklist:  splitList(os.Getenv("CLASSIFIER_BLOCKLIST")),
		ClassifierURL:        os.Getenv("CLASSIFIER_URL"),
		ClassifierAPIKey:     os.Getenv("CLASSIFIER_API_KEY"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "listings"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAlertChatID:  getInt64("TELEGRAM_ALERT_CHAT_ID", 0),
	}

	cfg.MySQLDSN = normalizeDSN(os.Getenv("MYSQL_DSN"))

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Europe/Rome"))
	if err != nil {
		return Config{}, fmt.Errorf("load TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	switch c.LockBackend {
	case "mysql", "memory":
	case "redis":
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND: %s", c.LockBackend)
	}
	if c.S3Bucket != "" {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.IngestDelayMax < c.IngestDelayMin {
		return errors.New("INGEST_DELAY_MAX_MS must be >= INGEST_DELAY_MIN_MS")
	}
	return nil
}

// PhotoMirrorEnabled reports whether scraped photos are re-hosted on S3.
func (c Config) PhotoMirrorEnabled() bool {
	return c.S3Bucket != ""
}

// normalizeDSN makes sure DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads the first env file found. A missing file is fine: the
// jobs usually run under a scheduler that injects the environment directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
