package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool

	CORSOrigins []string

	LogLevel  string
	LogFormat string // text|json

	RequestTimeout      time.Duration
	ExpirySweepInterval time.Duration // 0 disables the sweeper
	MissingKeyPolicy    string        // full_credit|manual
}

// Load reads an optional .env file (existing environment wins) and then
// builds the Config from the environment.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	corsDef := "http://localhost:3000"
	if mode == ModeOnline {
		corsDef = "https://lms.mindengage.ai"
	}
	return Config{
		Mode:                mode,
		HTTPAddr:            envOr("HTTP_ADDR", ":8080"),
		SiteID:              envOr("SITE_ID", "local"),
		DBDriver:            envOr("DB_DRIVER", "sqlite"),
		DBDSN:               envOr("DB_DSN", ""),
		AuthHMACSecret:      envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:     envBool("ENABLE_LOCAL_AUTH", mode == ModeOffline),
		CORSOrigins:         csvOr("CORS_ORIGINS", corsDef),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "text"),
		RequestTimeout:      envDuration("REQUEST_TIMEOUT", 30*time.Second),
		ExpirySweepInterval: envDuration("EXPIRY_SWEEP_INTERVAL", 0),
		MissingKeyPolicy:    envOr("MISSING_KEY_POLICY", "full_credit"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
