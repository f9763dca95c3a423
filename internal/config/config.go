package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// StoreDriver is "postgres" or "memory".
	StoreDriver  string
	JWTSecret    string
	JWTExpiresIn time.Duration
	LogLevel     string
	LogPretty    bool
	NATSURL      string
	CORSOrigins  []string
	// ScheduleSeedFile is an optional YAML file of windows applied at boot.
	ScheduleSeedFile string

	DefaultTimeLimit     time.Duration
	IncidentDedupeWindow time.Duration

	// advertised to clients through /config/public
	BlurDebounce     time.Duration
	AutosaveInterval time.Duration
	ReportTimeout    time.Duration
	ReportRetries    int
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "seb_proctor")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("JWT_SECRET", "supersecret_change_me")
	v.SetDefault("JWT_EXPIRES_IN", "720") // minutes
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("SCHEDULE_SEED_FILE", "")
	v.SetDefault("DEFAULT_TIME_LIMIT", 60*time.Minute)
	v.SetDefault("INCIDENT_DEDUPE_WINDOW", 2*time.Second)
	v.SetDefault("BLUR_DEBOUNCE", 1500*time.Millisecond)
	v.SetDefault("AUTOSAVE_INTERVAL", 10*time.Second)
	v.SetDefault("REPORT_TIMEOUT", 5*time.Second)
	v.SetDefault("REPORT_RETRIES", 5)
}

// Load reads .env (non-fatal if missing in production), then the environment.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:                 v.GetString("PORT"),
		DBHost:               v.GetString("DB_HOST"),
		DBPort:               v.GetString("DB_PORT"),
		DBUser:               v.GetString("DB_USER"),
		DBPassword:           v.GetString("DB_PASSWORD"),
		DBName:               v.GetString("DB_NAME"),
		DBSSLMode:            v.GetString("DB_SSLMODE"),
		StoreDriver:          strings.ToLower(v.GetString("STORE_DRIVER")),
		JWTSecret:            v.GetString("JWT_SECRET"),
		JWTExpiresIn:         minutesOrDuration(v.GetString("JWT_EXPIRES_IN")),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogPretty:            v.GetBool("LOG_PRETTY"),
		NATSURL:              v.GetString("NATS_URL"),
		CORSOrigins:          splitList(v.GetString("CORS_ALLOW_ORIGINS")),
		ScheduleSeedFile:     v.GetString("SCHEDULE_SEED_FILE"),
		DefaultTimeLimit:     v.GetDuration("DEFAULT_TIME_LIMIT"),
		IncidentDedupeWindow: v.GetDuration("INCIDENT_DEDUPE_WINDOW"),
		BlurDebounce:         v.GetDuration("BLUR_DEBOUNCE"),
		AutosaveInterval:     v.GetDuration("AUTOSAVE_INTERVAL"),
		ReportTimeout:        v.GetDuration("REPORT_TIMEOUT"),
		ReportRetries:        v.GetInt("REPORT_RETRIES"),
	}
}

// minutesOrDuration reads a bare integer as minutes and anything else as a
// Go duration string. Unparseable values yield zero.
func minutesOrDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Minute
	}
	d, _ := time.ParseDuration(s)
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
