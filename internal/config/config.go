package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "MEETUP"

	defaultAddr         = "localhost:8000"
	defaultDSN          = "host=localhost user=postgres password=postgres dbname=meetup sslmode=disable"
	defaultSigningKey   = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	defaultTimezone     = "Asia/Seoul"
	defaultJwtExpiry    = 7 * 24 * time.Hour
	defaultLogLevel     = "info"
	defaultKakaoAuthURL = "https://kauth.kakao.com/oauth/authorize"
	defaultKakaoToken   = "https://kauth.kakao.com/oauth/token"
	defaultKakaoProfile = "https://kapi.kakao.com/v2/user/me"
)

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	ProfileURL   string `mapstructure:"profile_url"`
}

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	Location       *time.Location
	JwtExpiration  time.Duration
	RedisURL       string
	FrontendURL    string
	AssetBaseURL   string
	LogLevel       string
	LogJSON        bool
	MigrateOnStart bool
	OAuth          OAuthConfig
}

// rawConfig is the shape viper unmarshals into before validation.
type rawConfig struct {
	Addr           string        `mapstructure:"addr"`
	DSN            string        `mapstructure:"dsn"`
	SigningKey     string        `mapstructure:"signing_key"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Timezone       string        `mapstructure:"timezone"`
	JwtExpiration  time.Duration `mapstructure:"jwt_expiration"`
	RedisURL       string        `mapstructure:"redis_url"`
	FrontendURL    string        `mapstructure:"frontend_url"`
	AssetBaseURL   string        `mapstructure:"asset_base_url"`
	LogLevel       string        `mapstructure:"log_level"`
	LogJSON        bool          `mapstructure:"log_json"`
	Migrate        bool          `mapstructure:"migrate"`
	OAuth          OAuthConfig   `mapstructure:"oauth"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("empty signing key")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret, timezone string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if timezone == "" {
		timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		Location:       loc,
		JwtExpiration:  defaultJwtExpiry,
	}, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("meetup", pflag.ContinueOnError)
	fs.String("addr", defaultAddr, "server address")
	fs.String("dsn", defaultDSN, "database connection string")
	fs.String("signing-key", defaultSigningKey, "base64 encoded signing key")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	fs.String("timezone", defaultTimezone, "timezone used for the daily room cutoff")
	fs.Duration("jwt-expiration", defaultJwtExpiry, "lifetime of session tokens")
	fs.String("redis-url", "", "redis url for the room cache and scheduled finalization (optional)")
	fs.String("frontend-url", "", "where to redirect after a successful social login")
	fs.String("asset-base-url", "", "base url prepended to stored thumbnail paths")
	fs.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.Bool("log-json", false, "emit JSON logs instead of console output")
	fs.Bool("migrate", true, "apply database migrations on start")
	return fs
}

// Load reads configuration from (in increasing priority) defaults, a .env file,
// MEETUP_* environment variables and command line flags.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("oauth.auth_url", defaultKakaoAuthURL)
	v.SetDefault("oauth.token_url", defaultKakaoToken)
	v.SetDefault("oauth.profile_url", defaultKakaoProfile)
	for _, key := range []string{"oauth.client_id", "oauth.client_secret", "oauth.redirect_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg, err := NewConfig(raw.Addr, raw.DSN, raw.SigningKey, raw.Timezone, raw.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	if raw.JwtExpiration > 0 {
		cfg.JwtExpiration = raw.JwtExpiration
	}
	cfg.RedisURL = raw.RedisURL
	cfg.FrontendURL = raw.FrontendURL
	cfg.AssetBaseURL = raw.AssetBaseURL
	cfg.LogLevel = raw.LogLevel
	cfg.LogJSON = raw.LogJSON
	cfg.MigrateOnStart = raw.Migrate
	cfg.OAuth = raw.OAuth

	return cfg, nil
}
