package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	defaultAccessTTL      = time.Hour
	devAccessTTL          = 30 * time.Second
	defaultRefreshTTL     = 30 * 24 * time.Hour
	defaultPurgeEvery     = 24 * time.Hour
	defaultGoogleUserinfo = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type Config struct {
	Env         string
	LogLevel    string
	HTTPAddress string
	GRPCAddress string
	APIVersion  string

	DatabaseURL   string
	TokenStore    string
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	JWTPrivateKeyPath    string
	JWTPublicKeyPath     string
	Issuer               string
	Audience             string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RefreshTokenRotation bool
	PasswordPepper       string

	GoogleSSOEnabled  bool
	GoogleUserInfoURL string

	AllowedOrigins   []string
	AllowCredentials bool
	// TrustedProxies lists proxy IPs/CIDRs whose X-Forwarded-For is honoured. Empty trusts none.
	TrustedProxies []string
	RateLimitRPS     int
	RateLimitBurst   int
	PurgeInterval    time.Duration
}

func (c *Config) IsDev() bool { return c.Env == "dev" }

// Load reads .env (if present), config.json (if present) and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "prod")
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("GRPC_ADDRESS", ":50051")
	v.SetDefault("API_VERSION", "1.0.0")
	v.SetDefault("TOKEN_STORE", StorePostgres)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("GOOGLE_USERINFO_URL", defaultGoogleUserinfo)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Env:                  v.GetString("APP_ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		HTTPAddress:          v.GetString("HTTP_ADDRESS"),
		GRPCAddress:          v.GetString("GRPC_ADDRESS"),
		APIVersion:           v.GetString("API_VERSION"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		TokenStore:           strings.ToLower(v.GetString("TOKEN_STORE")),
		RedisAddress:         v.GetString("REDIS_ADDRESS"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		JWTPrivateKeyPath:    v.GetString("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:     v.GetString("JWT_PUBLIC_KEY_PATH"),
		Issuer:               v.GetString("JWT_ISSUER"),
		Audience:             v.GetString("JWT_AUDIENCE"),
		RefreshTokenRotation: v.GetBool("REFRESH_TOKEN_ROTATION"),
		PasswordPepper:       v.GetString("PASSWORD_PEPPER"),
		GoogleSSOEnabled:     v.GetBool("GOOGLE_SSO_ENABLED"),
		GoogleUserInfoURL:    v.GetString("GOOGLE_USERINFO_URL"),
		AllowCredentials:     v.GetBool("ALLOW_CREDENTIALS"),
		RateLimitRPS:         v.GetInt("RATE_LIMIT_RPS"),
		RateLimitBurst:       v.GetInt("RATE_LIMIT_BURST"),
	}

	accessDefault := defaultAccessTTL
	if cfg.IsDev() {
		accessDefault = devAccessTTL
	}
	var err error
	if cfg.AccessTokenTTL, err = duration(v, "ACCESS_TOKEN_TTL", accessDefault); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = duration(v, "REFRESH_TOKEN_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.PurgeInterval, err = duration(v, "PURGE_INTERVAL", defaultPurgeEvery); err != nil {
		return nil, err
	}
	if cfg.AllowedOrigins, err = origins(v.GetString("ALLOWED_ORIGINS")); err != nil {
		return nil, err
	}
	if cfg.TrustedProxies, err = list("TRUSTED_PROXIES", v.GetString("TRUSTED_PROXIES")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	required := map[string]string{
		"JWT_PRIVATE_KEY_PATH": c.JWTPrivateKeyPath,
		"JWT_PUBLIC_KEY_PATH":  c.JWTPublicKeyPath,
		"JWT_ISSUER":           c.Issuer,
		"JWT_AUDIENCE":         c.Audience,
		"PASSWORD_PEPPER":      c.PasswordPepper,
		"DATABASE_URL":         c.DatabaseURL,
	}
	for key, val := range required {
		if val == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	switch c.TokenStore {
	case StorePostgres:
	case StoreRedis:
		if c.RedisAddress == "" {
			return errors.New("REDIS_ADDRESS is required for the redis token store")
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.PurgeInterval <= 0 {
		return errors.New("PURGE_INTERVAL must be positive")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %q is neither an IP nor a CIDR", p)
		}
	}
	return nil
}

// duration accepts plain seconds ("3600") or a Go duration ("1h").
func duration(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// origins accepts a JSON array or a comma separated list.
func origins(raw string) ([]string, error) {
	return list("ALLOWED_ORIGINS", raw)
}

func list(key, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return out, nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out, nil
}
