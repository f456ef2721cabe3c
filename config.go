package taskman

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultAccessTokenExpiration is expressed in minutes
	DefaultAccessTokenExpiration = 60
	// DefaultRefreshTokenExpiration is expressed in days
	DefaultRefreshTokenExpiration = 7
	DefaultSigningMethod          = "HS256"
	DefaultAPIPrefix              = "/api/v1"
	DefaultAddr                   = ":8080"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the process wide settings. It is built once at startup
// and handed to every constructor, it should not be mutated afterwards.
type Config struct {
	SigningKey             string `json:"signing_key"`
	SigningMethod          string `json:"signing_method"`
	AccessTokenExpiration  int    `json:"access_token_expiration"`
	RefreshTokenExpiration int    `json:"refresh_token_expiration"`
	Issuer                 string `json:"issuer"`
	CookieSecure           bool   `json:"cookie_secure"`
	CSRFProtection         bool   `json:"csrf_protection"`
	PasswordCost           int    `json:"password_cost"`
	UseHashid              bool   `json:"use_hashid"`

	DatabaseDriver  string        `json:"database_driver"`
	DatabaseURL     string        `json:"database_url"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	PingTimeout     time.Duration `json:"ping_timeout"`

	Addr      string `json:"addr"`
	APIPrefix string `json:"api_prefix"`
	Debug     bool   `json:"debug"`
}

// DefaultConfig returns a config with every optional value filled in.
// SigningKey and DatabaseURL are left empty.
func DefaultConfig() Config {
	return Config{
		SigningMethod:          DefaultSigningMethod,
		AccessTokenExpiration:  DefaultAccessTokenExpiration,
		RefreshTokenExpiration: DefaultRefreshTokenExpiration,
		PasswordCost:           bcrypt.DefaultCost,
		DatabaseDriver:         DriverPostgres,
		MaxOpenConns:           10,
		MaxIdleConns:           5,
		ConnMaxLifetime:        5 * time.Minute,
		PingTimeout:            5 * time.Second,
		Addr:                   DefaultAddr,
		APIPrefix:              DefaultAPIPrefix,
	}
}

// LoadConfig reads TASKMAN_* variables on top of DefaultConfig.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(os.Getenv)
}

// LoadConfigFrom is LoadConfig with a custom lookup, mostly for tests.
func LoadConfigFrom(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	var err error

	cfg.SigningKey = getenv("TASKMAN_SECRET_KEY")
	cfg.SigningMethod = envString(getenv, "TASKMAN_ALGORITHM", cfg.SigningMethod)
	cfg.Issuer = envString(getenv, "TASKMAN_ISSUER", cfg.Issuer)
	cfg.DatabaseDriver = strings.ToLower(envString(getenv, "TASKMAN_DB_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseURL = envString(getenv, "TASKMAN_DATABASE_URL", postgresURL(getenv))
	cfg.Addr = envString(getenv, "TASKMAN_ADDR", cfg.Addr)
	cfg.APIPrefix = envString(getenv, "TASKMAN_API_PREFIX", cfg.APIPrefix)

	if cfg.AccessTokenExpiration, err = envInt(getenv, "TASKMAN_ACCESS_TOKEN_EXPIRE_MINUTES", cfg.AccessTokenExpiration); err != nil {
		return cfg, err
	}
	if cfg.RefreshTokenExpiration, err = envInt(getenv, "TASKMAN_REFRESH_TOKEN_EXPIRE_DAYS", cfg.RefreshTokenExpiration); err != nil {
		return cfg, err
	}
	if cfg.PasswordCost, err = envInt(getenv, "TASKMAN_PASSWORD_COST", cfg.PasswordCost); err != nil {
		return cfg, err
	}
	if cfg.MaxOpenConns, err = envInt(getenv, "TASKMAN_DB_MAX_OPEN_CONNS", cfg.MaxOpenConns); err != nil {
		return cfg, err
	}
	if cfg.CookieSecure, err = envBool(getenv, "TASKMAN_COOKIE_SECURE", cfg.CookieSecure); err != nil {
		return cfg, err
	}
	if cfg.CSRFProtection, err = envBool(getenv, "TASKMAN_CSRF_PROTECTION", cfg.CSRFProtection); err != nil {
		return cfg, err
	}
	if cfg.UseHashid, err = envBool(getenv, "TASKMAN_USE_HASHID", cfg.UseHashid); err != nil {
		return cfg, err
	}
	if cfg.Debug, err = envBool(getenv, "TASKMAN_DEBUG", cfg.Debug); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required),
		validation.Field(&c.SigningMethod, validation.Required, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.AccessTokenExpiration, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTokenExpiration, validation.Required, validation.Min(1)),
		validation.Field(&c.PasswordCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		validation.Field(&c.DatabaseURL, validation.Required),
	)
	if err != nil {
		verr := ValidationError(err)
		verr.Message = "invalid configuration"
		return verr
	}
	return nil
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return DefaultSigningMethod
	}
	return c.SigningMethod
}

func (c Config) GetIssuer() string {
	return c.Issuer
}

// GetAccessTokenTTL returns the access token lifetime
func (c Config) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenExpiration <= 0 {
		return DefaultAccessTokenExpiration * time.Minute
	}
	return time.Duration(c.AccessTokenExpiration) * time.Minute
}

// GetRefreshTokenTTL returns the refresh token lifetime
func (c Config) GetRefreshTokenTTL() time.Duration {
	days := c.RefreshTokenExpiration
	if days <= 0 {
		days = DefaultRefreshTokenExpiration
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c Config) GetPasswordCost() int {
	if c.PasswordCost == 0 {
		return bcrypt.DefaultCost
	}
	return c.PasswordCost
}

func postgresURL(getenv func(string) string) string {
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getenv("POSTGRES_USER"),
		getenv("POSTGRES_PASSWORD"),
		host,
		envString(getenv, "POSTGRES_PORT", "5432"),
		getenv("POSTGRES_DB"),
	)
}

func envString(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("%s must be an integer", key)).
			WithCode(goerrors.CodeBadRequest)
	}
	return n, nil
}

func envBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, goerrors.Wrap(err, goerrors.CategoryValidation, fmt.Sprintf("%s must be a boolean", key)).
			WithCode(goerrors.CodeBadRequest)
	}
	return b, nil
}
