package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "beautynano"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv           = "BEAUTYNANO_APP_ENV"
	EnvPort             = "BEAUTYNANO_APP_PORT"
	EnvDBDSN            = "BEAUTYNANO_DB_DSN"
	EnvDBHost           = "BEAUTYNANO_DB_HOST"
	EnvDBUser           = "BEAUTYNANO_DB_USER"
	EnvDBName           = "BEAUTYNANO_DB_NAME"
	EnvRedisURL         = "BEAUTYNANO_REDIS_URL"
	EnvAdminTokenSecret = "BEAUTYNANO_ADMIN_TOKEN_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Admin        AdminConfig
	Quota        QuotaConfig
	Sweep        SweepConfig
	YooKassa     YooKassaConfig
	Stars        StarsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEAUTYNANO_APP_ENV" required:"true"`
	Port         string `envconfig:"BEAUTYNANO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BEAUTYNANO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BEAUTYNANO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BEAUTYNANO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BEAUTYNANO_DB_DSN"`
	Driver string `envconfig:"BEAUTYNANO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BEAUTYNANO_DB_HOST"`
	LegacyPort     int    `envconfig:"BEAUTYNANO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BEAUTYNANO_DB_USER"`
	LegacyPassword string `envconfig:"BEAUTYNANO_DB_PASSWORD"`
	LegacyName     string `envconfig:"BEAUTYNANO_DB_NAME"`
	LegacySSLMode  string `envconfig:"BEAUTYNANO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEAUTYNANO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEAUTYNANO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEAUTYNANO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEAUTYNANO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEAUTYNANO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BEAUTYNANO_REDIS_ADDR"`
	Password     string        `envconfig:"BEAUTYNANO_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEAUTYNANO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEAUTYNANO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEAUTYNANO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEAUTYNANO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEAUTYNANO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEAUTYNANO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminConfig backs the operator override endpoints.
type AdminConfig struct {
	TokenSecret string `envconfig:"BEAUTYNANO_ADMIN_TOKEN_SECRET" required:"true"`
	TokenIssuer string `envconfig:"BEAUTYNANO_ADMIN_TOKEN_ISSUER" default:"beautynano"`
}

// QuotaConfig carries the entitlement tunables. RenewalWindow decides how far
// ahead of expiry the sweeper starts attempting saved-method renewals.
type QuotaConfig struct {
	FreeLimit        int           `envconfig:"BEAUTYNANO_FREE_LIMIT" default:"5"`
	StandardDuration time.Duration `envconfig:"BEAUTYNANO_STANDARD_DURATION" default:"720h"`
	TrialDuration    time.Duration `envconfig:"BEAUTYNANO_TRIAL_DURATION" default:"24h"`
	RenewalWindow    time.Duration `envconfig:"BEAUTYNANO_RENEWAL_WINDOW" default:"6h"`
}

type SweepConfig struct {
	Interval time.Duration `envconfig:"BEAUTYNANO_SWEEP_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"BEAUTYNANO_SWEEP_LOCK_TTL" default:"55m"`
}

type YooKassaConfig struct {
	ShopID     string        `envconfig:"BEAUTYNANO_YK_SHOP_ID"`
	SecretKey  string        `envconfig:"BEAUTYNANO_YK_SECRET_KEY"`
	BaseURL    string        `envconfig:"BEAUTYNANO_YK_BASE_URL" default:"https://api.yookassa.ru/v3"`
	ReturnURL  string        `envconfig:"BEAUTYNANO_YK_RETURN_URL"`
	Timeout    time.Duration `envconfig:"BEAUTYNANO_YK_TIMEOUT" default:"10s"`
	PriceMinor int64         `envconfig:"BEAUTYNANO_YK_PRICE_MINOR" default:"29900"`
	Currency   string        `envconfig:"BEAUTYNANO_YK_CURRENCY" default:"RUB"`

	Description string `envconfig:"BEAUTYNANO_YK_DESCRIPTION" default:"Premium subscription, 30 days"`
}

type StarsConfig struct {
	BotToken    string        `envconfig:"BEAUTYNANO_TG_BOT_TOKEN"`
	BaseURL     string        `envconfig:"BEAUTYNANO_TG_BASE_URL" default:"https://api.telegram.org"`
	Timeout     time.Duration `envconfig:"BEAUTYNANO_TG_TIMEOUT" default:"10s"`
	PriceXTR    int64         `envconfig:"BEAUTYNANO_STARS_PRICE_XTR" default:"1200"`
	Title       string        `envconfig:"BEAUTYNANO_STARS_TITLE" default:"Premium for 30 days"`
	Description string        `envconfig:"BEAUTYNANO_STARS_DESCRIPTION" default:"Unlimited analyses and priority processing"`
	Payload     string        `envconfig:"BEAUTYNANO_STARS_PAYLOAD" default:"premium-30d"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BEAUTYNANO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
