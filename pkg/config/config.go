package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "LMS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "LMS_APP_ENV"
	EnvPort                   = "LMS_APP_PORT"
	EnvDBDSN                  = "LMS_DB_DSN"
	EnvDBHost                 = "LMS_DB_HOST"
	EnvDBUser                 = "LMS_DB_USER"
	EnvDBName                 = "LMS_DB_NAME"
	EnvRedisURL               = "LMS_REDIS_URL"
	EnvJWTSecret              = "LMS_JWT_SECRET"
	EnvJWTIssuer              = "LMS_JWT_ISSUER"
	EnvJWTExpMins             = "LMS_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID           = "LMS_GCP_PROJECT_ID"
	EnvPubSubDomainSub        = "LMS_PUBSUB_DOMAIN_SUBSCRIPTION"
	EnvNotificationsPageSize  = "LMS_NOTIFICATIONS_DEFAULT_PAGE_SIZE"
	EnvRealtimeRelayChannel   = "LMS_REALTIME_RELAY_CHANNEL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Notifications NotificationsConfig
	Realtime      RealtimeConfig
	Enrollments   EnrollmentsConfig
	Cron          CronConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Eventing      EventingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Notifications.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LMS_APP_ENV" required:"true"`
	Port         string `envconfig:"LMS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LMS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind            string        `envconfig:"LMS_SERVICE_KIND" default:"api"`
	ShutdownTimeout time.Duration `envconfig:"LMS_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	DSN    string `envconfig:"LMS_DB_DSN"`
	Driver string `envconfig:"LMS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LMS_DB_HOST"`
	LegacyPort     int    `envconfig:"LMS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LMS_DB_USER"`
	LegacyPassword string `envconfig:"LMS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LMS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LMS_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LMS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LMS_REDIS_ADDR"`
	Password     string        `envconfig:"LMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"LMS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LMS_JWT_ISSUER" required:"true"`
	// ExpirationMinutes only applies to tokens minted locally for dev and tests.
	ExpirationMinutes int           `envconfig:"LMS_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"LMS_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"LMS_AUTO_MIGRATE" default:"false"`
	RealtimeRelay bool `envconfig:"LMS_FEATURE_REALTIME_RELAY" default:"true"`
}

// NotificationsConfig tunes listing and lifecycle behavior of the engine.
type NotificationsConfig struct {
	DefaultPageSize int `envconfig:"LMS_NOTIFICATIONS_DEFAULT_PAGE_SIZE" default:"20"`
	MaxPageSize     int `envconfig:"LMS_NOTIFICATIONS_MAX_PAGE_SIZE" default:"100"`
	RetentionDays   int `envconfig:"LMS_NOTIFICATIONS_RETENTION_DAYS" default:"90"`
	DispatchBatch   int `envconfig:"LMS_NOTIFICATIONS_DISPATCH_BATCH" default:"100"`
}

func (n NotificationsConfig) validate() error {
	if n.MaxPageSize <= 0 || n.MaxPageSize > HardMaxPageSize {
		return fmt.Errorf("%s must be between 1 and %d", "LMS_NOTIFICATIONS_MAX_PAGE_SIZE", HardMaxPageSize)
	}
	if n.DefaultPageSize <= 0 || n.DefaultPageSize > n.MaxPageSize {
		return fmt.Errorf("%s must be between 1 and the max page size", EnvNotificationsPageSize)
	}
	return nil
}

// HardMaxPageSize caps any configured page size.
const HardMaxPageSize = 100

// RealtimeConfig tunes the websocket delivery bus.
type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"LMS_REALTIME_SEND_BUFFER" default:"64"`
	WriteWait      time.Duration `envconfig:"LMS_REALTIME_WRITE_WAIT" default:"10s"`
	PongWait       time.Duration `envconfig:"LMS_REALTIME_PONG_WAIT" default:"60s"`
	MaxMessageSize int64         `envconfig:"LMS_REALTIME_MAX_MESSAGE_BYTES" default:"4096"`
	RelayChannel   string        `envconfig:"LMS_REALTIME_RELAY_CHANNEL" default:"lms:realtime:deliveries"`
	AllowedOrigins []string      `envconfig:"LMS_REALTIME_ALLOWED_ORIGINS"`
}

// PingPeriod is how often the server pings idle connections; it must be shorter than PongWait.
func (r RealtimeConfig) PingPeriod() time.Duration {
	return (r.PongWait * 9) / 10
}

type EnrollmentsConfig struct {
	CacheTTL time.Duration `envconfig:"LMS_ENROLLMENTS_CACHE_TTL" default:"2m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LMS_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"LMS_CRON_LOCK_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LMS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainSubscription string `envconfig:"LMS_PUBSUB_DOMAIN_SUBSCRIPTION"`
	MaxOutstanding     int    `envconfig:"LMS_PUBSUB_MAX_OUTSTANDING" default:"100"`
	Goroutines         int    `envconfig:"LMS_PUBSUB_GOROUTINES" default:"2"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LMS_EVENTING_IDEMPOTENCY_TTL" default:"168h"`
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
