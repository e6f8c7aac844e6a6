package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Rabbit        RabbitConfig
	Outbox        OutboxConfig
	CORS          CORSConfig
	AuthRateLimit AuthRateLimitConfig
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
	Env          string `envconfig:"COMMUNITIES_APP_ENV" required:"true"`
	Port         string `envconfig:"COMMUNITIES_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COMMUNITIES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COMMUNITIES_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMMUNITIES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMMUNITIES_DB_DSN"`
	Driver string `envconfig:"COMMUNITIES_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMMUNITIES_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMUNITIES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMUNITIES_DB_USER"`
	LegacyPassword string `envconfig:"COMMUNITIES_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMUNITIES_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMUNITIES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMMUNITIES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMUNITIES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMUNITIES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMUNITIES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMUNITIES_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMMUNITIES_REDIS_ADDR"`
	Password     string        `envconfig:"COMMUNITIES_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMUNITIES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMUNITIES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMUNITIES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMUNITIES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMUNITIES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMUNITIES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"COMMUNITIES_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"COMMUNITIES_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"COMMUNITIES_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"COMMUNITIES_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COMMUNITIES_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COMMUNITIES_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COMMUNITIES_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COMMUNITIES_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COMMUNITIES_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COMMUNITIES_AUTO_MIGRATE" default:"false"`
}

// RabbitConfig is only consumed by the relay; URL validation happens in
// rabbit.NewPublisher so the other binaries boot without a broker.
type RabbitConfig struct {
	URL            string        `envconfig:"COMMUNITIES_RABBITMQ_URL"`
	PublishTimeout time.Duration `envconfig:"COMMUNITIES_RABBITMQ_PUBLISH_TIMEOUT" default:"15s"`
	DialTimeout    time.Duration `envconfig:"COMMUNITIES_RABBITMQ_DIAL_TIMEOUT" default:"10s"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"COMMUNITIES_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COMMUNITIES_AUTH_LOGIN_WINDOW" default:"5m"`
	LoginIPLimit       int           `envconfig:"COMMUNITIES_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"COMMUNITIES_AUTH_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"COMMUNITIES_AUTH_REGISTER_WINDOW" default:"15m"`
	RegisterIPLimit    int           `envconfig:"COMMUNITIES_AUTH_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"COMMUNITIES_AUTH_REGISTER_EMAIL_LIMIT" default:"3"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"COMMUNITIES_OUTBOX_BATCH_SIZE" default:"100"`
	PollIntervalMS int           `envconfig:"COMMUNITIES_OUTBOX_POLL_MS" default:"1000"`
	MaxAttempts    int           `envconfig:"COMMUNITIES_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetryBackoff   time.Duration `envconfig:"COMMUNITIES_OUTBOX_RETRY_BACKOFF" default:"5s"`
	MaxBackoff     time.Duration `envconfig:"COMMUNITIES_OUTBOX_MAX_BACKOFF" default:"10m"`
	RetentionDays  int           `envconfig:"COMMUNITIES_OUTBOX_RETENTION_DAYS" default:"30"`
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
