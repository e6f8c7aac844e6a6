package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "communities"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "COMMUNITIES_APP_ENV"
	EnvPort                   = "COMMUNITIES_APP_PORT"
	EnvDBDSN                  = "COMMUNITIES_DB_DSN"
	EnvDBHost                 = "COMMUNITIES_DB_HOST"
	EnvDBUser                 = "COMMUNITIES_DB_USER"
	EnvDBName                 = "COMMUNITIES_DB_NAME"
	EnvRedisURL               = "COMMUNITIES_REDIS_URL"
	EnvJWTSecret              = "COMMUNITIES_JWT_SECRET"
	EnvJWTIssuer              = "COMMUNITIES_JWT_ISSUER"
	EnvJWTExpMins             = "COMMUNITIES_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "COMMUNITIES_REFRESH_TOKEN_TTL_MINUTES"
	EnvRabbitURL              = "COMMUNITIES_RABBITMQ_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
