package config

const (
	EnvPrefix = "EASEVOTE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv    = "EASEVOTE_APP_ENV"
	EnvPort      = "EASEVOTE_APP_PORT"
	EnvDBDSN     = "EASEVOTE_DB_DSN"
	EnvDBDriver  = "EASEVOTE_DB_DRIVER"
	EnvDBHost    = "EASEVOTE_DB_HOST"
	EnvDBUser    = "EASEVOTE_DB_USER"
	EnvDBName    = "EASEVOTE_DB_NAME"
	EnvRedisURL  = "EASEVOTE_REDIS_URL"
	EnvJWTSecret = "EASEVOTE_JWT_SECRET"
	EnvJWTIssuer = "EASEVOTE_JWT_ISSUER"

	EnvGatewayDefault        = "EASEVOTE_GATEWAY_DEFAULT"
	EnvPaystackSecretKey     = "EASEVOTE_PAYSTACK_SECRET_KEY"
	EnvFlutterwaveSecretKey  = "EASEVOTE_FLUTTERWAVE_SECRET_KEY"
	EnvFlutterwaveSecretHash = "EASEVOTE_FLUTTERWAVE_SECRET_HASH"
	EnvPurchaseHoldDuration  = "EASEVOTE_PURCHASE_HOLD_DURATION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
