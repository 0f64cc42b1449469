package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "KITCHENPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "KITCHENPAY_APP_ENV"
	EnvLogLevel = "KITCHENPAY_LOG_LEVEL"

	EnvDBDSN  = "KITCHENPAY_DB_DSN"
	EnvDBHost = "KITCHENPAY_DB_HOST"
	EnvDBUser = "KITCHENPAY_DB_USER"
	EnvDBName = "KITCHENPAY_DB_NAME"

	EnvRedisURL = "KITCHENPAY_REDIS_URL"

	EnvWalletCommissionRate = "KITCHENPAY_WALLET_DEFAULT_COMMISSION_RATE"
	EnvWalletHoldHours      = "KITCHENPAY_WALLET_DEFAULT_HOLD_HOURS"

	EnvCronInterval  = "KITCHENPAY_CRON_INTERVAL"
	EnvCronBatchSize = "KITCHENPAY_CRON_SWEEP_BATCH_SIZE"

	EnvGCPProjectID            = "KITCHENPAY_GCP_PROJECT_ID"
	EnvPubSubNotificationTopic = "KITCHENPAY_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubAuditTopic        = "KITCHENPAY_PUBSUB_AUDIT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
