package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "STOREFRONT_APP_ENV"
	EnvPort   = "STOREFRONT_APP_PORT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvTaxRatePercent   = "STOREFRONT_TAX_RATE_PERCENT"
	EnvShippingStandard = "STOREFRONT_SHIPPING_STANDARD"
	EnvShippingExpress  = "STOREFRONT_SHIPPING_EXPRESS"
	EnvShippingPickup   = "STOREFRONT_SHIPPING_PICKUP"

	EnvPaymentsWebhookSecret = "STOREFRONT_PAYMENTS_WEBHOOK_SECRET"
	EnvSquareAccessToken     = "STOREFRONT_SQUARE_ACCESS_TOKEN"
	EnvGCPProjectID          = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubDomainTopic     = "STOREFRONT_PUBSUB_DOMAIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
