package config

// EnvPrefix is passed to envconfig; every field carries its full name explicitly.
const EnvPrefix = "ARCUS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OverridesBackendSheet    = "sheet"
	OverridesBackendPostgres = "postgres"
)

const (
	EnvAppEnv   = "ARCUS_APP_ENV"
	EnvPort     = "ARCUS_APP_PORT"
	EnvLogLevel = "ARCUS_LOG_LEVEL"

	EnvDBDSN  = "ARCUS_DB_DSN"
	EnvDBHost = "ARCUS_DB_HOST"
	EnvDBUser = "ARCUS_DB_USER"
	EnvDBName = "ARCUS_DB_NAME"

	EnvRedisURL = "ARCUS_REDIS_URL"

	EnvShopifyStoreURL     = "ARCUS_SHOPIFY_STORE_URL"
	EnvShopifyAccessToken  = "ARCUS_SHOPIFY_ACCESS_TOKEN"
	EnvShopifyClientID     = "ARCUS_SHOPIFY_CLIENT_ID"
	EnvShopifyClientSecret = "ARCUS_SHOPIFY_CLIENT_SECRET"

	EnvSheetsSpreadsheetID = "ARCUS_SHEETS_SPREADSHEET_ID"

	EnvSyncDefaultUnitCost  = "ARCUS_SYNC_DEFAULT_UNIT_COST"
	EnvSyncSetupCostsSeed   = "ARCUS_SYNC_SETUP_COSTS_SEED"
	EnvSyncOverridesBackend = "ARCUS_SYNC_OVERRIDES_BACKEND"
	EnvSyncDryRun           = "ARCUS_SYNC_DRY_RUN"
	EnvSyncRunTimeout       = "ARCUS_SYNC_RUN_TIMEOUT"

	EnvBigQueryMetricsTable = "ARCUS_BIGQUERY_METRICS_TABLE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
