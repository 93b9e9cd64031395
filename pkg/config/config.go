package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Shopify  ShopifyConfig
	Sheets   SheetsConfig
	GCP      GCPConfig
	Writer   WriterConfig
	Sync     SyncConfig
	BigQuery BigQueryConfig
	PubSub   PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Shopify.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	if cfg.Sync.OverridesBackend == OverridesBackendPostgres {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadDatabase reads only the App and DB sections, for tooling that never
// talks to the store or the spreadsheet.
func LoadDatabase() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg.App); err != nil {
		return nil, fmt.Errorf("parsing app config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg.DB); err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ARCUS_APP_ENV" required:"true"`
	Port         string `envconfig:"ARCUS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ARCUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARCUS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ARCUS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"ARCUS_DB_DSN"`

	LegacyHost     string `envconfig:"ARCUS_DB_HOST"`
	LegacyPort     int    `envconfig:"ARCUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ARCUS_DB_USER"`
	LegacyPassword string `envconfig:"ARCUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"ARCUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"ARCUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARCUS_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"ARCUS_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"ARCUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARCUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"ARCUS_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARCUS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ARCUS_REDIS_ADDR"`
	Password     string        `envconfig:"ARCUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARCUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARCUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARCUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARCUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARCUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARCUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type ShopifyConfig struct {
	StoreURL          string        `envconfig:"ARCUS_SHOPIFY_STORE_URL" required:"true"`
	AccessToken       string        `envconfig:"ARCUS_SHOPIFY_ACCESS_TOKEN"`
	ClientID          string        `envconfig:"ARCUS_SHOPIFY_CLIENT_ID"`
	ClientSecret      string        `envconfig:"ARCUS_SHOPIFY_CLIENT_SECRET"`
	APIVersion        string        `envconfig:"ARCUS_SHOPIFY_API_VERSION" default:"2024-01"`
	PageSize          int           `envconfig:"ARCUS_SHOPIFY_PAGE_SIZE" default:"250"`
	MinInterval       time.Duration `envconfig:"ARCUS_SHOPIFY_MIN_INTERVAL" default:"500ms"`
	MaxAttempts       int           `envconfig:"ARCUS_SHOPIFY_MAX_ATTEMPTS" default:"5"`
	BaseBackoff       time.Duration `envconfig:"ARCUS_SHOPIFY_BASE_BACKOFF" default:"1s"`
	DefaultRetryAfter time.Duration `envconfig:"ARCUS_SHOPIFY_DEFAULT_RETRY_AFTER" default:"2s"`
	RequestTimeout    time.Duration `envconfig:"ARCUS_SHOPIFY_REQUEST_TIMEOUT" default:"30s"`
}

func (s ShopifyConfig) validate() error {
	if s.AccessToken == "" && (s.ClientID == "" || s.ClientSecret == "") {
		return fmt.Errorf("either %s or both %s and %s are required", EnvShopifyAccessToken, EnvShopifyClientID, EnvShopifyClientSecret)
	}
	return nil
}

type SheetsConfig struct {
	SpreadsheetID  string `envconfig:"ARCUS_SHEETS_SPREADSHEET_ID" required:"true"`
	RawOrdersTab   string `envconfig:"ARCUS_SHEETS_RAW_ORDERS_TAB" default:"RAW_ORDERS"`
	OrdersTab      string `envconfig:"ARCUS_SHEETS_ORDERS_TAB" default:"ORDERS"`
	OverridesTab   string `envconfig:"ARCUS_SHEETS_OVERRIDES_TAB" default:"MANUAL_OVERRIDES"`
	MetricsTab     string `envconfig:"ARCUS_SHEETS_METRICS_TAB" default:"METRICS"`
	FulfillmentTab string `envconfig:"ARCUS_SHEETS_FULFILLMENT_TAB" default:"FULFILLMENT"`
	ProductsTab    string `envconfig:"ARCUS_SHEETS_PRODUCTS_TAB" default:"PRODUCTS"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ARCUS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ARCUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ARCUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type WriterConfig struct {
	MinInterval time.Duration `envconfig:"ARCUS_WRITER_MIN_INTERVAL" default:"1s"`
	BaseBackoff time.Duration `envconfig:"ARCUS_WRITER_BASE_BACKOFF" default:"1s"`
	MaxBackoff  time.Duration `envconfig:"ARCUS_WRITER_MAX_BACKOFF" default:"32s"`
	MaxAttempts int           `envconfig:"ARCUS_WRITER_MAX_ATTEMPTS" default:"5"`
	Jitter      time.Duration `envconfig:"ARCUS_WRITER_JITTER" default:"250ms"`
}

type SyncConfig struct {
	Interval         time.Duration `envconfig:"ARCUS_SYNC_INTERVAL" default:"1h"`
	RunTimeout       time.Duration `envconfig:"ARCUS_SYNC_RUN_TIMEOUT" default:"15m"`
	DefaultUnitCost  string        `envconfig:"ARCUS_SYNC_DEFAULT_UNIT_COST" default:"12.26"`
	SetupCostsSeed   string        `envconfig:"ARCUS_SYNC_SETUP_COSTS_SEED" default:"809.32"`
	OverridesBackend string        `envconfig:"ARCUS_SYNC_OVERRIDES_BACKEND" default:"sheet"`
	BackupDir        string        `envconfig:"ARCUS_SYNC_BACKUP_DIR"`
	DryRun           bool          `envconfig:"ARCUS_SYNC_DRY_RUN" default:"false"`
	OrderStatus      string        `envconfig:"ARCUS_SYNC_ORDER_STATUS" default:"any"`
	ManualRateLimit  int           `envconfig:"ARCUS_SYNC_MANUAL_RATE_LIMIT" default:"4"`
	ManualRateWindow time.Duration `envconfig:"ARCUS_SYNC_MANUAL_RATE_WINDOW" default:"1m"`
}

// UnitCost returns the parsed default cost per unit.
func (s SyncConfig) UnitCost() decimal.Decimal {
	d, err := decimal.NewFromString(s.DefaultUnitCost)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SetupCosts returns the parsed setup-cost seed.
func (s SyncConfig) SetupCosts() decimal.Decimal {
	d, err := decimal.NewFromString(s.SetupCostsSeed)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LockTTL is how long the single-writer lock outlives a run start. It covers
// the run timeout twice so a run is always canceled before its lock expires.
func (s SyncConfig) LockTTL() time.Duration {
	return 2 * s.RunTimeout
}

func (s SyncConfig) validate() error {
	if _, err := decimal.NewFromString(s.DefaultUnitCost); err != nil {
		return fmt.Errorf("invalid %s %q: %w", EnvSyncDefaultUnitCost, s.DefaultUnitCost, err)
	}
	if _, err := decimal.NewFromString(s.SetupCostsSeed); err != nil {
		return fmt.Errorf("invalid %s %q: %w", EnvSyncSetupCostsSeed, s.SetupCostsSeed, err)
	}
	if s.RunTimeout <= 0 {
		return fmt.Errorf("invalid %s %s (must be positive, it bounds how long a run holds the sync lock)", EnvSyncRunTimeout, s.RunTimeout)
	}
	switch s.OverridesBackend {
	case OverridesBackendSheet, OverridesBackendPostgres:
	default:
		return fmt.Errorf("invalid %s %q (expected %s or %s)", EnvSyncOverridesBackend, s.OverridesBackend, OverridesBackendSheet, OverridesBackendPostgres)
	}
	return nil
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"ARCUS_BIGQUERY_DATASET" default:"arcus"`
	MetricsTable string `envconfig:"ARCUS_BIGQUERY_METRICS_TABLE"`
}

// Enabled reports whether metric snapshots should be exported.
func (b BigQueryConfig) Enabled() bool {
	return b.Dataset != "" && b.MetricsTable != ""
}

type PubSubConfig struct {
	SyncTopic string `envconfig:"ARCUS_PUBSUB_SYNC_TOPIC"`
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
