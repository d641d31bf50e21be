package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4243"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Ziel-Shop
	SiteBaseURL         string `envconfig:"SITE_BASE_URL" default:"https://blinkit.com"`
	SiteSearchPath      string `envconfig:"SITE_SEARCH_PATH" default:"/s/?q=%s"`
	ProductPathTemplate string `envconfig:"PRODUCT_PATH_TEMPLATE" default:"/prn/%s/prid/%s"`

	// Browser-Session
	NavTimeoutSec  int    `envconfig:"NAV_TIMEOUT_SEC" default:"45"`
	PageTimeoutSec int    `envconfig:"PAGE_TIMEOUT_SEC" default:"180"`
	ProxyURL       string `envconfig:"PROXY_URL"`
	ChromePath     string `envconfig:"CHROME_PATH"`
	Headless       bool   `envconfig:"HEADLESS" default:"true"`
	DefaultLat     string `envconfig:"DEFAULT_LAT"`
	DefaultLon     string `envconfig:"DEFAULT_LON"`

	// Extraktions-Heuristiken
	ScanMaxDepth        int `envconfig:"SCAN_MAX_DEPTH" default:"8"`
	ScoreSampleSize     int `envconfig:"SCORE_SAMPLE_SIZE" default:"25"`
	ArrayScoreThreshold int `envconfig:"ARRAY_SCORE_THRESHOLD" default:"3"`

	// Scroll-/Nachlade-Schleife
	ScrollMaxRounds    int `envconfig:"SCROLL_MAX_ROUNDS" default:"20"`
	ScrollStableRounds int `envconfig:"SCROLL_STABLE_ROUNDS" default:"3"`
	ScrollSettleMs     int `envconfig:"SCROLL_SETTLE_MS" default:"1200"`

	// Pagination-Probing
	ProbeMaxRequests int `envconfig:"PROBE_MAX_REQUESTS" default:"10"`
	ProbeDefaultStep int `envconfig:"PROBE_DEFAULT_STEP" default:"24"`
	ProbeMinYield    int `envconfig:"PROBE_MIN_YIELD" default:"3"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 */6 * * *"`

	StratoS3Key    string `envconfig:"STRATO_S3_KEY" required:"true"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET" required:"true"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL" required:"true"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION" required:"true"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET" required:"true"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// SearchURL baut die Seed-URL für ein Suchwort.
func (c *Config) SearchURL(keyword string) string {
	return c.SiteBaseURL + fmt.Sprintf(c.SiteSearchPath, keyword)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
