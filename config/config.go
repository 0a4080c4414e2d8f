package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Operator   OperatorConfig   `mapstructure:"operator"`
	Log        LogConfig        `mapstructure:"log"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Rebalance  RebalanceConfig  `mapstructure:"rebalance"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"` // debug, release, test
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// OperatorConfig holds the credentials of the back-office operator allowed
// to publish rates and trigger rebalancing.
type OperatorConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // Argon2id encoded hash
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Pretty     bool   `mapstructure:"pretty"` // human-readable output (dev only)
	File       string `mapstructure:"file"`   // optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// EngineConfig drives quoting and rebalancing. Currency keys are
// case-insensitive because viper lowercases map keys.
type EngineConfig struct {
	MarginPercentage        map[string]float64 `mapstructure:"margin_percentage"`
	TransactionVolumeWeight float64            `mapstructure:"transaction_volume_weight"`
	HistoricalDemandWeight  float64            `mapstructure:"historical_demand_weight"`
	HistoricalCutOffDays    int                `mapstructure:"historical_cutoff_days"`
	SeedFile                string             `mapstructure:"seed_file"`
}

// Margin returns the configured margin percentage for a currency.
func (e EngineConfig) Margin(currency string) (decimal.Decimal, bool) {
	v, ok := lookupUpper(e.MarginPercentage, currency)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// VolumeWeight returns the rebalance weight applied to settled volume.
func (e EngineConfig) VolumeWeight() decimal.Decimal {
	return decimal.NewFromFloat(e.TransactionVolumeWeight)
}

// DemandWeight returns the rebalance weight applied to historical demand.
func (e EngineConfig) DemandWeight() decimal.Decimal {
	return decimal.NewFromFloat(e.HistoricalDemandWeight)
}

// HistoricalCutOff returns the demand look-back window.
func (e EngineConfig) HistoricalCutOff() time.Duration {
	return time.Duration(e.HistoricalCutOffDays) * 24 * time.Hour
}

type SettlementConfig struct {
	Provider       string               `mapstructure:"provider"` // MOCK, HTTP
	SettlementTime map[string]int       `mapstructure:"settlement_time"`
	HTTP           HTTPSettlementConfig `mapstructure:"http"`
}

// Delay returns the simulated settlement delay for a currency.
func (s SettlementConfig) Delay(currency string) (time.Duration, bool) {
	v, ok := lookupUpper(s.SettlementTime, currency)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Second, true
}

type HTTPSettlementConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	BatchSize         int           `mapstructure:"batch_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	StuckAfter        time.Duration `mapstructure:"stuck_after"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ProviderRPS       float64       `mapstructure:"provider_rps"`
}

type RebalanceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type MigrationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func lookupUpper[V any](m map[string]V, key string) (V, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: FXE_ (FX Engine).
// Nested keys use underscore: FXE_DATABASE_HOST, FXE_SETTLEMENT_PROVIDER, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "fx_engine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "fx-liquidity-engine")
	v.SetDefault("operator.username", "operator")
	v.SetDefault("operator.password_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("engine.margin_percentage", map[string]float64{
		"USD": 1, "EUR": 1.5, "GBP": 1.5, "JPY": 2, "AUD": 2,
	})
	v.SetDefault("engine.transaction_volume_weight", 0.6)
	v.SetDefault("engine.historical_demand_weight", 0.4)
	v.SetDefault("engine.historical_cutoff_days", 30)
	v.SetDefault("engine.seed_file", "config/currencies.yaml")
	v.SetDefault("settlement.provider", "MOCK")
	v.SetDefault("settlement.settlement_time", map[string]int{
		"USD": 2, "EUR": 3, "GBP": 3, "JPY": 5, "AUD": 5,
	})
	v.SetDefault("settlement.http.url", "")
	v.SetDefault("settlement.http.secret", "")
	v.SetDefault("settlement.http.timeout", "10s")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.batch_size", 16)
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.base_backoff", "2s")
	v.SetDefault("worker.stuck_after", "5m")
	v.SetDefault("worker.reconcile_interval", "1m")
	v.SetDefault("worker.provider_rps", 50.0)
	v.SetDefault("rebalance.enabled", true)
	v.SetDefault("rebalance.interval", "1h")
	v.SetDefault("rebalance.lock_ttl", "10m")
	v.SetDefault("migrations.enabled", true)
	v.SetDefault("migrations.path", "file://migrations")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: FXE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("FXE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
