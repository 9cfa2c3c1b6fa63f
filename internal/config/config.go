package config

import (
	"fmt"
	"strings"
	"time"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/transfer"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VAULT_STORE_BACKEND.
const EnvPrefix = "VAULT"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendPebble   = "pebble"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Logging    observability.LogConfig `mapstructure:"logging"`
	Store      StoreConfig             `mapstructure:"store"`
	NATS       NATSConfig              `mapstructure:"nats"`
	Server     ServerConfig            `mapstructure:"server"`
	Vault      VaultConfig             `mapstructure:"vault"`
	Channels   ChannelsConfig          `mapstructure:"channels"`
	Projection ProjectionConfig        `mapstructure:"projection"`
	Keeper     KeeperConfig            `mapstructure:"keeper"`
	Transfer   TransferConfig          `mapstructure:"transfer"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StoreConfig selects where vault records live. The event log always lives
// in Postgres and is written whenever postgres.dsn is set.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Pebble   PebbleConfig   `mapstructure:"pebble"`
}

// PostgresConfig encapsulates PostgreSQL connectivity.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsPath overrides the compiled-in schema when set.
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type PebbleConfig struct {
	Path string `mapstructure:"path"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// ServerConfig holds listen addresses; an empty address disables that server.
type ServerConfig struct {
	GRPCAddr    string `mapstructure:"grpc_addr"`
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type VaultConfig struct {
	AllowClockOverride     bool `mapstructure:"allow_clock_override"`
	IdempotencyLRUCapacity int  `mapstructure:"idempotency_lru_capacity"`
}

// ChannelsConfig sizes the event pipeline.
type ChannelsConfig struct {
	PersistBuffer     int           `mapstructure:"persist_buffer"`
	PublishBuffer     int           `mapstructure:"publish_buffer"`
	PersistBatchSize  int           `mapstructure:"persist_batch_size"`
	PersistFlushAfter time.Duration `mapstructure:"persist_flush_after"`
}

// ProjectionConfig drives the history projection that tails the event log.
type ProjectionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// KeeperConfig governs the periodic UpdatePrice caller.
type KeeperConfig struct {
	// Embedded runs the keeper inside serve against the local core.
	Embedded       bool          `mapstructure:"embedded"`
	Interval       time.Duration `mapstructure:"interval"`
	AlignToStart   bool          `mapstructure:"align_to_start"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	Admin          string        `mapstructure:"admin"`
	Target         string        `mapstructure:"target"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TransferConfig seeds the in-process transfer service.
type TransferConfig struct {
	Seed []SeedEntry `mapstructure:"seed"`
}

// SeedEntry credits Amount of Asset to Party ("pool" or a holder UUID).
type SeedEntry struct {
	Party  string `mapstructure:"party"`
	Asset  string `mapstructure:"asset"`
	Amount uint64 `mapstructure:"amount"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vaultledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vaultledger")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vaultledger")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.caller", false)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_open_conns", 20)
	v.SetDefault("store.postgres.max_idle_conns", 5)
	v.SetDefault("store.postgres.conn_max_lifetime", "30m")
	v.SetDefault("store.postgres.migrations_path", "")
	v.SetDefault("store.postgres.auto_migrate", true)
	v.SetDefault("store.pebble.path", "data/vault.pebble")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9091")

	v.SetDefault("vault.allow_clock_override", false)
	v.SetDefault("vault.idempotency_lru_capacity", 100_000)

	v.SetDefault("channels.persist_buffer", 10_000)
	v.SetDefault("channels.publish_buffer", 10_000)
	v.SetDefault("channels.persist_batch_size", 100)
	v.SetDefault("channels.persist_flush_after", "10ms")

	v.SetDefault("projection.enabled", true)
	v.SetDefault("projection.interval", "1s")
	v.SetDefault("projection.batch_size", 500)

	v.SetDefault("keeper.embedded", false)
	v.SetDefault("keeper.interval", "1h")
	v.SetDefault("keeper.align_to_start", false)
	v.SetDefault("keeper.startup_delay", "0s")
	v.SetDefault("keeper.admin", "")
	v.SetDefault("keeper.target", "localhost:9090")
	v.SetDefault("keeper.request_timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	case BackendPebble:
		if c.Store.Pebble.Path == "" {
			return fmt.Errorf("store.pebble.path is required for the pebble backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, postgres, pebble (got %q)", c.Store.Backend)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if c.Vault.IdempotencyLRUCapacity <= 0 {
		return fmt.Errorf("vault.idempotency_lru_capacity must be greater than zero")
	}
	if c.Channels.PersistBuffer <= 0 || c.Channels.PublishBuffer <= 0 {
		return fmt.Errorf("channel buffers must be greater than zero")
	}
	if c.Channels.PersistBatchSize <= 0 {
		return fmt.Errorf("channels.persist_batch_size must be greater than zero")
	}
	if c.Channels.PersistFlushAfter <= 0 {
		return fmt.Errorf("channels.persist_flush_after must be greater than zero")
	}
	if c.Projection.Enabled && (c.Projection.Interval <= 0 || c.Projection.BatchSize <= 0) {
		return fmt.Errorf("projection.interval and projection.batch_size must be greater than zero")
	}
	if c.Keeper.Interval <= 0 {
		return fmt.Errorf("keeper.interval must be greater than zero")
	}
	if c.Keeper.Embedded && c.Keeper.Admin == "" {
		return fmt.Errorf("keeper.admin is required for an embedded keeper")
	}
	if c.Keeper.Admin != "" {
		if _, err := uuid.Parse(c.Keeper.Admin); err != nil {
			return fmt.Errorf("keeper.admin: %w", err)
		}
	}
	if _, err := c.SeedBalances(); err != nil {
		return err
	}
	return nil
}

// KeeperAdmin returns the administrator identity the keeper acts as.
func (c *Config) KeeperAdmin() (uuid.UUID, error) {
	if c.Keeper.Admin == "" {
		return uuid.Nil, fmt.Errorf("keeper.admin is not configured")
	}
	return uuid.Parse(c.Keeper.Admin)
}

// EventLogEnabled reports whether events are persisted to Postgres.
func (c *Config) EventLogEnabled() bool {
	return c.Store.Postgres.DSN != ""
}

// SeedBalances converts transfer.seed into transfer service seeds.
func (c *Config) SeedBalances() ([]transfer.SeedBalance, error) {
	seeds := make([]transfer.SeedBalance, 0, len(c.Transfer.Seed))
	for i, e := range c.Transfer.Seed {
		asset, ok := transfer.GetAssetID(strings.ToUpper(e.Asset))
		if !ok {
			return nil, fmt.Errorf("transfer.seed[%d]: unknown asset %q", i, e.Asset)
		}
		var party transfer.Party
		if strings.EqualFold(e.Party, "pool") {
			party = transfer.Pool()
		} else {
			id, err := uuid.Parse(e.Party)
			if err != nil {
				return nil, fmt.Errorf("transfer.seed[%d]: party: %w", i, err)
			}
			party = transfer.Holder(id)
		}
		seeds = append(seeds, transfer.SeedBalance{Party: party, Asset: asset, Amount: e.Amount})
	}
	return seeds, nil
}
