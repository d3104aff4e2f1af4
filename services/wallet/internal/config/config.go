package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/2001-daminho/nexcrypto/libs/config"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the connection URL used by pgxpool and the migrator.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	ClientID      string
	ChangesTopic  string
	ConsumerGroup string
	DLQTopic      string
}

type GRPCConfig struct {
	Host string
	Port int
}

type MarketConfig struct {
	BaseURL           string
	Timeout           time.Duration
	PerPage           int
	RefreshInterval   time.Duration
	RequestsPerMinute int
	SnapshotTTL       time.Duration
	Offline           bool
}

type SessionConfig struct {
	IdleTTL              time.Duration
	NotificationsPerUser int
}

type RateLimitConfig struct {
	Limit       int
	Window      time.Duration
	RedisPrefix string
}

type Config struct {
	App       base.AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	GRPC      GRPCConfig
	Market    MarketConfig
	Fees      ledger.PolicyConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	JWTSecret string
}

func Load() (*Config, error) {
	path := base.ConfigPath()
	appCfg, err := base.Load(path)
	if err != nil {
		return nil, err
	}
	v, err := base.NewViper(path)
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	fees, err := loadFees(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "nex_wallet"),
			User:     envString("POSTGRES_USER", "nex"),
			Password: envString("POSTGRES_PASSWORD", "nex"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", v.GetString("redis.addr")),
			Password: envString("REDIS_PASSWORD", v.GetString("redis.password")),
			DB:       envInt("REDIS_DB", v.GetInt("redis.db")),
		},
		Kafka: KafkaConfig{
			Enabled:       v.GetBool("kafka.enabled"),
			Brokers:       envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			ClientID:      v.GetString("kafka.client_id"),
			ChangesTopic:  envString("KAFKA_CHANGES_TOPIC", v.GetString("kafka.topics.changes")),
			ConsumerGroup: envString("KAFKA_CONSUMER_GROUP", v.GetString("kafka.consumer_group")),
			DLQTopic:      envString("KAFKA_DLQ_TOPIC", v.GetString("kafka.topics.dlq")),
		},
		GRPC: GRPCConfig{
			Host: envString("NEX_GRPC_HOST", "0.0.0.0"),
			Port: envInt("NEX_GRPC_PORT", 9092),
		},
		Market: MarketConfig{
			BaseURL:           envString("MARKET_BASE_URL", v.GetString("market.base_url")),
			Timeout:           envDuration("MARKET_TIMEOUT", v.GetDuration("market.timeout")),
			PerPage:           v.GetInt("market.per_page"),
			RefreshInterval:   envDuration("MARKET_REFRESH_INTERVAL", v.GetDuration("market.refresh_interval")),
			RequestsPerMinute: v.GetInt("market.requests_per_minute"),
			SnapshotTTL:       v.GetDuration("market.snapshot_ttl"),
			Offline:           v.GetBool("market.offline"),
		},
		Fees: fees,
		Session: SessionConfig{
			IdleTTL:              envDuration("SESSION_IDLE_TTL", v.GetDuration("session.idle_ttl")),
			NotificationsPerUser: v.GetInt("session.notifications_per_user"),
		},
		RateLimit: RateLimitConfig{
			Limit:       envInt("NEX_WRITE_RATE_LIMIT", v.GetInt("rate_limit.limit")),
			Window:      envDuration("NEX_WRITE_RATE_WINDOW", v.GetDuration("rate_limit.window")),
			RedisPrefix: v.GetString("rate_limit.redis_prefix"),
		},
		JWTSecret: envString("NEX_JWT_SECRET", v.GetString("auth.jwt_secret")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "wallet-service")
	v.SetDefault("kafka.consumer_group", "wallet-realtime")
	v.SetDefault("kafka.topics.changes", "ledger.changes")
	v.SetDefault("kafka.topics.dlq", "ledger.changes.dlq")
	v.SetDefault("market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("market.per_page", 100)
	v.SetDefault("market.refresh_interval", "1m")
	v.SetDefault("market.requests_per_minute", 30)
	v.SetDefault("market.snapshot_ttl", "10m")
	v.SetDefault("market.offline", false)
	v.SetDefault("fees.rate_of_amount", "0")
	v.SetDefault("fees.currency", "eth")
	v.SetDefault("fees.flat_amount", "0.001")
	v.SetDefault("fees.minimum_transfer_usd", "0")
	v.SetDefault("session.idle_ttl", "15m")
	v.SetDefault("session.notifications_per_user", 50)
	v.SetDefault("rate_limit.limit", 10)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.redis_prefix", "nex:wallet:rl:")
}

func loadFees(v *viper.Viper) (ledger.PolicyConfig, error) {
	var cfg ledger.PolicyConfig
	var err error
	if cfg.FeeRateOfAmount, err = decimalSetting(v, "fees.rate_of_amount", "FEE_RATE_OF_AMOUNT"); err != nil {
		return cfg, err
	}
	if cfg.FlatFeeAmount, err = decimalSetting(v, "fees.flat_amount", "FEE_FLAT_AMOUNT"); err != nil {
		return cfg, err
	}
	if cfg.MinimumTransferUSD, err = decimalSetting(v, "fees.minimum_transfer_usd", "MINIMUM_TRANSFER_USD"); err != nil {
		return cfg, err
	}
	cfg.FeeCurrency = envString("FEE_CURRENCY", v.GetString("fees.currency"))
	return cfg, nil
}

func decimalSetting(v *viper.Viper, key, env string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(envString(env, v.GetString(key)))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, raw)
	}
	return d, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("NEX_JWT_SECRET must be set")
	}
	if c.GRPC.Port <= 0 {
		return fmt.Errorf("NEX_GRPC_PORT must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers required")
		}
		if c.Kafka.ChangesTopic == "" || c.Kafka.ConsumerGroup == "" {
			return fmt.Errorf("kafka changes topic and consumer group required")
		}
	}
	if c.Market.PerPage <= 0 || c.Market.PerPage > 250 {
		return fmt.Errorf("market.per_page must be between 1 and 250")
	}
	if c.Market.RefreshInterval <= 0 {
		return fmt.Errorf("market.refresh_interval must be positive")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit and window must be positive")
	}
	if _, _, err := ledger.PoliciesFromConfig(c.Fees); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
