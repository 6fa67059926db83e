package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/sudo-init-do/diecasthub/internal/trade"
)

type Config struct {
	Env       string       `mapstructure:"app_env"`
	Port      string       `mapstructure:"port"`
	LogLevel  string       `mapstructure:"log_level"`
	JWTSecret string       `mapstructure:"jwt_secret"`
	AppURL    string       `mapstructure:"app_url"`
	Store     StoreConfig  `mapstructure:"store"`
	DB        DBConfig     `mapstructure:"db"`
	Redis     RedisConfig  `mapstructure:"redis"`
	Kafka     KafkaConfig  `mapstructure:"kafka"`
	Outbox    OutboxConfig `mapstructure:"outbox"`
	Trade     TradeConfig  `mapstructure:"trade"`
	Mail      MailConfig   `mapstructure:"mail"`
	SMTP      SMTPConfig   `mapstructure:"smtp"`
	Plunk     PlunkConfig  `mapstructure:"plunk"`
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `mapstructure:"driver"`
	// SeedFile lists the catalog products the memory driver starts with.
	SeedFile string `mapstructure:"seed_file"`
}

type DBConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN builds the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type OutboxConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Batch    int           `mapstructure:"batch"`
}

type TradeConfig struct {
	MaxCashAmount   string `mapstructure:"max_cash_amount"`
	MaxItemsPerSide int    `mapstructure:"max_items_per_side"`
	Currency        string `mapstructure:"currency"`
}

// Engine converts the trade settings into engine limits.
func (c TradeConfig) Engine() (trade.Config, error) {
	limit, err := decimal.NewFromString(c.MaxCashAmount)
	if err != nil {
		return trade.Config{}, fmt.Errorf("invalid TRADE_MAX_CASH_AMOUNT %q: %w", c.MaxCashAmount, err)
	}
	if limit.GreaterThan(trade.MaxStorableCash) {
		limit = trade.MaxStorableCash
	}
	return trade.Config{
		MaxCashAmount:   limit,
		MaxItemsPerSide: c.MaxItemsPerSide,
		Currency:        c.Currency,
	}, nil
}

type MailConfig struct {
	// Provider is "smtp" or "plunk".
	Provider string `mapstructure:"provider"`
	ReplyTo  string `mapstructure:"reply_to"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type PlunkConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
	APIURL string `mapstructure:"api_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("app_url", "http://localhost:3000")

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.seed_file", "")

	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "diecasthub")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)

	v.SetDefault("redis.addr", "127.0.0.1:6379")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.client_id", "diecasthub")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.batch", 100)

	v.SetDefault("trade.max_cash_amount", "1000000")
	v.SetDefault("trade.max_items_per_side", 20)
	v.SetDefault("trade.currency", "TRY")

	v.SetDefault("mail.provider", "smtp")
	v.SetDefault("mail.reply_to", "")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "465")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("plunk.api_key", "")
	v.SetDefault("plunk.from", "")
	v.SetDefault("plunk.api_url", "https://api.useplunk.com/v1/send")
}

// Load reads .env (if present), the optional config file and the process
// environment. Environment variables win; DB_HOST maps to db.host.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres":
	case "memory":
		if c.Store.SeedFile == "" {
			return fmt.Errorf("STORE_SEED_FILE is required with STORE_DRIVER=memory")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.Trade.Engine(); err != nil {
		return err
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("OUTBOX_INTERVAL must be positive")
	}
	return nil
}
