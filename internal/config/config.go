package recycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogDevelopment bool

	StoreBackend string
	StoreTimeout time.Duration

	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
	PostgresDSN       string
	SQLitePath        string

	RedisAddr     string
	RedisUser     string
	RedisPassword string
	RedisLockTTL  time.Duration

	KafkaBrokers     []string
	KafkaSalesTopic  string
	KafkaEventsTopic string
	KafkaGroup       string

	RabbitURL          string
	RabbitRedeemQueue  string
	RabbitConfirmQueue string

	HTTPPort string
	GRPCPort string

	Locale           string
	DefaultCommunity string
	MaxRetries       int
	Workers          int

	OtelEndpoint string
	OtelService  string
}

// Load - config.yaml из рабочего каталога и переменные RECYCLE_*, например RECYCLE_STORE_BACKEND
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("RECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.development", true)
	v.SetDefault("store.backend", "mongo")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("mongo.database", "recycle")
	v.SetDefault("mongo.transactions", false)
	v.SetDefault("sqlite.path", "recycle.db")
	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("kafka.sales_topic", "booth_sales")
	v.SetDefault("kafka.events_topic", "ledger_transactions")
	v.SetDefault("kafka.group", "recycle_ledger")
	v.SetDefault("rabbit.redeem_queue", "redeems")
	v.SetDefault("rabbit.confirm_queue", "confirms")
	v.SetDefault("http.port", "8080")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("ledger.locale", "th")
	v.SetDefault("ledger.default_community", "general")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("workers.count", 5)
	v.SetDefault("otel.service", "recycle")
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogDevelopment:     v.GetBool("log.development"),
		StoreBackend:       v.GetString("store.backend"),
		StoreTimeout:       v.GetDuration("store.timeout"),
		MongoURI:           v.GetString("mongo.uri"),
		MongoDatabase:      v.GetString("mongo.database"),
		MongoTransactions:  v.GetBool("mongo.transactions"),
		PostgresDSN:        v.GetString("postgres.dsn"),
		SQLitePath:         v.GetString("sqlite.path"),
		RedisAddr:          v.GetString("redis.addr"),
		RedisUser:          v.GetString("redis.user"),
		RedisPassword:      v.GetString("redis.password"),
		RedisLockTTL:       v.GetDuration("redis.lock_ttl"),
		KafkaBrokers:       v.GetStringSlice("kafka.brokers"),
		KafkaSalesTopic:    v.GetString("kafka.sales_topic"),
		KafkaEventsTopic:   v.GetString("kafka.events_topic"),
		KafkaGroup:         v.GetString("kafka.group"),
		RabbitURL:          v.GetString("rabbit.url"),
		RabbitRedeemQueue:  v.GetString("rabbit.redeem_queue"),
		RabbitConfirmQueue: v.GetString("rabbit.confirm_queue"),
		HTTPPort:           v.GetString("http.port"),
		GRPCPort:           v.GetString("grpc.port"),
		Locale:             v.GetString("ledger.locale"),
		DefaultCommunity:   v.GetString("ledger.default_community"),
		MaxRetries:         v.GetInt("ledger.max_retries"),
		Workers:            v.GetInt("workers.count"),
		OtelEndpoint:       v.GetString("otel.endpoint"),
		OtelService:        v.GetString("otel.service"),
	}
	// переменная окружения приходит одной строкой через запятую
	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	switch cfg.StoreBackend {
	case "mongo", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unknown store.backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}
