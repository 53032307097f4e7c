package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Droptip DroptipConfig `mapstructure:"droptip"`
	Worker  WorkerConfig  `mapstructure:"worker"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Driver     string `mapstructure:"driver"` // "postgres", "sqlite" or "memory"
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DSN 返回 gorm postgres 驱动使用的连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// MigrateURL 返回 golang-migrate 使用的 URL
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // 为空表示不使用 Redis
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis", "kafka" or "none"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ChainConfig struct {
	RpcUrl         string        `mapstructure:"rpc_url"` // 为空时运行在模拟模式
	ChainID        int64         `mapstructure:"chain_id"`
	TokenAddress   string        `mapstructure:"token_address"`
	TokenDecimals  int32         `mapstructure:"token_decimals"`
	TokenSymbol    string        `mapstructure:"token_symbol"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type WalletConfig struct {
	OperatorSecret string        `mapstructure:"operator_secret"` // 用户私钥加密的根密钥 (环境变量 WALLET_OPERATOR_SECRET)
	KeystorePath   string        `mapstructure:"keystore_path"`   // 运营方助记词 Keystore，为空则自动生成运营钱包
	Password       string        `mapstructure:"password"`        // Keystore 密码 (环境变量 WALLET_PASSWORD)
	VaultDriver    string        `mapstructure:"vault_driver"`    // "bolt" or "file"
	VaultPath      string        `mapstructure:"vault_path"`
	ScryptN        int           `mapstructure:"scrypt_n"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type DroptipConfig struct {
	FeeBps           uint64        `mapstructure:"fee_bps"`
	TipFeeBps        uint64        `mapstructure:"tip_fee_bps"`
	AllowedDurations []int         `mapstructure:"allowed_durations"` // 分钟
	Scheduler        string        `mapstructure:"scheduler"`         // "timer" or "asynq"
	SweepSchedule    string        `mapstructure:"sweep_schedule"`
	SettleTimeout    time.Duration `mapstructure:"settle_timeout"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

const maxBps = 10000

var Global Config

// Init 加载配置到 Global，配置文件格式错误时直接退出
func Init() {
	cfg, err := Load(".", "./config")
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 从给定目录查找 config.yaml，叠加环境变量和默认值
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 环境变量设置: wallet.operator_secret -> WALLET_OPERATOR_SECRET
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("Warning: Config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围，费率以基点计，不能超过 10000
func (c *Config) Validate() error {
	if c.Droptip.FeeBps > maxBps {
		return fmt.Errorf("droptip.fee_bps %d out of range [0, %d]", c.Droptip.FeeBps, maxBps)
	}
	if c.Droptip.TipFeeBps > maxBps {
		return fmt.Errorf("droptip.tip_fee_bps %d out of range [0, %d]", c.Droptip.TipFeeBps, maxBps)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "tipbot_user")
	v.SetDefault("db.password", "tipbot_password")
	v.SetDefault("db.name", "tipbot_db")
	v.SetDefault("db.sqlite_path", "tipbot.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "none")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "tipbot_events")

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.chain_id", 56)
	v.SetDefault("chain.token_decimals", 18)
	v.SetDefault("chain.token_symbol", "TOKEN")
	v.SetDefault("chain.confirm_timeout", 2*time.Minute)
	v.SetDefault("chain.poll_interval", 2*time.Second)

	v.SetDefault("wallet.vault_driver", "bolt")
	v.SetDefault("wallet.vault_path", "vault.db")
	v.SetDefault("wallet.scrypt_n", 1<<15)
	v.SetDefault("wallet.cache_ttl", time.Hour)

	v.SetDefault("droptip.fee_bps", 100)
	v.SetDefault("droptip.tip_fee_bps", 100)
	v.SetDefault("droptip.allowed_durations", []int{1, 3, 5, 10, 15, 30})
	v.SetDefault("droptip.scheduler", "timer")
	v.SetDefault("droptip.sweep_schedule", "@every 1m")
	v.SetDefault("droptip.settle_timeout", 10*time.Minute)

	v.SetDefault("worker.concurrency", 10)
}
