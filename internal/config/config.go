package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
// 通过构造函数显式注入到各组件，不再使用进程级全局变量
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	PublicURL string `mapstructure:"public_url"` // 结账成功/取消后的回跳地址前缀
	LogLevel  string `mapstructure:"log_level"`
}

// DatabaseConfig 选择存储驱动，本地开发可使用 sqlite 单文件
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // mysql | sqlite
	SQLitePath string `mapstructure:"sqlite_path"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CreditGranted string `mapstructure:"credit_granted"`
}

// StripeConfig 支付渠道配置
// SecretKey / WebhookSecret 属于必填密钥，缺失时启动即失败
type StripeConfig struct {
	SecretKey        string `mapstructure:"secret_key"`
	WebhookSecret    string `mapstructure:"webhook_secret"`
	APIURL           string `mapstructure:"api_url"` // 为空时使用官方地址
	Currency         string `mapstructure:"currency"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
}

type BusinessConfig struct {
	MaxRetryCount            int          `mapstructure:"max_retry_count"`
	RetryIntervalMs          int          `mapstructure:"retry_interval_ms"`
	LockTTLSeconds           int          `mapstructure:"lock_ttl_seconds"`
	ReconcileIntervalSeconds int          `mapstructure:"reconcile_interval_seconds"`
	ReconcileGraceSeconds    int          `mapstructure:"reconcile_grace_seconds"`
	Plans                    []PlanConfig `mapstructure:"plans"`
}

// PlanConfig 套餐定义，服务端以此为准计算积分
type PlanConfig struct {
	Name        string `mapstructure:"name"`
	AmountCents int64  `mapstructure:"amount_cents"`
	Credits     int64  `mapstructure:"credits"`
}

var ErrMissingSecret = errors.New("缺少必填配置")

// LoadConfig 加载配置文件，环境变量优先
// 例如 STRIPE_WEBHOOK_SECRET 覆盖 stripe.webhook_secret
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// 显式绑定密钥，保证配置文件中没有该字段时环境变量也能生效
	for _, key := range []string{"stripe.secret_key", "stripe.webhook_secret", "server.public_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.sqlite_path", "creditpay.db")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("stripe.tolerance_seconds", 300)
	v.SetDefault("kafka.topic.credit_granted", "credit.granted")
	v.SetDefault("business.max_retry_count", 3)
	v.SetDefault("business.retry_interval_ms", 200)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.reconcile_interval_seconds", 60)
	v.SetDefault("business.reconcile_grace_seconds", 300)
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "stripe.secret_key")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "stripe.webhook_secret")
	}
	if c.Server.PublicURL == "" {
		missing = append(missing, "server.public_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}

	for _, p := range c.Business.Plans {
		if p.Name == "" || p.AmountCents <= 0 || p.Credits < 0 {
			return fmt.Errorf("套餐配置不合法: %+v", p)
		}
	}
	return nil
}

// FindPlan 按名称查找套餐
func (c *Config) FindPlan(name string) (PlanConfig, bool) {
	for _, p := range c.Business.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return PlanConfig{}, false
}

func (b BusinessConfig) RetryInterval() time.Duration {
	return time.Duration(b.RetryIntervalMs) * time.Millisecond
}

func (b BusinessConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (s StripeConfig) Tolerance() time.Duration {
	return time.Duration(s.ToleranceSeconds) * time.Second
}
