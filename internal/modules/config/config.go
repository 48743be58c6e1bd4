package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
)

// секреты берутся только из окружения
var secretEnv = map[string]string{
	"telegram.token":      "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":    "TELEGRAM_CHAT_ID",
	"whitebit.api_key":    "WHITEBIT_API_KEY",
	"whitebit.secret":     "WHITEBIT_SECRET_KEY",
	"webhook.secret":      "WEBHOOK_SECRET",
	"db_dsn":              "DATABASE_DSN",
	"backup.s3.bucket":    "BACKUP_S3_BUCKET",
	"tracing.enabled":     "TRACING_ENABLED",
	"service.public_port": "PORT",
}

type Config struct {
	Telegram struct {
		Token  string `mapstructure:"token" yaml:"token"`
		ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
	} `mapstructure:"telegram" yaml:"telegram"`

	WhiteBit WhiteBitConfig `mapstructure:"whitebit" yaml:"whitebit"`

	DB      string `mapstructure:"db_dsn" yaml:"db_dsn"`
	Service struct {
		Host       string `mapstructure:"host" yaml:"host"`
		PublicPort int    `mapstructure:"public_port" yaml:"public_port"`
	} `mapstructure:"service" yaml:"service"`

	Webhook struct {
		Secret string `mapstructure:"secret" yaml:"secret"`
	} `mapstructure:"webhook" yaml:"webhook"`

	Trading   TradingConfig   `mapstructure:"trading" yaml:"trading"`
	Strategy  StrategyConfig  `mapstructure:"strategy" yaml:"strategy"`
	Symbols   SymbolsConfig   `mapstructure:"symbols" yaml:"symbols"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`

	Log     logger.Config  `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

type WhiteBitConfig struct {
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Secret      string        `mapstructure:"secret" yaml:"secret"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	WSURL       string        `mapstructure:"ws_url" yaml:"ws_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MarketsTTL  time.Duration `mapstructure:"markets_ttl" yaml:"markets_ttl"`
	PriceMaxAge time.Duration `mapstructure:"price_max_age" yaml:"price_max_age"`
	// OrderTimeout — сколько ждать ответа на рыночный ордер независимо от вызывающего.
	OrderTimeout time.Duration `mapstructure:"order_timeout" yaml:"order_timeout"`
}

// MaxPositionShareCap — потолок доли баланса на одну позицию, конфиг может только ужесточить его.
const MaxPositionShareCap = 10.0

// TradingConfig — параметры риска, проценты в единицах (2 => 2%).
type TradingConfig struct {
	RiskPercent         float64   `mapstructure:"risk_percent" yaml:"risk_percent"`
	MinOrderSize        float64   `mapstructure:"min_order_size" yaml:"min_order_size"`
	MaxOrderSize        float64   `mapstructure:"max_order_size" yaml:"max_order_size"`
	MaxOpenPositions    int       `mapstructure:"max_open_positions" yaml:"max_open_positions"`
	MaxDailyLoss        float64   `mapstructure:"max_daily_loss" yaml:"max_daily_loss"`
	MaxLossPerPosition  float64   `mapstructure:"max_loss_per_position" yaml:"max_loss_per_position"`
	MaxPositionShare    float64   `mapstructure:"max_position_share" yaml:"max_position_share"`
	MinBalance          float64   `mapstructure:"min_balance" yaml:"min_balance"`
	StopLossPercent     float64   `mapstructure:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitOffsets   []float64 `mapstructure:"take_profit_offsets" yaml:"take_profit_offsets"`
	TakeProfitClosePcts []float64 `mapstructure:"take_profit_close_pcts" yaml:"take_profit_close_pcts"`
	QuoteCurrency       string    `mapstructure:"quote_currency" yaml:"quote_currency"`
}

type StrategyConfig struct {
	Name                string        `mapstructure:"name" yaml:"name"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" yaml:"confirmation_timeout"`
}

type SymbolMapping struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

type SymbolsConfig struct {
	Mapping       []SymbolMapping `mapstructure:"mapping" yaml:"mapping"`
	QuoteSuffixes []string        `mapstructure:"quote_suffixes" yaml:"quote_suffixes"`
}

type SchedulerConfig struct {
	MonitorInterval time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	BackupInterval  time.Duration `mapstructure:"backup_interval" yaml:"backup_interval"`
}

type BackupConfig struct {
	Dir      string   `mapstructure:"dir" yaml:"dir"`
	Keep     int      `mapstructure:"keep" yaml:"keep"`
	Postgres bool     `mapstructure:"postgres" yaml:"postgres"`
	Restore  bool     `mapstructure:"restore" yaml:"restore"`
	S3       S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config: пустой Bucket отключает выгрузку. Ключи берутся из стандартной
// цепочки AWS (AWS_ACCESS_KEY_ID и т.п.).
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.public_port", 3000)

	v.SetDefault("whitebit.base_url", "https://whitebit.com")
	v.SetDefault("whitebit.ws_url", "wss://api.whitebit.com/ws")
	v.SetDefault("whitebit.timeout", "10s")
	v.SetDefault("whitebit.markets_ttl", "10m")
	v.SetDefault("whitebit.price_max_age", "15s")
	v.SetDefault("whitebit.order_timeout", "30s")

	v.SetDefault("trading.risk_percent", 2.0)
	v.SetDefault("trading.min_order_size", 10.0)
	v.SetDefault("trading.max_order_size", 1000.0)
	v.SetDefault("trading.max_open_positions", 5)
	v.SetDefault("trading.max_daily_loss", 10.0)
	v.SetDefault("trading.max_loss_per_position", 5.0)
	v.SetDefault("trading.max_position_share", 10.0)
	v.SetDefault("trading.min_balance", 10.0)
	v.SetDefault("trading.stop_loss_percent", 3.0)
	v.SetDefault("trading.take_profit_offsets", []float64{2, 4, 6})
	v.SetDefault("trading.take_profit_close_pcts", []float64{25, 25, 25})
	v.SetDefault("trading.quote_currency", "USDT")

	v.SetDefault("strategy.name", "EMA Ribbon v2")
	v.SetDefault("strategy.confirmation_timeout", "5m")

	v.SetDefault("symbols.quote_suffixes", []string{"USDT", "USDC", "BTC", "ETH"})

	v.SetDefault("scheduler.monitor_interval", "30s")
	v.SetDefault("scheduler.cleanup_interval", "5m")
	v.SetDefault("scheduler.backup_interval", "6h")

	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.keep", 20)
	v.SetDefault("backup.restore", true)
	v.SetDefault("backup.s3.prefix", "signal-bot/")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	file := os.Getenv(configFilePathENV)
	if file == "" {
		file = defaultConfigFile
	}
	return Load(file)
}

// Load читает файл (если он есть), накладывает окружение и валидирует результат.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	for key, env := range secretEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Symbols.Mapping) == 0 {
		cfg.Symbols.Mapping = defaultMapping()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultMapping() []SymbolMapping {
	return []SymbolMapping{
		{From: "BTCUSDT", To: "DBTC_DUSDT"},
		{From: "BTC", To: "DBTC_DUSDT"},
		{From: "ETHUSDT", To: "DETH_DUSDT"},
		{From: "ETH", To: "DETH_DUSDT"},
	}
}

func (c *Config) Validate() error {
	t := c.Trading
	var problems []string
	pct := func(name string, v float64) {
		if v <= 0 || v > 100 {
			problems = append(problems, fmt.Sprintf("%s must be in (0,100], got %v", name, v))
		}
	}

	pct("risk_percent", t.RiskPercent)
	pct("max_daily_loss", t.MaxDailyLoss)
	pct("max_loss_per_position", t.MaxLossPerPosition)
	if t.MaxPositionShare <= 0 || t.MaxPositionShare > MaxPositionShareCap {
		problems = append(problems, fmt.Sprintf("max_position_share must be in (0,%v], got %v", MaxPositionShareCap, t.MaxPositionShare))
	}
	pct("stop_loss_percent", t.StopLossPercent)

	if t.MinOrderSize <= 0 || t.MinOrderSize > t.MaxOrderSize {
		problems = append(problems, fmt.Sprintf("min_order_size %v must be positive and <= max_order_size %v", t.MinOrderSize, t.MaxOrderSize))
	}
	if t.MaxOpenPositions <= 0 {
		problems = append(problems, "max_open_positions must be positive")
	}
	if len(t.TakeProfitOffsets) == 0 || len(t.TakeProfitOffsets) != len(t.TakeProfitClosePcts) {
		problems = append(problems, "take_profit_offsets and take_profit_close_pcts must be non-empty and of equal length")
	}
	var closeSum float64
	for i, p := range t.TakeProfitClosePcts {
		pct(fmt.Sprintf("take_profit_close_pcts[%d]", i), p)
		closeSum += p
	}
	if closeSum > 100 {
		problems = append(problems, fmt.Sprintf("take_profit_close_pcts sum %v exceeds 100", closeSum))
	}
	if strings.TrimSpace(c.Strategy.Name) == "" {
		problems = append(problems, "strategy.name is required")
	}
	if c.Strategy.ConfirmationTimeout <= 0 {
		problems = append(problems, "strategy.confirmation_timeout must be positive")
	}
	if c.Scheduler.MonitorInterval <= 0 || c.Scheduler.CleanupInterval <= 0 || c.Scheduler.BackupInterval <= 0 {
		problems = append(problems, "scheduler intervals must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Dump — эффективный конфиг в YAML без секретов.
func (c *Config) Dump() (string, error) {
	cp := *c
	cp.Telegram.Token = redact(cp.Telegram.Token)
	cp.WhiteBit.APIKey = redact(cp.WhiteBit.APIKey)
	cp.WhiteBit.Secret = redact(cp.WhiteBit.Secret)
	cp.Webhook.Secret = redact(cp.Webhook.Secret)
	cp.DB = redact(cp.DB)

	out, err := yaml.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
