package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradebot/internal/domain"
)

// DefaultConfigPath is where the bot looks for its config file.
const DefaultConfigPath = "configs/config.yaml"

// Config는 봇의 모든 설정을 담습니다.
// LoadConfig로 yaml을 읽은 뒤 환경 변수로 민감한 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Metrics struct {
		Listen string `yaml:"listen"` // empty disables the /metrics server
	} `yaml:"metrics"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Engine struct {
		CycleInterval time.Duration       `yaml:"cycle_interval"`
		EmergencyStop EmergencyStopConfig `yaml:"emergency_stop"`
	} `yaml:"engine"`

	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Markets   []MarketConfig   `yaml:"markets"`
}

// EmergencyStopConfig halts trading when the available balance of Currency
// drops below BalanceFloor. A zero floor disables the check.
type EmergencyStopConfig struct {
	Currency         string          `yaml:"currency"`
	BalanceFloor     decimal.Decimal `yaml:"balance_floor"`
	CancelOpenOrders bool            `yaml:"cancel_open_orders"` // cancel resting orders when the stop trips
}

// Rule converts the block into the domain rule.
func (e EmergencyStopConfig) Rule() domain.StopRule {
	return domain.StopRule{Currency: e.Currency, Floor: e.BalanceFloor}
}

// ExchangeConfig configures one adapter. Key material should come from the
// environment (TRADEBOT_<NAME>_KEY and friends) rather than the file.
type ExchangeConfig struct {
	Name              string           `yaml:"name"`
	Enabled           bool             `yaml:"enabled"`
	BaseURL           string           `yaml:"base_url"`
	UserAgent         string           `yaml:"user_agent"`
	ConnectionTimeout time.Duration    `yaml:"connection_timeout"`
	Key               string           `yaml:"key"`
	Secret            string           `yaml:"secret"`
	Passphrase        string           `yaml:"passphrase"`
	ClientID          string           `yaml:"client_id"`
	BuyFeePercent     *decimal.Decimal `yaml:"buy_fee_percent"`
	SellFeePercent    *decimal.Decimal `yaml:"sell_fee_percent"`
	Require           string           `yaml:"require"` // capability list, e.g. "trading" or "market-orders,latest-price"
}

// MarketConfig is one market the monitor watches.
type MarketConfig struct {
	Exchange string `yaml:"exchange"`
	ID       string `yaml:"id"`
}

// envOverlay holds the top-level knobs that may be set from the environment.
type envOverlay struct {
	LogLevel      string `env:"TRADEBOT_LOG_LEVEL"`
	LogFile       string `env:"TRADEBOT_LOG_FILE"`
	MetricsListen string `env:"TRADEBOT_METRICS_LISTEN"`
	StoragePath   string `env:"TRADEBOT_STORAGE_PATH"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigError{Field: path, Err: domain.ErrConfigNotFound}
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses yaml, applies the environment and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}
	cfg.applyDefaults()

	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "logs/tradebot.log"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/orders.db"
	}
	if c.Engine.CycleInterval == 0 {
		c.Engine.CycleInterval = time.Minute
	}
	for i := range c.Exchanges {
		if c.Exchanges[i].ConnectionTimeout == 0 {
			c.Exchanges[i].ConnectionTimeout = 30 * time.Second
		}
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	if c.Engine.CycleInterval < time.Second {
		return &domain.ConfigError{Field: "engine.cycle_interval", Err: errors.New("must be at least 1s")}
	}
	if !c.Engine.EmergencyStop.BalanceFloor.IsZero() {
		if c.Engine.EmergencyStop.BalanceFloor.IsNegative() {
			return &domain.ConfigError{Field: "engine.emergency_stop.balance_floor", Err: errors.New("must not be negative")}
		}
		if c.Engine.EmergencyStop.Currency == "" {
			return &domain.ConfigError{Field: "engine.emergency_stop.currency", Err: errors.New("required when a floor is set")}
		}
	}

	enabled := make(map[string]bool)
	for i, ex := range c.Exchanges {
		field := fmt.Sprintf("exchanges[%d]", i)
		name := strings.ToLower(ex.Name)
		if name == "" {
			return &domain.ConfigError{Field: field + ".name", Err: errors.New("required")}
		}
		if _, dup := enabled[name]; dup {
			return &domain.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate exchange %q", ex.Name)}
		}
		enabled[name] = ex.Enabled

		if ex.ConnectionTimeout < 0 {
			return &domain.ConfigError{Field: field + ".connection_timeout", Err: errors.New("must not be negative")}
		}
		if ex.BaseURL != "" && !hasPrefix(ex.BaseURL, "https://") && !hasPrefix(ex.BaseURL, "http://") {
			return &domain.ConfigError{Field: field + ".base_url", Err: fmt.Errorf("invalid url %q", ex.BaseURL)}
		}
		for _, fee := range []*decimal.Decimal{ex.BuyFeePercent, ex.SellFeePercent} {
			if fee != nil && (fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100))) {
				return &domain.ConfigError{Field: field + ".fees", Err: fmt.Errorf("percentage %s outside [0,100]", fee)}
			}
		}
		if _, ok := domain.ParseCapabilities(ex.Require); !ok {
			return &domain.ConfigError{Field: field + ".require", Err: fmt.Errorf("unknown capability in %q", ex.Require)}
		}
	}

	for i, m := range c.Markets {
		field := fmt.Sprintf("markets[%d]", i)
		if m.ID == "" {
			return &domain.ConfigError{Field: field + ".id", Err: domain.ErrInvalidMarket}
		}
		if !enabled[strings.ToLower(m.Exchange)] {
			return &domain.ConfigError{Field: field + ".exchange", Err: fmt.Errorf("exchange %q is not enabled", m.Exchange)}
		}
	}

	return nil
}

// EnabledExchanges returns the exchanges to build adapters for.
func (c *Config) EnabledExchanges() []ExchangeConfig {
	var out []ExchangeConfig
	for _, ex := range c.Exchanges {
		if ex.Enabled {
			out = append(out, ex)
		}
	}
	return out
}

// MarketsFor returns the market ids configured for exchange.
func (c *Config) MarketsFor(exchange string) []string {
	var out []string
	for _, m := range c.Markets {
		if strings.EqualFold(m.Exchange, exchange) {
			out = append(out, m.ID)
		}
	}
	return out
}

// Credentials converts the exchange block into adapter input.
func (e ExchangeConfig) Credentials() domain.AdapterCredentials {
	return domain.AdapterCredentials{
		Key:               e.Key,
		Secret:            e.Secret,
		Passphrase:        e.Passphrase,
		ClientID:          e.ClientID,
		ConnectionTimeout: e.ConnectionTimeout,
		BuyFeePercent:     e.BuyFeePercent,
		SellFeePercent:    e.SellFeePercent,
		BaseURL:           e.BaseURL,
		UserAgent:         e.UserAgent,
	}
}

// RequiredCapabilities parses Require; Validate has already rejected bad input.
func (e ExchangeConfig) RequiredCapabilities() domain.Capabilities {
	caps, _ := domain.ParseCapabilities(e.Require)
	return caps
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), prefix)
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	var env envOverlay
	if err := cleanenv.ReadEnv(&env); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFile != "" {
		cfg.Logging.File = env.LogFile
	}
	if env.MetricsListen != "" {
		cfg.Metrics.Listen = env.MetricsListen
	}
	if env.StoragePath != "" {
		cfg.Storage.Path = env.StoragePath
	}

	for i := range cfg.Exchanges {
		ex := &cfg.Exchanges[i]
		prefix := "TRADEBOT_" + envName(ex.Name) + "_"
		if v := os.Getenv(prefix + "KEY"); v != "" {
			ex.Key = v
		}
		if v := os.Getenv(prefix + "SECRET"); v != "" {
			ex.Secret = v
		}
		if v := os.Getenv(prefix + "PASSPHRASE"); v != "" {
			ex.Passphrase = v
		}
		if v := os.Getenv(prefix + "CLIENT_ID"); v != "" {
			ex.ClientID = v
		}
	}
	return nil
}

// envName turns "btc-e" into "BTC_E".
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}
