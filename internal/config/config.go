package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "oms"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize 统一大小写：品种、方向与有效期大写，类型名小写。
func (c *Config) normalize() {
	c.Order.DefaultValidity = strings.ToUpper(strings.TrimSpace(c.Order.DefaultValidity))
	c.Simulation.Broker = strings.ToLower(strings.TrimSpace(c.Simulation.Broker))
	c.Simulation.TickerMode = strings.ToLower(strings.TrimSpace(c.Simulation.TickerMode))
	for i := range c.Simulation.Instruments {
		inst := &c.Simulation.Instruments[i]
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
	}
	for i := range c.Strategies {
		s := &c.Strategies[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
		s.Side = strings.ToUpper(strings.TrimSpace(s.Side))
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("order.max_modifications", 10)
	v.SetDefault("order.default_validity", "DAY")
	v.SetDefault("order.lock.creation", "60s")
	v.SetDefault("order.lock.modification", "60s")
	v.SetDefault("order.lock.cancellation", "60s")

	v.SetDefault("simulation.broker", BrokerVirtual)
	v.SetDefault("simulation.failure_rate", 0.001)
	v.SetDefault("simulation.delay", "1s")
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.tick_size", 0.05)
	v.SetDefault("simulation.ticker_mode", "random")

	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("session.start", "")
	v.SetDefault("session.end", "")

	v.SetDefault("database.path", "data/oms.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "1s")
	v.SetDefault("scheduler.max_ticks", 0)
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
