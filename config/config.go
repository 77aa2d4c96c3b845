package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/spendsave/engine/internal/uniswap"
	"github.com/spendsave/engine/storage"
)

type Config struct {
	Server struct {
		Host     string `mapstructure:"host" json:"host,omitempty"`
		Port     int64  `mapstructure:"port" json:"port,omitempty"`
		Database struct {
			DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
		} `mapstructure:"database" json:"database,omitempty"`
	} `mapstructure:"server" json:"server"`

	Engine struct {
		Orchestrator       string `mapstructure:"orchestrator" json:"orchestrator,omitempty"`
		Trigger            string `mapstructure:"trigger" json:"trigger,omitempty"`
		FeeCollector       string `mapstructure:"fee_collector" json:"fee_collector,omitempty"`
		ProtocolFeeBps     uint16 `mapstructure:"protocol_fee_bps" json:"protocol_fee_bps,omitempty"`
		DefaultSlippageBps uint16 `mapstructure:"default_slippage_bps" json:"default_slippage_bps,omitempty"`
		TriggerCron        string `mapstructure:"trigger_cron" json:"trigger_cron,omitempty"`
	} `mapstructure:"engine" json:"engine"`

	Eth struct {
		Rpc     string            `mapstructure:"rpc" json:"rpc,omitempty"`
		Pools   map[string]string `mapstructure:"pools" json:"pools,omitempty"`
		Uniswap uniswap.Config    `mapstructure:"uniswap" json:"uniswap,omitempty"`
	} `mapstructure:"eth" json:"eth,omitempty"`

	Redis storage.RedisConfig `mapstructure:"redis" json:"redis,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("SS_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("Engine.DefaultSlippageBps", 100)
	viper.SetDefault("Engine.TriggerCron", "* * * * *")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
