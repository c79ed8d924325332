package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type StorageEngineConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir        string `mapstructure:"workdir"`
		TableName      string `mapstructure:"table_name"`
		TableID        uint32 `mapstructure:"table_id"`
		CompressionMin int    `mapstructure:"compression_min"`
	} `mapstructure:"storage"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func LoadConfig(path string) (*StorageEngineConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app_name", "storage-engine")
	v.SetDefault("storage.workdir", "data")
	v.SetDefault("storage.table_name", "table")
	v.SetDefault("storage.table_id", 1)
	v.SetDefault("storage.compression_min", 0)
	v.SetDefault("log.level", "warn")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg StorageEngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *StorageEngineConfig {
	cfg := &StorageEngineConfig{AppName: "storage-engine"}
	cfg.Storage.Workdir = "data"
	cfg.Storage.TableName = "table"
	cfg.Storage.TableID = 1
	cfg.Log.Level = "warn"
	return cfg
}
