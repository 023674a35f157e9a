package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/adm300_monitor/pkg/pathing"
)

var (
	ActiveMonitorAPIConfig    *MonitorAPIConfig
	ActiveDoseCollectorConfig *DoseCollectorConfig
)

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}

func DefaultMonitorAPIConfig() *MonitorAPIConfig {
	return &MonitorAPIConfig{
		SerialDevice:     "/dev/ttyUSB0",
		Baudrate:         300,
		ReadTimeoutMs:    100,
		LoopIntervalMs:   10,
		ErrorBackoffMs:   1000,
		QueueCapacity:    0,
		AutoStartReports: true,
		SettleSeconds:    5,
		ListenAddress:    "0.0.0.0",
		ListenPort:       9040,
		MetricsEnabled:   true,
		RedisChannel:     "adm300_reports",
		Log:              DefaultLogConfig(),
	}
}

func DefaultDoseCollectorConfig() *DoseCollectorConfig {
	return &DoseCollectorConfig{
		MonitorAPIHost: "localhost:9040",
		TLSEnabled:     false,
		RetentionDays:  90,
		Log:            DefaultLogConfig(),
	}
}

func LoadMonitorAPIConfig() error {
	cfg, err := LoadMonitorAPIConfigFrom(filepath.Join(pathing.GetConfigDir(), "adm300_api.toml"))
	if err != nil {
		return err
	}
	ActiveMonitorAPIConfig = cfg
	return nil
}

func LoadDoseCollectorConfig() error {
	cfg, err := LoadDoseCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "dose_collector.toml"))
	if err != nil {
		return err
	}
	ActiveDoseCollectorConfig = cfg
	return nil
}

func LoadMonitorAPIConfigFrom(configPath string) (*MonitorAPIConfig, error) {
	cfg := DefaultMonitorAPIConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadDoseCollectorConfigFrom(configPath string) (*DoseCollectorConfig, error) {
	cfg := DefaultDoseCollectorConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadOrCreate decodes the file over the defaults already in cfg, or writes
// the defaults out if the file doesn't exist yet.
func loadOrCreate(configPath string, cfg any) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return err
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		return toml.NewEncoder(cfgFile).Encode(cfg)
	}

	_, err := toml.DecodeFile(configPath, cfg)
	return err
}
