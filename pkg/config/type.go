package config

import "time"

type LogConfig struct {
	// debug, info, warn or error
	Level string `toml:"level"`
	// text or json
	Format string `toml:"format"`
	// stdout or file
	Output   string `toml:"output"`
	FilePath string `toml:"file_path"`
}

type MonitorAPIConfig struct {
	SerialDevice   string `toml:"serial_device"`
	Baudrate       uint   `toml:"baudrate"`
	ReadTimeoutMs  int    `toml:"read_timeout_ms"`
	LoopIntervalMs int    `toml:"loop_interval_ms"`
	// Pause after a failed serial read
	ErrorBackoffMs int `toml:"error_backoff_ms"`
	// 0 keeps the command queue unbounded
	QueueCapacity int `toml:"queue_capacity"`

	// Request reports once the meter has powered up and settled.
	AutoStartReports bool `toml:"auto_start_reports"`
	SettleSeconds    int  `toml:"settle_seconds"`

	ListenAddress  string `toml:"listen_address"`
	ListenPort     int    `toml:"listen_port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`

	// Redis publishing is skipped when RedisAddr is empty.
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`

	Log LogConfig `toml:"log"`
}

func (c *MonitorAPIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

func (c *MonitorAPIConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalMs) * time.Millisecond
}

func (c *MonitorAPIConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMs) * time.Millisecond
}

func (c *MonitorAPIConfig) SettleTime() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

type DoseCollectorConfig struct {
	MonitorAPIHost string `toml:"monitor_api_host"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	// Empty uses the default data directory.
	DatabasePath  string `toml:"database_path"`
	RetentionDays int    `toml:"retention_days"`

	Log LogConfig `toml:"log"`
}
