package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DeviceConfig drives the demo device daemon.
type DeviceConfig struct {
	Name      string       `toml:"name"`
	Listen    string       `toml:"listen"`
	DiagAddr  string       `toml:"diag_addr"`
	TxBuf     int          `toml:"tx_buf"`
	ErrorPath string       `toml:"error_path"`
	Accel     AccelConfig  `toml:"accel"`
	MQTT      BridgeConfig `toml:"mqtt"`
}

// AccelConfig shapes the demo accelerometer publisher.
type AccelConfig struct {
	Enabled    bool `toml:"enabled"`
	IntervalMS int  `toml:"interval_ms"`
}

// BridgeConfig points the MQTT republisher at a broker. Disabled when the
// broker URL is empty.
type BridgeConfig struct {
	BrokerURL string `toml:"broker_url"`
	ClientID  string `toml:"client_id"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	QoS       byte   `toml:"qos"`
	Topic     string `toml:"topic"`
}

// HostConfig drives the demo host CLI.
type HostConfig struct {
	Addr      string `toml:"addr"`
	ErrorPath string `toml:"error_path"`
	TimeoutMS int    `toml:"timeout_ms"`
}

func LoadDeviceConfig(path string) (DeviceConfig, error) {
	var cfg DeviceConfig
	if err := loadToml(path, &cfg); err != nil {
		return DeviceConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "framelinkd"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":9404"
	}
	if cfg.TxBuf == 0 {
		cfg.TxBuf = 4096
	}
	if cfg.Accel.IntervalMS == 0 {
		cfg.Accel.IntervalMS = 250
	}
	if err := ValidateDeviceConfig(cfg); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}

func LoadHostConfig(path string) (HostConfig, error) {
	var cfg HostConfig
	if err := loadToml(path, &cfg); err != nil {
		return HostConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9404"
	}
	if cfg.TimeoutMS == 0 {
		cfg.TimeoutMS = 3000
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDeviceConfig(cfg DeviceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("device config missing name")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("device config missing listen addr")
	}
	if cfg.TxBuf < 64 {
		return fmt.Errorf("device config tx_buf too small: %d", cfg.TxBuf)
	}
	if cfg.MQTT.BrokerURL != "" && strings.TrimSpace(cfg.MQTT.Topic) == "" {
		return fmt.Errorf("mqtt bridge enabled without a topic")
	}
	return nil
}
