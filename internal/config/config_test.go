package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDeviceConfigDefaults(t *testing.T) {
	path := writeConfig(t, `name = "bench-device"`)
	cfg, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9404" {
		t.Fatalf("default listen: %q", cfg.Listen)
	}
	if cfg.TxBuf != 4096 {
		t.Fatalf("default tx_buf: %d", cfg.TxBuf)
	}
	if cfg.Accel.IntervalMS != 250 {
		t.Fatalf("default accel interval: %d", cfg.Accel.IntervalMS)
	}
}

func TestLoadDeviceConfigRejectsTinyTxBuf(t *testing.T) {
	path := writeConfig(t, "name = \"x\"\ntx_buf = 16\n")
	if _, err := LoadDeviceConfig(path); err == nil {
		t.Fatal("expected tx_buf validation error")
	}
}

func TestLoadDeviceConfigRejectsBridgeWithoutTopic(t *testing.T) {
	path := writeConfig(t, "name = \"x\"\n[mqtt]\nbroker_url = \"tcp://localhost:1883\"\n")
	if _, err := LoadDeviceConfig(path); err == nil {
		t.Fatal("expected mqtt topic validation error")
	}
}

func TestLoadHostConfigDefaults(t *testing.T) {
	path := writeConfig(t, ``)
	cfg, err := LoadHostConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9404" || cfg.TimeoutMS != 3000 {
		t.Fatalf("defaults: %+v", cfg)
	}
}
