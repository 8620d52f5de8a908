package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q, want :8080", *listen)
	}
	if *baud != 0 {
		t.Errorf("baud default = %d, want 0 (use config)", *baud)
	}
	if *devMode {
		t.Error("dev mode should default to off")
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.GetSignalPeriod(); got != time.Second {
		t.Errorf("signal period = %s, want 1s", got)
	}
}

func TestConfigToOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.json")
	body := `{"signal_period": "2s", "max_neighbors": 3, "scan_interval": "0s", "baud_rate": 9600}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	so := scannerOptions(cfg, nil)
	if so.SuccessPeriod != 2*time.Second || so.MaxNeighbors != 3 {
		t.Errorf("scanner options = %+v", so)
	}
	if so.CommandTimeout != 10*time.Second {
		t.Errorf("command timeout = %s, want default 10s", so.CommandTimeout)
	}

	po := publisherOptions(cfg)
	if po.ScanInterval != 0 {
		t.Errorf("scan interval = %s, want 0 (disabled)", po.ScanInterval)
	}

	tests := []struct {
		flag int
		want int
	}{
		{0, 9600},
		{57600, 57600},
	}
	for _, tt := range tests {
		if got := portOptions(cfg, tt.flag).BaudRate; got != tt.want {
			t.Errorf("portOptions(baud=%d).BaudRate = %d, want %d", tt.flag, got, tt.want)
		}
	}
}
