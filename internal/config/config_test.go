package config

import (
	"os"
	"path/filepath"
	"testing"

	"lastro/internal/broker"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
whatsapp:
  account_sid: AC123
  auth_token: secret
  from: "+5511999990000"
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: America/Sao_Paulo
  monitor_every: 5m
storage:
  driver: sqlite
  path: ./lastro.db
dispatch:
  default_daily_cap: 5
  window_start: "08:00"
  window_end: "21:00"
brokers:
  - id: b1
    name: Rafael Lima
    phone: "+5511988880000"
`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WhatsApp.AccountSID != "AC123" || cfg.WhatsApp.From != "+5511999990000" {
		t.Errorf("whatsapp section: %+v", cfg.WhatsApp)
	}
	if cfg.Scheduler.Timezone != "America/Sao_Paulo" || cfg.Scheduler.MonitorEvery != "5m" {
		t.Errorf("scheduler section: %+v", cfg.Scheduler)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage section: %+v", cfg.Storage)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0].ID != "b1" {
		t.Errorf("brokers section: %+v", cfg.Brokers)
	}
	if got := m.Get(); got != cfg {
		t.Errorf("Get() did not return the committed config")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
whatsapp:
  account_sid: AC123
  sender: "+5511999990000"
logging:
  level: info
scheduler:
  enabled: true
`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("unknown key accepted; want strict decode failure")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json",
		`{"whatsapp":{},"logging":{},"scheduler":{"enabled":true}}{"extra":1}`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseClockField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		def     broker.TimeOfDay
		want    broker.TimeOfDay
		wantErr bool
	}{
		{"08:00", 0, 8 * 60, false},
		{"21:30", 0, 21*60 + 30, false},
		{"", 9 * 60, 9 * 60, false},
		{"25:00", 0, 0, true},
		{"08:61", 0, 0, true},
		{"0800", 0, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClockField("dispatch.window_start", tc.raw, tc.def)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: want error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got %d err=%v, want %d", tc.raw, got, err, tc.want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{
		WhatsApp:  WhatsAppConfig{AccountSID: "AC1", AuthToken: "x", From: "+55"},
		Logging:   LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{Enabled: true},
	}
	newCfg := &Config{
		WhatsApp:  WhatsAppConfig{AccountSID: "AC1", AuthToken: "x", From: "+55"},
		Logging:   LoggingConfig{Level: "debug"},
		Scheduler: SchedulerConfig{Enabled: true},
		Delivery:  &DeliveryConfig{Enabled: true, RatePerSec: 5},
	}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"delivery", "logging"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs for changed sections")
	}

	if changed, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}
