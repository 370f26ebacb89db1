package config

// Config is the full configuration document. YAML or JSON on disk; either
// way it is decoded strictly, so a typo'd key fails the load instead of
// silently doing nothing.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Clock fields are "HH:MM" local time.
type Config struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`

	// Scheduler controls the cron jobs: the monitor tick and the summary
	// slots.
	Scheduler SchedulerConfig `json:"scheduler"`

	Storage   *StorageConfig   `json:"storage,omitempty"`
	Delivery  *DeliveryConfig  `json:"delivery,omitempty"`
	Detection *DetectionConfig `json:"detection,omitempty"`
	Dispatch  *DispatchConfig  `json:"dispatch,omitempty"`
	Pprof     *PprofConfig     `json:"pprof,omitempty"`

	// Brokers seeds broker profiles into the store at startup. Existing
	// brokers with the same ID are updated, never duplicated.
	Brokers []BrokerSeed `json:"brokers,omitempty"`
}

// WhatsAppConfig holds the Twilio WhatsApp credentials.
type WhatsAppConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	// From is the sending number in E.164, without the "whatsapp:" prefix.
	From    string `json:"from"`
	BaseURL string `json:"base_url,omitempty"` // override for testing
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls job timing. Cron expressions use the standard
// five-field form in the configured timezone.
//
// Defaults (when fields are omitted):
//   - monitor_every: "5m"
//   - morning_cron: "0 7 * * *"
//   - evening_cron: "0 20 * * *"
//   - weekly_cron:  "0 7 * * 1"
//   - pattern_cron: "0 6 * * *"
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	MonitorEvery string `json:"monitor_every,omitempty"`
	MorningCron  string `json:"morning_cron,omitempty"`
	EveningCron  string `json:"evening_cron,omitempty"`
	WeeklyCron   string `json:"weekly_cron,omitempty"`
	PatternCron  string `json:"pattern_cron,omitempty"`
}

// StorageConfig controls persistence. Omitting the section selects the
// in-memory driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./lastro.db" }
type StorageConfig struct {
	Driver              string `json:"driver"`
	Path                string `json:"path"`
	BusyTimeout         string `json:"busy_timeout,omitempty"` // sqlite only
	LedgerRetentionDays int    `json:"ledger_retention_days,omitempty"`
}

// DeliveryConfig controls the outbound pipeline. If the whole section is
// omitted, delivery defaults to enabled.
type DeliveryConfig struct {
	Enabled         bool   `json:"enabled"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// DetectionConfig tunes the probes.
type DetectionConfig struct {
	StaleAfter        string `json:"stale_after,omitempty"`
	CalendarLookahead string `json:"calendar_lookahead,omitempty"`
	FollowupAfter     string `json:"followup_after,omitempty"`
}

// DispatchConfig tunes the gate defaults applied to brokers without explicit
// preferences.
type DispatchConfig struct {
	DefaultDailyCap   int    `json:"default_daily_cap,omitempty"`
	WindowStart       string `json:"window_start,omitempty"` // "08:00"
	WindowEnd         string `json:"window_end,omitempty"`   // "21:00"
	VisitImmediateMin int    `json:"visit_immediate_min,omitempty"`
	HotLeadScore      int    `json:"hot_lead_score,omitempty"`
	RetryDeferral     string `json:"retry_deferral,omitempty"`
}

// PprofConfig controls the optional debug HTTP listener. Off by default.
// Binding off loopback requires a token or allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// BrokerSeed registers or updates a broker profile at startup.
type BrokerSeed struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"` // E.164
	Email  string `json:"email,omitempty"`
	Agency string `json:"agency,omitempty"`

	DailyCap      int    `json:"daily_cap,omitempty"`
	WindowStart   string `json:"window_start,omitempty"`
	WindowEnd     string `json:"window_end,omitempty"`
	DailySummary  *bool  `json:"daily_summary,omitempty"`  // default true
	WeeklySummary *bool  `json:"weekly_summary,omitempty"` // default true
}
