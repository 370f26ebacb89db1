package config

import (
	"reflect"
	"sort"
	"strings"

	logx "lastro/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Credentials (the Twilio auth token) are never
// included, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.WhatsApp.AccountSID != newCfg.WhatsApp.AccountSID ||
		oldCfg.WhatsApp.From != newCfg.WhatsApp.From ||
		strings.TrimSpace(oldCfg.WhatsApp.Timeout) != strings.TrimSpace(newCfg.WhatsApp.Timeout) ||
		(oldCfg.WhatsApp.AuthToken != "") != (newCfg.WhatsApp.AuthToken != "") {
		changed = append(changed, "whatsapp")
		attrs = append(attrs,
			logx.String("whatsapp.from", newCfg.WhatsApp.From),
			logx.Bool("whatsapp.token_set", newCfg.WhatsApp.AuthToken != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.monitor_every", strings.TrimSpace(newCfg.Scheduler.MonitorEvery)),
		)
	}

	if !sectionEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver string
		var pathSet bool
		if newCfg.Storage != nil {
			driver = strings.TrimSpace(newCfg.Storage.Driver)
			pathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
		}
		attrs = append(attrs,
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
		)
	}

	if !sectionEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		enabled := true
		rate := 0
		if newCfg.Delivery != nil {
			enabled = newCfg.Delivery.Enabled
			rate = newCfg.Delivery.RatePerSec
		}
		attrs = append(attrs,
			logx.Bool("delivery.enabled", enabled),
			logx.Int("delivery.rate_per_sec", rate),
		)
	}

	if !sectionEqual(oldCfg.Detection, newCfg.Detection) {
		changed = append(changed, "detection")
	}
	if !sectionEqual(oldCfg.Pprof, newCfg.Pprof) {
		changed = append(changed, "pprof")
		enabled := false
		if newCfg.Pprof != nil {
			enabled = newCfg.Pprof.Enabled
		}
		attrs = append(attrs, logx.Bool("pprof.enabled", enabled))
	}
	if !sectionEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
	}

	if !reflect.DeepEqual(oldCfg.Brokers, newCfg.Brokers) {
		changed = append(changed, "brokers")
		attrs = append(attrs, logx.Int("brokers.count", len(newCfg.Brokers)))
	}

	sort.Strings(changed)
	return changed, attrs
}

// sectionEqual compares optional sections, treating nil as the zero value.
func sectionEqual[T any](a, b *T) bool {
	var zero T
	av, bv := zero, zero
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return reflect.DeepEqual(av, bv)
}
