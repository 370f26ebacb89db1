package detect

import (
	"context"

	"lastro/internal/event"
	"lastro/internal/storage"
	logx "lastro/pkg/logx"
)

// Service runs all probes for one broker and merges their findings.
type Service struct {
	log       logx.Logger
	detectors []Detector
}

// NewService wires the standard probe set against the store.
func NewService(store storage.Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log: log,
		detectors: []Detector{
			NewInbox(store),
			NewPortal(store),
			NewCalendar(store, cfg),
			NewStaleLead(store, cfg),
			NewInventory(store),
		},
	}
}

// NewServiceWith builds a service over an explicit probe list. Used by tests
// and by callers that want a narrower probe set.
func NewServiceWith(log logx.Logger, detectors ...Detector) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, detectors: detectors}
}

// Run executes every probe. A probe error is logged and skipped so one broken
// data source cannot silence the rest; the error count is returned for the
// caller's cycle stats.
func (s *Service) Run(ctx context.Context, brokerID string) ([]event.Event, int) {
	var out []event.Event
	failed := 0
	for _, d := range s.detectors {
		if ctx.Err() != nil {
			return out, failed
		}
		evs, err := d.Detect(ctx, brokerID)
		if err != nil {
			failed++
			s.log.Warn("detector failed",
				logx.String("detector", d.Name()),
				logx.String("broker", brokerID),
				logx.Err(err))
			continue
		}
		out = append(out, evs...)
	}
	return out, failed
}
