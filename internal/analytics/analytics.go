// Package analytics computes aggregate views over a broker's leads: demand
// profiles, funnel and response metrics, recurring patterns, and the material
// for daily briefings and weekly reports. Everything here is pure computation
// over store reads; nothing in this package sends or schedules.
package analytics

import (
	"context"
	"time"

	"lastro/internal/broker"
	"lastro/internal/storage"
	logx "lastro/pkg/logx"
)

// Service reads from the store and derives reports.
type Service struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// Relevance grades how actionable a detected pattern is. Only high-relevance
// patterns are worth a proactive message; the rest wait for the weekly report.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// Pattern is a recurring trait found across a broker's current leads.
type Pattern struct {
	Kind        string // feature_demand, neighborhood_demand, price_band
	Description string
	Relevance   Relevance
	Suggestion  string
}

// leadsFor loads the broker's open leads (closed and lost excluded).
func (s *Service) leadsFor(ctx context.Context, brokerID string) ([]broker.Lead, error) {
	all, err := s.store.LeadsByBroker(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, l := range all {
		if l.Status == broker.LeadClosed || l.Status == broker.LeadLost {
			continue
		}
		open = append(open, l)
	}
	return open, nil
}
