package analytics

import (
	"context"
	"fmt"
	"sort"
)

// Thresholds for pattern relevance. A feature half the leads ask for is a
// portfolio signal; a neighborhood with a handful of leads is a market hint.
const (
	featureShareHigh      = 0.5
	neighborhoodLeadCount = 5
)

// DetectPatterns derives recurring demand patterns for one broker. Results
// come back ordered high relevance first.
func (s *Service) DetectPatterns(ctx context.Context, brokerID string) ([]Pattern, error) {
	leads, err := s.leadsFor(ctx, brokerID)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	demand := Demand(leads)

	var high, medium []Pattern
	for feature, share := range demand.FeatureShare {
		if share < featureShareHigh {
			continue
		}
		high = append(high, Pattern{
			Kind:        "feature_demand",
			Description: fmt.Sprintf("%.0f%% of your leads ask for %s", share*100, feature),
			Relevance:   RelevanceHigh,
			Suggestion:  fmt.Sprintf("Prioritize listings with %s in your pitches", feature),
		})
	}
	for hood, count := range demand.NeighborhoodCounts {
		if count < neighborhoodLeadCount {
			continue
		}
		medium = append(medium, Pattern{
			Kind:        "neighborhood_demand",
			Description: fmt.Sprintf("%d leads want %s", count, hood),
			Relevance:   RelevanceMedium,
			Suggestion:  fmt.Sprintf("Consider capturing more listings in %s", hood),
		})
	}
	if demand.FinancingShare >= featureShareHigh {
		high = append(high, Pattern{
			Kind:        "financing_demand",
			Description: fmt.Sprintf("%.0f%% of your leads need financing", demand.FinancingShare*100),
			Relevance:   RelevanceHigh,
			Suggestion:  "Have a mortgage partner ready in the first conversation",
		})
	}

	sortPatterns(high)
	sortPatterns(medium)
	return append(high, medium...), nil
}

// Map iteration order is random; sort for stable output.
func sortPatterns(ps []Pattern) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Description < ps[j].Description })
}
