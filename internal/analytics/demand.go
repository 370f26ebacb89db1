package analytics

import (
	"fmt"
	"sort"

	"lastro/internal/broker"
)

// DemandProfile summarizes what a broker's open leads are asking for.
type DemandProfile struct {
	Leads int

	// FeatureShare maps feature -> fraction of leads requesting it, 0..1.
	FeatureShare map[string]float64

	// NeighborhoodCounts maps neighborhood -> number of interested leads.
	NeighborhoodCounts map[string]int

	// MedianPriceMax is the median of the leads' price ceilings; zero when
	// no lead declared one.
	MedianPriceMax float64

	FinancingShare float64
}

// Demand aggregates the search profiles of the given leads.
func Demand(leads []broker.Lead) DemandProfile {
	p := DemandProfile{
		Leads:              len(leads),
		FeatureShare:       map[string]float64{},
		NeighborhoodCounts: map[string]int{},
	}
	if len(leads) == 0 {
		return p
	}

	featureCount := map[string]int{}
	var ceilings []float64
	financing := 0
	for _, l := range leads {
		for _, f := range l.Search.Features {
			featureCount[f]++
		}
		for _, n := range l.Search.Neighborhoods {
			p.NeighborhoodCounts[n]++
		}
		if l.Search.PriceMax > 0 {
			ceilings = append(ceilings, l.Search.PriceMax)
		}
		if l.Search.Financing {
			financing++
		}
	}

	n := float64(len(leads))
	for f, c := range featureCount {
		p.FeatureShare[f] = float64(c) / n
	}
	p.FinancingShare = float64(financing) / n

	if len(ceilings) > 0 {
		sort.Float64s(ceilings)
		mid := len(ceilings) / 2
		if len(ceilings)%2 == 1 {
			p.MedianPriceMax = ceilings[mid]
		} else {
			p.MedianPriceMax = (ceilings[mid-1] + ceilings[mid]) / 2
		}
	}
	return p
}

// TopNeighborhoods returns up to n neighborhoods by interested-lead count.
func (p DemandProfile) TopNeighborhoods(n int) []string {
	type nc struct {
		name  string
		count int
	}
	all := make([]nc, 0, len(p.NeighborhoodCounts))
	for name, count := range p.NeighborhoodCounts {
		all = append(all, nc{name, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].name < all[j].name
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, e := range all[:n] {
		out = append(out, fmt.Sprintf("%s (%d leads)", e.name, e.count))
	}
	return out
}
