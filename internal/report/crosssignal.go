package report

import (
	"sort"
	"strconv"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// CrossSignal analyzes raw detector output for providers hit by several
// signal types. It runs before legitimacy filtering and selection.
func CrossSignal(results *domain.DetectorResults) domain.CrossSignalAnalysis {
	var order []string
	types := make(map[string]map[domain.SignalType]struct{})
	for _, f := range results.All() {
		set, ok := types[f.NPI]
		if !ok {
			set = make(map[domain.SignalType]struct{})
			types[f.NPI] = set
			order = append(order, f.NPI)
		}
		set[f.SignalType] = struct{}{}
	}

	bySignalCount := make(map[string]int)
	multi := make(map[string][]string)
	pairs := make(map[[2]domain.SignalType]int)

	for _, npi := range order {
		set := types[npi]
		key := strconv.Itoa(len(set))
		bySignalCount[key]++

		if len(set) < 2 {
			continue
		}
		if len(multi[key]) < multiSignalSamples {
			multi[key] = append(multi[key], npi)
		}

		sorted := make([]domain.SignalType, 0, len(set))
		for s := range set {
			sorted = append(sorted, s)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				pairs[[2]domain.SignalType{sorted[i], sorted[j]}]++
			}
		}
	}

	top := make([]domain.SignalPair, 0, len(pairs))
	for p, c := range pairs {
		top = append(top, domain.SignalPair{Pair: p, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		if top[i].Pair[0] != top[j].Pair[0] {
			return top[i].Pair[0] < top[j].Pair[0]
		}
		return top[i].Pair[1] < top[j].Pair[1]
	})
	if len(top) > topPairs {
		top = top[:topPairs]
	}

	return domain.CrossSignalAnalysis{
		TotalUniqueProvidersFlagged: len(order),
		ProvidersBySignalCount:      bySignalCount,
		MultiSignalProviders:        multi,
		TopSignalPairs:              top,
	}
}
