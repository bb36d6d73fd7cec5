// Package selection trims a ranked provider list to a size budget while
// guaranteeing each signal type a minimum number of representatives.
package selection

import "github.com/opensource-finance/fraudscan/internal/domain"

// Result holds the selected records in rank order and the count dropped.
type Result struct {
	Selected []domain.ProviderRecord
	Dropped  int
}

// Select picks at most maxTotal records from ranked, which must already be
// sorted by risk. A maxTotal <= 0 disables the budget.
//
// Phase one walks each signal type's members in rank order and selects up
// to minPerSignal of them; members already selected count toward the quota.
// Phase two fills the remaining budget in rank order. The output keeps the
// input order.
func Select(ranked []domain.ProviderRecord, maxTotal, minPerSignal int) Result {
	if maxTotal <= 0 || len(ranked) <= maxTotal {
		return Result{Selected: ranked}
	}

	selected := make([]bool, len(ranked))
	count := 0

	if minPerSignal > 0 {
		order, members := membersBySignal(ranked)
		for _, signal := range order {
			if count >= maxTotal {
				break
			}
			quota := 0
			for _, idx := range members[signal] {
				if quota >= minPerSignal || count >= maxTotal {
					break
				}
				if !selected[idx] {
					selected[idx] = true
					count++
				}
				quota++
			}
		}
	}

	for i := range ranked {
		if count >= maxTotal {
			break
		}
		if !selected[i] {
			selected[i] = true
			count++
		}
	}

	out := make([]domain.ProviderRecord, 0, count)
	for i, rec := range ranked {
		if selected[i] {
			out = append(out, rec)
		}
	}
	return Result{Selected: out, Dropped: len(ranked) - len(out)}
}

// membersBySignal indexes record positions per signal type. Signal types
// are ordered by first appearance in the ranked list.
func membersBySignal(ranked []domain.ProviderRecord) ([]domain.SignalType, map[domain.SignalType][]int) {
	var order []domain.SignalType
	members := make(map[domain.SignalType][]int)
	for i := range ranked {
		for _, signal := range ranked[i].SignalTypes() {
			if _, ok := members[signal]; !ok {
				order = append(order, signal)
			}
			members[signal] = append(members[signal], i)
		}
	}
	return order, members
}
