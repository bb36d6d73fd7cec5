package selection

import (
	"fmt"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func rec(i int, signals ...domain.SignalType) domain.ProviderRecord {
	npi := fmt.Sprintf("%010d", i)
	r := domain.ProviderRecord{NPI: npi}
	for _, s := range signals {
		r.Signals = append(r.Signals, domain.NewFinding(npi, s, domain.SeverityMedium, nil, 0))
	}
	return r
}

func countSignal(recs []domain.ProviderRecord, signal domain.SignalType) int {
	n := 0
	for i := range recs {
		if recs[i].HasSignal(signal) {
			n++
		}
	}
	return n
}

func assertRankOrder(t *testing.T, recs []domain.ProviderRecord) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].NPI >= recs[i].NPI {
			t.Fatalf("output not in rank order at %d: %s then %s", i, recs[i-1].NPI, recs[i].NPI)
		}
	}
}

func TestSelectUnderBudget(t *testing.T) {
	input := []domain.ProviderRecord{rec(1, domain.SignalUpcoding), rec(2, domain.SignalUpcoding)}
	res := Select(input, 5, 1)
	if len(res.Selected) != 2 {
		t.Errorf("expected 2 selected, got %d", len(res.Selected))
	}
	if res.Dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", res.Dropped)
	}
}

func TestSelectCoverage(t *testing.T) {
	// 150 providers; the rare signal only appears in the lowest-ranked 20.
	var input []domain.ProviderRecord
	for i := 0; i < 150; i++ {
		signals := []domain.SignalType{domain.SignalBillingOutlier}
		if i >= 130 {
			signals = []domain.SignalType{domain.SignalExcludedProvider}
		}
		input = append(input, rec(i, signals...))
	}

	res := Select(input, 100, 15)

	if len(res.Selected) != 100 {
		t.Fatalf("expected 100 selected, got %d", len(res.Selected))
	}
	if res.Dropped != 50 {
		t.Errorf("expected 50 dropped, got %d", res.Dropped)
	}
	if got := countSignal(res.Selected, domain.SignalExcludedProvider); got != 15 {
		t.Errorf("expected 15 excluded_provider representatives, got %d", got)
	}
	assertRankOrder(t, res.Selected)
}

func TestSelectOverlappingSubsets(t *testing.T) {
	// Three signal types over overlapping 60-provider windows.
	var input []domain.ProviderRecord
	for i := 0; i < 150; i++ {
		var signals []domain.SignalType
		if i < 60 {
			signals = append(signals, domain.SignalBillingOutlier)
		}
		if i >= 45 && i < 105 {
			signals = append(signals, domain.SignalUpcoding)
		}
		if i >= 90 {
			signals = append(signals, domain.SignalAddressClustering)
		}
		if len(signals) == 0 {
			signals = append(signals, domain.SignalRapidEscalation)
		}
		input = append(input, rec(i, signals...))
	}

	res := Select(input, 100, 30)

	if len(res.Selected) != 100 {
		t.Fatalf("expected 100 selected, got %d", len(res.Selected))
	}
	for _, s := range []domain.SignalType{domain.SignalBillingOutlier, domain.SignalUpcoding, domain.SignalAddressClustering} {
		if got := countSignal(res.Selected, s); got < 30 {
			t.Errorf("expected at least 30 %s, got %d", s, got)
		}
	}
	assertRankOrder(t, res.Selected)
}

func TestSelectSmallPool(t *testing.T) {
	var input []domain.ProviderRecord
	for i := 0; i < 20; i++ {
		s := domain.SignalBillingOutlier
		if i == 19 {
			s = domain.SignalUpcoding
		}
		input = append(input, rec(i, s))
	}

	res := Select(input, 10, 5)
	if len(res.Selected) != 10 {
		t.Fatalf("expected 10 selected, got %d", len(res.Selected))
	}
	if got := countSignal(res.Selected, domain.SignalUpcoding); got != 1 {
		t.Errorf("expected the single upcoding provider kept, got %d", got)
	}
}

func TestSelectQuotaExceedsBudget(t *testing.T) {
	var input []domain.ProviderRecord
	for i := 0; i < 50; i++ {
		input = append(input, rec(i, domain.SignalBillingOutlier))
	}
	res := Select(input, 10, 100)
	if len(res.Selected) != 10 {
		t.Errorf("expected output bounded at 10, got %d", len(res.Selected))
	}
	assertRankOrder(t, res.Selected)
}

func TestSelectDisabledBudget(t *testing.T) {
	input := []domain.ProviderRecord{rec(1, domain.SignalUpcoding), rec(2, domain.SignalUpcoding)}
	if res := Select(input, 0, 1); len(res.Selected) != 2 {
		t.Errorf("expected all records with budget disabled, got %d", len(res.Selected))
	}
}
