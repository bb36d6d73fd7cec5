package scoring

import (
	"math"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

func finding(signal domain.SignalType, sev domain.Severity, overpayment float64) domain.Finding {
	return domain.NewFinding("1000000001", signal, sev, nil, overpayment)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 0.01
}

func TestScore(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		for _, paid := range []float64{0, 100, 1e9} {
			rs := Score(nil, paid)
			if rs.Score != 0 {
				t.Errorf("expected score 0, got %v", rs.Score)
			}
			if rs.Tier != domain.TierLow {
				t.Errorf("expected tier low, got %s", rs.Tier)
			}
			if len(rs.Factors) != 0 {
				t.Errorf("expected no factors, got %d", len(rs.Factors))
			}
		}
	})

	t.Run("ExcludedProviderScenario", func(t *testing.T) {
		rs := Score([]domain.Finding{
			finding(domain.SignalExcludedProvider, domain.SeverityCritical, 50000),
		}, 100000)

		if !approx(rs.Score, 82.0) {
			t.Errorf("expected score 82.0, got %v", rs.Score)
		}
		if rs.Tier != domain.TierCritical {
			t.Errorf("expected tier critical, got %s", rs.Tier)
		}
		if len(rs.Factors) != 3 {
			t.Fatalf("expected 3 factors, got %d", len(rs.Factors))
		}

		want := []domain.RiskFactor{
			{Name: FactorSignalBreadth, Value: 1, Points: 12},
			{Name: FactorSeverityWeight, Value: 100, Points: 40},
			{Name: FactorOverpaymentRatio, Value: 50000, Points: 30},
		}
		for i, w := range want {
			got := rs.Factors[i]
			if got.Name != w.Name || !approx(got.Value, w.Value) || !approx(got.Points, w.Points) {
				t.Errorf("factor %d: expected %+v, got %+v", i, w, got)
			}
		}
	})

	t.Run("BreadthCapped", func(t *testing.T) {
		rs := Score([]domain.Finding{
			finding(domain.SignalAddressClustering, domain.SeverityLow, 0),
			finding(domain.SignalBillingOutlier, domain.SeverityLow, 0),
			finding(domain.SignalUpcoding, domain.SeverityLow, 0),
			finding(domain.SignalSharedOfficial, domain.SeverityLow, 0),
		}, 0)
		if rs.Factors[0].Points != 30 {
			t.Errorf("expected breadth 30, got %v", rs.Factors[0].Points)
		}
	})

	t.Run("UnknownSignalDefaultWeight", func(t *testing.T) {
		rs := Score([]domain.Finding{
			finding("brand_new_detector", domain.SeverityMedium, 0),
		}, 0)
		// 12 breadth + 4*3/2 severity
		if !approx(rs.Score, 18) {
			t.Errorf("expected score 18, got %v", rs.Score)
		}
		if rs.Tier != domain.TierLow {
			t.Errorf("expected tier low, got %s", rs.Tier)
		}
	})

	t.Run("ZeroTotalPaid", func(t *testing.T) {
		rs := Score([]domain.Finding{
			finding(domain.SignalBillingOutlier, domain.SeverityHigh, 900000),
		}, 0)
		if rs.Factors[2].Points != 0 {
			t.Errorf("expected ratio factor 0, got %v", rs.Factors[2].Points)
		}
		if math.IsNaN(rs.Score) || math.IsInf(rs.Score, 0) {
			t.Errorf("expected finite score, got %v", rs.Score)
		}
	})

	t.Run("NegativeOverpayment", func(t *testing.T) {
		f := finding(domain.SignalBillingOutlier, domain.SeverityHigh, 0)
		f.EstimatedOverpayment = -5000
		rs := Score([]domain.Finding{f}, 10000)
		if rs.Factors[2].Points != 0 {
			t.Errorf("expected ratio factor 0, got %v", rs.Factors[2].Points)
		}
		if rs.Factors[2].Value != 0 {
			t.Errorf("expected clamped overpayment 0, got %v", rs.Factors[2].Value)
		}
	})

	t.Run("NonFiniteInputs", func(t *testing.T) {
		f := finding(domain.SignalBillingOutlier, domain.SeverityHigh, 0)
		f.EstimatedOverpayment = math.Inf(1)
		rs := Score([]domain.Finding{f}, math.NaN())
		if math.IsNaN(rs.Score) || math.IsInf(rs.Score, 0) {
			t.Errorf("expected finite score, got %v", rs.Score)
		}
	})
}

func TestScoreBounds(t *testing.T) {
	signals := domain.KnownSignalTypes()
	sevs := []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow}

	var findings []domain.Finding
	for i := 0; i < 60; i++ {
		findings = append(findings, finding(signals[i%len(signals)], sevs[i%len(sevs)], float64(i*1000)))
		for _, paid := range []float64{0, 1, 5000, 1e7} {
			rs := Score(findings, paid)
			if rs.Score < 0 || rs.Score > 100 {
				t.Fatalf("score out of bounds: %v", rs.Score)
			}
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	signals := domain.KnownSignalTypes()
	sevs := []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical}

	var findings []domain.Finding
	prev := 0.0
	for i := 0; i < 40; i++ {
		findings = append(findings, finding(signals[(i*7)%len(signals)], sevs[i%len(sevs)], float64(i*250)))
		rs := Score(findings, 250000)
		if rs.Score+0.01 < prev {
			t.Fatalf("score decreased from %v to %v after adding finding %d", prev, rs.Score, i)
		}
		prev = rs.Score
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.RiskTier
	}{
		{0, domain.TierLow},
		{24.9, domain.TierLow},
		{25, domain.TierMedium},
		{49.9, domain.TierMedium},
		{50, domain.TierHigh},
		{74.9, domain.TierHigh},
		{75, domain.TierCritical},
		{100, domain.TierCritical},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("score %v: expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestWeights(t *testing.T) {
	if SignalWeight(domain.SignalExcludedProvider) != 10 {
		t.Errorf("expected excluded_provider weight 10, got %v", SignalWeight(domain.SignalExcludedProvider))
	}
	if SignalWeight("unlisted") != 3 {
		t.Errorf("expected default signal weight 3, got %v", SignalWeight("unlisted"))
	}
	if SeverityWeight("bogus") != 1 {
		t.Errorf("expected default severity weight 1, got %v", SeverityWeight("bogus"))
	}
}
