package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity(" HIGH ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sev != SeverityHigh {
		t.Errorf("expected high, got %s", sev)
	}
	if _, err := ParseSeverity("severe"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestNewFinding(t *testing.T) {
	f := NewFinding("1", SignalBillingOutlier, SeverityHigh, nil, -5)
	if f.EstimatedOverpayment != 0 {
		t.Errorf("expected clamped overpayment 0, got %v", f.EstimatedOverpayment)
	}
	if _, ok := f.Evidence.(*GenericEvidence); !ok {
		t.Errorf("expected generic evidence, got %T", f.Evidence)
	}
}

func TestFindingJSON(t *testing.T) {
	t.Run("TypedEvidence", func(t *testing.T) {
		f := NewFinding("1234567890", SignalBillingOutlier, SeverityHigh, BillingOutlierEvidence{
			TotalPaid:          900000,
			TaxonomyCode:       "207Q00000X",
			State:              "MN",
			PeerMedian:         100000,
			Peer99thPercentile: 400000,
			RatioToMedian:      9,
			PeerCount:          40,
		}, 500000)

		data, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !strings.Contains(string(data), `"peer_99th_percentile":400000`) {
			t.Errorf("expected evidence keys in payload, got %s", data)
		}

		var got Finding
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		ev, ok := got.Evidence.(BillingOutlierEvidence)
		if !ok {
			t.Fatalf("expected BillingOutlierEvidence, got %T", got.Evidence)
		}
		if ev.State != "MN" || ev.PeerCount != 40 {
			t.Errorf("expected state MN and 40 peers, got %s and %d", ev.State, ev.PeerCount)
		}
		if got.EstimatedOverpayment != 500000 {
			t.Errorf("expected overpayment 500000, got %v", got.EstimatedOverpayment)
		}
	})

	t.Run("UnknownSignalKeepsOrder", func(t *testing.T) {
		raw := `{"npi":"1","signal_type":"future_detector","severity":"low","evidence":{"zeta":1,"alpha":"x","state":"TX"},"estimated_overpayment_usd":0}`
		var f Finding
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		g, ok := f.Evidence.(*GenericEvidence)
		if !ok {
			t.Fatalf("expected GenericEvidence, got %T", f.Evidence)
		}
		keys := g.Keys()
		if len(keys) != 3 || keys[0] != "zeta" || keys[1] != "alpha" || keys[2] != "state" {
			t.Errorf("expected key order [zeta alpha state], got %v", keys)
		}
		if g.Locale().State != "TX" {
			t.Errorf("expected locale TX, got %s", g.Locale().State)
		}

		out, err := json.Marshal(g)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != `{"zeta":1,"alpha":"x","state":"TX"}` {
			t.Errorf("expected ordered payload, got %s", out)
		}
	})

	t.Run("NullEvidence", func(t *testing.T) {
		raw := `{"npi":"1","signal_type":"upcoding","severity":"medium","evidence":null}`
		var f Finding
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if _, ok := f.Evidence.(UpcodingEvidence); !ok {
			t.Errorf("expected zero UpcodingEvidence, got %T", f.Evidence)
		}
	})

	t.Run("MismatchedSchemaFallsBack", func(t *testing.T) {
		raw := `{"npi":"1","signal_type":"upcoding","severity":"medium","evidence":{"total_em_claims":"many"}}`
		var f Finding
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		g, ok := f.Evidence.(*GenericEvidence)
		if !ok {
			t.Fatalf("expected GenericEvidence, got %T", f.Evidence)
		}
		if g.String("total_em_claims") != "many" {
			t.Errorf("expected raw value preserved, got %q", g.String("total_em_claims"))
		}
	})
}

func TestEvidenceCovidEra(t *testing.T) {
	if !(RapidEscalationEvidence{CovidEraFlag: true}).CovidEra() {
		t.Error("expected rapid escalation covid flag")
	}
	if (BillingOutlierEvidence{}).CovidEra() {
		t.Error("expected billing outlier to carry no covid flag")
	}
	g := NewGenericEvidence().Set("covid_era_flag", true)
	if !g.CovidEra() {
		t.Error("expected generic covid flag")
	}
}

func TestDetectorResults(t *testing.T) {
	r := NewDetectorResults()
	r.Add(SignalExcludedProvider, []Finding{NewFinding("1", SignalExcludedProvider, SeverityCritical, nil, 10)}, nil)
	r.Add(SignalBillingOutlier, []Finding{NewFinding("2", SignalBillingOutlier, SeverityHigh, nil, 5)}, errors.New("query failed"))
	r.Add(SignalUpcoding, nil, nil)

	counts := r.Counts()
	if counts[SignalExcludedProvider] != 1 {
		t.Errorf("expected 1 excluded finding, got %d", counts[SignalExcludedProvider])
	}
	if c, ok := counts[SignalBillingOutlier]; !ok || c != 0 {
		t.Errorf("expected failed detector count 0, got %d (present=%v)", c, ok)
	}
	if _, ok := counts[SignalUpcoding]; !ok {
		t.Error("expected empty detector to be counted")
	}
	if len(r.Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(r.Errors))
	}
	if all := r.All(); len(all) != 1 || all[0].NPI != "1" {
		t.Errorf("expected one finding for npi 1, got %v", all)
	}
}
