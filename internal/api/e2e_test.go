package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/domain"
	"github.com/opensource-finance/fraudscan/internal/ingest"
	"github.com/opensource-finance/fraudscan/internal/pipeline"
	"github.com/opensource-finance/fraudscan/internal/report"
	"github.com/opensource-finance/fraudscan/internal/repository"
)

// End-to-end: CSV extracts are loaded, scanned, persisted, and then served.
//
//	spending.csv + nppes.csv + leie.csv -> dataset -> scan -> report file -> HTTP
//
// John Doe and Acme Home Care keep billing after their exclusion dates.
// Mayo Clinic does too, but is a known legitimate system and must be
// filtered out. Jane Smith bills normally.
const (
	e2eSpending = `billing_npi,servicing_npi,hcpcs_code,claim_month,unique_beneficiaries,total_claims,total_paid
1111111111,1111111111,99213,2023-01,10,40,5000
2222222222,2222222222,99213,2021-01,10,40,10000
2222222222,2222222222,99213,2023-01,10,40,37000
3333333333,3333333333,T1019,2023-02,10,40,80000
5555555555,5555555555,T1019,2023-03,10,40,20000
`
	e2eProviders = `npi,entity_type_code,org_name,last_name,first_name,state,zip_code,taxonomy_code,enumeration_date
1111111111,1,,Smith,Jane,MN,55401,207Q00000X,2015-05-01
2222222222,1,,Doe,John,MN,55402,207Q00000X,2012-03-20
3333333333,2,Acme Home Care,,,MN,55403,251E00000X,2019-07-11
5555555555,2,Mayo Clinic Rochester,,,MN,55905,282N00000X,2006-01-01
`
	e2eExclusions = `LASTNAME,FIRSTNAME,BUSNAME,NPI,EXCLTYPE,EXCLDATE,REINDATE
DOE,JOHN,,2222222222,1128a1,20220101,00000000
,,ACME HOME CARE,3333333333,1128b7,20221115,00000000
,,MAYO CLINIC ROCHESTER,5555555555,1128b7,20230101,00000000
`
)

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		ingest.SpendingFile:   e2eSpending,
		ingest.ProvidersFile:  e2eProviders,
		ingest.ExclusionsFile: e2eExclusions,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "medicaid.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if _, err := ingest.NewLoader(repo, 2).LoadDir(ctx, dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	p, err := pipeline.New(pipeline.Deps{
		Dataset: repo,
		Config:  domain.DefaultConfig().Pipeline,
	})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	rep, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	reportPath := filepath.Join(dir, "fraud_signals.json")
	if err := report.Write(reportPath, rep); err != nil {
		t.Fatalf("report.Write failed: %v", err)
	}
	loaded, err := report.Read(reportPath)
	if err != nil {
		t.Fatalf("report.Read failed: %v", err)
	}

	s := createTestServer(loaded)

	t.Run("Summary", func(t *testing.T) {
		w := get(t, s, "/summary")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp SummaryResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if resp.RunID != rep.RunID {
			t.Errorf("expected run %s, got %s", rep.RunID, resp.RunID)
		}
		if resp.ExecutiveSummary.TotalProvidersScanned != 4 {
			t.Errorf("expected 4 scanned, got %d", resp.ExecutiveSummary.TotalProvidersScanned)
		}
	})

	t.Run("ExcludedProviderServed", func(t *testing.T) {
		w := get(t, s, "/providers/2222222222")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var rec domain.ProviderRecord
		if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		found := false
		for _, f := range rec.Signals {
			if f.SignalType == domain.SignalExcludedProvider {
				found = true
			}
		}
		if !found {
			t.Errorf("expected an excluded_provider finding, got %+v", rec.Signals)
		}
	})

	t.Run("LegitimateSystemFiltered", func(t *testing.T) {
		if w := get(t, s, "/providers/5555555555"); w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("NormalProviderNotFlagged", func(t *testing.T) {
		if w := get(t, s, "/providers/1111111111"); w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("Networks", func(t *testing.T) {
		w := get(t, s, "/networks")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var nr report.NetworkReport
		if err := json.NewDecoder(w.Body).Decode(&nr); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if nr.SourceRunID != rep.RunID {
			t.Errorf("expected source run %s, got %s", rep.RunID, nr.SourceRunID)
		}
	})
}
