package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudscan/internal/repository"
)

type recordingSink struct {
	spending   []repository.SpendingRow
	providers  []repository.ProviderRow
	exclusions []repository.ExclusionRow
	batches    int
	fail       error
}

func (s *recordingSink) InsertSpending(_ context.Context, rows []repository.SpendingRow) error {
	if s.fail != nil {
		return s.fail
	}
	s.batches++
	s.spending = append(s.spending, rows...)
	return nil
}

func (s *recordingSink) InsertProviders(_ context.Context, rows []repository.ProviderRow) error {
	s.batches++
	s.providers = append(s.providers, rows...)
	return nil
}

func (s *recordingSink) InsertExclusions(_ context.Context, rows []repository.ExclusionRow) error {
	s.batches++
	s.exclusions = append(s.exclusions, rows...)
	return nil
}

const spendingCSV = `BILLING_PROVIDER_NPI,Servicing_Provider_NPI,HCPCS_CODE,CLAIM_MONTH,TOT_BENES,TOT_CLMS,TOT_PAID
1111111111,2222222222,99213,2023-01,10,12,"$1,200.50"
1111111111,,99214,202302,5,6,600
,,99213,2023-03,1,1,10
3333333333,,T1019,2023-04-15,3,9,"9,000"
`

func TestLoadSpending(t *testing.T) {
	sink := &recordingSink{}
	l := NewLoader(sink, 2)

	st, err := l.LoadSpending(context.Background(), strings.NewReader(spendingCSV))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if st.Loaded != 3 {
		t.Errorf("expected 3 loaded, got %d", st.Loaded)
	}
	if st.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", st.Skipped)
	}
	if sink.batches != 2 {
		t.Errorf("expected 2 batches, got %d", sink.batches)
	}

	first := sink.spending[0]
	if first.ClaimMonth != "2023-01-01" {
		t.Errorf("expected 2023-01-01, got %s", first.ClaimMonth)
	}
	if first.TotalPaid != 1200.50 {
		t.Errorf("expected 1200.50, got %f", first.TotalPaid)
	}
	if first.ServicingNPI != "2222222222" {
		t.Errorf("expected servicing 2222222222, got %s", first.ServicingNPI)
	}
	if sink.spending[1].ClaimMonth != "2023-02-01" {
		t.Errorf("expected 2023-02-01, got %s", sink.spending[1].ClaimMonth)
	}
	if sink.spending[2].ClaimMonth != "2023-04-01" {
		t.Errorf("expected 2023-04-01, got %s", sink.spending[2].ClaimMonth)
	}
	if sink.spending[2].TotalPaid != 9000 {
		t.Errorf("expected 9000, got %f", sink.spending[2].TotalPaid)
	}
}

func TestLoadProviders(t *testing.T) {
	t.Run("ShortSchema", func(t *testing.T) {
		sink := &recordingSink{}
		csv := "npi,entity_type_code,org_name,last_name,first_name,state,zip_code,taxonomy_code,enumeration_date\n" +
			"3333333333,2,Acme Home Care,,,MN,554011234,251E00000X,03/15/2020\n"

		if _, err := NewLoader(sink, 0).LoadProviders(context.Background(), strings.NewReader(csv)); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if len(sink.providers) != 1 {
			t.Fatalf("expected 1 provider, got %d", len(sink.providers))
		}
		p := sink.providers[0]
		if p.ZipCode != "55401" {
			t.Errorf("expected zip 55401, got %s", p.ZipCode)
		}
		if p.EnumerationDate != "2020-03-15" {
			t.Errorf("expected 2020-03-15, got %s", p.EnumerationDate)
		}
		if p.OrgName != "Acme Home Care" {
			t.Errorf("expected Acme Home Care, got %s", p.OrgName)
		}
	})

	t.Run("NPPESHeaders", func(t *testing.T) {
		sink := &recordingSink{}
		csv := "NPI,Entity Type Code,Provider Organization Name (Legal Business Name),Provider Business Practice Location Address State Name,Authorized Official Last Name\n" +
			"4444444444,2,Beta LLC,MN,Smith\n"

		if _, err := NewLoader(sink, 0).LoadProviders(context.Background(), strings.NewReader(csv)); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		p := sink.providers[0]
		if p.OrgName != "Beta LLC" || p.State != "MN" || p.AuthOfficialLast != "Smith" {
			t.Errorf("unexpected provider row: %+v", p)
		}
	})
}

func TestLoadExclusions(t *testing.T) {
	sink := &recordingSink{}
	csv := "LASTNAME,FIRSTNAME,BUSNAME,NPI,EXCLTYPE,EXCLDATE,REINDATE\n" +
		"DOE,JOHN,,2222222222,1128a1,20220601,00000000\n" +
		"NODATE,,,,1128a1,,\n"

	st, err := NewLoader(sink, 0).LoadExclusions(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if st.Loaded != 1 || st.Skipped != 1 {
		t.Errorf("expected 1 loaded and 1 skipped, got %d and %d", st.Loaded, st.Skipped)
	}
	if sink.exclusions[0].NPI != "2222222222" {
		t.Errorf("expected NPI 2222222222, got %s", sink.exclusions[0].NPI)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingColumn", func(t *testing.T) {
		_, err := NewLoader(&recordingSink{}, 0).LoadSpending(context.Background(), strings.NewReader("npi,total_paid\n1,2\n"))
		if !errors.Is(err, ErrMissingColumn) {
			t.Errorf("expected ErrMissingColumn, got %v", err)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		_, err := NewLoader(&recordingSink{}, 0).LoadSpending(context.Background(), strings.NewReader(""))
		if err == nil {
			t.Error("expected error for empty input")
		}
	})

	t.Run("SinkFailure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewLoader(&recordingSink{fail: boom}, 0).LoadSpending(context.Background(), strings.NewReader(spendingCSV))
		if !errors.Is(err, boom) {
			t.Errorf("expected sink error, got %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLoader(&recordingSink{}, 0).LoadSpending(ctx, strings.NewReader(spendingCSV))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLoadDir(t *testing.T) {
	t.Run("OptionalFilesMissing", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, SpendingFile), []byte(spendingCSV), 0o644); err != nil {
			t.Fatal(err)
		}

		sink := &recordingSink{}
		stats, err := NewLoader(sink, 0).LoadDir(context.Background(), dir)
		if err != nil {
			t.Fatalf("load dir failed: %v", err)
		}
		if len(stats) != 1 {
			t.Fatalf("expected 1 file loaded, got %d", len(stats))
		}
		if len(sink.spending) != 3 {
			t.Errorf("expected 3 spending rows, got %d", len(sink.spending))
		}
	})

	t.Run("SpendingRequired", func(t *testing.T) {
		_, err := NewLoader(&recordingSink{}, 0).LoadDir(context.Background(), t.TempDir())
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

func TestNormalizeMonth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2023-01", "2023-01-01"},
		{"2023-01-31", "2023-01-01"},
		{"202301", "2023-01-01"},
		{"20230131", "2023-01-01"},
		{"01/31/2023", "2023-01-01"},
		{"garbage", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := normalizeMonth(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
