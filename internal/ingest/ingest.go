// Package ingest loads the public claims, registry and exclusion CSV
// extracts into a dataset.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fraudscan/internal/repository"
)

// Default file names inside a data directory.
const (
	SpendingFile   = "spending.csv"
	ProvidersFile  = "nppes.csv"
	ExclusionsFile = "leie.csv"
)

// DefaultBatchSize is the number of rows inserted per transaction.
const DefaultBatchSize = 5000

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Sink receives parsed rows. *repository.SQLRepository implements it.
type Sink interface {
	InsertSpending(ctx context.Context, rows []repository.SpendingRow) error
	InsertProviders(ctx context.Context, rows []repository.ProviderRow) error
	InsertExclusions(ctx context.Context, rows []repository.ExclusionRow) error
}

// Stats counts loaded and skipped rows for one file.
type Stats struct {
	File    string
	Loaded  int
	Skipped int
}

// Loader parses CSV extracts and writes them to a Sink in batches.
type Loader struct {
	sink      Sink
	batchSize int
}

// NewLoader creates a loader. A batchSize <= 0 uses DefaultBatchSize.
func NewLoader(sink Sink, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{sink: sink, batchSize: batchSize}
}

// LoadDir loads every known file present in dir. Missing files are skipped
// with a warning; spending.csv is required.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]Stats, error) {
	files := []struct {
		name     string
		required bool
		load     func(context.Context, io.Reader) (Stats, error)
	}{
		{SpendingFile, true, l.LoadSpending},
		{ProvidersFile, false, l.LoadProviders},
		{ExclusionsFile, false, l.LoadExclusions},
	}

	var all []Stats
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		fh, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !f.required {
				slog.Warn("data file not found, skipping", "file", path)
				continue
			}
			return all, fmt.Errorf("opening %s: %w", path, err)
		}

		start := time.Now()
		st, err := f.load(ctx, fh)
		fh.Close()
		st.File = path
		all = append(all, st)
		if err != nil {
			return all, fmt.Errorf("loading %s: %w", path, err)
		}
		slog.Info("data file loaded",
			"file", path,
			"rows", st.Loaded,
			"skipped", st.Skipped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return all, nil
}

// LoadSpending reads claims lines.
func (l *Loader) LoadSpending(ctx context.Context, r io.Reader) (Stats, error) {
	cols := columns{
		"billing_npi":          {"billing_npi", "billing_provider_npi", "billing_prvdr_npi"},
		"servicing_npi":        {"servicing_npi", "servicing_provider_npi", "rendering_npi"},
		"hcpcs_code":           {"hcpcs_code", "hcpcs_cd", "procedure_code"},
		"claim_month":          {"claim_month", "month", "service_month"},
		"unique_beneficiaries": {"unique_beneficiaries", "tot_benes", "beneficiaries"},
		"total_claims":         {"total_claims", "tot_clms", "claims"},
		"total_paid":           {"total_paid", "tot_paid", "paid_amount", "medicaid_paid"},
	}
	return readCSV(ctx, r, cols, []string{"billing_npi", "claim_month"}, l.batchSize,
		func(get func(string) string) (repository.SpendingRow, bool) {
			month := normalizeMonth(get("claim_month"))
			row := repository.SpendingRow{
				BillingNPI:          get("billing_npi"),
				ServicingNPI:        get("servicing_npi"),
				HCPCSCode:           get("hcpcs_code"),
				ClaimMonth:          month,
				UniqueBeneficiaries: parseInt(get("unique_beneficiaries")),
				TotalClaims:         parseInt(get("total_claims")),
				TotalPaid:           parseAmount(get("total_paid")),
			}
			return row, row.BillingNPI != "" && month != ""
		},
		l.sink.InsertSpending,
	)
}

// LoadProviders reads NPPES registry entries. Both the short schema and
// the full NPPES dissemination headers are accepted.
func (l *Loader) LoadProviders(ctx context.Context, r io.Reader) (Stats, error) {
	cols := columns{
		"npi":                 {"npi"},
		"entity_type_code":    {"entity_type_code", "entity type code"},
		"org_name":            {"org_name", "provider organization name (legal business name)"},
		"last_name":           {"last_name", "provider last name (legal name)"},
		"first_name":          {"first_name", "provider first name"},
		"state":               {"state", "provider business practice location address state name"},
		"zip_code":            {"zip_code", "provider business practice location address postal code"},
		"taxonomy_code":       {"taxonomy_code", "healthcare provider taxonomy code_1"},
		"enumeration_date":    {"enumeration_date", "provider enumeration date"},
		"auth_official_last":  {"auth_official_last", "authorized official last name"},
		"auth_official_first": {"auth_official_first", "authorized official first name"},
	}
	return readCSV(ctx, r, cols, []string{"npi"}, l.batchSize,
		func(get func(string) string) (repository.ProviderRow, bool) {
			row := repository.ProviderRow{
				NPI:               get("npi"),
				EntityTypeCode:    get("entity_type_code"),
				OrgName:           get("org_name"),
				LastName:          get("last_name"),
				FirstName:         get("first_name"),
				State:             get("state"),
				ZipCode:           zip5(get("zip_code")),
				TaxonomyCode:      get("taxonomy_code"),
				EnumerationDate:   normalizeDate(get("enumeration_date")),
				AuthOfficialLast:  get("auth_official_last"),
				AuthOfficialFirst: get("auth_official_first"),
			}
			return row, row.NPI != ""
		},
		l.sink.InsertProviders,
	)
}

// LoadExclusions reads the LEIE exclusion list.
func (l *Loader) LoadExclusions(ctx context.Context, r io.Reader) (Stats, error) {
	cols := columns{
		"lastname":  {"lastname", "last_name"},
		"firstname": {"firstname", "first_name"},
		"busname":   {"busname", "business_name"},
		"npi":       {"npi"},
		"excltype":  {"excltype", "excl_type"},
		"excldate":  {"excldate", "excl_date"},
		"reindate":  {"reindate", "rein_date"},
	}
	return readCSV(ctx, r, cols, []string{"npi", "excldate"}, l.batchSize,
		func(get func(string) string) (repository.ExclusionRow, bool) {
			row := repository.ExclusionRow{
				LastName:  get("lastname"),
				FirstName: get("firstname"),
				BusName:   get("busname"),
				NPI:       get("npi"),
				ExclType:  get("excltype"),
				ExclDate:  get("excldate"),
				ReinDate:  get("reindate"),
			}
			return row, row.ExclDate != ""
		},
		l.sink.InsertExclusions,
	)
}

// columns maps a canonical field to its accepted header spellings.
type columns map[string][]string

func (c columns) index(header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idx := make(map[string]int, len(c))
	for field, aliases := range c {
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[field] = i
				break
			}
		}
	}
	return idx
}

func readCSV[T any](
	ctx context.Context,
	r io.Reader,
	cols columns,
	required []string,
	batchSize int,
	parse func(get func(string) string) (T, bool),
	insert func(context.Context, []T) error,
) (Stats, error) {
	var st Stats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return st, fmt.Errorf("failed to read header: %w", err)
	}
	idx := cols.index(header)
	for _, field := range required {
		if _, ok := idx[field]; !ok {
			return st, fmt.Errorf("%w: %s", ErrMissingColumn, field)
		}
	}

	batch := make([]T, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := insert(ctx, batch); err != nil {
			return err
		}
		st.Loaded += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			st.Skipped++
			continue
		}

		get := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		row, ok := parse(get)
		if !ok {
			st.Skipped++
			continue
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return st, err
			}
		}
	}
	err = flush()
	return st, err
}

// normalizeMonth accepts YYYY-MM, YYYY-MM-DD, YYYYMM and YYYYMMDD and
// returns the first of the month as YYYY-MM-DD.
func normalizeMonth(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 7 && s[4] == '-':
		return s + "-01"
	case len(s) == 6 && isDigits(s):
		return s[:4] + "-" + s[4:] + "-01"
	case len(s) == 8 && isDigits(s):
		return s[:4] + "-" + s[4:6] + "-01"
	case len(s) >= 10 && s[4] == '-':
		return s[:7] + "-01"
	}
	if d := normalizeDate(s); d != "" && len(d) == 10 {
		return d[:7] + "-01"
	}
	return ""
}

// normalizeDate converts MM/DD/YYYY and YYYYMMDD to YYYY-MM-DD.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("01/02/2006", s); err == nil {
		return t.Format("2006-01-02")
	}
	return repository.NormalizeDate(s)
}

func zip5(s string) string {
	if len(s) > 5 && isDigits(s[:5]) {
		return s[:5]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func parseInt(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(s, 64)
	return int64(f)
}

func parseAmount(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "").Replace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
