// Package repository provides the SQL-backed Medicaid dataset.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnreadable   = errors.New("dataset unreadable")
)

// DefaultLookupBatchSize bounds the IN (...) list of one lookup query.
const DefaultLookupBatchSize = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db        *sql.DB
	driver    string
	batchSize int
}

// New opens the dataset described by cfg and applies the schema.
// Every failure wraps ErrUnreadable.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite", "":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", ErrUnreadable, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	batchSize := cfg.LookupBatchSize
	if batchSize <= 0 {
		batchSize = DefaultLookupBatchSize
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	repo := &SQLRepository{
		db:        db,
		driver:    driver,
		batchSize: batchSize,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to apply schema: %w", ErrUnreadable, err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Query runs a read query with ? placeholders.
func (r *SQLRepository) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.rebind(query), args...)
}

// CountBillingProviders returns the number of distinct billing NPIs.
func (r *SQLRepository) CountBillingProviders(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT billing_npi) FROM spending`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return n, nil
}

// BatchLookupIdentity resolves registry identity for npis.
// NPIs absent from the registry are absent from the result. When a chunk
// fails the identities gathered so far are returned with the error.
func (r *SQLRepository) BatchLookupIdentity(ctx context.Context, npis []string) (map[string]domain.Identity, error) {
	out := make(map[string]domain.Identity, len(npis))

	err := r.eachChunk(npis, func(chunk []string) error {
		query := `
			SELECT npi,
				   COALESCE(NULLIF(TRIM(org_name), ''),
							TRIM(COALESCE(first_name, '') || ' ' || COALESCE(last_name, ''))),
				   COALESCE(entity_type_code, ''),
				   COALESCE(taxonomy_code, ''),
				   COALESCE(state, ''),
				   COALESCE(zip_code, ''),
				   COALESCE(enumeration_date, '')
			FROM nppes
			WHERE npi IN (` + placeholders(len(chunk)) + `)
		`

		rows, err := r.db.QueryContext(ctx, r.rebind(query), anySlice(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id domain.Identity
			var entityCode string
			if err := rows.Scan(
				&id.NPI, &id.Name, &entityCode,
				&id.TaxonomyCode, &id.State, &id.ZipCode, &id.EnumerationDate,
			); err != nil {
				return err
			}
			id.EntityType = entityTypeName(entityCode)
			out[id.NPI] = id
		}
		return rows.Err()
	})

	return out, err
}

// BatchLookupTotals resolves all-time billing totals for npis.
func (r *SQLRepository) BatchLookupTotals(ctx context.Context, npis []string) (map[string]domain.Totals, error) {
	out := make(map[string]domain.Totals, len(npis))

	err := r.eachChunk(npis, func(chunk []string) error {
		query := `
			SELECT billing_npi,
				   COALESCE(SUM(total_paid), 0),
				   COALESCE(SUM(total_claims), 0),
				   COALESCE(SUM(unique_beneficiaries), 0)
			FROM spending
			WHERE billing_npi IN (` + placeholders(len(chunk)) + `)
			GROUP BY billing_npi
		`

		rows, err := r.db.QueryContext(ctx, r.rebind(query), anySlice(chunk)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var npi string
			var t domain.Totals
			if err := rows.Scan(&npi, &t.TotalPaid, &t.TotalClaims, &t.TotalBeneficiaries); err != nil {
				return err
			}
			out[npi] = t
		}
		return rows.Err()
	})

	return out, err
}

// eachChunk calls fn over deduplicated, non-empty npis in batches. Every
// batch is attempted; failures are joined so callers keep partial results.
func (r *SQLRepository) eachChunk(npis []string, fn func(chunk []string) error) error {
	unique := dedupe(npis)
	var errs []error
	for start := 0; start < len(unique); start += r.batchSize {
		end := start + r.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		if err := fn(unique[start:end]); err != nil {
			errs = append(errs, fmt.Errorf("lookup batch %d-%d: %w", start, end, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func entityTypeName(code string) string {
	if strings.TrimSpace(code) == "1" {
		return "individual"
	}
	return "organization"
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func dedupe(npis []string) []string {
	seen := make(map[string]bool, len(npis))
	out := make([]string, 0, len(npis))
	for _, npi := range npis {
		npi = strings.TrimSpace(npi)
		if npi == "" || seen[npi] {
			continue
		}
		seen[npi] = true
		out = append(out, npi)
	}
	return out
}

var _ domain.Repository = (*SQLRepository)(nil)
