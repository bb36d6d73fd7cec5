package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SpendingRow is one aggregated claims line.
type SpendingRow struct {
	BillingNPI          string
	ServicingNPI        string
	HCPCSCode           string
	ClaimMonth          string // YYYY-MM-DD
	UniqueBeneficiaries int64
	TotalClaims         int64
	TotalPaid           float64
}

// ProviderRow is one NPPES registry entry.
type ProviderRow struct {
	NPI               string
	EntityTypeCode    string // "1" individual, "2" organization
	OrgName           string
	LastName          string
	FirstName         string
	State             string
	ZipCode           string
	TaxonomyCode      string
	EnumerationDate   string
	AuthOfficialLast  string
	AuthOfficialFirst string
}

// ExclusionRow is one LEIE exclusion entry.
type ExclusionRow struct {
	LastName  string
	FirstName string
	BusName   string
	NPI       string
	ExclType  string
	ExclDate  string // YYYY-MM-DD or LEIE YYYYMMDD
	ReinDate  string // empty or 00000000 when never reinstated
}

// InsertSpending loads claims lines in one transaction.
func (r *SQLRepository) InsertSpending(ctx context.Context, rows []SpendingRow) error {
	query := `
		INSERT INTO spending (
			billing_npi, servicing_npi, hcpcs_code, claim_month,
			unique_beneficiaries, total_claims, total_paid
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return r.insertAll(ctx, query, len(rows), func(stmt *sql.Stmt, i int) error {
		row := rows[i]
		if strings.TrimSpace(row.BillingNPI) == "" || row.ClaimMonth == "" {
			return fmt.Errorf("%w: spending row %d needs billing_npi and claim_month", ErrInvalidInput, i)
		}
		_, err := stmt.ExecContext(ctx,
			row.BillingNPI, nullable(row.ServicingNPI), nullable(row.HCPCSCode), row.ClaimMonth,
			row.UniqueBeneficiaries, row.TotalClaims, row.TotalPaid,
		)
		return err
	})
}

// InsertProviders loads registry entries in one transaction.
func (r *SQLRepository) InsertProviders(ctx context.Context, rows []ProviderRow) error {
	query := `
		INSERT INTO nppes (
			npi, entity_type_code, org_name, last_name, first_name, state,
			zip_code, taxonomy_code, enumeration_date, auth_official_last, auth_official_first
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return r.insertAll(ctx, query, len(rows), func(stmt *sql.Stmt, i int) error {
		row := rows[i]
		if strings.TrimSpace(row.NPI) == "" {
			return fmt.Errorf("%w: provider row %d needs npi", ErrInvalidInput, i)
		}
		_, err := stmt.ExecContext(ctx,
			row.NPI, nullable(row.EntityTypeCode), nullable(row.OrgName),
			nullable(row.LastName), nullable(row.FirstName), nullable(row.State),
			nullable(row.ZipCode), nullable(row.TaxonomyCode), nullable(row.EnumerationDate),
			nullable(row.AuthOfficialLast), nullable(row.AuthOfficialFirst),
		)
		return err
	})
}

// InsertExclusions loads exclusion entries in one transaction.
func (r *SQLRepository) InsertExclusions(ctx context.Context, rows []ExclusionRow) error {
	query := `
		INSERT INTO leie (
			lastname, firstname, busname, npi, excl_type, excl_date, rein_date
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return r.insertAll(ctx, query, len(rows), func(stmt *sql.Stmt, i int) error {
		row := rows[i]
		_, err := stmt.ExecContext(ctx,
			nullable(row.LastName), nullable(row.FirstName), nullable(row.BusName),
			nullable(row.NPI), nullable(row.ExclType),
			nullable(NormalizeDate(row.ExclDate)), nullable(NormalizeDate(row.ReinDate)),
		)
		return err
	})
}

func (r *SQLRepository) insertAll(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	if n == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// NormalizeDate converts LEIE YYYYMMDD dates to YYYY-MM-DD. The LEIE
// placeholder 00000000 becomes empty. Other values pass through trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "00000000" {
		return ""
	}
	if len(s) == 8 && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return s[:4] + "-" + s[4:6] + "-" + s[6:]
	}
	return s
}

// nullable stores empty strings as NULL, matching how the public files
// leave optional columns blank.
func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
