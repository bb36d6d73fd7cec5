package repository

// Schema definitions for the Medicaid dataset.
// Compatible with both SQLite and PostgreSQL. Dates are ISO-8601 text
// (YYYY-MM-DD) so that lexical comparison matches date order on both engines.

const schemaSpending = `
CREATE TABLE IF NOT EXISTS spending (
    billing_npi TEXT NOT NULL,
    servicing_npi TEXT,
    hcpcs_code TEXT,
    claim_month TEXT NOT NULL,
    unique_beneficiaries INTEGER NOT NULL DEFAULT 0,
    total_claims INTEGER NOT NULL DEFAULT 0,
    total_paid REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_spending_billing ON spending(billing_npi);
CREATE INDEX IF NOT EXISTS idx_spending_servicing ON spending(servicing_npi);
CREATE INDEX IF NOT EXISTS idx_spending_month ON spending(billing_npi, claim_month);
`

const schemaNPPES = `
CREATE TABLE IF NOT EXISTS nppes (
    npi TEXT PRIMARY KEY,
    entity_type_code TEXT,
    org_name TEXT,
    last_name TEXT,
    first_name TEXT,
    state TEXT,
    zip_code TEXT,
    taxonomy_code TEXT,
    enumeration_date TEXT,
    auth_official_last TEXT,
    auth_official_first TEXT
);

CREATE INDEX IF NOT EXISTS idx_nppes_taxonomy_state ON nppes(taxonomy_code, state);
CREATE INDEX IF NOT EXISTS idx_nppes_zip ON nppes(zip_code, state);
`

const schemaLEIE = `
CREATE TABLE IF NOT EXISTS leie (
    lastname TEXT,
    firstname TEXT,
    busname TEXT,
    npi TEXT,
    excl_type TEXT,
    excl_date TEXT,
    rein_date TEXT
);

CREATE INDEX IF NOT EXISTS idx_leie_npi ON leie(npi);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSpending,
		schemaNPPES,
		schemaLEIE,
	}
}
