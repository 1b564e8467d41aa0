package repository

// Schema for the Merlin database. Compatible with both SQLite and PostgreSQL.

const schemaApplications = `
CREATE TABLE IF NOT EXISTS applications (
    id TEXT PRIMARY KEY,
    applicant TEXT NOT NULL,
    status TEXT NOT NULL,
    credit_score INTEGER,
    profile TEXT NOT NULL,
    decision TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_applicant ON applications(applicant, created_at);
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaApplications,
	}
}
