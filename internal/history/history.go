// Package history stores the outcome of every enable and disable run in
// PostgreSQL so changes to audit settings can be traced afterwards.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/3mpowered/dataverse-convenience/internal/auditing"
)

// Counts tallies report items by outcome
type Counts struct {
	Changed   int `db:"changed" json:"changed"`
	Unchanged int `db:"unchanged" json:"unchanged"`
	Failed    int `db:"failed" json:"failed"`
	Locked    int `db:"locked" json:"locked"`
}

// Total returns the number of counted items
func (c Counts) Total() int {
	return c.Changed + c.Unchanged + c.Failed + c.Locked
}

func (c *Counts) add(o auditing.Outcome) {
	switch o {
	case auditing.OutcomeChanged:
		c.Changed++
	case auditing.OutcomeUnchanged:
		c.Unchanged++
	case auditing.OutcomeFailed:
		c.Failed++
	case auditing.OutcomeLocked:
		c.Locked++
	}
}

// Run is one recorded enable or disable invocation
type Run struct {
	ID              uuid.UUID       `db:"id"`
	Operation       string          `db:"operation"`
	Solution        string          `db:"solution"`
	SolutionVersion string          `db:"solution_version"`
	Environment     string          `db:"environment"`
	OrganizationID  uuid.UUID       `db:"organization_id"`
	Tables          Counts          `db:"tables"`
	Columns         Counts          `db:"columns"`
	PublishError    sql.NullString  `db:"publish_error"`
	Report          json.RawMessage `db:"report"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Summarize builds a Run from a change report
func Summarize(operation, solution, environment string, report *auditing.ChangedAuditSettings) (*Run, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	run := &Run{
		ID:              uuid.New(),
		Operation:       operation,
		Solution:        solution,
		SolutionVersion: report.Solution.Version,
		Environment:     environment,
		OrganizationID:  report.OrganizationID,
		Report:          data,
		CreatedAt:       time.Now().UTC(),
	}
	if report.PublishError != nil {
		run.PublishError = sql.NullString{String: *report.PublishError, Valid: true}
	}
	for _, table := range report.Tables {
		run.Tables.add(table.Outcome())
		for _, col := range table.Columns {
			run.Columns.add(col.Outcome())
		}
	}
	return run, nil
}

// DecodeReport unmarshals the stored report
func (r *Run) DecodeReport() (*auditing.ChangedAuditSettings, error) {
	var report auditing.ChangedAuditSettings
	if err := json.Unmarshal(r.Report, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report of run %s: %w", r.ID, err)
	}
	return &report, nil
}

// Repository handles audit_runs database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new Repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const runColumns = `
	id, operation, solution, solution_version, environment, organization_id,
	tables_changed AS "tables.changed", tables_unchanged AS "tables.unchanged",
	tables_failed AS "tables.failed", tables_locked AS "tables.locked",
	columns_changed AS "columns.changed", columns_unchanged AS "columns.unchanged",
	columns_failed AS "columns.failed", columns_locked AS "columns.locked",
	publish_error, report, created_at`

// Record inserts a run
func (r *Repository) Record(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO audit_runs (
			id, operation, solution, solution_version, environment, organization_id,
			tables_changed, tables_unchanged, tables_failed, tables_locked,
			columns_changed, columns_unchanged, columns_failed, columns_locked,
			publish_error, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Operation,
		run.Solution,
		run.SolutionVersion,
		run.Environment,
		run.OrganizationID,
		run.Tables.Changed,
		run.Tables.Unchanged,
		run.Tables.Failed,
		run.Tables.Locked,
		run.Columns.Changed,
		run.Columns.Unchanged,
		run.Columns.Failed,
		run.Columns.Locked,
		run.PublishError,
		[]byte(run.Report),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first. An empty solution lists
// runs of every solution.
func (r *Repository) List(ctx context.Context, solution string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		runs []Run
		err  error
	)
	if solution == "" {
		err = r.db.SelectContext(ctx, &runs,
			`SELECT `+runColumns+` FROM audit_runs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &runs,
			`SELECT `+runColumns+` FROM audit_runs WHERE solution = $1 ORDER BY created_at DESC LIMIT $2`, solution, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	return runs, nil
}

// Get retrieves a run by ID. It returns nil, nil when the run does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := r.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM audit_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit run: %w", err)
	}
	return &run, nil
}
