/*
Package sqlite provides a SQLite-backed implementation of the repository
interfaces.

PURPOSE:
  Implements mortgage.Repository using SQLite. Aggregates are stored whole
  as JSON documents with a version column; the optimistic check is a
  conditional UPDATE, so two racing savers cannot interleave. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  applications: Application aggregate JSON + version
  accounts:     Account aggregate JSON + version
  payment_refs: One row per posted payment reference, UNIQUE

OPTIMISTIC CONCURRENCY:
  UPDATE ... WHERE id = ? AND version = ? - zero rows affected means the
  caller read a stale aggregate and gets ConcurrencyConflictError. Inserts
  for unknown IDs go through the same path with version 0.

DUPLICATE REFERENCES:
  The payment_refs unique index backs up the in-aggregate reference check:
  even a buggy caller cannot post the same bank reference twice.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  repo, err := sqlite.New("./data/mortgage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer repo.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - mortgage/store.go:        Interface definitions and the version contract
  - mortgage/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/mortgage-engine/mortgage"
)

// Repo implements mortgage.Repository using SQLite.
type Repo struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ mortgage.Repository = (*Repo)(nil)

// New creates a new SQLite repository with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Repo, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repo{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

// Close closes the database connection.
func (r *Repo) Close() error {
	return r.db.Close()
}

// migrate creates the database schema.
func (r *Repo) migrate() error {
	schema := `
	-- Application aggregates, stored whole
	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		body_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON applications(status);
	CREATE INDEX IF NOT EXISTS idx_applications_customer
		ON applications(customer_id);

	-- Account aggregates, stored whole
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		body_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_status
		ON accounts(status);
	CREATE INDEX IF NOT EXISTS idx_accounts_customer
		ON accounts(customer_id);

	-- One row per posted payment reference. The unique index is the
	-- backstop behind the in-aggregate duplicate check; payment_id tells a
	-- re-save of a known posting apart from a genuine duplicate.
	CREATE TABLE IF NOT EXISTS payment_refs (
		account_id TEXT NOT NULL,
		reference TEXT NOT NULL,
		payment_id TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_refs_unique
		ON payment_refs(account_id, reference);
	`

	_, err := r.db.Exec(schema)
	return err
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (r *Repo) GetApplication(ctx context.Context, id mortgage.ApplicationID) (*mortgage.MortgageApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var body string
	var version int
	err := r.db.QueryRowContext(ctx,
		"SELECT body_json, version FROM applications WHERE id = ?", string(id),
	).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, &mortgage.NotFoundError{Kind: "application", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	var app mortgage.MortgageApplication
	if err := json.Unmarshal([]byte(body), &app); err != nil {
		return nil, fmt.Errorf("failed to decode application %s: %w", id, err)
	}
	app.Version = version
	return &app, nil
}

func (r *Repo) SaveApplication(ctx context.Context, app *mortgage.MortgageApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := app.Version + 1
	app.Version = next
	body, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, customer_id = ?, body_json = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(app.Status), string(app.CustomerID), string(body), next,
		app.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		string(app.ID), next-1,
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		return nil
	}

	// Either the row does not exist yet, or the caller is stale.
	var stored int
	err = r.db.QueryRowContext(ctx,
		"SELECT version FROM applications WHERE id = ?", string(app.ID),
	).Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO applications (id, status, customer_id, body_json, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(app.ID), string(app.Status), string(app.CustomerID), string(body), next,
			app.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		)
		if err != nil {
			return fmt.Errorf("failed to insert application: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	app.Version = next - 1
	return &mortgage.ConcurrencyConflictError{Kind: "application", ID: string(app.ID),
		Expected: next - 1, Actual: stored}
}

func (r *Repo) ListApplications(ctx context.Context, status mortgage.ApplicationStatus) ([]*mortgage.MortgageApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := "SELECT body_json, version FROM applications ORDER BY updated_at ASC"
	args := []any{}
	if status != "" {
		query = "SELECT body_json, version FROM applications WHERE status = ? ORDER BY updated_at ASC"
		args = append(args, string(status))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []*mortgage.MortgageApplication
	for rows.Next() {
		var body string
		var version int
		if err := rows.Scan(&body, &version); err != nil {
			return nil, err
		}
		var app mortgage.MortgageApplication
		if err := json.Unmarshal([]byte(body), &app); err != nil {
			return nil, fmt.Errorf("failed to decode application: %w", err)
		}
		app.Version = version
		out = append(out, &app)
	}
	return out, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (r *Repo) GetAccount(ctx context.Context, id mortgage.AccountID) (*mortgage.MortgageAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var body string
	var version int
	err := r.db.QueryRowContext(ctx,
		"SELECT body_json, version FROM accounts WHERE id = ?", string(id),
	).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, &mortgage.NotFoundError{Kind: "account", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var acct mortgage.MortgageAccount
	if err := json.Unmarshal([]byte(body), &acct); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", id, err)
	}
	acct.Version = version
	return &acct, nil
}

func (r *Repo) SaveAccount(ctx context.Context, acct *mortgage.MortgageAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next := acct.Version + 1
	acct.Version = next
	body, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	updatedAt := acct.ActivatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET status = ?, customer_id = ?, body_json = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(acct.Status), string(acct.CustomerID), string(body), next, updatedAt,
		string(acct.ID), next-1,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var stored int
		err = tx.QueryRowContext(ctx,
			"SELECT version FROM accounts WHERE id = ?", string(acct.ID),
		).Scan(&stored)
		if err == sql.ErrNoRows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (id, status, customer_id, body_json, version, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				string(acct.ID), string(acct.Status), string(acct.CustomerID), string(body), next, updatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert account: %w", err)
			}
		} else {
			if err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}
			acct.Version = next - 1
			return &mortgage.ConcurrencyConflictError{Kind: "account", ID: string(acct.ID),
				Expected: next - 1, Actual: stored}
		}
	}

	// Register payment references. A reference already registered for a
	// different payment is a duplicate that slipped past the
	// aggregate-level check; one registered for the same payment is just a
	// re-save of the aggregate.
	for i := range acct.Payments {
		p := &acct.Payments[i]
		var existingID string
		err := tx.QueryRowContext(ctx,
			"SELECT payment_id FROM payment_refs WHERE account_id = ? AND reference = ?",
			string(acct.ID), p.Reference,
		).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO payment_refs (account_id, reference, payment_id) VALUES (?, ?, ?)",
				string(acct.ID), p.Reference, p.ID,
			); err != nil {
				if isUniqueConstraintError(err) {
					return &mortgage.DuplicateReferenceError{AccountID: acct.ID, Reference: p.Reference}
				}
				return fmt.Errorf("failed to register payment reference: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to check payment reference: %w", err)
		case existingID != p.ID:
			return &mortgage.DuplicateReferenceError{AccountID: acct.ID, Reference: p.Reference}
		}
	}

	return tx.Commit()
}

func (r *Repo) ListAccounts(ctx context.Context, status mortgage.AccountStatus) ([]*mortgage.MortgageAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := "SELECT body_json, version FROM accounts ORDER BY updated_at ASC"
	args := []any{}
	if status != "" {
		query = "SELECT body_json, version FROM accounts WHERE status = ? ORDER BY updated_at ASC"
		args = append(args, string(status))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*mortgage.MortgageAccount
	for rows.Next() {
		var body string
		var version int
		if err := rows.Scan(&body, &version); err != nil {
			return nil, err
		}
		var acct mortgage.MortgageAccount
		if err := json.Unmarshal([]byte(body), &acct); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		acct.Version = version
		out = append(out, &acct)
	}
	return out, rows.Err()
}

func (r *Repo) ReferenceExists(ctx context.Context, id mortgage.AccountID, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payment_refs WHERE account_id = ? AND reference = ?",
		string(id), reference,
	).Scan(&count)
	return count > 0, err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
