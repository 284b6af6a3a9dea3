/*
store.go - Versioned persistence contract for the aggregates

PURPOSE:
  Defines the interface between the engine and the database. State is two
  aggregates - the application and the account - each saved whole with an
  optimistic version check. Services load, deep-copy, mutate, and save; a
  version mismatch surfaces as ErrConcurrencyConflict and nothing commits.

SINGLE WRITER PER ACCOUNT:
  Two concurrent mutations of the same account must serialize. The version
  check enforces this regardless of backend; the in-memory store also holds
  a per-aggregate lock so racing savers fail fast instead of interleaving.

IMPLEMENTATIONS:
  - mortgage/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go:   SQLite, aggregate JSON + version column

SEE ALSO:
  - errors.go: ConcurrencyConflictError, NotFoundError
*/
package mortgage

import "context"

// ApplicationRepository persists MortgageApplication aggregates.
type ApplicationRepository interface {
	// GetApplication returns a copy of the aggregate, or NotFoundError.
	GetApplication(ctx context.Context, id ApplicationID) (*MortgageApplication, error)

	// SaveApplication commits the aggregate iff its Version matches the
	// stored version; the stored version is then incremented. A mismatch
	// returns ConcurrencyConflictError. Saving an unknown ID inserts it.
	SaveApplication(ctx context.Context, app *MortgageApplication) error

	// ListApplications returns all applications, optionally filtered by
	// status (empty means all).
	ListApplications(ctx context.Context, status ApplicationStatus) ([]*MortgageApplication, error)
}

// AccountRepository persists MortgageAccount aggregates.
type AccountRepository interface {
	// GetAccount returns a copy of the aggregate, or NotFoundError.
	GetAccount(ctx context.Context, id AccountID) (*MortgageAccount, error)

	// SaveAccount commits with the same optimistic contract as
	// SaveApplication.
	SaveAccount(ctx context.Context, acct *MortgageAccount) error

	// ListAccounts returns all accounts, optionally filtered by status
	// (empty means all). Used by portfolio views and the nightly sweep.
	ListAccounts(ctx context.Context, status AccountStatus) ([]*MortgageAccount, error)

	// ReferenceExists reports whether a payment reference has been recorded
	// for the account. Backends may enforce this with a unique index too.
	ReferenceExists(ctx context.Context, id AccountID, reference string) (bool, error)
}

// Repository bundles both aggregates; concrete stores implement it.
type Repository interface {
	ApplicationRepository
	AccountRepository
}
