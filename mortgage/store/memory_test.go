package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mortgage-engine/mortgage"
	"github.com/warp/mortgage-engine/mortgage/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func appAt(id mortgage.ApplicationID, status mortgage.ApplicationStatus, createdAt time.Time) *mortgage.MortgageApplication {
	return &mortgage.MortgageApplication{
		ID:            id,
		CustomerID:    "cust-1",
		FinancingType: mortgage.FinancingMusharaka,
		Status:        status,
		CreatedAt:     createdAt,
	}
}

func acctAt(id mortgage.AccountID, status mortgage.AccountStatus, activatedAt time.Time) *mortgage.MortgageAccount {
	return &mortgage.MortgageAccount{
		ID:            id,
		ApplicationID: "app-1",
		CustomerID:    "cust-1",
		FinancingType: mortgage.FinancingMusharaka,
		Status:        status,
		ActivatedAt:   activatedAt,
	}
}

// =============================================================================
// APPLICATION TESTS
// =============================================================================

func TestSaveApplication_RoundTripBumpsVersion(t *testing.T) {
	// GIVEN: A fresh store
	// WHEN: Saving and re-saving an application
	// THEN: Each save bumps the version and the read returns the latest copy

	m := store.NewMemory()
	ctx := context.Background()

	app := appAt("app-1", mortgage.StatusDraft, time.Now())
	require.NoError(t, m.SaveApplication(ctx, app))
	assert.Equal(t, 1, app.Version)

	got, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	got.Status = mortgage.StatusSubmitted
	require.NoError(t, m.SaveApplication(ctx, got))

	latest, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusSubmitted, latest.Status)
	assert.Equal(t, 2, latest.Version)
}

func TestSaveApplication_StaleVersionConflicts(t *testing.T) {
	// GIVEN: Two readers holding the same version
	// WHEN: Both write back
	// THEN: The second write loses with a concurrency conflict

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveApplication(ctx, appAt("app-1", mortgage.StatusDraft, time.Now())))

	first, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	second, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)

	require.NoError(t, m.SaveApplication(ctx, first))
	err = m.SaveApplication(ctx, second)
	assert.ErrorIs(t, err, mortgage.ErrConcurrencyConflict)
}

func TestGetApplication_ReturnsIsolatedClone(t *testing.T) {
	// GIVEN: A stored application
	// WHEN: Mutating the copy a read handed out
	// THEN: The stored aggregate is unaffected

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveApplication(ctx, appAt("app-1", mortgage.StatusDraft, time.Now())))

	got, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	got.Status = mortgage.StatusCancelled

	stored, err := m.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusDraft, stored.Status)
}

func TestListApplications_FiltersAndSortsByCreation(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveApplication(ctx, appAt("app-b", mortgage.StatusDraft, base.AddDate(0, 0, 2))))
	require.NoError(t, m.SaveApplication(ctx, appAt("app-a", mortgage.StatusDraft, base)))
	require.NoError(t, m.SaveApplication(ctx, appAt("app-c", mortgage.StatusSubmitted, base.AddDate(0, 0, 1))))

	all, err := m.ListApplications(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, mortgage.ApplicationID("app-a"), all[0].ID)
	assert.Equal(t, mortgage.ApplicationID("app-c"), all[1].ID)
	assert.Equal(t, mortgage.ApplicationID("app-b"), all[2].ID)

	drafts, err := m.ListApplications(ctx, mortgage.StatusDraft)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
}

// =============================================================================
// ACCOUNT TESTS
// =============================================================================

func TestSaveAccount_StaleVersionConflicts(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.SaveAccount(ctx, acctAt("acct-1", mortgage.AccountActive, time.Now())))

	first, err := m.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	second, err := m.GetAccount(ctx, "acct-1")
	require.NoError(t, err)

	require.NoError(t, m.SaveAccount(ctx, first))
	assert.ErrorIs(t, m.SaveAccount(ctx, second), mortgage.ErrConcurrencyConflict)
}

func TestGetAccount_UnknownID(t *testing.T) {
	m := store.NewMemory()
	_, err := m.GetAccount(context.Background(), "acct-missing")
	assert.ErrorIs(t, err, mortgage.ErrNotFound)
}

func TestListAccounts_FiltersByStatus(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveAccount(ctx, acctAt("acct-1", mortgage.AccountActive, base)))
	require.NoError(t, m.SaveAccount(ctx, acctAt("acct-2", mortgage.AccountClosed, base.AddDate(0, 1, 0))))

	active, err := m.ListAccounts(ctx, mortgage.AccountActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, mortgage.AccountID("acct-1"), active[0].ID)
}

func TestReferenceExists_ScansPayments(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	acct := acctAt("acct-1", mortgage.AccountActive, time.Now())
	acct.Payments = []mortgage.PaymentRecord{{ID: "pay-1", AccountID: acct.ID, Reference: "ref-001"}}
	require.NoError(t, m.SaveAccount(ctx, acct))

	exists, err := m.ReferenceExists(ctx, "acct-1", "ref-001")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.ReferenceExists(ctx, "acct-1", "ref-999")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = m.ReferenceExists(ctx, "acct-missing", "ref-001")
	assert.ErrorIs(t, err, mortgage.ErrNotFound)
}
