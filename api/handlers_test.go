package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/mortgage-engine/api"
	"github.com/warp/mortgage-engine/finance"
	"github.com/warp/mortgage-engine/mortgage"
	"github.com/warp/mortgage-engine/mortgage/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var startOfTerm = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

func newServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	repo := store.NewMemory()
	registry := prometheus.NewRegistry()
	h := api.NewHandler(repo, finance.NewFixedClock(startOfTerm), zap.NewNop(), api.NewMetrics(registry))
	return api.NewRouter(h, registry), repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func storeAccount(t *testing.T, repo *store.Memory) *mortgage.MortgageAccount {
	t.Helper()
	principal := finance.NewMoneyFromInt(1_200_000)
	schedule, err := mortgage.GenerateSchedule(mortgage.ScheduleSpec{
		Principal:   principal,
		Equity:      finance.NewMoneyFromInt(300_000),
		TenorMonths: 12,
		Rate:        finance.NewRate("0.06"),
		Structure:   mortgage.FinancingMusharaka,
		StartDate:   startOfTerm,
		PaymentDay:  15,
	})
	require.NoError(t, err)
	acct := &mortgage.MortgageAccount{
		ID:                 "acct-1",
		ApplicationID:      "app-1",
		CustomerID:         "cust-1",
		FinancingType:      mortgage.FinancingMusharaka,
		PrincipalAmount:    principal,
		EquityContribution: finance.NewMoneyFromInt(300_000),
		EquityPercentage:   finance.NewPercentage(finance.NewMoneyFromInt(300_000), finance.NewMoneyFromInt(1_500_000)),
		TenorMonths:        12,
		RentRate:           finance.NewRate("0.06"),
		PaymentDay:         15,
		Status:             mortgage.AccountActive,
		ActivatedAt:        startOfTerm,
		Schedule:           schedule,
	}
	require.NoError(t, repo.SaveAccount(context.Background(), acct))
	return acct
}

// =============================================================================
// APPLICATION ENDPOINT TESTS
// =============================================================================

func TestCreateApplication_ReturnsDraft(t *testing.T) {
	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/applications",
		api.CreateApplicationRequest{CustomerID: "cust-1", FinancingType: "musharaka"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var app mortgage.MortgageApplication
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&app))
	assert.Equal(t, mortgage.StatusDraft, app.Status)
	assert.NotEmpty(t, app.ID)
	assert.Len(t, app.Documents, len(mortgage.RequiredDocuments))
}

func TestCreateApplication_UnknownStructureIs400(t *testing.T) {
	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/applications",
		api.CreateApplicationRequest{CustomerID: "cust-1", FinancingType: "conventional"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetApplication_UnknownIDIs404(t *testing.T) {
	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/applications/app-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateLease_FromDraftIs422(t *testing.T) {
	// GIVEN: A draft application
	// WHEN: Activating the lease straight away
	// THEN: 422 - the contract has not been signed

	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/applications",
		api.CreateApplicationRequest{CustomerID: "cust-1", FinancingType: "musharaka"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var app mortgage.MortgageApplication
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&app))

	rec = doJSON(t, router, http.MethodPost, "/api/applications/"+string(app.ID)+"/activate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// ACCOUNT ENDPOINT TESTS
// =============================================================================

func TestRecordPayment_CreatedThenDuplicateConflicts(t *testing.T) {
	// GIVEN: An active account
	// WHEN: Posting the same bank reference twice
	// THEN: 201 then 409

	router, repo := newServer(t)
	acct := storeAccount(t, repo)

	body := api.RecordPaymentRequest{
		ScheduleSeq: 1,
		Amount:      acct.Schedule[0].Amount.String(),
		Method:      "bank_transfer",
		Reference:   "ref-001",
		PostedBy:    "teller-1",
	}

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/payments", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var record mortgage.PaymentRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	assert.Equal(t, "ref-001", record.Reference)

	rec = doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/payments", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecordPayment_UnknownAccountIs404(t *testing.T) {
	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-missing/payments",
		api.RecordPaymentRequest{ScheduleSeq: 1, Amount: "100.00", Method: "cash", Reference: "r1", PostedBy: "teller-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSchedule_ReturnsAllRows(t *testing.T) {
	router, repo := newServer(t)
	storeAccount(t, repo)

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acct-1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []mortgage.ScheduleItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	assert.Len(t, rows, 12)
}

func TestTriggerSweep_ReportsCounts(t *testing.T) {
	router, repo := newServer(t)
	storeAccount(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SweepResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Refreshed)
	assert.Equal(t, 0, resp.Failed)
}

func TestMetricsEndpointServes(t *testing.T) {
	router, _ := newServer(t)

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mortgage_payments_recorded_total")
}
