// Package store provides Repository implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/mortgage-engine/mortgage"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	applications map[mortgage.ApplicationID]*mortgage.MortgageApplication
	accounts     map[mortgage.AccountID]*mortgage.MortgageAccount
}

func NewMemory() *Memory {
	return &Memory{
		applications: make(map[mortgage.ApplicationID]*mortgage.MortgageApplication),
		accounts:     make(map[mortgage.AccountID]*mortgage.MortgageAccount),
	}
}

var _ mortgage.Repository = (*Memory)(nil)

// =============================================================================
// APPLICATIONS
// =============================================================================

func (m *Memory) GetApplication(_ context.Context, id mortgage.ApplicationID) (*mortgage.MortgageApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, &mortgage.NotFoundError{Kind: "application", ID: string(id)}
	}
	return app.Clone(), nil
}

func (m *Memory) SaveApplication(_ context.Context, app *mortgage.MortgageApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.applications[app.ID]; ok {
		if stored.Version != app.Version {
			return &mortgage.ConcurrencyConflictError{Kind: "application", ID: string(app.ID),
				Expected: app.Version, Actual: stored.Version}
		}
	}
	app.Version++
	m.applications[app.ID] = app.Clone()
	return nil
}

func (m *Memory) ListApplications(_ context.Context, status mortgage.ApplicationStatus) ([]*mortgage.MortgageApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*mortgage.MortgageApplication, 0, len(m.applications))
	for _, app := range m.applications {
		if status != "" && app.Status != status {
			continue
		}
		out = append(out, app.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, id mortgage.AccountID) (*mortgage.MortgageAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, &mortgage.NotFoundError{Kind: "account", ID: string(id)}
	}
	return acct.Clone(), nil
}

func (m *Memory) SaveAccount(_ context.Context, acct *mortgage.MortgageAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.accounts[acct.ID]; ok {
		if stored.Version != acct.Version {
			return &mortgage.ConcurrencyConflictError{Kind: "account", ID: string(acct.ID),
				Expected: acct.Version, Actual: stored.Version}
		}
	}
	acct.Version++
	m.accounts[acct.ID] = acct.Clone()
	return nil
}

func (m *Memory) ListAccounts(_ context.Context, status mortgage.AccountStatus) ([]*mortgage.MortgageAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*mortgage.MortgageAccount, 0, len(m.accounts))
	for _, acct := range m.accounts {
		if status != "" && acct.Status != status {
			continue
		}
		out = append(out, acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivatedAt.Before(out[j].ActivatedAt) })
	return out, nil
}

func (m *Memory) ReferenceExists(_ context.Context, id mortgage.AccountID, reference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[id]
	if !ok {
		return false, &mortgage.NotFoundError{Kind: "account", ID: string(id)}
	}
	for i := range acct.Payments {
		if acct.Payments[i].Reference == reference {
			return true, nil
		}
	}
	return false, nil
}
