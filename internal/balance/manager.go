// Package balance tracks the simulated account's buying power and realized
// profit. All trade settlement funnels through the Manager so the account can
// never spend money it does not have.
package balance

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds means a debit would take buying power negative.
var ErrInsufficientFunds = errors.New("insufficient buying power")

// Snapshot is a point-in-time view of the account.
type Snapshot struct {
	BuyingPower float64 `json:"buying_power"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// Manager holds the account totals behind a lock. Debits and credits are the
// only mutations; valuation of open positions lives in the ledger.
type Manager struct {
	mu          sync.RWMutex
	buyingPower float64
	realizedPnL float64
}

// NewManager creates a manager seeded with initial buying power.
func NewManager(initial float64) *Manager {
	return &Manager{buyingPower: initial}
}

// BuyingPower returns the currently spendable amount.
func (m *Manager) BuyingPower() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buyingPower
}

// Snapshot returns the account totals.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{BuyingPower: m.buyingPower, RealizedPnL: m.realizedPnL}
}

// Debit removes cost from buying power, failing the entire debit when the
// account cannot cover it.
func (m *Manager) Debit(cost float64) error {
	if cost < 0 {
		return fmt.Errorf("negative debit %.2f", cost)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cost > m.buyingPower {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, cost, m.buyingPower)
	}
	m.buyingPower -= cost
	return nil
}

// Credit returns proceeds to buying power and books the realized profit or
// loss of the closed position.
func (m *Manager) Credit(proceeds, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyingPower += proceeds
	m.realizedPnL += realizedPnL
}

// Restore overwrites the account totals from persisted state during startup
// recovery.
func (m *Manager) Restore(buyingPower, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyingPower = buyingPower
	m.realizedPnL = realizedPnL
}
