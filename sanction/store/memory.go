// Package store provides an in-memory sanction.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/council/rental-sanctions/sanction"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	items     map[string]sanction.Item
	rentals   map[string]sanction.Rental
	sanctions map[string]sanction.Sanction
}

func NewMemory() *Memory {
	return &Memory{
		items:     make(map[string]sanction.Item),
		rentals:   make(map[string]sanction.Rental),
		sanctions: make(map[string]sanction.Sanction),
	}
}

// SaveItem inserts or replaces an item.
func (m *Memory) SaveItem(_ context.Context, it sanction.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

// DeleteItem removes an item. Rentals keep pointing at it.
func (m *Memory) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// SaveRental inserts or replaces a rental.
func (m *Memory) SaveRental(_ context.Context, r sanction.Rental) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rentals[r.ID] = r
	return nil
}

func (m *Memory) GetRental(_ context.Context, id string) (*sanction.Rental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rentals[id]
	if !ok {
		return nil, sanction.ErrRentalNotFound
	}
	return &r, nil
}

func (m *Memory) GetSanction(_ context.Context, id string) (*sanction.Sanction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sanctions[id]
	if !ok {
		return nil, sanction.ErrSanctionNotFound
	}
	return &s, nil
}

// Sanctions returns every sanction of a student, active or not.
func (m *Memory) Sanctions(_ context.Context, studentID string) ([]sanction.Sanction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []sanction.Sanction
	for _, s := range m.sanctions {
		if s.StudentID == studentID {
			result = append(result, s)
		}
	}
	sortSanctions(result)
	return result, nil
}

// =============================================================================
// sanction.Store
// =============================================================================

func (m *Memory) ListActiveRentals(_ context.Context) ([]sanction.Rental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveRentalsLocked(), nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*sanction.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id)
}

func (m *Memory) ActiveSanctions(_ context.Context, studentID string) ([]sanction.Sanction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeSanctionsLocked(studentID), nil
}

func (m *Memory) InsertSanction(_ context.Context, s sanction.Sanction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSanctionLocked(s)
}

func (m *Memory) UpdateSanction(_ context.Context, s sanction.Sanction, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSanctionLocked(s, expectedRevision)
}

func (m *Memory) MarkRentalOverdue(_ context.Context, check sanction.RentalCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markRentalOverdueLocked(check)
}

func (m *Memory) listActiveRentalsLocked() []sanction.Rental {
	var result []sanction.Rental
	for _, r := range m.rentals {
		if r.Status.IsActive() {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DueDate.Equal(result[j].DueDate) {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (m *Memory) getItemLocked(id string) (*sanction.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, sanction.ErrItemNotFound
	}
	return &it, nil
}

func (m *Memory) activeSanctionsLocked(studentID string) []sanction.Sanction {
	var result []sanction.Sanction
	for _, s := range m.sanctions {
		if s.StudentID == studentID && s.IsActive {
			result = append(result, s)
		}
	}
	sortSanctions(result)
	return result
}

func (m *Memory) insertSanctionLocked(s sanction.Sanction) error {
	if _, exists := m.sanctions[s.ID]; exists {
		return sanction.ErrConcurrentModification
	}
	if s.IsActive && len(m.activeSanctionsLocked(s.StudentID)) > 0 {
		return sanction.ErrActiveSanctionExists
	}
	s.Revision = 1
	m.sanctions[s.ID] = s
	return nil
}

func (m *Memory) updateSanctionLocked(s sanction.Sanction, expectedRevision int64) error {
	current, ok := m.sanctions[s.ID]
	if !ok {
		return sanction.ErrSanctionNotFound
	}
	if current.Revision != expectedRevision {
		return sanction.ErrConcurrentModification
	}
	s.Revision = expectedRevision + 1
	m.sanctions[s.ID] = s
	return nil
}

func (m *Memory) markRentalOverdueLocked(check sanction.RentalCheck) error {
	r, ok := m.rentals[check.RentalID]
	if !ok {
		return sanction.ErrRentalNotFound
	}
	if !r.Status.IsActive() {
		return sanction.ErrRentalClosed
	}
	checkedAt := check.CheckedAt
	r.Status = sanction.RentalOverdue
	r.LastOverdueCheck = &checkedAt
	r.AppliedTier = check.AppliedTier
	r.UpdatedAt = check.CheckedAt
	m.rentals[r.ID] = r
	return nil
}

func sortSanctions(s []sanction.Sanction) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.Before(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(sanction.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	rentals   map[string]sanction.Rental
	sanctions map[string]sanction.Sanction
}

func (tm *TxMemory) snapshot() memorySnapshot {
	rentals := make(map[string]sanction.Rental, len(tm.rentals))
	for k, v := range tm.rentals {
		rentals[k] = v
	}
	sanctions := make(map[string]sanction.Sanction, len(tm.sanctions))
	for k, v := range tm.sanctions {
		sanctions[k] = v
	}
	return memorySnapshot{rentals: rentals, sanctions: sanctions}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.rentals = s.rentals
	tm.sanctions = s.sanctions
}

// txMemoryView runs inside WithTx; the parent lock is already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) ListActiveRentals(_ context.Context) ([]sanction.Rental, error) {
	return tv.parent.listActiveRentalsLocked(), nil
}

func (tv *txMemoryView) GetItem(_ context.Context, id string) (*sanction.Item, error) {
	return tv.parent.getItemLocked(id)
}

func (tv *txMemoryView) ActiveSanctions(_ context.Context, studentID string) ([]sanction.Sanction, error) {
	return tv.parent.activeSanctionsLocked(studentID), nil
}

func (tv *txMemoryView) InsertSanction(_ context.Context, s sanction.Sanction) error {
	return tv.parent.insertSanctionLocked(s)
}

func (tv *txMemoryView) UpdateSanction(_ context.Context, s sanction.Sanction, expectedRevision int64) error {
	return tv.parent.updateSanctionLocked(s, expectedRevision)
}

func (tv *txMemoryView) MarkRentalOverdue(_ context.Context, check sanction.RentalCheck) error {
	return tv.parent.markRentalOverdueLocked(check)
}
