package devsvc

import (
	"errors"
	"sync"
	"time"
)

// ─────────────────────────── in-memory store (fallback) ───────────────────────────

// memStore — хранилище без БД: dev-режим и тесты. Семантика повторяет
// SQL-реализацию из internal/repo, включая условную вычистку старого токена.
type memStore struct {
	mu       sync.RWMutex
	accSeq   uint
	devSeq   uint
	accounts map[uint]*AccountFields
	devices  map[uint]*DeviceFields
	content  map[string]*ContentFields // file_id -> item
}

func NewMemStore() *memStore {
	return &memStore{
		accounts: make(map[uint]*AccountFields),
		devices:  make(map[uint]*DeviceFields),
		content:  make(map[string]*ContentFields),
	}
}

// AddAccount — заведение кабинета (dev-режим / тесты).
func (m *memStore) AddAccount(token string) AccountFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accSeq++
	a := &AccountFields{ID: m.accSeq, Token: token}
	m.accounts[a.ID] = a
	return *a
}

func (m *memStore) AddDevice(d DeviceFields) DeviceFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devSeq++
	d.ID = m.devSeq
	m.devices[d.ID] = &d
	return d
}

func (m *memStore) AddContent(c ContentFields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := c
	m.content[c.FileID] = &cc
}

func (m *memStore) SetDeviceStatus(id uint, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.Status = status
	}
}

func (m *memStore) RemoveContent(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, fileID)
}

func (m *memStore) AccountByToken(token string) (AccountFields, TokenKind, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Token == token {
			return *a, TokenCurrent, true, nil
		}
	}
	for _, a := range m.accounts {
		if a.OldToken != nil && *a.OldToken == token {
			return *a, TokenOld, true, nil
		}
	}
	return AccountFields{}, TokenCurrent, false, nil
}

func (m *memStore) AccountByCurrentToken(token string) (AccountFields, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Token == token {
			return *a, true, nil
		}
	}
	return AccountFields{}, false, nil
}

func (m *memStore) ClearOldToken(accountID uint, oldToken string, changedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return false, errors.New("account not found")
	}
	// optimistic check: состояние не должно было уйти вперёд
	if a.OldToken == nil || *a.OldToken != oldToken ||
		a.TokenChangedAt == nil || !a.TokenChangedAt.Equal(changedAt) {
		return false, nil
	}
	a.OldToken = nil
	a.TokenChangedAt = nil
	return true, nil
}

func (m *memStore) RotateToken(accountID uint, newToken string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return errors.New("account not found")
	}
	prev := a.Token
	a.OldToken = &prev
	a.TokenChangedAt = &now
	a.Token = newToken
	return nil
}

func (m *memStore) DeviceByOwner(deviceID string, accountID uint) (DeviceFields, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if d.DeviceID == deviceID && d.UserID == accountID {
			return *d, true, nil
		}
	}
	return DeviceFields{}, false, nil
}

func (m *memStore) CreateDevice(d DeviceFields) (DeviceFields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.devices {
		if ex.DeviceID == d.DeviceID && ex.UserID == d.UserID {
			return DeviceFields{}, ErrDuplicateDevice
		}
	}
	m.devSeq++
	d.ID = m.devSeq
	m.devices[d.ID] = &d
	return d, nil
}

func (m *memStore) ContentByOwner(accountID uint) ([]ContentFields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContentFields, 0, len(m.content))
	for _, c := range m.content {
		if c.UserID == accountID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) ContentByFileID(fileID string, accountID uint) (ContentFields, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.content[fileID]; ok && c.UserID == accountID {
		return *c, true, nil
	}
	return ContentFields{}, false, nil
}
