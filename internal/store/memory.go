package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tipbot-core/internal/model"
)

// Memory 进程内实现，返回值都是深拷贝。用于测试和单进程开发模式。
type Memory struct {
	mu         sync.Mutex
	identities map[string]model.Identity
	droptips   map[uint64]*model.Droptip
	transfers  map[uint64]model.Transfer
	nextID     uint64
	nextAttID  uint64
	nextTxID   uint64
}

func NewMemory() *Memory {
	return &Memory{
		identities: make(map[string]model.Identity),
		droptips:   make(map[uint64]*model.Droptip),
		transfers:  make(map[uint64]model.Transfer),
	}
}

func cloneDroptip(d *model.Droptip) *model.Droptip {
	cp := *d
	cp.Attendees = append([]model.Attendee(nil), d.Attendees...)
	if d.SettlementStartedAt != nil {
		t := *d.SettlementStartedAt
		cp.SettlementStartedAt = &t
	}
	if d.SettledAt != nil {
		t := *d.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

func (m *Memory) GetIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &identity, nil
}

func (m *Memory) CreateIdentity(ctx context.Context, identity *model.Identity) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.identities[identity.UserID]; ok {
		return &existing, nil
	}
	cp := *identity
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.identities[cp.UserID] = cp
	return &cp, nil
}

func (m *Memory) CreateDroptip(ctx context.Context, d *model.Droptip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := cloneDroptip(d)
	cp.Attendees = nil
	m.droptips[d.ID] = cp
	return nil
}

func (m *Memory) GetDroptip(ctx context.Context, id uint64) (*model.Droptip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.droptips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDroptip(d), nil
}

func (m *Memory) AddAttendee(ctx context.Context, a *model.Attendee, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.droptips[a.DroptipID]
	if !ok {
		return ErrNotFound
	}
	if !CanClaim(d, now) {
		return ErrClosed
	}
	for _, existing := range d.Attendees {
		if existing.ClaimantID == a.ClaimantID {
			return ErrDuplicate
		}
	}
	m.nextAttID++
	a.ID = m.nextAttID
	a.Position = len(d.Attendees)
	a.ClaimedAt = now
	if a.PayoutStatus == "" {
		a.PayoutStatus = model.PayoutPending
	}
	d.Attendees = append(d.Attendees, *a)
	return nil
}

func (m *Memory) BeginSettlement(ctx context.Context, id uint64, now time.Time) (*model.Droptip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.droptips[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.State == model.DroptipSettled {
		return cloneDroptip(d), ErrSettled
	}
	if d.SettlementStartedAt == nil {
		t := now
		d.SettlementStartedAt = &t
	}
	return cloneDroptip(d), nil
}

func (m *Memory) SaveAttendee(ctx context.Context, a *model.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.droptips[a.DroptipID]
	if !ok {
		return ErrNotFound
	}
	for i := range d.Attendees {
		if d.Attendees[i].ID == a.ID {
			d.Attendees[i].PayoutAmount = a.PayoutAmount
			d.Attendees[i].PayoutStatus = a.PayoutStatus
			d.Attendees[i].PayoutTxHash = a.PayoutTxHash
			d.Attendees[i].PayoutError = a.PayoutError
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) SaveSettlement(ctx context.Context, d *model.Droptip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.droptips[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.State = d.State
	if d.SettledAt != nil {
		t := *d.SettledAt
		cur.SettledAt = &t
	}
	cur.Outcome = d.Outcome
	cur.ShareAmount = d.ShareAmount
	cur.RemainderAmount = d.RemainderAmount
	cur.UnpaidAmount = d.UnpaidAmount
	cur.RefundStatus = d.RefundStatus
	cur.RefundTxHash = d.RefundTxHash
	cur.RefundError = d.RefundError
	return nil
}

func (m *Memory) ListOpenDroptips(ctx context.Context) ([]model.Droptip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.Droptip
	for _, d := range m.droptips {
		if d.State == model.DroptipOpen {
			cp := cloneDroptip(d)
			cp.Attendees = nil
			list = append(list, *cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ExpiresAt.Equal(list[j].ExpiresAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ExpiresAt.Before(list[j].ExpiresAt)
	})
	return list, nil
}

func (m *Memory) RecordTransfer(ctx context.Context, t *model.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	t.ID = m.nextTxID
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.transfers[t.ID] = *t
	return nil
}

func (m *Memory) UpdateTransfer(ctx context.Context, t *model.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.transfers[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.TxHash = t.TxHash
	cur.Status = t.Status
	cur.Error = t.Error
	cur.UpdatedAt = time.Now()
	m.transfers[t.ID] = cur
	return nil
}

// Transfers 按 ID 顺序返回所有流水 (测试用)
func (m *Memory) Transfers() []model.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
