package claim

import (
	"context"
	"database/sql"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/notify"
	wentity "github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

func cloneClaim(c *entity.Claim) *entity.Claim {
	cp := *c
	cp.Updates = slices.Clone(c.Updates)
	return &cp
}

type memClaims struct {
	mu         sync.Mutex
	byClaimID  map[string]*entity.Claim
	collisions int // Create returns ErrIDCollision this many times
	saves      int
	beforeSave func(c *entity.Claim)
}

func newMemClaims() *memClaims {
	return &memClaims{byClaimID: map[string]*entity.Claim{}}
}

func (m *memClaims) Create(_ context.Context, c *entity.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collisions > 0 {
		m.collisions--
		return database.ErrIDCollision
	}
	if _, ok := m.byClaimID[c.ClaimID]; ok {
		return database.ErrIDCollision
	}
	m.byClaimID[c.ClaimID] = cloneClaim(c)
	return nil
}

func (m *memClaims) GetByClaimID(_ context.Context, claimID string) (*entity.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byClaimID[claimID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneClaim(c), nil
}

func (m *memClaims) Save(_ context.Context, c *entity.Claim, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	cur, ok := m.byClaimID[c.ClaimID]
	if !ok {
		return 0, nil
	}
	if m.beforeSave != nil {
		m.beforeSave(cur)
	}
	if cur.Version != expectedVersion {
		return 0, nil
	}
	c.Version = expectedVersion + 1
	m.byClaimID[c.ClaimID] = cloneClaim(c)
	return 1, nil
}

func (m *memClaims) SumTotalCost(_ context.Context, warrantyID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, c := range m.byClaimID {
		if c.WarrantyID == warrantyID {
			sum = sum.Add(c.TotalCost)
		}
	}
	return sum, nil
}

func (m *memClaims) ListByWarranty(_ context.Context, warrantyID string) ([]*entity.Claim, error) {
	return m.list(func(c *entity.Claim) bool { return c.WarrantyID == warrantyID }), nil
}

func (m *memClaims) ListByStatus(_ context.Context, status entity.Status) ([]*entity.Claim, error) {
	return m.list(func(c *entity.Claim) bool { return c.Status == status }), nil
}

func (m *memClaims) list(keep func(*entity.Claim) bool) []*entity.Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Claim
	for _, c := range m.byClaimID {
		if keep(c) {
			out = append(out, cloneClaim(c))
		}
	}
	return out
}

// memWarranties reads claims straight from memClaims, the way the warranty
// repository's statements read the claims table.
type memWarranties struct {
	mu     sync.Mutex
	byID   map[string]*wentity.Warranty
	claims *memClaims
}

func newMemWarranties(claims *memClaims, ws ...*wentity.Warranty) *memWarranties {
	m := &memWarranties{byID: map[string]*wentity.Warranty{}, claims: claims}
	for _, w := range ws {
		m.byID[w.ID] = w
	}
	return m
}

func (m *memWarranties) GetByID(_ context.Context, id string) (*wentity.Warranty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (m *memWarranties) GetByPolicyNumber(_ context.Context, policyNumber string) (*wentity.Warranty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byID {
		if w.PolicyNumber == policyNumber {
			cp := *w
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memWarranties) SetClaimStatus(_ context.Context, id string, status wentity.ClaimStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	w.ClaimStatus = status
	return nil
}

func (m *memWarranties) ReleaseClaimStatus(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok || w.ClaimStatus == wentity.ClaimNormal {
		return false, nil
	}
	open := m.claims.list(func(c *entity.Claim) bool {
		return c.WarrantyID == id && c.Status == entity.StatusAwaitingIntake
	})
	if len(open) > 0 {
		return false, nil
	}
	w.ClaimStatus = wentity.ClaimNormal
	return true, nil
}

func (m *memWarranties) RecomputeUsedCoverage(ctx context.Context, id string) (*wentity.Warranty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	sum, err := m.claims.SumTotalCost(ctx, id)
	if err != nil {
		return nil, err
	}
	w.UsedCoverage = decimal.NewNullDecimal(sum)
	cp := *w
	return &cp, nil
}

func (m *memWarranties) get(id string) wentity.Warranty {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

type memShops map[string]bool

func (m memShops) Exists(_ context.Context, id string) (bool, error) { return m[id], nil }

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingSink) Emit(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}
