package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/repository"
)

var errDuplicateProgram = errors.New("duplicate key value violates unique constraint \"cashback_programs_org_id_key\"")

type view struct {
	lock *sync.Mutex
	st   func() *state
}

func (v *view) with(fn func(st *state)) {
	v.lock.Lock()
	defer v.lock.Unlock()
	fn(v.st())
}

type orgs struct{ *view }

func (r orgs) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	var out *domain.Organization
	r.with(func(st *state) {
		if o, ok := st.orgs[id]; ok {
			out = &o
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

type sellers struct{ *view }

func (r sellers) ListActiveByOrg(ctx context.Context, orgID string) ([]domain.Seller, error) {
	var out []domain.Seller
	r.with(func(st *state) {
		for _, s := range st.sellers {
			if s.OrgID == orgID && s.Active {
				out = append(out, s)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type clients struct{ *view }

func (r clients) ListIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	var out []string
	r.with(func(st *state) {
		for _, c := range st.clients {
			if c.OrgID == orgID {
				out = append(out, c.ID)
			}
		}
	})
	sort.Strings(out)
	return out, nil
}

type programs struct{ *view }

func (r programs) Create(ctx context.Context, p *domain.CashbackProgram) error {
	var err error
	r.with(func(st *state) {
		for _, existing := range st.programs {
			if existing.OrgID == p.OrgID {
				err = errDuplicateProgram
				return
			}
		}
		now := time.Now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		st.programs[p.ID] = *p
	})
	return err
}

func (r programs) Update(ctx context.Context, p *domain.CashbackProgram) error {
	err := repository.ErrNotFound
	r.with(func(st *state) {
		existing, ok := st.programs[p.ID]
		if !ok || existing.OrgID != p.OrgID {
			return
		}
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = time.Now().UTC()
		st.programs[p.ID] = *p
		err = nil
	})
	return err
}

func (r programs) GetByOrg(ctx context.Context, orgID string) (*domain.CashbackProgram, error) {
	list, _ := r.ListByOrg(ctx, orgID)
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return &list[0], nil
}

func (r programs) ListByOrg(ctx context.Context, orgID string) ([]domain.CashbackProgram, error) {
	var out []domain.CashbackProgram
	r.with(func(st *state) {
		for _, p := range st.programs {
			if p.OrgID == orgID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type balances struct{ *view }

func (r balances) find(st *state, match func(b domain.CashbackBalance) bool) *domain.CashbackBalance {
	for _, b := range st.balances {
		if match(b) {
			return &b
		}
	}
	return nil
}

func (r balances) GetForUpdate(ctx context.Context, orgID, clientID, programID string) (*domain.CashbackBalance, error) {
	var out *domain.CashbackBalance
	r.with(func(st *state) {
		out = r.find(st, func(b domain.CashbackBalance) bool {
			return b.OrgID == orgID && b.ClientID == clientID && b.ProgramID == programID
		})
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r balances) Get(ctx context.Context, orgID, clientID string) (*domain.CashbackBalance, error) {
	var out *domain.CashbackBalance
	r.with(func(st *state) {
		out = r.find(st, func(b domain.CashbackBalance) bool {
			return b.OrgID == orgID && b.ClientID == clientID
		})
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r balances) Insert(ctx context.Context, b *domain.CashbackBalance) error {
	r.with(func(st *state) {
		existing := r.find(st, func(x domain.CashbackBalance) bool {
			return x.OrgID == b.OrgID && x.ClientID == b.ClientID && x.ProgramID == b.ProgramID
		})
		if existing == nil {
			st.balances[b.ID] = *b
		}
	})
	return nil
}

func (r balances) Update(ctx context.Context, b *domain.CashbackBalance) error {
	err := repository.ErrNotFound
	r.with(func(st *state) {
		if _, ok := st.balances[b.ID]; ok {
			st.balances[b.ID] = *b
			err = nil
		}
	})
	return err
}

func (r balances) Debit(ctx context.Context, balanceID string, amount int64, at time.Time) (bool, error) {
	var ok bool
	r.with(func(st *state) {
		b, found := st.balances[balanceID]
		if !found || b.Available < amount {
			return
		}
		b.Available -= amount
		b.TotalRedeemed += amount
		b.UpdatedAt = at
		st.balances[balanceID] = b
		ok = true
	})
	return ok, nil
}

type transactions struct{ *view }

func (r transactions) Create(ctx context.Context, t *domain.CashbackTransaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.with(func(st *state) { st.putTransaction(*t) })
	return nil
}

func (r transactions) GetForUpdate(ctx context.Context, id string) (*domain.CashbackTransaction, error) {
	var out *domain.CashbackTransaction
	r.with(func(st *state) {
		if t, ok := st.transactions[id]; ok {
			out = &t
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r transactions) HasSaleAccumulation(ctx context.Context, orgID, clientID, saleID string) (bool, error) {
	var found bool
	r.with(func(st *state) {
		found = len(st.filter(func(t *domain.CashbackTransaction) bool {
			return t.OrgID == orgID && t.ClientID == clientID &&
				t.SaleID != nil && *t.SaleID == saleID &&
				t.Type == domain.TransactionTypeAccumulation
		})) > 0
	})
	return found, nil
}

func (r transactions) ListSaleAccumulationsForUpdate(ctx context.Context, orgID, clientID, saleID string) ([]domain.CashbackTransaction, error) {
	var out []domain.CashbackTransaction
	r.with(func(st *state) {
		out = st.filter(func(t *domain.CashbackTransaction) bool {
			return t.OrgID == orgID && t.ClientID == clientID &&
				t.SaleID != nil && *t.SaleID == saleID &&
				t.Type == domain.TransactionTypeAccumulation &&
				(t.Status == domain.TransactionStatusActive || t.Status == domain.TransactionStatusConsumed)
		})
	})
	return out, nil
}

func (r transactions) ListConsumableForUpdate(ctx context.Context, orgID, clientID, programID string) ([]domain.CashbackTransaction, error) {
	var out []domain.CashbackTransaction
	r.with(func(st *state) {
		out = st.filter(func(t *domain.CashbackTransaction) bool {
			return t.OrgID == orgID && t.ClientID == clientID && t.ProgramID == programID &&
				t.Type == domain.TransactionTypeAccumulation &&
				t.Status == domain.TransactionStatusActive && t.RemainingAmount > 0
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiresAt, out[j].ExpiresAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (r transactions) update(id string, fn func(t *domain.CashbackTransaction) bool) error {
	err := repository.ErrNotFound
	r.with(func(st *state) {
		t, ok := st.transactions[id]
		if !ok || !fn(&t) {
			return
		}
		st.transactions[id] = t
		err = nil
	})
	return err
}

func (r transactions) UpdateRemaining(ctx context.Context, id string, remaining int64, status domain.TransactionStatus) error {
	return r.update(id, func(t *domain.CashbackTransaction) bool {
		if t.Status == domain.TransactionStatusExpired {
			return false
		}
		t.RemainingAmount = remaining
		t.Status = status
		return true
	})
}

func (r transactions) Expire(ctx context.Context, id string) error {
	return r.update(id, func(t *domain.CashbackTransaction) bool {
		t.Status = domain.TransactionStatusExpired
		t.RemainingAmount = 0
		return true
	})
}

func (r transactions) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]domain.CashbackTransaction, error) {
	var out []domain.CashbackTransaction
	r.with(func(st *state) {
		out = st.filter(func(t *domain.CashbackTransaction) bool {
			return t.Type == domain.TransactionTypeAccumulation &&
				(t.Status == domain.TransactionStatusActive || t.Status == domain.TransactionStatusConsumed) &&
				t.ExpiresAt != nil && !t.ExpiresAt.After(now)
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r transactions) ListByClient(ctx context.Context, orgID, clientID string, page, pageSize int32) ([]domain.CashbackTransaction, int32, error) {
	var all []domain.CashbackTransaction
	r.with(func(st *state) {
		all = st.filter(func(t *domain.CashbackTransaction) bool {
			return t.OrgID == orgID && t.ClientID == clientID
		})
	})
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start := int64(page-1) * int64(pageSize)
	if start < 0 || start >= int64(len(all)) {
		return []domain.CashbackTransaction{}, int32(len(all)), nil
	}
	end := min(start+int64(pageSize), int64(len(all)))
	return all[start:end], int32(len(all)), nil
}

type interactions struct{ *view }

func (r interactions) DeletePending(ctx context.Context, orgID, clientID string, campaignIDs, transactionIDs []string) (int64, error) {
	campaigns := toSet(campaignIDs)
	txs := toSet(transactionIDs)
	var n int64
	r.with(func(st *state) {
		for id, i := range st.interactions {
			if i.OrgID != orgID || i.ClientID != clientID || i.ExecutedAt != nil {
				continue
			}
			if (i.CampaignID != nil && campaigns[*i.CampaignID]) ||
				(i.CashbackTransactionID != nil && txs[*i.CashbackTransactionID]) {
				delete(st.interactions, id)
				n++
			}
		}
	})
	return n, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
