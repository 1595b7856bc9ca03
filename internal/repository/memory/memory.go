// Package memory is an in-process repository.UnitOfWork. RunInTx works on a
// snapshot and only publishes it when fn succeeds, so rollbacks behave like
// the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"

	"cashback-ledger/internal/domain"
	"cashback-ledger/internal/repository"
)

type state struct {
	orgs         map[string]domain.Organization
	sellers      map[string]domain.Seller
	clients      map[string]domain.Client
	programs     map[string]domain.CashbackProgram
	balances     map[string]domain.CashbackBalance
	transactions map[string]domain.CashbackTransaction
	interactions map[string]domain.ScheduledInteraction
	txOrder      map[string]int64
	seq          int64
}

func newState() *state {
	return &state{
		orgs:         map[string]domain.Organization{},
		sellers:      map[string]domain.Seller{},
		clients:      map[string]domain.Client{},
		programs:     map[string]domain.CashbackProgram{},
		balances:     map[string]domain.CashbackBalance{},
		transactions: map[string]domain.CashbackTransaction{},
		interactions: map[string]domain.ScheduledInteraction{},
		txOrder:      map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.sellers {
		c.sellers[k] = v
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.programs {
		c.programs[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.interactions {
		c.interactions[k] = v
	}
	for k, v := range s.txOrder {
		c.txOrder[k] = v
	}
	c.seq = s.seq
	return c
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu  sync.Mutex
	txm sync.Mutex
	st  *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) view() *view {
	return &view{lock: &s.mu, st: func() *state { return s.st }}
}

func (s *Store) Organizations() repository.OrganizationRepository { return orgs{s.view()} }
func (s *Store) Sellers() repository.SellerRepository             { return sellers{s.view()} }
func (s *Store) Clients() repository.ClientRepository             { return clients{s.view()} }
func (s *Store) Programs() repository.ProgramRepository           { return programs{s.view()} }
func (s *Store) Balances() repository.BalanceRepository           { return balances{s.view()} }
func (s *Store) Transactions() repository.TransactionRepository   { return transactions{s.view()} }
func (s *Store) Interactions() repository.InteractionRepository   { return interactions{s.view()} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) RunInTx(ctx context.Context, fn func(store repository.CashbackStore) error) error {
	s.txm.Lock()
	defer s.txm.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	tx := &txStore{v: &view{lock: &sync.Mutex{}, st: func() *state { return snapshot }}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

type txStore struct{ v *view }

func (t *txStore) Organizations() repository.OrganizationRepository { return orgs{t.v} }
func (t *txStore) Sellers() repository.SellerRepository             { return sellers{t.v} }
func (t *txStore) Clients() repository.ClientRepository             { return clients{t.v} }
func (t *txStore) Programs() repository.ProgramRepository           { return programs{t.v} }
func (t *txStore) Balances() repository.BalanceRepository           { return balances{t.v} }
func (t *txStore) Transactions() repository.TransactionRepository   { return transactions{t.v} }
func (t *txStore) Interactions() repository.InteractionRepository   { return interactions{t.v} }

// Seeding helpers. They bypass transactions and are meant for tests and
// local fixtures.

func (s *Store) PutOrganization(o domain.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.orgs[o.ID] = o
}

func (s *Store) PutSeller(sl domain.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.sellers[sl.ID] = sl
}

func (s *Store) PutClient(c domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.clients[c.ID] = c
}

func (s *Store) PutProgram(p domain.CashbackProgram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.programs[p.ID] = p
}

func (s *Store) PutBalance(b domain.CashbackBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.balances[b.ID] = b
}

func (s *Store) PutTransaction(t domain.CashbackTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.putTransaction(t)
}

func (s *Store) PutInteraction(i domain.ScheduledInteraction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.interactions[i.ID] = i
}

// AllTransactions returns every ledger entry of a client, oldest first.
func (s *Store) AllTransactions(orgID, clientID string) []domain.CashbackTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.filter(func(t *domain.CashbackTransaction) bool {
		return t.OrgID == orgID && t.ClientID == clientID
	})
}

// Balance returns the stored balance of a client, if any.
func (s *Store) Balance(orgID, clientID string) (domain.CashbackBalance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.st.balances {
		if b.OrgID == orgID && b.ClientID == clientID {
			return b, true
		}
	}
	return domain.CashbackBalance{}, false
}

func (s *Store) Interaction(id string) (domain.ScheduledInteraction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.st.interactions[id]
	return i, ok
}

func (st *state) putTransaction(t domain.CashbackTransaction) {
	if _, ok := st.txOrder[t.ID]; !ok {
		st.seq++
		st.txOrder[t.ID] = st.seq
	}
	st.transactions[t.ID] = t
}

// filter returns matching transactions in insertion order.
func (st *state) filter(keep func(t *domain.CashbackTransaction) bool) []domain.CashbackTransaction {
	out := []domain.CashbackTransaction{}
	for _, t := range st.transactions {
		if keep(&t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return st.txOrder[out[i].ID] < st.txOrder[out[j].ID] })
	return out
}

var (
	_ repository.UnitOfWork    = (*Store)(nil)
	_ repository.CashbackStore = (*txStore)(nil)
)
