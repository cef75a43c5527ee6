package state

import (
	"context"
	"fmt"
	"time"

	"equitydesk/engine/library"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
)

// Table holds committed rows and the version each row was last written at.
type Table[T any] struct {
	Rows     map[string]T     `json:"rows"`
	Versions map[string]int64 `json:"versions"`
}

func newTable[T any]() Table[T] {
	return Table[T]{Rows: make(map[string]T), Versions: make(map[string]int64)}
}

type tables struct {
	Schedules    Table[VestingSchedule]        `json:"schedules"`
	Grants       Table[EquityGrant]            `json:"grants"`
	Events       Table[VestingEvent]           `json:"vesting_events"`
	Transactions Table[EquityGrantTransaction] `json:"grant_transactions"`
	Holdings     Table[ShareHolding]           `json:"share_holdings"`
	Companies    Table[Company]                `json:"companies"`
	OptionPools  Table[OptionPool]             `json:"option_pools"`
	Offers       Table[TenderOffer]            `json:"tender_offers"`
	Bids         Table[TenderOfferBid]         `json:"tender_offer_bids"`
	Rounds       Table[EquityBuybackRound]     `json:"buyback_rounds"`
	Buybacks     Table[EquityBuyback]          `json:"buybacks"`
}

func newTables() tables {
	return tables{
		Schedules:    newTable[VestingSchedule](),
		Grants:       newTable[EquityGrant](),
		Events:       newTable[VestingEvent](),
		Transactions: newTable[EquityGrantTransaction](),
		Holdings:     newTable[ShareHolding](),
		Companies:    newTable[Company](),
		OptionPools:  newTable[OptionPool](),
		Offers:       newTable[TenderOffer](),
		Bids:         newTable[TenderOfferBid](),
		Rounds:       newTable[EquityBuybackRound](),
		Buybacks:     newTable[EquityBuyback](),
	}
}

// Store is the in-memory cap table. Writes go through Update, which commits all or nothing.
type Store struct {
	mu    *deadlock.RWMutex
	data  tables
	locks *rowLocks
}

func NewStore() *Store {
	return &Store{
		mu:    &deadlock.RWMutex{},
		data:  newTables(),
		locks: &rowLocks{mutex: &deadlock.Mutex{}, data: make(map[string]*deadlock.Mutex)},
	}
}

// Update runs fn in a transaction. If fn returns an error nothing is applied. If a row
// fn wrote was changed by someone else since fn read it, ErrConflict is returned and
// nothing is applied.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.begin()
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// UpdateWithRetry is Update retried on ErrConflict with doubling backoff.
func (s *Store) UpdateWithRetry(ctx context.Context, attempts int, backoff time.Duration, fn func(tx *Tx) error) error {
	return library.Retry(ctx, attempts, backoff, IsRetryable, func() error {
		return s.Update(ctx, fn)
	})
}

// View runs fn against a transaction that is always discarded.
func (s *Store) View(fn func(tx *Tx) error) error {
	tx := s.begin()
	defer tx.release()
	return fn(tx)
}

type rowLocks struct {
	data  map[string]*deadlock.Mutex
	mutex *deadlock.Mutex
}

func (l *rowLocks) get(key string) *deadlock.Mutex {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	m, ok := l.data[key]
	if !ok {
		m = &deadlock.Mutex{}
		l.data[key] = m
	}
	return m
}

// staged holds a transaction's pending writes for one table and the versions it read.
type staged[T any] struct {
	name  string
	table *Table[T]
	rows  map[string]T
	seen  map[string]int64
}

func stage[T any](name string, t *Table[T]) *staged[T] {
	return &staged[T]{name: name, table: t, rows: make(map[string]T), seen: make(map[string]int64)}
}

func (p *staged[T]) get(s *Store, id string) (T, bool) {
	if r, ok := p.rows[id]; ok {
		return r, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := p.table.Rows[id]
	if _, seen := p.seen[id]; !seen {
		p.seen[id] = p.table.Versions[id]
	}
	return r, ok
}

func (p *staged[T]) put(s *Store, id string, r T) {
	if _, seen := p.seen[id]; !seen {
		s.mu.RLock()
		p.seen[id] = p.table.Versions[id]
		s.mu.RUnlock()
	}
	p.rows[id] = r
}

func (p *staged[T]) insert(s *Store, id string, r T) error {
	if _, exists := p.get(s, id); exists {
		return fmt.Errorf("%s %s: %w", p.name, id, ErrDuplicate)
	}
	p.rows[id] = r
	return nil
}

// list returns committed rows overlaid with staged rows, filtered by keep, sorted by id.
func (p *staged[T]) list(s *Store, keep func(T) bool) []T {
	var ids []string
	out := make(map[string]T)
	s.mu.RLock()
	for id, r := range p.table.Rows {
		if _, ok := p.rows[id]; ok {
			continue
		}
		if keep(r) {
			out[id] = r
			ids = append(ids, id)
			if _, seen := p.seen[id]; !seen {
				p.seen[id] = p.table.Versions[id]
			}
		}
	}
	s.mu.RUnlock()
	for id, r := range p.rows {
		if keep(r) {
			out[id] = r
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	rows := make([]T, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, out[id])
	}
	return rows
}

func (p *staged[T]) validate() error {
	for id := range p.rows {
		if p.table.Versions[id] != p.seen[id] {
			return fmt.Errorf("%s %s changed since it was read: %w", p.name, id, ErrConflict)
		}
	}
	return nil
}

func (p *staged[T]) apply() {
	for id, r := range p.rows {
		p.table.Rows[id] = r
		p.table.Versions[id]++
	}
}

type committer interface {
	validate() error
	apply()
}

// Tx is a unit of work against the store. It is not safe for concurrent use.
type Tx struct {
	s            *Store
	schedules    *staged[VestingSchedule]
	grants       *staged[EquityGrant]
	events       *staged[VestingEvent]
	transactions *staged[EquityGrantTransaction]
	holdings     *staged[ShareHolding]
	companies    *staged[Company]
	pools        *staged[OptionPool]
	offers       *staged[TenderOffer]
	bids         *staged[TenderOfferBid]
	rounds       *staged[EquityBuybackRound]
	buybacks     *staged[EquityBuyback]
	held         map[string]*deadlock.Mutex
	order        []string
}

func (s *Store) begin() *Tx {
	return &Tx{
		s:            s,
		schedules:    stage("vesting schedule", &s.data.Schedules),
		grants:       stage("equity grant", &s.data.Grants),
		events:       stage("vesting event", &s.data.Events),
		transactions: stage("grant transaction", &s.data.Transactions),
		holdings:     stage("share holding", &s.data.Holdings),
		companies:    stage("company", &s.data.Companies),
		pools:        stage("option pool", &s.data.OptionPools),
		offers:       stage("tender offer", &s.data.Offers),
		bids:         stage("tender offer bid", &s.data.Bids),
		rounds:       stage("buyback round", &s.data.Rounds),
		buybacks:     stage("buyback", &s.data.Buybacks),
		held:         make(map[string]*deadlock.Mutex),
	}
}

func (tx *Tx) committers() []committer {
	return []committer{tx.schedules, tx.grants, tx.events, tx.transactions, tx.holdings,
		tx.companies, tx.pools, tx.offers, tx.bids, tx.rounds, tx.buybacks}
}

func (tx *Tx) commit() error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for _, c := range tx.committers() {
		if err := c.validate(); err != nil {
			return err
		}
	}
	for _, c := range tx.committers() {
		c.apply()
	}
	return nil
}

// Lock takes exclusive row locks for keys, held until the transaction ends. Keys within
// one call are taken in sorted order; across calls the caller is responsible for a
// consistent order (security rows before aggregate rows).
func (tx *Tx) Lock(keys ...string) {
	keys = append([]string(nil), keys...)
	slices.Sort(keys)
	for _, key := range keys {
		if _, ok := tx.held[key]; ok {
			continue
		}
		m := tx.s.locks.get(key)
		m.Lock()
		tx.held[key] = m
		tx.order = append(tx.order, key)
	}
}

func (tx *Tx) release() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.held[tx.order[i]].Unlock()
	}
	tx.held = nil
	tx.order = nil
}

func GrantKey(id library.GrantID) string { return "1:grant:" + id }
func HoldingKey(id library.HoldingID) string { return "2:holding:" + id }
func OfferKey(id library.TenderOfferID) string { return "3:offer:" + id }
func CompanyKey(id library.CompanyID) string { return "4:company:" + id }
func OptionPoolKey(id library.OptionPoolID) string { return "5:pool:" + id }
