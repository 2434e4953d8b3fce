// Package registrytest provides an in-memory versioned ledger for exercising
// the registry state machine without a Fabric peer.
package registrytest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"certchain/registry"
)

// Caller identifies the client submitting a transaction.
type Caller struct {
	Org string
	ID  string
}

// Event is a chaincode event recorded by a committed transaction.
type Event struct {
	TxID    string
	Name    string
	Payload []byte
}

// Ledger keeps every committed version of every key. History is served
// newest first, matching Fabric's history database.
type Ledger struct {
	Policy registry.Policy

	mu       sync.RWMutex
	versions map[string][]registry.Version
	events   []Event
	seq      int
}

// New returns an empty ledger with the default issuer policy.
func New() *Ledger {
	return &Ledger{
		Policy:   registry.DefaultPolicy(),
		versions: make(map[string][]registry.Version),
	}
}

// Begin opens a transaction for caller at logical time at. Reads see only
// committed state, writes become visible after Commit.
func (m *Ledger) Begin(caller Caller, at time.Time) *Tx {
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("tx%04d", m.seq)
	m.mu.Unlock()
	return &Tx{ledger: m, id: id, caller: caller, at: at, writes: make(map[string][]byte)}
}

// Invoke runs op in its own transaction and commits it when it succeeds.
func (m *Ledger) Invoke(caller Caller, at time.Time, op registry.Operation, args ...string) ([]byte, error) {
	tx := m.Begin(caller, at)
	out, err := registry.Dispatch(tx, m.Policy, string(op), args)
	if err != nil {
		return nil, err
	}
	tx.Commit()
	return out, nil
}

// Events returns the committed events in commit order.
func (m *Ledger) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

// VersionCount reports how many versions of key have been committed.
func (m *Ledger) VersionCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[key])
}

// Tx is a single transaction against a Ledger. It implements registry.Ledger.
type Tx struct {
	ledger *Ledger
	id     string
	caller Caller
	at     time.Time
	writes map[string][]byte
	order  []string
	event  *Event
}

var _ registry.Ledger = (*Tx)(nil)

// ID returns the transaction id.
func (t *Tx) ID() string { return t.id }

// Commit appends the buffered writes as new versions.
func (t *Tx) Commit() {
	m := t.ledger
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range t.order {
		m.versions[key] = append(m.versions[key], registry.Version{
			TxID:      t.id,
			Timestamp: t.at,
			Value:     t.writes[key],
		})
	}
	if t.event != nil {
		m.events = append(m.events, *t.event)
	}
}

func (t *Tx) GetState(key string) ([]byte, error) {
	m := t.ledger
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[key]
	if len(vs) == 0 || vs[len(vs)-1].IsDelete {
		return nil, nil
	}
	return append([]byte(nil), vs[len(vs)-1].Value...), nil
}

func (t *Tx) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("key must not be empty")
	}
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

// IndexScan returns every live key in lexical order, like a range scan on a
// state database without rich query support.
func (t *Tx) IndexScan(registry.Selector) (registry.Iterator, error) {
	m := t.ledger
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.versions))
	for k, vs := range m.versions {
		if len(vs) > 0 && !vs[len(vs)-1].IsDelete {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	kvs := make([]*registry.KV, 0, len(keys))
	for _, k := range keys {
		vs := m.versions[k]
		kvs = append(kvs, &registry.KV{Key: k, Value: vs[len(vs)-1].Value})
	}
	return &kvIterator{items: kvs}, nil
}

func (t *Tx) HistoryScan(key string) (registry.HistoryIterator, error) {
	m := t.ledger
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[key]
	out := make([]*registry.Version, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		v := vs[i]
		out = append(out, &v)
	}
	return &historyIterator{items: out}, nil
}

func (t *Tx) CallerOrg() (string, error) {
	if t.caller.Org == "" {
		return "", errors.New("caller has no MSP ID")
	}
	return t.caller.Org, nil
}

func (t *Tx) CallerID() (string, error) {
	return t.caller.ID, nil
}

func (t *Tx) LogicalTime() (time.Time, error) {
	return t.at, nil
}

// SetEvent keeps the last event set in the transaction, as Fabric does.
func (t *Tx) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name must not be empty")
	}
	t.event = &Event{TxID: t.id, Name: name, Payload: append([]byte(nil), payload...)}
	return nil
}

type kvIterator struct {
	items []*registry.KV
	pos   int
}

func (it *kvIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *kvIterator) Next() (*registry.KV, error) {
	if !it.HasNext() {
		return nil, errors.New("iterator exhausted")
	}
	kv := it.items[it.pos]
	it.pos++
	return kv, nil
}

func (it *kvIterator) Close() error { return nil }

type historyIterator struct {
	items []*registry.Version
	pos   int
}

func (it *historyIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *historyIterator) Next() (*registry.Version, error) {
	if !it.HasNext() {
		return nil, errors.New("iterator exhausted")
	}
	v := it.items[it.pos]
	it.pos++
	return v, nil
}

func (it *historyIterator) Close() error { return nil }
