// Package registry holds the credential state machine executed by the chaincode.
//
// Operations are plain functions over a Ledger capability so they run the same
// way against the Fabric stub and against the in-memory ledger in registrytest.
// Nothing in this package reads wall-clock time or performs outbound calls.
package registry

import "time"

// Ledger is the set of capabilities the state machine needs from its host.
type Ledger interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	// IndexScan returns candidate documents for sel. Hosts without rich
	// queries may return a superset; results are filtered with sel.Match.
	IndexScan(sel Selector) (Iterator, error)
	// HistoryScan returns every stored version of key in the host's native order.
	HistoryScan(key string) (HistoryIterator, error)
	CallerOrg() (string, error)
	CallerID() (string, error)
	// LogicalTime is the agreed transaction time, identical on every endorser.
	LogicalTime() (time.Time, error)
	SetEvent(name string, payload []byte) error
}

// KV is a single key/value pair produced by an index scan.
type KV struct {
	Key   string
	Value []byte
}

// Version is one historical value of a key.
type Version struct {
	TxID      string
	Timestamp time.Time
	IsDelete  bool
	Value     []byte
}

// Iterator walks index scan results.
type Iterator interface {
	HasNext() bool
	Next() (*KV, error)
	Close() error
}

// HistoryIterator walks the versions of a single key.
type HistoryIterator interface {
	HasNext() bool
	Next() (*Version, error)
	Close() error
}

// Policy carries the authorization rules the state machine enforces.
type Policy struct {
	// IssuerOrg is the only organization allowed to issue and revoke.
	IssuerOrg string
}

// DefaultIssuerOrg is the authorized organization when none is configured.
const DefaultIssuerOrg = "Org1MSP"

// DefaultPolicy returns the policy used when no override is configured.
func DefaultPolicy() Policy {
	return Policy{IssuerOrg: DefaultIssuerOrg}
}
