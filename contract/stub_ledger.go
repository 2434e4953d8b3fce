package contract

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certchain/registry"
)

// stubLedger adapts a Fabric transaction context to registry.Ledger.
type stubLedger struct {
	ctx contractapi.TransactionContextInterface
}

var _ registry.Ledger = (*stubLedger)(nil)

func newStubLedger(ctx contractapi.TransactionContextInterface) *stubLedger {
	return &stubLedger{ctx: ctx}
}

func (l *stubLedger) GetState(key string) ([]byte, error) {
	return l.ctx.GetStub().GetState(key)
}

func (l *stubLedger) PutState(key string, value []byte) error {
	return l.ctx.GetStub().PutState(key, value)
}

// IndexScan runs the selector as a CouchDB rich query. State databases that
// cannot execute rich queries (LevelDB) fall back to a full range scan and the
// caller filters the results.
func (l *stubLedger) IndexScan(sel registry.Selector) (registry.Iterator, error) {
	stub := l.ctx.GetStub()
	query, err := sel.Mango()
	if err == nil {
		it, qErr := stub.GetQueryResult(query)
		if qErr == nil {
			return &stateIterator{it: it}, nil
		}
		err = qErr
	}
	logger.Warningf("IndexScan: rich query unavailable (%v), falling back to range scan", err)

	it, err := stub.GetStateByRange("", "")
	if err != nil {
		return nil, fmt.Errorf("IndexScan: range scan: %w", err)
	}
	return &stateIterator{it: it}, nil
}

func (l *stubLedger) HistoryScan(key string) (registry.HistoryIterator, error) {
	it, err := l.ctx.GetStub().GetHistoryForKey(key)
	if err != nil {
		return nil, fmt.Errorf("HistoryScan: %w", err)
	}
	return &historyIterator{it: it}, nil
}

func (l *stubLedger) CallerOrg() (string, error) {
	mspID, err := l.ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return "", fmt.Errorf("failed to get client MSPID: %w", err)
	}
	return mspID, nil
}

func (l *stubLedger) CallerID() (string, error) {
	id, err := l.ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client ID: %w", err)
	}
	return id, nil
}

func (l *stubLedger) LogicalTime() (time.Time, error) {
	ts, err := l.ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, errors.New("transaction timestamp is nil")
	}
	return ts.AsTime(), nil
}

// SetEvent never fails the transaction; a lost event is logged instead.
func (l *stubLedger) SetEvent(name string, payload []byte) error {
	if err := l.ctx.GetStub().SetEvent(name, payload); err != nil {
		logger.Warningf("SetEvent: failed to set event '%s': %v", name, err)
	}
	return nil
}

type stateIterator struct {
	it shim.StateQueryIteratorInterface
}

func (s *stateIterator) HasNext() bool { return s.it.HasNext() }

func (s *stateIterator) Next() (*registry.KV, error) {
	kv, err := s.it.Next()
	if err != nil {
		return nil, err
	}
	return &registry.KV{Key: kv.Key, Value: kv.Value}, nil
}

func (s *stateIterator) Close() error { return s.it.Close() }

type historyIterator struct {
	it shim.HistoryQueryIteratorInterface
}

func (h *historyIterator) HasNext() bool { return h.it.HasNext() }

func (h *historyIterator) Next() (*registry.Version, error) {
	km, err := h.it.Next()
	if err != nil {
		return nil, err
	}
	v := &registry.Version{
		TxID:     km.TxId,
		IsDelete: km.IsDelete,
		Value:    km.Value,
	}
	if km.Timestamp != nil {
		v.Timestamp = km.Timestamp.AsTime()
	}
	return v, nil
}

func (h *historyIterator) Close() error { return h.it.Close() }
