package contract

import (
	"errors"
	"sort"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// fakeStub keeps state and history in memory. Writes are visible immediately,
// and history is kept newest first like the peer's history database.
type fakeStub struct {
	shim.ChaincodeStubInterface

	fn        string
	args      []string
	txID      string
	txTime    time.Time
	richQuery bool

	state   map[string][]byte
	history map[string][]*queryresult.KeyModification
	queries []string
	events  map[string][]byte
}

func newFakeStub(richQuery bool) *fakeStub {
	return &fakeStub{
		richQuery: richQuery,
		state:     make(map[string][]byte),
		history:   make(map[string][]*queryresult.KeyModification),
		events:    make(map[string][]byte),
	}
}

func (s *fakeStub) call(txID string, at time.Time, fn string, args ...string) {
	s.txID = txID
	s.txTime = at
	s.fn = fn
	s.args = args
}

func (s *fakeStub) GetFunctionAndParameters() (string, []string) {
	return s.fn, s.args
}

func (s *fakeStub) GetTxID() string { return s.txID }

func (s *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.txTime), nil
}

func (s *fakeStub) GetState(key string) ([]byte, error) {
	return s.state[key], nil
}

func (s *fakeStub) PutState(key string, value []byte) error {
	s.state[key] = value
	mod := &queryresult.KeyModification{TxId: s.txID, Value: value, Timestamp: timestamppb.New(s.txTime)}
	s.history[key] = append([]*queryresult.KeyModification{mod}, s.history[key]...)
	return nil
}

func (s *fakeStub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name can not be empty string")
	}
	s.events[name] = payload
	return nil
}

func (s *fakeStub) GetQueryResult(query string) (shim.StateQueryIteratorInterface, error) {
	if !s.richQuery {
		return nil, errors.New("ExecuteQuery not supported for leveldb")
	}
	s.queries = append(s.queries, query)
	return s.scan(), nil
}

func (s *fakeStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	return s.scan(), nil
}

func (s *fakeStub) GetHistoryForKey(key string) (shim.HistoryQueryIteratorInterface, error) {
	return &fakeHistoryIterator{items: s.history[key]}, nil
}

func (s *fakeStub) scan() *fakeStateIterator {
	keys := make([]string, 0, len(s.state))
	for k := range s.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	it := &fakeStateIterator{}
	for _, k := range keys {
		it.items = append(it.items, &queryresult.KV{Key: k, Value: s.state[k]})
	}
	return it
}

type fakeStateIterator struct {
	items []*queryresult.KV
	pos   int
}

func (it *fakeStateIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *fakeStateIterator) Next() (*queryresult.KV, error) {
	kv := it.items[it.pos]
	it.pos++
	return kv, nil
}

func (it *fakeStateIterator) Close() error { return nil }

type fakeHistoryIterator struct {
	items []*queryresult.KeyModification
	pos   int
}

func (it *fakeHistoryIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *fakeHistoryIterator) Next() (*queryresult.KeyModification, error) {
	km := it.items[it.pos]
	it.pos++
	return km, nil
}

func (it *fakeHistoryIterator) Close() error { return nil }

type fakeIdentity struct {
	cid.ClientIdentity
	mspID string
	id    string
}

func (f *fakeIdentity) GetMSPID() (string, error) { return f.mspID, nil }

func (f *fakeIdentity) GetID() (string, error) { return f.id, nil }

func newContext(stub *fakeStub, mspID, id string) *contractapi.TransactionContext {
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(stub)
	ctx.SetClientIdentity(&fakeIdentity{mspID: mspID, id: id})
	return ctx
}
