package registry

import (
	"encoding/json"
	"fmt"
	"sort"

	"certchain/certerr"
)

// Operation names a state machine entry point on the wire.
type Operation string

const (
	OpIssue   Operation = "issue"
	OpRevoke  Operation = "revoke"
	OpQuery   Operation = "query"
	OpHistory Operation = "history"
)

type handler struct {
	arity    int
	readOnly bool
	run      func(l Ledger, p Policy, args []string) (any, error)
}

var handlers = map[Operation]handler{
	OpIssue: {
		arity: 5,
		run: func(l Ledger, p Policy, args []string) (any, error) {
			return Issue(l, p, args[0], args[1], args[2], args[3], args[4])
		},
	},
	OpRevoke: {
		arity: 2,
		run: func(l Ledger, p Policy, args []string) (any, error) {
			return Revoke(l, p, args[0], args[1])
		},
	},
	OpQuery: {
		arity:    1,
		readOnly: true,
		run: func(l Ledger, _ Policy, args []string) (any, error) {
			return Query(l, args[0])
		},
	},
	OpHistory: {
		arity:    1,
		readOnly: true,
		run: func(l Ledger, _ Policy, args []string) (any, error) {
			return History(l, args[0])
		},
	},
}

// Dispatch runs the operation called name and returns its JSON-encoded result.
func Dispatch(l Ledger, p Policy, name string, args []string) ([]byte, error) {
	h, ok := handlers[Operation(name)]
	if !ok {
		return nil, certerr.New(certerr.CodeValidation, fmt.Sprintf("unknown operation %q", name))
	}
	if len(args) != h.arity {
		return nil, certerr.New(certerr.CodeValidation, fmt.Sprintf("%s expects %d arguments, got %d", name, h.arity, len(args)))
	}
	result, err := h.run(l, p, args)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("encode %s result", name))
	}
	return out, nil
}

// Operations lists the dispatchable operation names in sorted order.
func Operations() []Operation {
	ops := make([]Operation, 0, len(handlers))
	for op := range handlers {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// IsReadOnly reports whether op never writes state and may be evaluated
// instead of submitted.
func IsReadOnly(op Operation) bool {
	return handlers[op].readOnly
}

// IsMutating reports whether op is a known operation that writes state and
// therefore has to be submitted rather than evaluated.
func IsMutating(op Operation) bool {
	h, ok := handlers[op]
	return ok && !h.readOnly
}
