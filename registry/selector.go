package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"certchain/model"
)

// Operator is a comparison applied to one document field.
type Operator int

const (
	Equals Operator = iota
	ContainsFold
)

// Condition compares a document field, named by its JSON key, to Value.
type Condition struct {
	Field string
	Op    Operator
	Value string
}

// Selector is a typed document predicate: every All condition must hold,
// and at least one Any condition must hold when Any is non-empty.
type Selector struct {
	All []Condition
	Any []Condition
}

// SearchSelector finds credentials whose student name contains key
// case-insensitively or whose NIM equals key.
func SearchSelector(key string) Selector {
	return Selector{
		All: []Condition{{Field: "docType", Op: Equals, Value: model.DocTypeCertificate}},
		Any: []Condition{
			{Field: "studentName", Op: ContainsFold, Value: key},
			{Field: "nim", Op: Equals, Value: key},
		},
	}
}

// Match evaluates the selector against a decoded credential.
func (s Selector) Match(c *model.Certificate) bool {
	if c == nil {
		return false
	}
	for _, cond := range s.All {
		if !cond.match(c) {
			return false
		}
	}
	if len(s.Any) == 0 {
		return true
	}
	for _, cond := range s.Any {
		if cond.match(c) {
			return true
		}
	}
	return false
}

func (c Condition) match(cert *model.Certificate) bool {
	v, ok := fieldValue(cert, c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case Equals:
		return v == c.Value
	case ContainsFold:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	default:
		return false
	}
}

func fieldValue(c *model.Certificate, field string) (string, bool) {
	switch field {
	case "docType":
		return c.DocType, true
	case "id":
		return c.ID, true
	case "studentName":
		return c.StudentName, true
	case "nim":
		return c.NIM, true
	case "degree":
		return c.Degree, true
	case "contentHash":
		return c.ContentHash, true
	case "issuer":
		return c.Issuer, true
	case "issuerOrg":
		return c.IssuerOrg, true
	case "status":
		return string(c.Status), true
	default:
		return "", false
	}
}

// Mango renders the selector as a CouchDB query string.
// Values are quoted so caller input never becomes regex syntax.
func (s Selector) Mango() (string, error) {
	selector := make(map[string]any, len(s.All)+1)
	for _, cond := range s.All {
		if _, exists := selector[cond.Field]; exists {
			return "", fmt.Errorf("selector: field %q constrained twice", cond.Field)
		}
		selector[cond.Field] = cond.mango()
	}
	if len(s.Any) > 0 {
		or := make([]map[string]any, 0, len(s.Any))
		for _, cond := range s.Any {
			or = append(or, map[string]any{cond.Field: cond.mango()})
		}
		selector["$or"] = or
	}
	out, err := json.Marshal(map[string]any{"selector": selector})
	if err != nil {
		return "", fmt.Errorf("selector: marshal: %w", err)
	}
	return string(out), nil
}

func (c Condition) mango() any {
	if c.Op == ContainsFold {
		return map[string]string{"$regex": "(?i)" + regexp.QuoteMeta(c.Value)}
	}
	return c.Value
}
