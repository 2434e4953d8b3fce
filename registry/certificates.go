package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"certchain/certerr"
	"certchain/model"
)

// Chaincode event names emitted on successful mutations.
const (
	EventCertificateIssued  = "CertificateIssued"
	EventCertificateRevoked = "CertificateRevoked"
)

// Issue records a new VALID credential under id.
func Issue(l Ledger, p Policy, id, studentName, nim, degree, contentHash string) (*model.Certificate, error) {
	org, err := authorize(l, p)
	if err != nil {
		return nil, err
	}
	req := issueRequest{id: id, studentName: studentName, nim: nim, degree: degree, contentHash: contentHash}
	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := l.GetState(id)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("read certificate %s", id))
	}
	if len(existing) > 0 {
		return nil, certerr.New(certerr.CodeDuplicate, fmt.Sprintf("certificate %s already exists", id))
	}

	now, err := logicalTime(l)
	if err != nil {
		return nil, err
	}
	issuer, err := l.CallerID()
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, "read caller identity")
	}

	cert := &model.Certificate{
		DocType:     model.DocTypeCertificate,
		ID:          id,
		StudentName: studentName,
		NIM:         nim,
		Degree:      degree,
		ContentHash: contentHash,
		Issuer:      issuer,
		IssuerOrg:   org,
		IssueDate:   now,
		Status:      model.StatusValid,
		UpdatedAt:   now,
	}
	if err := putCertificate(l, cert); err != nil {
		return nil, err
	}
	if err := emit(l, EventCertificateIssued, model.CertificateEvent{
		ID:          cert.ID,
		Status:      cert.Status,
		IssuerOrg:   org,
		Actor:       issuer,
		TxTimestamp: now,
	}); err != nil {
		return nil, err
	}
	return cert, nil
}

// Revoke moves a VALID credential to REVOKED, recording reason.
func Revoke(l Ledger, p Policy, id, reason string) (*model.Certificate, error) {
	org, err := authorize(l, p)
	if err != nil {
		return nil, err
	}
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	cert, err := getCertificate(l, id)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, certerr.New(certerr.CodeNotFound, fmt.Sprintf("certificate %s does not exist", id))
	}
	if cert.IsRevoked() {
		return nil, certerr.New(certerr.CodeAlreadyRevoked, fmt.Sprintf("certificate %s is already revoked", id))
	}

	now, err := logicalTime(l)
	if err != nil {
		return nil, err
	}
	actor, err := l.CallerID()
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, "read caller identity")
	}

	cert.Status = model.StatusRevoked
	cert.RevocationReason = reason
	cert.UpdatedAt = now
	if err := putCertificate(l, cert); err != nil {
		return nil, err
	}
	if err := emit(l, EventCertificateRevoked, model.CertificateEvent{
		ID:          cert.ID,
		Status:      cert.Status,
		IssuerOrg:   org,
		Actor:       actor,
		Reason:      reason,
		TxTimestamp: now,
	}); err != nil {
		return nil, err
	}
	return cert, nil
}

// Query looks a credential up by id, falling back to a search by student
// name substring or exact NIM. The first match in scan order wins.
func Query(l Ledger, searchKey string) (*model.Certificate, error) {
	if searchKey == "" {
		return nil, certerr.New(certerr.CodeValidation, "search key is required")
	}
	cert, err := getCertificate(l, searchKey)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		return cert, nil
	}

	sel := SearchSelector(searchKey)
	it, err := l.IndexScan(sel)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, "scan certificates")
	}
	defer it.Close()

	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, certerr.Wrap(err, certerr.CodeInternal, "iterate certificates")
		}
		var candidate model.Certificate
		if err := json.Unmarshal(kv.Value, &candidate); err != nil {
			continue
		}
		if sel.Match(&candidate) {
			return &candidate, nil
		}
	}
	return nil, certerr.New(certerr.CodeNotFound, fmt.Sprintf("no certificate matches %q", searchKey))
}

// History returns every stored version of id in the ledger's native order.
// An id that was never written yields an empty list.
func History(l Ledger, id string) ([]model.HistoryEntry, error) {
	if id == "" {
		return nil, certerr.New(certerr.CodeValidation, "id is required")
	}
	it, err := l.HistoryScan(id)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("read history for %s", id))
	}
	defer it.Close()

	history := []model.HistoryEntry{}
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("iterate history for %s", id))
		}
		entry := model.HistoryEntry{
			TxID:      v.TxID,
			Timestamp: v.Timestamp.UTC(),
			IsDelete:  v.IsDelete,
		}
		if !v.IsDelete && len(v.Value) > 0 {
			var cert model.Certificate
			if err := json.Unmarshal(v.Value, &cert); err == nil {
				entry.Data = &cert
			}
		}
		history = append(history, entry)
	}
	return history, nil
}

func authorize(l Ledger, p Policy) (string, error) {
	org, err := l.CallerOrg()
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeAuthorization, "read caller organization")
	}
	if org != p.IssuerOrg {
		return "", certerr.New(certerr.CodeAuthorization, fmt.Sprintf("organization %s is not allowed to manage certificates", org))
	}
	return org, nil
}

func logicalTime(l Ledger) (time.Time, error) {
	ts, err := l.LogicalTime()
	if err != nil {
		return time.Time{}, certerr.Wrap(err, certerr.CodeInternal, "read transaction time")
	}
	return ts.UTC().Truncate(time.Millisecond), nil
}

func getCertificate(l Ledger, id string) (*model.Certificate, error) {
	raw, err := l.GetState(id)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("read certificate %s", id))
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var cert model.Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("decode certificate %s", id))
	}
	return &cert, nil
}

func putCertificate(l Ledger, cert *model.Certificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("encode certificate %s", cert.ID))
	}
	if err := l.PutState(cert.ID, raw); err != nil {
		return certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("write certificate %s", cert.ID))
	}
	return nil
}

func emit(l Ledger, name string, ev model.CertificateEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return certerr.Wrap(err, certerr.CodeInternal, "encode event")
	}
	if err := l.SetEvent(name, payload); err != nil {
		return certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("emit %s", name))
	}
	return nil
}
