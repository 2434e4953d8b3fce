package model

import "time"

// DocTypeCertificate tags every credential document so rich queries can select them.
const DocTypeCertificate = "certificate"

// CertificateStatus defines the lifecycle states of a credential.
type CertificateStatus string

const (
	StatusValid   CertificateStatus = "VALID"   // Issued and in force
	StatusRevoked CertificateStatus = "REVOKED" // Terminal, never reversed
)

// Certificate is the credential record stored on the ledger under its ID.
type Certificate struct {
	DocType          string            `json:"docType"`
	ID               string            `json:"id"`
	StudentName      string            `json:"studentName"`
	NIM              string            `json:"nim"` // Student registration number, digits only
	Degree           string            `json:"degree"`
	ContentHash      string            `json:"contentHash"` // Fingerprint of the credential artifact at issuance
	Issuer           string            `json:"issuer"`
	IssuerOrg        string            `json:"issuerOrg"`
	IssueDate        time.Time         `json:"issueDate"`
	Status           CertificateStatus `json:"status"`
	RevocationReason string            `json:"revocationReason,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// IsRevoked reports whether the credential reached its terminal state.
func (c *Certificate) IsRevoked() bool {
	return c.Status == StatusRevoked
}

// HistoryEntry represents one stored version of a credential.
type HistoryEntry struct {
	TxID      string       `json:"txId"`
	Timestamp time.Time    `json:"timestamp"`
	IsDelete  bool         `json:"isDelete"`
	Data      *Certificate `json:"data"` // nil for tombstones or unparsable values
}

// CertificateEvent is the payload of the chaincode events emitted on mutation.
type CertificateEvent struct {
	ID          string            `json:"id"`
	Status      CertificateStatus `json:"status"`
	IssuerOrg   string            `json:"issuerOrg"`
	Actor       string            `json:"actor"`
	Reason      string            `json:"reason,omitempty"`
	TxTimestamp time.Time         `json:"txTimestamp"`
}
