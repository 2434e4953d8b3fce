// Package fingerprint computes content fingerprints of credential artifacts.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprinter derives a deterministic fingerprint from artifact bytes.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, artifact []byte) (string, error)
}

// SHA256 fingerprints artifacts as lowercase hex SHA-256 digests (64 chars).
type SHA256 struct{}

func (SHA256) Fingerprint(_ context.Context, artifact []byte) (string, error) {
	sum := sha256.Sum256(artifact)
	return hex.EncodeToString(sum[:]), nil
}
