// Package verifier checks a credential artifact against the fingerprint
// recorded for it on the ledger.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"certchain/certerr"
	"certchain/fingerprint"
	"certchain/model"
	"certchain/registry"
)

// Evaluator runs read-only registry operations.
type Evaluator interface {
	Evaluate(ctx context.Context, op string, args ...string) ([]byte, error)
}

// Result is the outcome of a verification. IsMatch is true only when the
// locally computed fingerprint equals the recorded one; callers decide what
// a match on a REVOKED record means.
type Result struct {
	IsMatch     bool               `json:"isMatch"`
	Fingerprint string             `json:"fingerprint"`
	Record      *model.Certificate `json:"record"`
}

// Verifier is stateless and safe for concurrent use.
type Verifier struct {
	evaluator     Evaluator
	fingerprinter fingerprint.Fingerprinter
	logger        *zap.Logger
}

// New creates a Verifier.
func New(evaluator Evaluator, fp fingerprint.Fingerprinter, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{evaluator: evaluator, fingerprinter: fp, logger: logger.Named("verifier")}
}

// Verify fingerprints artifact locally and compares it to the content hash
// recorded under id. Any error means the artifact could not be verified.
func (v *Verifier) Verify(ctx context.Context, id string, artifact []byte) (*Result, error) {
	if id == "" {
		return nil, certerr.New(certerr.CodeValidation, "certificate id is required")
	}
	if len(artifact) == 0 {
		return nil, certerr.New(certerr.CodeValidation, "artifact is empty")
	}

	fp, err := v.fingerprinter.Fingerprint(ctx, artifact)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeHashing, "fingerprint artifact")
	}

	raw, err := v.evaluator.Evaluate(ctx, string(registry.OpQuery), id)
	if err != nil {
		return nil, err
	}
	var record model.Certificate
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, certerr.Wrap(err, certerr.CodeInternal, fmt.Sprintf("decode certificate %s", id))
	}

	res := &Result{
		IsMatch:     fp == record.ContentHash,
		Fingerprint: fp,
		Record:      &record,
	}
	v.logger.Info("artifact verified",
		zap.String("certificate_id", record.ID),
		zap.Bool("match", res.IsMatch),
		zap.String("status", string(record.Status)),
	)
	return res, nil
}
