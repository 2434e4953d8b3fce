package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"certchain/certerr"
	"certchain/fingerprint"
	"certchain/gateway"
	"certchain/registry"
	"certchain/verifier"
)

// ── issue ────────────────────────────────────────────────────────────────────

var (
	issueFile string
	issueHash string
)

var issueCmd = &cobra.Command{
	Use:   "issue <id> <student-name> <nim> <degree>",
	Short: "Record a new certificate",
	Long: `Issue records a VALID certificate on the ledger.

The content hash comes either from --hash, or from --file, in which case the
document is added to IPFS first and its CID is recorded:

  certctl issue CERT-0001 "Budi Santoso" 12345678 "Bachelor of Computer Science" --file diploma.pdf`,
	Args: cobra.ExactArgs(4),
	RunE: runIssue,
}

func init() {
	issueCmd.Flags().StringVar(&issueFile, "file", "", "Certificate document to add to IPFS")
	issueCmd.Flags().StringVar(&issueHash, "hash", "", "Precomputed content hash (CID)")
	issueCmd.MarkFlagsMutuallyExclusive("file", "hash")
	issueCmd.MarkFlagsOneRequired("file", "hash")
}

func runIssue(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, s *gateway.Session) error {
		hash := issueHash
		if issueFile != "" {
			data, err := os.ReadFile(issueFile)
			if err != nil {
				return certerr.Wrap(err, certerr.CodeValidation, "read document")
			}
			hash, err = newIPFS().Add(ctx, data)
			if err != nil {
				return err
			}
		}
		out, err := s.Submit(ctx, string(registry.OpIssue), args[0], args[1], args[2], args[3], hash)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

// ── revoke ───────────────────────────────────────────────────────────────────

var revokeReason string

var revokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a certificate",
	Long: `Revoke marks a certificate REVOKED. This cannot be undone.

A failed or timed-out revoke may still have committed: run "certctl query"
before retrying.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *gateway.Session) error {
			out, err := s.Submit(ctx, string(registry.OpRevoke), args[0], revokeReason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "No reason provided", "Revocation reason recorded on the ledger")
}

// ── query / history ──────────────────────────────────────────────────────────

var queryCmd = &cobra.Command{
	Use:   "query <id | student-name | nim>",
	Short: "Find a certificate by id, student name substring or NIM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluateAndPrint(cmd, registry.OpQuery, args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List every recorded version of a certificate, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluateAndPrint(cmd, registry.OpHistory, args[0])
	},
}

func evaluateAndPrint(cmd *cobra.Command, op registry.Operation, args ...string) error {
	return withSession(func(ctx context.Context, s *gateway.Session) error {
		out, err := s.Evaluate(ctx, string(op), args...)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyFile   string
	verifyMethod string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <id> --file <document>",
	Short: "Check a document against the fingerprint recorded at issuance",
	Long: `Verify fingerprints the document locally and compares it with the
content hash stored on the ledger. The exit status is non-zero when the
document does not match.

--fingerprint ipfs (default) asks the IPFS node for the CID without storing
the document; sha256 hashes locally and suits certificates issued with a
SHA-256 --hash.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "Document to verify")
	verifyCmd.Flags().StringVar(&verifyMethod, "fingerprint", "ipfs", "Fingerprint method: ipfs or sha256")
	_ = verifyCmd.MarkFlagRequired("file")
}

func runVerify(cmd *cobra.Command, args []string) error {
	var fp fingerprint.Fingerprinter
	switch verifyMethod {
	case "ipfs":
		fp = newIPFS()
	case "sha256":
		fp = fingerprint.SHA256{}
	default:
		return certerr.New(certerr.CodeValidation, fmt.Sprintf("unknown fingerprint method %q", verifyMethod))
	}
	data, err := os.ReadFile(verifyFile)
	if err != nil {
		return certerr.Wrap(err, certerr.CodeValidation, "read document")
	}

	return withSession(func(ctx context.Context, s *gateway.Session) error {
		res, err := verifier.New(s, fp, logger).Verify(ctx, args[0], data)
		if err != nil {
			return err
		}
		out, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if !res.IsMatch {
			return fmt.Errorf("document does not match certificate %s", res.Record.ID)
		}
		return nil
	})
}

func newIPFS() *fingerprint.IPFS {
	return fingerprint.NewIPFS(cfg.IPFS.APIURL, cfg.IPFS.Timeout, fingerprint.WithLogger(logger))
}

// ── ops ──────────────────────────────────────────────────────────────────────

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List the chaincode operations and how they are invoked",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, op := range registry.Operations() {
			kind := "submit"
			if registry.IsReadOnly(op) {
				kind = "evaluate"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", op, kind)
		}
	},
}
