package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"certchain/certerr"
	"certchain/config"
	"certchain/gateway"
)

var (
	cfgFile string
	cfg     *config.Client
	logger  *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if certerr.CodeOf(err) == "" {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certctl",
	Short: "Issue, revoke and verify academic certificates on a Fabric ledger",
	Long: `certctl drives the certificate chaincode through the Fabric Gateway.

Settings come from certctl.yaml (./, ./configs or ~/.certctl) and from
CERTCHAIN_* environment variables, for example:

  CERTCHAIN_GATEWAY_CERT_PATH=/msp/signcerts/cert.pem \
  CERTCHAIN_GATEWAY_KEY_PATH=/msp/keystore \
  CERTCHAIN_GATEWAY_TLS_CERT_PATH=/peer/tls/ca.crt \
  certctl query CERT-0001`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadClient(cfgFile)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default certctl.yaml in ., ./configs or ~/.certctl)")

	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(opsCmd)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// withSession opens a gateway session for the duration of fn. Interrupts
// cancel the in-flight call.
func withSession(fn func(ctx context.Context, s *gateway.Session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := gateway.New(cfg.Gateway, logger, gateway.WithMetrics(gateway.NewMetrics(nil)))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close gateway session", zap.Error(cerr))
		}
	}()
	return fn(ctx, session)
}

// printJSON writes a chaincode response indented for humans.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := fmt.Fprintln(w, string(raw))
		return werr
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
