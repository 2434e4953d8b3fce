// Package config loads settings for the certctl client and the chaincode
// process from YAML files and CERTCHAIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CERTCHAIN_GATEWAY_MSP_ID.
const EnvPrefix = "CERTCHAIN"

// Gateway describes how to reach the Fabric Gateway peer and as whom.
type Gateway struct {
	MSPID         string
	PeerEndpoint  string
	PeerHostAlias string
	// CertPath is the client's X.509 signing certificate (PEM).
	CertPath string
	// KeyPath is either the private key file or a directory holding it;
	// a file ending in "_sk" is preferred inside a directory.
	KeyPath string
	// TLSCertPath is the CA certificate used to verify the peer.
	TLSCertPath string
	// ClientTLSCertPath and ClientTLSKeyPath are presented to the peer when
	// it requires mutual TLS.
	ClientTLSCertPath string
	ClientTLSKeyPath  string

	Channel   string
	Chaincode string

	EvaluateTimeout     time.Duration
	SubmitTimeout       time.Duration
	CommitStatusTimeout time.Duration
}

// IPFS describes the Kubo RPC endpoint used to fingerprint artifacts.
type IPFS struct {
	APIURL  string
	Timeout time.Duration
}

// Client is the complete certctl configuration.
type Client struct {
	Gateway  Gateway
	IPFS     IPFS
	LogLevel string
}

// Chaincode configures the chaincode process.
type Chaincode struct {
	IssuerMSP string
	// ServerAddress and ID enable chaincode-as-a-service mode when both are set.
	ServerAddress   string
	ID              string
	TLSKeyFile      string
	TLSCertFile     string
	TLSClientCAFile string
}

// External reports whether the chaincode should run its own gRPC server
// instead of connecting to the peer.
func (c *Chaincode) External() bool {
	return c.ServerAddress != "" && c.ID != ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("gateway.msp_id", "Org1MSP")
	v.SetDefault("gateway.peer_endpoint", "localhost:7051")
	v.SetDefault("gateway.peer_host_alias", "peer0.org1.example.com")
	v.SetDefault("gateway.cert_path", "")
	v.SetDefault("gateway.key_path", "")
	v.SetDefault("gateway.tls_cert_path", "")
	v.SetDefault("gateway.client_tls_cert_path", "")
	v.SetDefault("gateway.client_tls_key_path", "")
	v.SetDefault("gateway.channel", "mychannel")
	v.SetDefault("gateway.chaincode", "certificate")
	v.SetDefault("gateway.evaluate_timeout", "5s")
	v.SetDefault("gateway.submit_timeout", "15s")
	v.SetDefault("gateway.commit_status_timeout", "1m")
	v.SetDefault("ipfs.api_url", "http://localhost:5001/api/v0")
	v.SetDefault("ipfs.timeout", "30s")
	v.SetDefault("log.level", "info")
}

// LoadClient reads certctl settings. When path is empty the file certctl.yaml
// is searched in the working directory, ./configs and $HOME/.certctl; a
// missing file is not an error.
func LoadClient(path string) (*Client, error) {
	v := newViper()
	setClientDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("certctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		v.AddConfigPath("$HOME/.certctl")
	}
	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Client{
		Gateway: Gateway{
			MSPID:               v.GetString("gateway.msp_id"),
			PeerEndpoint:        v.GetString("gateway.peer_endpoint"),
			PeerHostAlias:       v.GetString("gateway.peer_host_alias"),
			CertPath:            v.GetString("gateway.cert_path"),
			KeyPath:             v.GetString("gateway.key_path"),
			TLSCertPath:         v.GetString("gateway.tls_cert_path"),
			ClientTLSCertPath:   v.GetString("gateway.client_tls_cert_path"),
			ClientTLSKeyPath:    v.GetString("gateway.client_tls_key_path"),
			Channel:             v.GetString("gateway.channel"),
			Chaincode:           v.GetString("gateway.chaincode"),
			EvaluateTimeout:     v.GetDuration("gateway.evaluate_timeout"),
			SubmitTimeout:       v.GetDuration("gateway.submit_timeout"),
			CommitStatusTimeout: v.GetDuration("gateway.commit_status_timeout"),
		},
		IPFS: IPFS{
			APIURL:  v.GetString("ipfs.api_url"),
			Timeout: v.GetDuration("ipfs.timeout"),
		},
		LogLevel: v.GetString("log.level"),
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *Gateway) validate() error {
	if g.EvaluateTimeout <= 0 || g.SubmitTimeout <= 0 || g.CommitStatusTimeout <= 0 {
		return errors.New("config: gateway timeouts must be positive")
	}
	if g.Channel == "" || g.Chaincode == "" {
		return errors.New("config: gateway channel and chaincode are required")
	}
	return nil
}

// LoadChaincode reads chaincode settings from the environment only.
func LoadChaincode() *Chaincode {
	v := newViper()
	v.SetDefault("issuer_msp", "Org1MSP")
	v.SetDefault("chaincode_server_address", "")
	v.SetDefault("chaincode_id", "")
	v.SetDefault("chaincode_tls_key_file", "")
	v.SetDefault("chaincode_tls_cert_file", "")
	v.SetDefault("chaincode_tls_client_ca_file", "")
	// Fabric's external builders export the unprefixed names.
	_ = v.BindEnv("chaincode_server_address", EnvPrefix+"_CHAINCODE_SERVER_ADDRESS", "CHAINCODE_SERVER_ADDRESS")
	_ = v.BindEnv("chaincode_id", EnvPrefix+"_CHAINCODE_ID", "CHAINCODE_ID")

	return &Chaincode{
		IssuerMSP:       v.GetString("issuer_msp"),
		ServerAddress:   v.GetString("chaincode_server_address"),
		ID:              v.GetString("chaincode_id"),
		TLSKeyFile:      v.GetString("chaincode_tls_key_file"),
		TLSCertFile:     v.GetString("chaincode_tls_cert_file"),
		TLSClientCAFile: v.GetString("chaincode_tls_client_ca_file"),
	}
}
