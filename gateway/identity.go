package gateway

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc/credentials"

	"certchain/certerr"
	"certchain/config"
)

// loadIdentity reads the client's X.509 certificate and builds the signer
// for its private key.
func loadIdentity(cfg config.Gateway) (*identity.X509Identity, identity.Sign, error) {
	certPEM, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, fmt.Sprintf("read certificate %q", cfg.CertPath))
	}
	cert, err := identity.CertificateFromPEM(certPEM)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, "parse certificate")
	}
	id, err := identity.NewX509Identity(cfg.MSPID, cert)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, "build identity")
	}

	keyFile, err := resolveKeyFile(cfg.KeyPath)
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, fmt.Sprintf("read private key %q", keyFile))
	}
	key, err := identity.PrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, "parse private key")
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeIdentity, "build signer")
	}
	return id, sign, nil
}

// resolveKeyFile returns path itself when it is a file. For a directory
// (the layout produced by fabric-ca-client) it returns the file ending in
// "_sk", or the first regular file when there is none.
func resolveKeyFile(path string) (string, error) {
	if path == "" {
		return "", certerr.New(certerr.CodeIdentity, "private key path is not configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeIdentity, fmt.Sprintf("stat private key %q", path))
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", certerr.Wrap(err, certerr.CodeIdentity, fmt.Sprintf("read key directory %q", path))
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		if strings.HasSuffix(name, "_sk") {
			return filepath.Join(path, name), nil
		}
	}
	if len(files) == 0 {
		return "", certerr.New(certerr.CodeIdentity, fmt.Sprintf("no private key in %q", path))
	}
	return filepath.Join(path, files[0]), nil
}

// transportCredentials builds TLS credentials that verify the peer against
// the configured CA and present a client certificate when one is set.
func transportCredentials(cfg config.Gateway) (credentials.TransportCredentials, error) {
	caPEM, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, certerr.Wrap(err, certerr.CodeConnection, fmt.Sprintf("read TLS CA certificate %q", cfg.TLSCertPath))
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, certerr.New(certerr.CodeConnection, fmt.Sprintf("no certificates in %q", cfg.TLSCertPath))
	}

	tlsCfg := &tls.Config{
		RootCAs:    pool,
		ServerName: cfg.PeerHostAlias,
		MinVersion: tls.VersionTLS12,
	}
	if cfg.ClientTLSCertPath != "" || cfg.ClientTLSKeyPath != "" {
		pair, err := tls.LoadX509KeyPair(cfg.ClientTLSCertPath, cfg.ClientTLSKeyPath)
		if err != nil {
			return nil, certerr.Wrap(err, certerr.CodeConnection, "load client TLS key pair")
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}
	return credentials.NewTLS(tlsCfg), nil
}
