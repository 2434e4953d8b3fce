package main

import (
	"os"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certchain/config"
	"certchain/contract"
	"certchain/registry"
)

func main() {
	cfg := config.LoadChaincode()

	cc, err := contractapi.NewChaincode(contract.NewCertificateContract(registry.Policy{IssuerOrg: cfg.IssuerMSP}))
	if err != nil {
		panic("Error creating CertificateContract: " + err.Error())
	}

	if !cfg.External() {
		if err := cc.Start(); err != nil {
			panic("Error starting chaincode: " + err.Error())
		}
		return
	}

	tlsProps, err := serverTLS(cfg)
	if err != nil {
		panic("Error loading chaincode TLS material: " + err.Error())
	}
	server := &shim.ChaincodeServer{
		CCID:     cfg.ID,
		Address:  cfg.ServerAddress,
		CC:       cc,
		TLSProps: tlsProps,
	}
	if err := server.Start(); err != nil {
		panic("Error starting chaincode server: " + err.Error())
	}
}

func serverTLS(cfg *config.Chaincode) (shim.TLSProperties, error) {
	if cfg.TLSKeyFile == "" || cfg.TLSCertFile == "" {
		return shim.TLSProperties{Disabled: true}, nil
	}
	key, err := os.ReadFile(cfg.TLSKeyFile)
	if err != nil {
		return shim.TLSProperties{}, err
	}
	cert, err := os.ReadFile(cfg.TLSCertFile)
	if err != nil {
		return shim.TLSProperties{}, err
	}
	props := shim.TLSProperties{Key: key, Cert: cert}
	if cfg.TLSClientCAFile != "" {
		if props.ClientCACerts, err = os.ReadFile(cfg.TLSClientCAFile); err != nil {
			return shim.TLSProperties{}, err
		}
	}
	return props, nil
}
