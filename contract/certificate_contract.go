package contract

import (
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"

	"certchain/registry"
)

var logger = flogging.MustGetLogger("certchain.contract")

// CertificateContract exposes the credential registry to Fabric.
// The registry operations (issue, revoke, query, history) are not methods: any
// function name the contract does not define is routed through the registry
// dispatch table by the unknown-transaction hook.
type CertificateContract struct {
	contractapi.Contract
	Policy registry.Policy
}

// NewCertificateContract wires the dispatch hooks for the given policy.
func NewCertificateContract(p registry.Policy) *CertificateContract {
	c := &CertificateContract{Policy: p}
	c.BeforeTransaction = c.beforeTransaction
	c.UnknownTransaction = c.dispatch
	return c
}

// Instantiate is called during chaincode instantiation.
func (c *CertificateContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Infof("CertificateContract instantiated, issuer org %s", c.Policy.IssuerOrg)
}

// IssuerOrg returns the MSP ID allowed to issue and revoke credentials.
func (c *CertificateContract) IssuerOrg(ctx contractapi.TransactionContextInterface) (string, error) {
	return c.Policy.IssuerOrg, nil
}

func (c *CertificateContract) beforeTransaction(ctx contractapi.TransactionContextInterface) error {
	fn, args := ctx.GetStub().GetFunctionAndParameters()
	logger.Infof("Chaincode Call: %s (%d args) tx %s", fn, len(args), ctx.GetStub().GetTxID())
	return nil
}

func (c *CertificateContract) dispatch(ctx contractapi.TransactionContextInterface) (string, error) {
	fn, args := ctx.GetStub().GetFunctionAndParameters()
	op := operationName(fn)

	out, err := registry.Dispatch(newStubLedger(ctx), c.Policy, op, args)
	if err != nil {
		logger.Warningf("%s failed: %v", op, err)
		return "", err
	}
	logger.Debugf("%s succeeded, %d byte response", op, len(out))
	return string(out), nil
}

// operationName strips the "contract:" namespace a client may prefix.
func operationName(fn string) string {
	if i := strings.LastIndex(fn, ":"); i >= 0 {
		return fn[i+1:]
	}
	return fn
}
