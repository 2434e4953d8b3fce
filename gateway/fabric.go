package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"google.golang.org/grpc"

	"certchain/certerr"
	"certchain/config"
)

// fabricDialer connects to a Fabric Gateway peer over gRPC with TLS.
type fabricDialer struct{}

func (fabricDialer) Dial(cfg config.Gateway) (Contract, io.Closer, error) {
	id, sign, err := loadIdentity(cfg)
	if err != nil {
		return nil, nil, err
	}
	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, nil, err
	}

	conn, err := grpc.NewClient(cfg.PeerEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, certerr.Wrap(err, certerr.CodeConnection, "create gRPC client for "+cfg.PeerEndpoint)
	}

	gw, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(cfg.EvaluateTimeout),
		client.WithEndorseTimeout(cfg.SubmitTimeout),
		client.WithSubmitTimeout(cfg.SubmitTimeout),
		client.WithCommitStatusTimeout(cfg.CommitStatusTimeout),
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, certerr.Wrap(err, certerr.CodeConnection, "connect gateway")
	}

	contract := gw.GetNetwork(cfg.Channel).GetContract(cfg.Chaincode)
	return &fabricContract{contract: contract}, &connection{gateway: gw, conn: conn}, nil
}

type fabricContract struct {
	contract *client.Contract
}

func (c *fabricContract) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.contract.SubmitWithContext(ctx, name, client.WithArguments(args...))
}

func (c *fabricContract) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.contract.EvaluateWithContext(ctx, name, client.WithArguments(args...))
}

// connection closes the gateway before the gRPC connection it runs on.
type connection struct {
	gateway *client.Gateway
	conn    *grpc.ClientConn
}

func (c *connection) Close() error {
	return errors.Join(c.gateway.Close(), c.conn.Close())
}
