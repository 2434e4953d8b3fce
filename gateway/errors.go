package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	gatewaypb "github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"certchain/certerr"
	"certchain/registry"
)

// classify maps a failure from the Fabric Gateway onto the error taxonomy.
// Categories raised by the chaincode travel inside the gRPC status message
// or its ErrorDetail entries and are recovered from there.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if certerr.CodeOf(err) != "" {
		return err
	}

	st := status.Convert(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded), st.Code() == codes.DeadlineExceeded:
		return certerr.Wrap(err, certerr.CodeTimeout, fmt.Sprintf("%s: deadline exceeded", op))
	case errors.Is(err, context.Canceled), st.Code() == codes.Canceled:
		return certerr.Wrap(err, certerr.CodeTimeout, fmt.Sprintf("%s: cancelled", op))
	}

	var commitErr *client.CommitError
	if errors.As(err, &commitErr) {
		if commitErr.Code == peer.TxValidationCode_MVCC_READ_CONFLICT && op == string(registry.OpIssue) {
			return certerr.Wrap(err, certerr.CodeDuplicate, fmt.Sprintf("%s: transaction %s lost a concurrent write", op, commitErr.TransactionID))
		}
		return certerr.Wrap(err, certerr.CodeCommit, fmt.Sprintf("%s: transaction %s failed validation with %s", op, commitErr.TransactionID, commitErr.Code))
	}

	if ccErr, ok := chaincodeError(st); ok {
		return &certerr.Error{Code: ccErr.Code, Message: ccErr.Message, Err: err}
	}

	if st.Code() == codes.Unavailable {
		return certerr.Wrap(err, certerr.CodeConnection, fmt.Sprintf("%s: peer unavailable", op))
	}

	var statusErr *client.CommitStatusError
	if errors.As(err, &statusErr) {
		return certerr.Wrap(err, certerr.CodeCommit, fmt.Sprintf("%s: commit status unknown for transaction %s", op, statusErr.TransactionID))
	}
	return certerr.Wrap(err, certerr.CodeEndorsement, fmt.Sprintf("%s: %s", op, st.Message()))
}

// chaincodeError finds a categorized chaincode error in a gRPC status.
func chaincodeError(st *status.Status) (*certerr.Error, bool) {
	if e, ok := certerr.Parse(st.Message()); ok {
		return e, true
	}
	for _, detail := range st.Details() {
		d, ok := detail.(*gatewaypb.ErrorDetail)
		if !ok {
			continue
		}
		if e, ok := certerr.Parse(d.GetMessage()); ok {
			return e, true
		}
	}
	return nil, false
}
