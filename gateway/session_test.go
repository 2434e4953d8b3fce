package gateway_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	gatewaypb "github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"certchain/certerr"
	"certchain/config"
	"certchain/gateway"
	"certchain/gateway/mocks"
)

type countingCloser struct {
	closed atomic.Int32
}

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

type SessionSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	dialer   *mocks.MockDialer
	contract *mocks.MockContract
	metrics  *gateway.Metrics
	cfg      config.Gateway
	session  *gateway.Session
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.dialer = mocks.NewMockDialer(s.ctrl)
	s.contract = mocks.NewMockContract(s.ctrl)
	s.metrics = gateway.NewMetrics(prometheus.NewRegistry())
	s.cfg = config.Gateway{
		MSPID:               "Org1MSP",
		PeerEndpoint:        "localhost:7051",
		Channel:             "mychannel",
		Chaincode:           "certificate",
		EvaluateTimeout:     time.Second,
		SubmitTimeout:       2 * time.Second,
		CommitStatusTimeout: time.Minute,
	}
	var err error
	s.session, err = gateway.New(s.cfg, zap.NewNop(), gateway.WithDialer(s.dialer), gateway.WithMetrics(s.metrics))
	s.Require().NoError(err)
}

func (s *SessionSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *SessionSuite) TestNew() {
	s.Run("requires channel and chaincode", func() {
		_, err := gateway.New(config.Gateway{}, nil)
		s.True(certerr.HasCode(err, certerr.CodeConnection))
	})

	s.Run("does not dial eagerly", func() {
		_, err := gateway.New(s.cfg, nil, gateway.WithDialer(s.dialer))
		s.NoError(err)
	})
}

func (s *SessionSuite) TestConnectsOnceForConcurrentCallers() {
	closer := &countingCloser{}
	s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, closer, nil).Times(1)
	s.contract.EXPECT().Evaluate(gomock.Any(), "query", "CERT-0001").Return([]byte(`{"id":"CERT-0001"}`), nil).Times(8)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.session.Evaluate(context.Background(), "query", "CERT-0001")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Connects.WithLabelValues("ok")))
	s.Equal(8.0, testutil.ToFloat64(s.metrics.Calls.WithLabelValues("evaluate", "query", "ok")))
}

func (s *SessionSuite) TestCloseThenReconnect() {
	first, second := &countingCloser{}, &countingCloser{}
	gomock.InOrder(
		s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, first, nil),
		s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, second, nil),
	)
	s.contract.EXPECT().Submit(gomock.Any(), "revoke", "CERT-0001", "fraud").Return([]byte(`{}`), nil).Times(2)

	_, err := s.session.Submit(context.Background(), "revoke", "CERT-0001", "fraud")
	s.Require().NoError(err)
	s.Require().NoError(s.session.Close())
	s.Equal(int32(1), first.closed.Load())
	s.NoError(s.session.Close(), "closing twice is a no-op")

	_, err = s.session.Submit(context.Background(), "revoke", "CERT-0001", "fraud")
	s.Require().NoError(err)
	s.Equal(int32(0), second.closed.Load())
}

func (s *SessionSuite) TestFailedConnectIsNotCached() {
	gomock.InOrder(
		s.dialer.EXPECT().Dial(s.cfg).Return(nil, nil, errors.New("dial tcp: connection refused")),
		s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, &countingCloser{}, nil),
	)
	s.contract.EXPECT().Evaluate(gomock.Any(), "history", "CERT-0001").Return([]byte(`[]`), nil)

	_, err := s.session.Evaluate(context.Background(), "history", "CERT-0001")
	s.True(certerr.HasCode(err, certerr.CodeConnection))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Connects.WithLabelValues("error")))

	out, err := s.session.Evaluate(context.Background(), "history", "CERT-0001")
	s.NoError(err)
	s.Equal("[]", string(out))
}

func (s *SessionSuite) TestCloseDuringConnectReleasesConnection() {
	abandoned, fresh := &countingCloser{}, &countingCloser{}
	dialing, release := make(chan struct{}), make(chan struct{})
	gomock.InOrder(
		s.dialer.EXPECT().Dial(s.cfg).DoAndReturn(func(config.Gateway) (gateway.Contract, io.Closer, error) {
			close(dialing)
			<-release
			return s.contract, abandoned, nil
		}),
		s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, fresh, nil),
	)
	s.contract.EXPECT().Evaluate(gomock.Any(), "query", "CERT-0001").Return([]byte(`{}`), nil)

	errs := make(chan error, 1)
	go func() {
		_, err := s.session.Evaluate(context.Background(), "query", "CERT-0001")
		errs <- err
	}()
	<-dialing
	s.Require().NoError(s.session.Close())
	close(release)

	err := <-errs
	s.True(certerr.HasCode(err, certerr.CodeConnection), err)
	s.Equal(int32(1), abandoned.closed.Load())

	_, err = s.session.Evaluate(context.Background(), "query", "CERT-0001")
	s.NoError(err)
	s.Equal(int32(0), fresh.closed.Load())
}

func (s *SessionSuite) TestIdentityErrorsKeepTheirCategory() {
	s.dialer.EXPECT().Dial(s.cfg).Return(nil, nil, certerr.New(certerr.CodeIdentity, "read certificate"))

	_, err := s.session.Submit(context.Background(), "issue", "CERT-0001", "Budi", "1", "BSc", "hash")
	s.True(certerr.HasCode(err, certerr.CodeIdentity))
}

func (s *SessionSuite) TestEvaluateRejectsMutatingOperations() {
	_, err := s.session.Evaluate(context.Background(), "issue", "CERT-0001", "Budi", "1", "BSc", "hash")
	s.True(certerr.HasCode(err, certerr.CodeValidation))
}

func (s *SessionSuite) TestDeadlines() {
	s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, &countingCloser{}, nil)

	s.Run("evaluate carries the evaluate deadline", func() {
		s.contract.EXPECT().Evaluate(gomock.Any(), "query", "CERT-0001").DoAndReturn(
			func(ctx context.Context, name string, args ...string) ([]byte, error) {
				deadline, ok := ctx.Deadline()
				s.True(ok)
				s.WithinDuration(time.Now().Add(s.cfg.EvaluateTimeout), deadline, 200*time.Millisecond)
				return []byte(`{}`), nil
			})
		_, err := s.session.Evaluate(context.Background(), "query", "CERT-0001")
		s.NoError(err)
	})

	s.Run("expiry is a timeout", func() {
		s.contract.EXPECT().Submit(gomock.Any(), "issue", gomock.Any()).DoAndReturn(
			func(ctx context.Context, name string, args ...string) ([]byte, error) {
				<-ctx.Done()
				return nil, status.FromContextError(ctx.Err()).Err()
			})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := s.session.Submit(ctx, "issue", "CERT-0001")
		s.True(certerr.HasCode(err, certerr.CodeTimeout), err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Calls.WithLabelValues("submit", "issue", "TIMEOUT")))
	})
}

func (s *SessionSuite) TestChaincodeErrorsPropagate() {
	s.dialer.EXPECT().Dial(s.cfg).Return(s.contract, &countingCloser{}, nil)
	s.contract.EXPECT().Evaluate(gomock.Any(), "query", "CERT-0404").Return(nil,
		status.Error(codes.Unknown, "evaluate call to endorser returned error: chaincode response 500, NOT_FOUND: no certificate matches \"CERT-0404\""))

	_, err := s.session.Evaluate(context.Background(), "query", "CERT-0404")
	s.True(certerr.HasCode(err, certerr.CodeNotFound))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Calls.WithLabelValues("evaluate", "query", "NOT_FOUND")))
}

type ClassifySuite struct {
	suite.Suite
}

func TestClassifySuite(t *testing.T) {
	suite.Run(t, new(ClassifySuite))
}

func (s *ClassifySuite) TestNil() {
	s.NoError(gateway.Classify("query", nil))
}

func (s *ClassifySuite) TestErrorDetails() {
	st := status.New(codes.Aborted, "failed to endorse transaction, see attached details for more info")
	st, err := st.WithDetails(&gatewaypb.ErrorDetail{
		Address: "peer0.org1.example.com:7051",
		MspId:   "Org1MSP",
		Message: "chaincode response 500, DUPLICATE: certificate CERT-0001 already exists",
	})
	s.Require().NoError(err)

	got := gateway.Classify("issue", st.Err())
	s.True(certerr.HasCode(got, certerr.CodeDuplicate))
	s.Contains(got.Error(), "CERT-0001 already exists")
}

func (s *ClassifySuite) TestTransport() {
	s.Run("unavailable peer", func() {
		got := gateway.Classify("query", status.Error(codes.Unavailable, "connection refused"))
		s.True(certerr.HasCode(got, certerr.CodeConnection))
	})

	s.Run("context deadline", func() {
		got := gateway.Classify("query", context.DeadlineExceeded)
		s.True(certerr.HasCode(got, certerr.CodeTimeout))
	})

	s.Run("uncategorized endorsement failure", func() {
		got := gateway.Classify("issue", status.Error(codes.Aborted, "failed to collect enough transaction endorsements"))
		s.True(certerr.HasCode(got, certerr.CodeEndorsement))
	})
}

func (s *ClassifySuite) TestCommitFailures() {
	s.Run("read conflict on issue means another issue won", func() {
		got := gateway.Classify("issue", &client.CommitError{TransactionID: "tx1", Code: peer.TxValidationCode_MVCC_READ_CONFLICT})
		s.True(certerr.HasCode(got, certerr.CodeDuplicate))
	})

	s.Run("read conflict elsewhere is a commit failure", func() {
		got := gateway.Classify("revoke", &client.CommitError{TransactionID: "tx2", Code: peer.TxValidationCode_MVCC_READ_CONFLICT})
		s.True(certerr.HasCode(got, certerr.CodeCommit))
	})

	s.Run("endorsement policy failure", func() {
		got := gateway.Classify("issue", &client.CommitError{TransactionID: "tx3", Code: peer.TxValidationCode_ENDORSEMENT_POLICY_FAILURE})
		s.True(certerr.HasCode(got, certerr.CodeCommit))
	})
}
