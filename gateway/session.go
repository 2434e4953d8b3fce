// Package gateway manages the client's connection to the Fabric Gateway and
// routes registry operations through it as submits or evaluations.
package gateway

//go:generate mockgen -source=session.go -destination=mocks/mocks.go -package=mocks Contract,Dialer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"certchain/certerr"
	"certchain/config"
	"certchain/registry"
)

const (
	DefaultEvaluateTimeout = 5 * time.Second
	DefaultSubmitTimeout   = 15 * time.Second

	kindSubmit   = "submit"
	kindEvaluate = "evaluate"
)

// Contract is a chaincode reachable through an open gateway connection.
type Contract interface {
	Submit(ctx context.Context, name string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Dialer opens a gateway connection for cfg. The returned closer releases it.
type Dialer interface {
	Dial(cfg config.Gateway) (Contract, io.Closer, error)
}

// Session is a lazily connected, reusable gateway handle. It is safe for
// concurrent use; the first call connects and later calls share the
// connection until Close.
type Session struct {
	cfg     config.Gateway
	logger  *zap.Logger
	dialer  Dialer
	metrics *Metrics
	tracer  trace.Tracer

	group    singleflight.Group
	mu       sync.RWMutex
	contract Contract
	closer   io.Closer
	// closes counts Close calls; a dial that started before the latest Close
	// must not be cached.
	closes uint64
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the Fabric dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithMetrics records call outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTracer injects an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// New creates a Session. No connection is made until the first call.
func New(cfg config.Gateway, logger *zap.Logger, opts ...Option) (*Session, error) {
	if cfg.Channel == "" || cfg.Chaincode == "" {
		return nil, certerr.New(certerr.CodeConnection, "channel and chaincode are required")
	}
	if cfg.EvaluateTimeout <= 0 {
		cfg.EvaluateTimeout = DefaultEvaluateTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.CommitStatusTimeout <= 0 {
		cfg.CommitStatusTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger.Named("gateway"),
		dialer: fabricDialer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("certchain/gateway")
	}
	return s, nil
}

// Submit endorses, orders and commits a state-changing operation, waiting
// for the commit within the submit deadline.
func (s *Session) Submit(ctx context.Context, op string, args ...string) ([]byte, error) {
	return s.call(ctx, kindSubmit, op, args, s.cfg.SubmitTimeout, Contract.Submit)
}

// Evaluate runs a read-only operation on a single peer without ordering.
func (s *Session) Evaluate(ctx context.Context, op string, args ...string) ([]byte, error) {
	if registry.IsMutating(registry.Operation(op)) {
		return nil, certerr.New(certerr.CodeValidation, fmt.Sprintf("%s changes state and must be submitted", op))
	}
	return s.call(ctx, kindEvaluate, op, args, s.cfg.EvaluateTimeout, Contract.Evaluate)
}

// Close releases the connection. A later call reconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.contract = nil
	s.closer = nil
	s.logger.Info("gateway connection closed")
	return err
}

type invokeFunc func(c Contract, ctx context.Context, name string, args ...string) ([]byte, error)

func (s *Session) call(ctx context.Context, kind, op string, args []string, timeout time.Duration, invoke invokeFunc) ([]byte, error) {
	callID := uuid.NewString()
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "gateway."+kind, trace.WithAttributes(
		attribute.String("certchain.operation", op),
		attribute.String("certchain.call_id", callID),
	))
	defer span.End()

	out, err := s.invoke(ctx, op, args, timeout, invoke)

	outcome := "ok"
	if err != nil {
		outcome = string(certerr.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Warn("gateway call failed",
			zap.String("call_id", callID),
			zap.String("kind", kind),
			zap.String("operation", op),
			zap.String("code", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("gateway call succeeded",
			zap.String("call_id", callID),
			zap.String("kind", kind),
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	s.metrics.observeCall(kind, op, outcome, start)
	return out, err
}

func (s *Session) invoke(ctx context.Context, op string, args []string, timeout time.Duration, invoke invokeFunc) ([]byte, error) {
	contract, err := s.connect()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := invoke(contract, ctx, op, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// connect returns the cached contract or dials once for all concurrent
// callers. Failed attempts are not cached.
func (s *Session) connect() (Contract, error) {
	s.mu.RLock()
	contract := s.contract
	s.mu.RUnlock()
	if contract != nil {
		return contract, nil
	}

	v, err, _ := s.group.Do("connect", func() (any, error) {
		s.mu.RLock()
		existing := s.contract
		closes := s.closes
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		c, closer, err := s.dialer.Dial(s.cfg)
		s.metrics.observeConnect(err)
		if err != nil {
			s.logger.Error("gateway connect failed",
				zap.String("peer", s.cfg.PeerEndpoint),
				zap.String("msp_id", s.cfg.MSPID),
				zap.Error(err),
			)
			return nil, certerr.Wrap(err, certerr.CodeConnection, "connect to "+s.cfg.PeerEndpoint)
		}

		s.mu.Lock()
		if s.closes != closes {
			s.mu.Unlock()
			if cerr := closer.Close(); cerr != nil {
				s.logger.Warn("close abandoned gateway connection", zap.Error(cerr))
			}
			return nil, certerr.New(certerr.CodeConnection, "session closed while connecting to "+s.cfg.PeerEndpoint)
		}
		s.contract = c
		s.closer = closer
		s.mu.Unlock()
		s.logger.Info("gateway connected",
			zap.String("peer", s.cfg.PeerEndpoint),
			zap.String("channel", s.cfg.Channel),
			zap.String("chaincode", s.cfg.Chaincode),
		)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Contract), nil
}
