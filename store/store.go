package store

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacentio/canopy/wire"
)

const tracerName = "github.com/jacentio/canopy/store"

// Span attribute keys.
const (
	TraceAttributeKind = "canopy.kind"
	TraceAttributeID   = "canopy.id"
)

// Executor dispatches a named remote operation. request is one of the
// wire request bodies and response a pointer to the matching response
// body, which Execute fills in.
//
// Errors returned by an Executor reach the caller of the repository
// operation unchanged.
type Executor interface {
	Execute(ctx context.Context, method wire.Method, request, response any) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, method wire.Method, request, response any) error

func (f ExecutorFunc) Execute(ctx context.Context, method wire.Method, request, response any) error {
	return f(ctx, method, request, response)
}

// Store binds repositories to one execute capability.
type Store struct {
	exec   Executor
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a new Store instance.
func New(exec Executor, opts ...Option) *Store {
	s := &Store{
		exec:   exec,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the repository for the named kind.
func (s *Store) Kind(name string) *Repository {
	return &Repository{store: s, kind: name}
}

// lookup fetches the records for keys, inside the context's transaction
// if there is one.
func (s *Store) lookup(ctx context.Context, keys ...wire.Key) (*wire.LookupResponse, error) {
	req := &wire.LookupRequest{Keys: keys}
	if tx, err := txFromContext(ctx); err != nil {
		return nil, err
	} else if tx != nil {
		req.ReadOptions = &wire.ReadOptions{Transaction: tx.handle}
	}

	resp := &wire.LookupResponse{}
	if err := s.exec.Execute(ctx, wire.MethodLookup, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// runQuery runs q, inside the context's transaction if there is one.
func (s *Store) runQuery(ctx context.Context, q wire.Query) (*wire.RunQueryResponse, error) {
	req := &wire.RunQueryRequest{Query: q}
	if tx, err := txFromContext(ctx); err != nil {
		return nil, err
	} else if tx != nil {
		req.ReadOptions = &wire.ReadOptions{Transaction: tx.handle}
	}

	resp := &wire.RunQueryResponse{}
	if err := s.exec.Execute(ctx, wire.MethodRunQuery, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// blindWrite applies m immediately.
func (s *Store) blindWrite(ctx context.Context, m wire.Mutation) (*wire.BlindWriteResponse, error) {
	resp := &wire.BlindWriteResponse{}
	if err := s.exec.Execute(ctx, wire.MethodBlindWrite, &wire.BlindWriteRequest{Mutation: m}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
