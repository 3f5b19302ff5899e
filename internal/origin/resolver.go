package origin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"imagegate/internal/compute"
	"imagegate/internal/fallback"
	"imagegate/internal/keys"
	"imagegate/internal/metrics"
	"imagegate/internal/storage"
	"imagegate/pkg/logging/logging"
)

// Phase names the origin an UpstreamError came from.
type Phase string

const (
	PhasePrimary  Phase = "primary"
	PhaseCompute  Phase = "compute"
	PhaseFallback Phase = "fallback"
)

// UpstreamError is a failure that reaches the client unchanged.
type UpstreamError struct {
	Status      int
	Body        []byte
	ContentType string
	Phase       Phase
	Err         error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("origin: %s failed with status %d: %v", e.Phase, e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Request is one image request after path decoding and key encoding.
type Request struct {
	StorageKey string
	Path       keys.DecodedPath
	Directives []keys.Directive

	// Forwarded to the compute origin.
	Query  url.Values
	Header http.Header
}

// Result is a served response.
type Result struct {
	Decision     Decision
	Body         []byte
	ContentType  string
	CacheControl string

	// PrimaryStatus is the storage origin status that caused a cascade,
	// or 200 on a cache hit.
	PrimaryStatus int
	// Trace lists every state visited, Idle first.
	Trace []State
}

type Config struct {
	Store    storage.Store
	Engine   compute.Engine
	Fallback *fallback.Policy

	// WriteBackTimeout bounds the storage put after a compute success.
	// Defaults to 29s.
	WriteBackTimeout time.Duration
	// DisableWriteBack skips populating the storage origin.
	DisableWriteBack bool

	Logger *zap.Logger
	Now    func() time.Time
}

// Resolver runs the fallback state machine against real origins.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	store            storage.Store
	engine           compute.Engine
	fallback         *fallback.Policy
	writeBackTimeout time.Duration
	writeBack        bool
	logger           *zap.Logger
	now              func() time.Time
}

func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errors.New("origin: store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("origin: engine is required")
	}
	if cfg.Fallback == nil {
		cfg.Fallback = fallback.Disabled()
	}
	if cfg.WriteBackTimeout <= 0 {
		cfg.WriteBackTimeout = 29 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		store:            cfg.Store,
		engine:           cfg.Engine,
		fallback:         cfg.Fallback,
		writeBackTimeout: cfg.WriteBackTimeout,
		writeBack:        !cfg.DisableWriteBack,
		logger:           cfg.Logger.Named("origin"),
		now:              cfg.Now,
	}, nil
}

// run is the per-request walk through the machine.
type run struct {
	state State
	trace []State
}

func (r *run) step(e Event) error {
	next, err := Transition(r.state, e)
	if err != nil {
		return err
	}
	r.state = next
	r.trace = append(r.trace, next)
	return nil
}

// Resolve serves req from the storage origin, or regenerates it through the
// compute origin when the storage status is fallback eligible. Errors that
// reach the client are *UpstreamError.
func (r *Resolver) Resolve(ctx context.Context, req *Request) (*Result, error) {
	start := r.now()
	m := &run{state: Idle, trace: []State{Idle}}

	res, err := r.resolve(ctx, req, m)

	decision := DecisionFor(m.state)
	if err != nil {
		decision = DecisionError
	}
	metrics.OriginDecisionsTotal.WithLabelValues(decision.String()).Inc()

	fields := []zap.Field{
		zap.String("storage_key", req.StorageKey),
		zap.String("decision", decision.String()),
		zap.Stringer("final_state", m.state),
		zap.Stringers("trace", m.trace),
		zap.Duration("latency", r.now().Sub(start)),
	}
	if res != nil {
		fields = append(fields, zap.Int("primary_status", res.PrimaryStatus))
		res.Decision = decision
		res.Trace = m.trace
	}
	if err != nil {
		logging.L(ctx).Warn("origin_decision", append(fields, zap.Error(err))...)
	} else {
		logging.L(ctx).Info("origin_decision", fields...)
	}

	return res, err
}

func (r *Resolver) resolve(ctx context.Context, req *Request, m *run) (*Result, error) {
	if err := m.step(Event{Kind: EventStart}); err != nil {
		return nil, err
	}

	obj, err := r.store.Get(ctx, req.StorageKey)
	if err == nil && obj.Expired(r.now()) {
		err = &storage.StatusError{Code: http.StatusNotFound, Key: req.StorageKey, Err: errors.New("object expired")}
	}
	if err == nil {
		if err := m.step(Event{Kind: EventPrimaryFound}); err != nil {
			return nil, err
		}
		return &Result{
			Body:          obj.Body,
			ContentType:   obj.ContentType,
			CacheControl:  obj.CacheControl,
			PrimaryStatus: http.StatusOK,
		}, nil
	}
	// A caller that went away is not a storage fault.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	primaryStatus := storage.StatusOf(err)
	if stepErr := m.step(Event{Kind: EventPrimaryStatus, Status: primaryStatus}); stepErr != nil {
		return nil, stepErr
	}
	if m.state == PropagateError {
		return nil, primaryError(primaryStatus, err)
	}

	logging.L(ctx).Debug("primary origin miss, dispatching to compute",
		zap.String("storage_key", req.StorageKey),
		zap.Int("primary_status", primaryStatus),
		zap.Error(err),
	)

	// The compute call and its write-back outlive the client: their
	// purpose is the next request's cache hit.
	detached := context.WithoutCancel(ctx)

	computeStart := r.now()
	out, err := r.engine.Transform(detached, &compute.Request{
		Directory:  req.Path.Directory,
		Filename:   req.Path.Filename,
		Directives: req.Directives,
		Query:      req.Query,
		Header:     req.Header,
	})
	metrics.ComputeLatencySeconds.
		WithLabelValues(strconv.Itoa(compute.StatusOf(err))).
		Observe(r.now().Sub(computeStart).Seconds())

	if err == nil {
		if err := m.step(Event{Kind: EventComputeSucceeded}); err != nil {
			return nil, err
		}
		r.writeBackObject(detached, req.StorageKey, out)
		return &Result{
			Body:          out.Body,
			ContentType:   out.ContentType,
			CacheControl:  out.CacheControl,
			PrimaryStatus: primaryStatus,
		}, nil
	}

	if stepErr := m.step(Event{Kind: EventComputeFailed}); stepErr != nil {
		return nil, stepErr
	}
	computeErr := computeError(err)

	if !r.fallback.Enabled() {
		if stepErr := m.step(Event{Kind: EventFallbackDisabled}); stepErr != nil {
			return nil, stepErr
		}
		return nil, computeErr
	}
	if stepErr := m.step(Event{Kind: EventFallbackEnabled}); stepErr != nil {
		return nil, stepErr
	}

	logging.L(ctx).Warn("compute origin failed, serving default image",
		zap.String("storage_key", req.StorageKey),
		zap.Stringer("fallback_ref", r.fallback.Ref()),
		zap.Error(err),
	)

	asset, ferr := r.fallback.Resolve(detached)
	if ferr != nil {
		var se *storage.StatusError
		ue := &UpstreamError{Status: storage.StatusOf(ferr), Phase: PhaseFallback, Err: ferr}
		if errors.As(ferr, &se) {
			ue.Body = se.Body
		}
		return nil, ue
	}
	return &Result{
		Body:          asset.Body,
		ContentType:   asset.ContentType,
		CacheControl:  asset.CacheControl,
		PrimaryStatus: primaryStatus,
	}, nil
}

// writeBackObject stores a computed artifact under the key the next lookup
// will use. Failures are logged and counted only.
func (r *Resolver) writeBackObject(ctx context.Context, key string, out *compute.Result) {
	if !r.writeBack {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.writeBackTimeout)
	defer cancel()

	err := r.store.Put(ctx, key, &storage.Object{
		Body:         out.Body,
		ContentType:  out.ContentType,
		CacheControl: out.CacheControl,
		LastModified: r.now(),
	})
	if err != nil {
		metrics.WriteBackFailuresTotal.Inc()
		logging.L(ctx).Error("write_back_failed",
			zap.String("storage_key", key),
			zap.Error(err),
		)
		return
	}
	logging.L(ctx).Debug("write_back_completed",
		zap.String("storage_key", key),
		zap.Int("bytes", len(out.Body)),
	)
}

func primaryError(status int, err error) *UpstreamError {
	ue := &UpstreamError{Status: status, Phase: PhasePrimary, Err: err}
	var se *storage.StatusError
	if errors.As(err, &se) {
		ue.Body = se.Body
	}
	return ue
}

func computeError(err error) *UpstreamError {
	ue := &UpstreamError{Status: compute.StatusOf(err), Phase: PhaseCompute, Err: err}
	var te *compute.TransformError
	if errors.As(err, &te) {
		ue.Body = te.Body
		ue.ContentType = te.ContentType
	}
	return ue
}
