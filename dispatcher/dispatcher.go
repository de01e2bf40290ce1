// Package dispatcher turns one request into one cache operation: restore the
// snapshot, apply get or set, save the result and, if configured, schedule a
// background redeploy.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/lru"
	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

// Store is the part of the snapshot store the dispatcher needs.
type Store interface {
	Restore(ctx context.Context) (*lru.Cache, error)
	Save(ctx context.Context, cache *lru.Cache) error
}

type Options struct {
	// PersistReads saves the snapshot after a get so that read recency
	// survives between invocations.
	PersistReads bool
	DefaultValue string
	FunctionName string
	Trigger      types.RedeployTrigger
	Logger       types.Logger
	Metrics      types.MetricsManager
}

type Dispatcher struct {
	store        Store
	persistReads bool
	defaultValue string
	functionName string
	trigger      types.RedeployTrigger
	logger       types.Logger
	metrics      types.MetricsManager

	// mu serializes restore through save within this process. Sibling
	// instances still race on the shared record, last writer wins.
	mu sync.Mutex
}

func New(store Store, opts Options) (*Dispatcher, error) {
	if store == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "store is required")
	}

	if opts.Logger == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "logger is required")
	}

	if opts.DefaultValue == "" {
		opts.DefaultValue = types.DefaultRequestValue
	}

	return &Dispatcher{
		store:        store,
		persistReads: opts.PersistReads,
		defaultValue: opts.DefaultValue,
		functionName: opts.FunctionName,
		trigger:      opts.Trigger,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}, nil
}

// Handle serves one request. User mistakes produce a normal response;
// the returned error is reserved for persistence failures and always wraps
// types.ErrInternalError.
func (d *Dispatcher) Handle(ctx context.Context, req types.Request) (types.Response, error) {
	ctx, id := ensureInvocationID(ctx)
	log := []zap.Field{
		zap.String("invocation_id", id),
		zap.String("operation", req.Operation),
		zap.String("key", req.Key),
	}

	if req.Key == "" || (req.Operation != types.OperationGet && req.Operation != types.OperationSet) {
		d.logger.Debug("Invalid command", log...)
		d.count(req.Operation, "invalid")
		return InvalidResponse(), nil
	}

	start := time.Now()
	defer d.observe(req.Operation, start)

	d.mu.Lock()
	defer d.mu.Unlock()

	cache, err := d.store.Restore(ctx)
	if err != nil {
		d.logger.Error("Failed to restore cache", append(log, zap.Error(err))...)
		d.count(req.Operation, "error")
		return types.Response{}, types.Chain(types.ErrInternalError, types.WrapError(err, "restore"))
	}

	var resp types.Response
	var result string
	save := true

	switch req.Operation {
	case types.OperationGet:
		value, ok := cache.Get(req.Key)
		if ok {
			resp, result = types.Response{Value: value, Msg: types.MsgGetSuccess}, "hit"
		} else {
			resp, result = types.Response{Value: types.NullValue, Msg: types.MsgKeyNotInCache}, "miss"
		}
		save = d.persistReads

	case types.OperationSet:
		evicted, ok := cache.Put(req.Key, req.Value)
		if ok {
			d.logger.Debug("Evicted least recently used entry", append(log, zap.String("evicted", evicted.Key))...)
			if d.metrics != nil {
				d.metrics.Counter("cache_evictions_total", nil).Inc()
			}
		}
		resp, result = types.Response{Value: req.Value, Msg: types.MsgSetSuccess}, "stored"
	}

	if save {
		if err := d.store.Save(ctx, cache); err != nil {
			d.logger.Error("Failed to save cache", append(log, zap.Error(err))...)
			d.count(req.Operation, "error")
			return types.Response{}, types.Chain(types.ErrInternalError, types.WrapError(err, "save"))
		}
	}

	d.count(req.Operation, result)
	d.logger.Debug("Request handled", append(log, zap.String("result", result), zap.Int("entries", cache.Len()))...)

	if d.trigger != nil && d.functionName != "" {
		d.trigger.Trigger(d.functionName)
	}

	return resp, nil
}

// HandleRaw decodes a JSON request, handles it and encodes the response.
// Payloads that do not decode are answered like an unknown command.
func (d *Dispatcher) HandleRaw(ctx context.Context, payload []byte) ([]byte, error) {
	resp, err := d.Handle(ctx, d.DecodeRequest(payload))
	if err != nil {
		return nil, err
	}

	return utils.Marshal(resp)
}

type rawRequest struct {
	Operation *string `json:"operation"`
	Key       *string `json:"key"`
	Value     *string `json:"value"`
}

// DecodeRequest fills in the default value when the payload has none. A
// payload that is not a JSON object decodes to an empty, invalid request.
func (d *Dispatcher) DecodeRequest(payload []byte) types.Request {
	var raw rawRequest
	if err := utils.Unmarshal(payload, &raw); err != nil {
		d.logger.Debug("Undecodable request payload", zap.Error(err), zap.Int("bytes", len(payload)))
		return types.Request{}
	}

	req := types.Request{Value: d.defaultValue}
	if raw.Operation != nil {
		req.Operation = *raw.Operation
	}
	if raw.Key != nil {
		req.Key = *raw.Key
	}
	if raw.Value != nil {
		req.Value = *raw.Value
	}

	return req
}

func InvalidResponse() types.Response {
	return types.Response{Value: types.NullValue, Msg: types.MsgInvalidCommand}
}

func (d *Dispatcher) count(operation, result string) {
	if d.metrics == nil {
		return
	}

	if operation != types.OperationGet && operation != types.OperationSet {
		operation = "unknown"
	}

	d.metrics.Counter("cache_requests_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()
}

func (d *Dispatcher) observe(operation string, start time.Time) {
	if d.metrics == nil {
		return
	}

	d.metrics.Histogram("cache_request_duration_seconds",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}

type invocationIDKey struct{}

func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string)
	return id
}

func ensureInvocationID(ctx context.Context) (context.Context, string) {
	if id := InvocationID(ctx); id != "" {
		return ctx, id
	}

	id := uuid.New().String()
	return WithInvocationID(ctx, id), id
}
