package decomposer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Factory builds the adapter serving a registry entry.
type Factory interface {
	Provider(entry Entry) (Provider, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(entry Entry) (Provider, error)

// Provider calls f(entry).
func (f FactoryFunc) Provider(entry Entry) (Provider, error) {
	return f(entry)
}

// Dispatcher resolves a logical model, calls its provider, normalizes the
// reply and records the outcome. Every request ends in an Envelope.
//
// A Dispatcher is safe for concurrent use; each request gets its own
// dispatch value and only the recorder is shared.
type Dispatcher struct {
	registry    *Registry
	factory     Factory
	recorder    Recorder
	system      string
	temperature float32
	timeout     time.Duration
	wrappers    []func(pipz.Chainable[*dispatch]) pipz.Chainable[*dispatch]
	pipeline    pipz.Chainable[*dispatch]
}

// NewDispatcher creates a Dispatcher over registry and factory.
func NewDispatcher(registry *Registry, factory Factory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		factory:     factory,
		recorder:    nopRecorder{},
		system:      SystemInstruction(),
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}

	var pipeline pipz.Chainable[*dispatch] = pipz.NewSequence("decompose",
		pipz.Apply("resolve", d.resolve),
		pipz.Apply("call", d.call),
		pipz.Apply("normalize", d.normalize),
	)
	for _, wrap := range d.wrappers {
		pipeline = wrap(pipeline)
	}
	d.pipeline = pipeline
	return d
}

// Registry returns the routing table.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Decompose runs one request end to end. It never returns an error: every
// failure becomes an error Envelope and every request is recorded exactly once.
func (d *Dispatcher) Decompose(ctx context.Context, req Request) Envelope {
	env, _ := d.execute(ctx, req)
	return env
}

func (d *Dispatcher) execute(ctx context.Context, req Request) (env Envelope, state *dispatch) {
	state = newDispatch(uuid.New().String(), req, d.temperature)

	capitan.Info(ctx, RequestStarted,
		RequestIDKey.Field(state.RequestID),
		ModelNameKey.Field(state.Model),
		QueryKey.Field(state.Query),
		TemperatureKey.Field(float64(state.Temperature)),
	)

	defer func() {
		if r := recover(); r != nil {
			env = errorEnvelope(state.RequestID, state.fail(fmt.Errorf("internal error: %v", r)))
		}
		d.finish(ctx, state, env)
	}()

	return d.run(ctx, state), state
}

// run drives the pipeline and converts its outcome to an envelope.
func (d *Dispatcher) run(ctx context.Context, state *dispatch) Envelope {
	if err := state.validate(); err != nil {
		return errorEnvelope(state.RequestID, state.fail(err))
	}

	_, err := d.pipeline.Process(ctx, state)
	switch {
	case state.Err != nil:
		return errorEnvelope(state.RequestID, state.Err)
	case err != nil:
		// Failures raised outside the stages, e.g. a cancelled rate limiter.
		return errorEnvelope(state.RequestID, state.fail(err))
	default:
		return successEnvelope(state.RequestID, state.Result)
	}
}

// finish records the outcome and emits the terminal hook.
func (d *Dispatcher) finish(ctx context.Context, state *dispatch, env Envelope) {
	d.recorder.Record(context.WithoutCancel(ctx), auditRecord(state, env))
	state.advance(StateLogged)
	state.advance(StateDone)

	if env.Succeeded() {
		output, err := env.Data.MarshalJSON()
		if err != nil {
			output = []byte("{}")
		}
		capitan.Info(ctx, RequestCompleted,
			RequestIDKey.Field(state.RequestID),
			ModelNameKey.Field(state.Model),
			ProviderKey.Field(state.Entry.Kind.String()),
			SubtaskCountKey.Field(env.Data.Len()),
			OutputKey.Field(string(output)),
		)
		return
	}

	fields := []capitan.Field{
		RequestIDKey.Field(state.RequestID),
		ModelNameKey.Field(state.Model),
		ErrorKey.Field(env.Message),
		ErrorKindKey.Field(string(env.Kind)),
		StateKey.Field(string(state.failedAt())),
	}
	if env.RawOutput != nil {
		fields = append(fields, ResponseKey.Field(*env.RawOutput))
	}
	capitan.Error(ctx, RequestFailed, fields...)
}

func (d *Dispatcher) resolve(_ context.Context, state *dispatch) (*dispatch, error) {
	state.advance(StateResolving)

	entry, err := d.registry.Resolve(state.Model)
	if err != nil {
		return state, state.fail(err)
	}
	provider, err := d.factory.Provider(entry)
	if err != nil {
		return state, state.fail(fmt.Errorf("build provider for %q: %w", entry.Name, err))
	}
	state.Entry = entry
	state.Provider = provider
	return state, nil
}

func (d *Dispatcher) call(ctx context.Context, state *dispatch) (*dispatch, error) {
	state.advance(StateCalling)

	callCtx, cancel := callContext(ctx, d.timeout)
	defer cancel()

	state.Calls++
	raw, err := state.Provider.Call(callCtx, d.system, state.Query, state.Temperature)
	if err != nil {
		var providerErr *ProviderError
		if !errors.As(err, &providerErr) {
			err = TransportError(callCtx, state.Provider.Name(), err)
		}
		return state, state.fail(err)
	}
	state.Raw = raw
	return state, nil
}

func (d *Dispatcher) normalize(_ context.Context, state *dispatch) (*dispatch, error) {
	state.advance(StateNormalizing)

	result, err := Normalize(state.Raw)
	if err != nil {
		return state, state.fail(err)
	}
	state.Result = result
	return state, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, AuditRecord) {}
