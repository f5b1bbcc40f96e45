package decomposer

import (
	"context"
	"strings"
	"time"
)

// Request is a caller's decomposition request.
type Request struct {
	Model       string   `json:"model,omitempty"`
	Query       string   `json:"query"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// State is a step of the dispatch state machine.
type State string

// Dispatch states.
const (
	StateReceived    State = "received"
	StateResolving   State = "resolving"
	StateCalling     State = "calling"
	StateNormalizing State = "normalizing"
	StateErrored     State = "errored"
	StateLogged      State = "logged"
	StateDone        State = "done"
)

// dispatch flows through the pipz pipeline. It carries one request from
// Received to Done and is never shared between requests.
type dispatch struct {
	// Input fields
	RequestID   string
	Model       string
	Query       string
	Temperature float32

	// Populated by pipeline stages
	Entry    Entry
	Provider Provider
	Raw      string
	Result   Decomposition
	Err      error
	Calls    int

	trail []State
}

func newDispatch(id string, req Request, defaultTemperature float32) *dispatch {
	d := &dispatch{
		RequestID:   id,
		Model:       req.Model,
		Query:       req.Query,
		Temperature: defaultTemperature,
		trail:       []State{StateReceived},
	}
	if d.Model == "" {
		d.Model = DefaultModel
	}
	if req.Temperature != nil {
		d.Temperature = *req.Temperature
	}
	return d
}

// validate rejects requests that must never reach a provider.
func (d *dispatch) validate() error {
	if strings.TrimSpace(d.Query) == "" {
		return &InvalidRequestError{Reason: "query must not be empty"}
	}
	if !validTemperature(d.Temperature) {
		return &InvalidRequestError{Reason: "temperature must be between 0 and 2"}
	}
	return nil
}

func (d *dispatch) advance(s State) {
	d.trail = append(d.trail, s)
}

// fail moves the dispatch to Errored and keeps err for the envelope.
func (d *dispatch) fail(err error) error {
	d.Err = err
	d.advance(StateErrored)
	return err
}

// State returns the latest state reached.
func (d *dispatch) State() State {
	return d.trail[len(d.trail)-1]
}

// failedAt returns the state the dispatch was in when it errored, or the
// empty state when it never errored.
func (d *dispatch) failedAt() State {
	for i := len(d.trail) - 1; i > 0; i-- {
		if d.trail[i] == StateErrored {
			return d.trail[i-1]
		}
	}
	return ""
}

// Trail returns every state visited, oldest first.
func (d *dispatch) Trail() []State {
	out := make([]State, len(d.trail))
	copy(out, d.trail)
	return out
}

// callContext bounds the provider call by timeout when one is set.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
