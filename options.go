package decomposer

import (
	"time"

	"github.com/zoobzio/pipz"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds every provider call. A call exceeding the duration fails
// with an UpstreamTimeout provider error. Zero disables the bound.
func WithTimeout(duration time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = duration
	}
}

// WithTemperature sets the temperature used when a request carries none.
func WithTemperature(temperature float32) Option {
	return func(d *Dispatcher) {
		d.temperature = temperature
	}
}

// WithSystemInstruction replaces the decomposition prompt.
func WithSystemInstruction(instruction string) Option {
	return func(d *Dispatcher) {
		d.system = instruction
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithRateLimit throttles dispatches before they reach a provider.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) {
		d.wrappers = append(d.wrappers, func(pipeline pipz.Chainable[*dispatch]) pipz.Chainable[*dispatch] {
			rateLimiter := pipz.NewRateLimiter[*dispatch]("rate-limit", rps, burst)
			return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
		})
	}
}
