package decomposer

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category carried by error envelopes.
type ErrorKind string

// Error kinds surfaced to callers.
const (
	ErrorKindInvalidRequest         ErrorKind = "invalid_request"
	ErrorKindUnknownModel           ErrorKind = "unknown_model"
	ErrorKindProvider               ErrorKind = "provider_error"
	ErrorKindMalformedDecomposition ErrorKind = "malformed_decomposition"
	ErrorKindInternal               ErrorKind = "internal_error"
)

// ClientError reports whether the kind is the caller's fault.
func (k ErrorKind) ClientError() bool {
	return k == ErrorKindInvalidRequest || k == ErrorKindUnknownModel
}

// InvalidRequestError is returned for requests rejected before any provider call.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// UnknownModelError is returned when a logical model name is not registered.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("Unsupported model: %s", e.Model)
}

// Malformed decomposition reasons.
const (
	ReasonNoJSONObject   = "no well-formed JSON object found"
	ReasonSchemaMismatch = "schema mismatch"
)

// MalformedDecompositionError is returned when a provider reply cannot be
// normalized. Raw always holds the untouched provider text.
type MalformedDecompositionError struct {
	Reason string
	Detail string
	Raw    string
}

func (e *MalformedDecompositionError) Error() string {
	if e.Detail == "" {
		return "malformed decomposition: " + e.Reason
	}
	return fmt.Sprintf("malformed decomposition: %s: %s", e.Reason, e.Detail)
}

// classify maps a pipeline error to its envelope kind and, for malformed
// output, the raw provider text.
func classify(err error) (ErrorKind, *string) {
	var (
		invalid   *InvalidRequestError
		unknown   *UnknownModelError
		provider  *ProviderError
		malformed *MalformedDecompositionError
	)
	switch {
	case errors.As(err, &invalid):
		return ErrorKindInvalidRequest, nil
	case errors.As(err, &unknown):
		return ErrorKindUnknownModel, nil
	case errors.As(err, &provider):
		return ErrorKindProvider, nil
	case errors.As(err, &malformed):
		raw := malformed.Raw
		return ErrorKindMalformedDecomposition, &raw
	default:
		return ErrorKindInternal, nil
	}
}
