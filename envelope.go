package decomposer

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform result returned to callers. Exactly one of Data or
// Message is populated, as selected by Status.
type Envelope struct {
	Status    string         `json:"status"`
	RequestID string         `json:"request_id,omitempty"`
	Data      *Decomposition `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	Kind      ErrorKind      `json:"error_kind,omitempty"`
	RawOutput *string        `json:"raw_output,omitempty"`
}

// Succeeded reports whether the envelope carries a decomposition.
func (e Envelope) Succeeded() bool {
	return e.Status == StatusSuccess
}

// successEnvelope wraps a decomposition.
func successEnvelope(id string, d Decomposition) Envelope {
	return Envelope{Status: StatusSuccess, RequestID: id, Data: &d}
}

// errorEnvelope converts any pipeline error into the error variant.
func errorEnvelope(id string, err error) Envelope {
	kind, raw := classify(err)
	return Envelope{
		Status:    StatusError,
		RequestID: id,
		Message:   err.Error(),
		Kind:      kind,
		RawOutput: raw,
	}
}

// AuditRecord is the durable entry written for every dispatch.
type AuditRecord struct {
	Timestamp time.Time
	RequestID string
	Model     string
	Query     string
	Success   bool
	Response  string // serialized decomposition, set when Success
	Error     string // error message, set when !Success
}

// Recorder persists audit records. Implementations must be safe for
// concurrent use and must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, rec AuditRecord)
}

// auditRecord builds the record for a finished dispatch.
func auditRecord(d *dispatch, env Envelope) AuditRecord {
	rec := AuditRecord{
		RequestID: d.RequestID,
		Model:     d.Model,
		Query:     d.Query,
		Success:   env.Succeeded(),
	}
	if rec.Success {
		body, err := json.Marshal(env.Data)
		if err != nil {
			body = []byte("{}")
		}
		rec.Response = string(body)
	} else {
		rec.Error = env.Message
	}
	return rec
}
