package decomposer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Subtask is one entry of a decomposition.
type Subtask struct {
	Key   string   `json:"-"`
	Title string   `json:"title" desc:"Numbered, human-readable subtask title"`
	Steps []string `json:"steps" desc:"Ordered, concrete steps for this subtask"`
}

// Decomposition is an ordered mapping of subtask keys to subtasks.
// It marshals to a JSON object whose keys keep their original order.
type Decomposition struct {
	Subtasks []Subtask
}

// Len returns the number of subtasks.
func (d Decomposition) Len() int {
	return len(d.Subtasks)
}

// Get returns the subtask stored under key.
func (d Decomposition) Get(key string) (Subtask, bool) {
	for _, s := range d.Subtasks {
		if s.Key == key {
			return s, true
		}
	}
	return Subtask{}, false
}

// Keys returns the subtask keys in order.
func (d Decomposition) Keys() []string {
	keys := make([]string, len(d.Subtasks))
	for i, s := range d.Subtasks {
		keys[i] = s.Key
	}
	return keys
}

// MarshalJSON writes the subtasks as a single object in key order.
func (d Decomposition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range d.Subtasks {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Key)
		if err != nil {
			return nil, err
		}
		steps := s.Steps
		if steps == nil {
			steps = []string{}
		}
		value, err := json.Marshal(struct {
			Title string   `json:"title"`
			Steps []string `json:"steps"`
		}{s.Title, steps})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON applies the same strict rules as Normalize.
func (d *Decomposition) UnmarshalJSON(data []byte) error {
	members, err := parseObject(data)
	if err != nil {
		return err
	}
	out, err := validateShape(members)
	if err != nil {
		return err
	}
	*d = out
	return nil
}

// fencePattern captures a brace-delimited object inside a ``` or ```json fence.
var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Normalize recovers a Decomposition from raw LLM text.
//
// The trimmed text is first parsed as a strict JSON object. Failing that, each
// fenced code block holding an object is tried in order. The first object found
// is then shape-checked: every value must carry a non-empty title and a steps
// array of strings. Nothing is coerced or invented.
func Normalize(raw string) (Decomposition, error) {
	members, err := parseObject([]byte(strings.TrimSpace(raw)))
	if err != nil {
		found := false
		for _, match := range fencePattern.FindAllStringSubmatch(raw, -1) {
			if m, ferr := parseObject([]byte(match[1])); ferr == nil {
				members, found = m, true
				break
			}
		}
		if !found {
			return Decomposition{}, &MalformedDecompositionError{Reason: ReasonNoJSONObject, Raw: raw}
		}
	}

	d, err := validateShape(members)
	if err != nil {
		var malformed *MalformedDecompositionError
		if errors.As(err, &malformed) {
			malformed.Raw = raw
		}
		return Decomposition{}, err
	}
	return d, nil
}

// member is one top-level key/value pair in document order.
type member struct {
	key   string
	value json.RawMessage
}

// parseObject strictly decodes a single JSON object and returns its members in
// order. A repeated key keeps its first position and its last value.
func parseObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var members []member
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if i, seen := index[key]; seen {
			members[i].value = value
			continue
		}
		index[key] = len(members)
		members = append(members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return members, nil
}

// validateShape checks every member against the subtask schema.
func validateShape(members []member) (Decomposition, error) {
	d := Decomposition{Subtasks: make([]Subtask, 0, len(members))}
	for _, m := range members {
		s, detail := decodeSubtask(m.value)
		if detail != "" {
			return Decomposition{}, &MalformedDecompositionError{
				Reason: ReasonSchemaMismatch,
				Detail: fmt.Sprintf("subtask %q: %s", m.key, detail),
			}
		}
		s.Key = m.key
		d.Subtasks = append(d.Subtasks, s)
	}
	return d, nil
}

// decodeSubtask returns a non-empty detail string when value does not match
// the subtask shape.
func decodeSubtask(value json.RawMessage) (Subtask, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil || fields == nil {
		return Subtask{}, "value is not an object"
	}

	var s Subtask
	rawTitle, ok := fields["title"]
	if !ok {
		return Subtask{}, "missing title"
	}
	if err := json.Unmarshal(rawTitle, &s.Title); err != nil || isNull(rawTitle) {
		return Subtask{}, "title is not a string"
	}
	if s.Title == "" {
		return Subtask{}, "title is empty"
	}

	rawSteps, ok := fields["steps"]
	if !ok {
		return Subtask{}, "missing steps"
	}
	var steps []json.RawMessage
	if err := json.Unmarshal(rawSteps, &steps); err != nil || isNull(rawSteps) {
		return Subtask{}, "steps is not an array"
	}
	s.Steps = make([]string, 0, len(steps))
	for i, raw := range steps {
		var step string
		if err := json.Unmarshal(raw, &step); err != nil || isNull(raw) {
			return Subtask{}, fmt.Sprintf("step %d is not a string", i)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
