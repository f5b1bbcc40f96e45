package decomposer

import (
	"strings"
	"sync"
)

// Prompt is the structured system instruction sent with every request.
type Prompt struct {
	Role        string   // Required: who the model is acting as
	Task        string   // Required: what the model should do
	Example     string   // Optional: a literal example reply
	Schema      string   // Required: JSON schema of the reply
	Constraints []string // Rules the reply must follow
}

// Render converts the prompt to the system instruction string.
// Sections always appear in the same order.
func (p *Prompt) Render() string {
	var sections []string

	if p.Role != "" {
		sections = append(sections, p.Role)
	}
	if p.Task != "" {
		sections = append(sections, "Task: "+p.Task)
	}
	if p.Example != "" {
		sections = append(sections, "Return the output as a valid pure JSON object with the format:\n"+p.Example)
	}
	if p.Schema != "" {
		sections = append(sections, "Response JSON Schema:\n"+p.Schema)
	}
	if len(p.Constraints) > 0 {
		con := "Constraints:\n"
		for _, c := range p.Constraints {
			con += "- " + c + "\n"
		}
		sections = append(sections, strings.TrimSpace(con))
	}

	return strings.Join(sections, "\n\n")
}

const decompositionExample = `{
  "Subtask1": {
    "title": "1. Subtask Title",
    "steps": [
      "First task",
      "Second task"
    ]
  },
  "Subtask2": {
    "title": "2. Another Title",
    "steps": [
      "First task",
      "Second task"
    ]
  }
}`

// DecompositionPrompt returns the fixed task-decomposition instruction.
func DecompositionPrompt() *Prompt {
	return &Prompt{
		Role:    "You are a productivity assistant.",
		Task:    "Break any user-defined goal into clear, practical subtasks and steps.",
		Example: decompositionExample,
		Schema:  decompositionSchema(),
		Constraints: []string{
			"keys are SubtaskN in order, starting at Subtask1",
			"every subtask has a numbered title and an ordered list of steps",
			"do NOT include any text or Markdown formatting like ```json",
			"only return valid JSON",
		},
	}
}

var (
	systemOnce        sync.Once
	systemInstruction string
)

// SystemInstruction returns the rendered decomposition prompt.
func SystemInstruction() string {
	systemOnce.Do(func() {
		systemInstruction = DecompositionPrompt().Render()
	})
	return systemInstruction
}
