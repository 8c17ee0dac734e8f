package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the LLM output shape named verbatim in spec §4.6c: a thought,
// optionally a tool to invoke, optionally its args, optionally a status
// signaling phase completion or surrender.
type Action struct {
	Thought string          `json:"thought"`
	Tool    string          `json:"tool,omitempty"`
	Args    map[string]any  `json:"args,omitempty"`
	Status  string         `json:"status,omitempty"`
	raw     json.RawMessage
}

const (
	statusComplete   = "complete"
	statusIncomplete = "incomplete"
	statusBlocked    = "blocked"
)

func validStatus(s string) bool {
	return s == statusComplete || s == statusIncomplete || s == statusBlocked
}

// parseAction extracts the first JSON object found in text and decodes it
// as an Action. Models asked for "a JSON object" sometimes wrap it in prose
// or a fenced code block; this tolerates both.
func parseAction(text string) (Action, error) {
	obj := extractJSONObject(text)
	if obj == "" {
		return Action{}, fmt.Errorf("no JSON object found in model response")
	}
	var a Action
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return Action{}, fmt.Errorf("decoding action JSON: %w", err)
	}
	a.raw = json.RawMessage(obj)
	return a, nil
}

// extractJSONObject finds the first balanced {...} span in text, stripping
// a surrounding ```json fenced block if present.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// filteredArgs returns Args narrowed to the subset the Shell/Tool Surface
// recognizes, with nil/absent fields dropped, per §4.6c.
func (a Action) filteredArgs() map[string]any {
	allowed := map[string]bool{"command": true, "path": true, "content": true, "max_depth": true, "timeout": true}
	out := make(map[string]any, len(a.Args))
	for k, v := range a.Args {
		if allowed[k] && v != nil {
			out[k] = v
		}
	}
	return out
}

// canonicalArgs renders Args as a stable JSON string for loop-detection
// comparisons (same tool + same args, independent of key ordering).
func (a Action) canonicalArgs() string {
	// map iteration order is randomized; json.Marshal on a map already
	// sorts keys, so round-tripping through it is enough to canonicalize.
	b, err := json.Marshal(a.Args)
	if err != nil {
		return fmt.Sprintf("%v", a.Args)
	}
	return string(b)
}
