package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// toolCall is a parsed tool request.
type toolCall struct {
	Tool      ToolKind
	Arguments json.RawMessage
}

// fencedReply matches a reply that is exactly one fenced code block,
// optionally tagged json.
var fencedReply = regexp.MustCompile("(?s)^```(?:json)?\\s*(\\{.*\\})\\s*```$")

// parseReply classifies a model reply. Only a reply that is, as a whole,
// one JSON object (bare or in a single fenced block) carrying a "tool" key
// or a "tool_calls" array is a tool request. A request that cannot be
// decoded into a call yields an error describing why. Anything else,
// including prose that quotes JSON, is a final answer and call is nil.
func parseReply(content string) (*toolCall, error) {
	candidate := strings.TrimSpace(content)
	if m := fencedReply.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(candidate, "{") {
		return nil, nil
	}

	var req struct {
		Tool      *string         `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
		ToolCalls []struct {
			Name      string          `json:"name"`
			Tool      string          `json:"tool"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"tool_calls"`
	}
	dec := json.NewDecoder(strings.NewReader(candidate))
	if err := dec.Decode(&req); err != nil {
		if looksLikeToolRequest(candidate) {
			return nil, err
		}
		return nil, nil
	}
	if strings.TrimSpace(candidate[dec.InputOffset():]) != "" {
		// Text after the object: prose, not a request.
		return nil, nil
	}

	switch {
	case req.Tool != nil:
		if *req.Tool == "" {
			return nil, errors.New(`empty "tool" field`)
		}
		return &toolCall{Tool: ToolKind(*req.Tool), Arguments: unquoteArgs(req.Arguments)}, nil
	case req.ToolCalls != nil:
		if len(req.ToolCalls) == 0 {
			return nil, errors.New(`empty "tool_calls" array`)
		}
		first := req.ToolCalls[0]
		name := firstNonEmpty(first.Name, first.Tool)
		if name == "" {
			return nil, errors.New(`tool call without a name`)
		}
		return &toolCall{Tool: ToolKind(name), Arguments: unquoteArgs(first.Arguments)}, nil
	default:
		return nil, nil
	}
}

// looksLikeToolRequest reports whether undecodable text names a tool key,
// so a truncated request is reported back instead of ending the run.
func looksLikeToolRequest(text string) bool {
	return strings.Contains(text, `"tool"`) || strings.Contains(text, `"tool_calls"`)
}

// unquoteArgs accepts arguments sent as a JSON string holding an object,
// as OpenAI-style tool calls do.
func unquoteArgs(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return raw
	}
	return json.RawMessage(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
