package provider

import (
	"encoding/json"
	"time"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/telemetry"
)

// ExtractedToolCall is the normalized shape every plugin's tool-call
// extraction produces, per §4.5's "Tool-call extraction" rule.
type ExtractedToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
	Metadata   map[string]any
}

// ExtractToolCalls inspects msg's native ToolUsePart content and its
// OpenAI-style metadata["tool_calls"] array, normalizing both shapes to
// ExtractedToolCall. A malformed arguments string is logged and skipped,
// never raised as an error.
func ExtractToolCalls(msg chat.Message, providerID string, log telemetry.Logger) []ExtractedToolCall {
	var out []ExtractedToolCall
	for _, part := range msg.Content {
		tu, ok := part.(chat.ToolUsePart)
		if !ok {
			continue
		}
		params, _ := tu.Input.(map[string]any)
		out = append(out, ExtractedToolCall{
			ID:         tu.ID,
			Name:       tu.Name,
			Parameters: params,
			Metadata:   map[string]any{"providerId": providerID, "timestamp": nowRFC3339()},
		})
	}

	raw, ok := msg.Metadata["tool_calls"]
	if !ok || raw == "" {
		return out
	}
	var calls []openAIToolCallShape
	if err := json.Unmarshal([]byte(raw), &calls); err != nil {
		if log != nil {
			log.Warn(nil, "provider: malformed metadata.tool_calls", "error", err.Error())
		}
		return out
	}
	for _, c := range calls {
		params, err := decodeArguments(c.Function.Arguments)
		if err != nil {
			if log != nil {
				log.Warn(nil, "provider: malformed tool call arguments", "call_id", c.ID, "error", err.Error())
			}
			continue
		}
		out = append(out, ExtractedToolCall{
			ID:         c.ID,
			Name:       c.Function.Name,
			Parameters: params,
			Metadata:   map[string]any{"providerId": providerID, "timestamp": nowRFC3339()},
		})
	}
	return out
}

type openAIToolCallShape struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// decodeArguments accepts arguments already expressed as a JSON object
// string or as a pre-parsed object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
