// Package anthropic implements the Anthropic Messages 2023-06-01 provider
// plugin (C5), built on the shared transport/sse pipeline rather than
// anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/sse"
	"github.com/langadventurellc/burnside/transport"
)

// Options configures the plugin's defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
}

// Plugin implements provider.Plugin for Anthropic Messages 2023-06-01.
type Plugin struct {
	opts    Options
	baseURL string
	apiKey  string
}

func New(opts Options) *Plugin {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Plugin{opts: opts, baseURL: "https://api.anthropic.com/v1"}
}

func (p *Plugin) ID() string      { return "anthropic" }
func (p *Plugin) Version() string { return "2023-06-01" }

func (p *Plugin) Initialize(_ context.Context, config map[string]any) error {
	apiKey, _ := config["apiKey"].(string)
	if apiKey == "" {
		return chat.New(chat.KindValidation, "anthropic: apiKey is required")
	}
	p.apiKey = apiKey
	if baseURL, ok := config["baseUrl"].(string); ok && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return nil
}

func (p *Plugin) SupportsModel(id string) bool { return id != "" }

type messageShape struct {
	Role    string      `json:"role"`
	Content []anyContent `json:"content"`
}

// anyContent serializes any of text/tool_use/tool_result blocks.
type anyContent map[string]any

type requestBody struct {
	Model       string         `json:"model"`
	Messages    []messageShape `json:"messages"`
	System      string         `json:"system,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	Stream      bool           `json:"stream"`
	Tools       []toolShape    `json:"tools,omitempty"`
}

type toolShape struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

func unqualify(model string) string {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[i+1:]
	}
	return model
}

func (p *Plugin) TranslateRequest(req chat.ChatRequest, capabilities *chat.Capabilities) (transport.HTTPRequest, error) {
	modelID := unqualify(req.Model)
	if modelID == "" {
		modelID = p.opts.DefaultModel
	}
	body := requestBody{
		Model:     modelID,
		MaxTokens: p.opts.MaxTokens,
		Stream:    req.Stream,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	var system strings.Builder
	for _, m := range req.Messages {
		if m.Role == chat.RoleSystem {
			system.WriteString(flattenText(m.Content))
			continue
		}
		body.Messages = append(body.Messages, messageShape{
			Role:    string(m.Role),
			Content: encodeContent(m.Content),
		})
	}
	body.System = system.String()
	if capabilities == nil || capabilities.Temperature {
		body.Temperature = req.Temperature
	}
	body.TopP = req.TopP
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, toolShape{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return transport.HTTPRequest{}, chat.Wrap(chat.KindValidation, "anthropic: encode request", err)
	}
	return transport.HTTPRequest{
		URL:    p.baseURL + "/messages",
		Method: "POST",
		Headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": "2023-06-01",
			"Content-Type":      "application/json",
		},
		Body: payload,
	}, nil
}

func flattenText(parts []chat.ContentPart) string {
	var sb strings.Builder
	for _, part := range parts {
		if t, ok := part.(chat.TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func encodeContent(parts []chat.ContentPart) []anyContent {
	out := make([]anyContent, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case chat.TextPart:
			out = append(out, anyContent{"type": "text", "text": v.Text})
		case chat.ToolUsePart:
			out = append(out, anyContent{"type": "tool_use", "id": v.ID, "name": v.Name, "input": v.Input})
		case chat.ToolResultPart:
			out = append(out, anyContent{"type": "tool_result", "tool_use_id": v.CallID, "content": v.Output})
		}
	}
	return out
}

type responseEnvelope struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type      string `json:"type"`
		Text      string `json:"text"`
		ID        string `json:"id"`
		Name      string `json:"name"`
		Input     any    `json:"input"`
		Thinking  string `json:"thinking"`
		Signature string `json:"signature"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Plugin) ParseResponse(ctx context.Context, httpResp *transport.HTTPResponse, streaming bool) (provider.ParsedResponse, error) {
	if streaming {
		return provider.ParsedResponse{Stream: &streamIterator{reader: sse.NewReader(httpResp.Body), body: httpResp.Body}}, nil
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "anthropic: read response", err)
	}
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "anthropic: decode response", err)
	}
	msg := chat.Message{Role: chat.RoleAssistant, Metadata: map[string]string{"finishReason": env.StopReason}}
	for _, c := range env.Content {
		switch c.Type {
		case "text":
			msg.Content = append(msg.Content, chat.TextPart{Text: c.Text})
		case "tool_use":
			msg.Content = append(msg.Content, chat.ToolUsePart{ID: c.ID, Name: c.Name, Input: c.Input})
		case "thinking":
			msg.Content = append(msg.Content, chat.ThinkingPart{Text: c.Thinking, Signature: c.Signature})
		}
	}
	total := env.Usage.InputTokens + env.Usage.OutputTokens
	usage := &chat.Usage{PromptTokens: env.Usage.InputTokens, CompletionTokens: env.Usage.OutputTokens, TotalTokens: &total}
	return provider.ParsedResponse{Message: &msg, Usage: usage}, nil
}

type streamIterator struct {
	reader     *sse.Reader
	body       io.Closer
	responseID string
	usage      *chat.Usage
}

func (s *streamIterator) Next(ctx context.Context) (chat.StreamDelta, bool, error) {
	for {
		ev, err := s.reader.Next()
		if err == io.EOF {
			s.body.Close()
			return chat.StreamDelta{}, true, nil
		}
		if err != nil {
			s.body.Close()
			return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "anthropic: sse read", err)
		}
		if ev.Data == "" {
			continue
		}
		var chunk struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Message struct {
				ID         string `json:"id"`
				StopReason string `json:"stop_reason"`
				Usage      struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			} `json:"message"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			s.body.Close()
			return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "anthropic: malformed chunk", err)
		}
		switch chunk.Type {
		case "error":
			s.body.Close()
			msg := "anthropic: stream error"
			if chunk.Error != nil {
				msg = chunk.Error.Message
			}
			return chat.StreamDelta{}, false, chat.New(chat.KindProvider, msg)
		case "message_start":
			s.responseID = chunk.Message.ID
			continue
		case "content_block_delta":
			if chunk.Delta.Text == "" {
				continue
			}
			return chat.StreamDelta{
				ID:    s.responseID,
				Delta: chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: chunk.Delta.Text}}},
			}, false, nil
		case "message_delta":
			total := chunk.Message.Usage.InputTokens + chunk.Message.Usage.OutputTokens
			if total > 0 {
				s.usage = &chat.Usage{
					PromptTokens:     chunk.Message.Usage.InputTokens,
					CompletionTokens: chunk.Message.Usage.OutputTokens,
					TotalTokens:      &total,
				}
			}
			continue
		case "message_stop":
			s.body.Close()
			return chat.StreamDelta{
				ID:       s.responseID,
				Finished: true,
				Usage:    s.usage,
				Metadata: map[string]any{"finishReason": chunk.Message.StopReason},
			}, false, nil
		default:
			continue
		}
	}
}

func (p *Plugin) NormalizeError(err error, httpResp *transport.HTTPResponse) *chat.Error {
	if httpResp == nil {
		return chat.Wrap(chat.KindTransport, "anthropic: request failed", err)
	}
	defer httpResp.Body.Close()
	data, _ := io.ReadAll(httpResp.Body)
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)

	kind := chat.KindProvider
	switch {
	case envelope.Error.Type == "authentication_error" || httpResp.Status == 401:
		kind = chat.KindAuth
	case httpResp.Status == 429:
		kind = chat.KindRateLimit
	case httpResp.Status == 408:
		kind = chat.KindTimeout
	}
	e := chat.New(kind, fmt.Sprintf("anthropic: %s", envelope.Error.Message))
	e.Provider = p.ID()
	e.Version = p.Version()
	e.HTTPStatus = httpResp.Status
	e.Code = envelope.Error.Type
	e.Retryable = httpResp.Status == 429 || httpResp.Status >= 500
	return e
}

func (p *Plugin) DetectTermination(deltaOrFinal any) chat.UnifiedTerminationSignal {
	var finishReason string
	var finished bool
	switch v := deltaOrFinal.(type) {
	case chat.Message:
		finishReason = v.Metadata["finishReason"]
		finished = true
	case chat.StreamDelta:
		if v.Finished {
			finished = true
			if v.Metadata != nil {
				if fr, ok := v.Metadata["finishReason"].(string); ok {
					finishReason = fr
				}
			}
		}
	}
	if !finished {
		return chat.UnifiedTerminationSignal{ShouldTerminate: false, Source: "anthropic", Reason: chat.ReasonUnknown, Confidence: chat.ConfidenceLow}
	}
	reason, confidence := mapStopReason(finishReason)
	return chat.UnifiedTerminationSignal{ShouldTerminate: true, Source: "anthropic", RawValue: finishReason, Reason: reason, Confidence: confidence}
}

func mapStopReason(raw string) (chat.TerminationReason, chat.Confidence) {
	switch raw {
	case "end_turn", "stop_sequence":
		return chat.ReasonNaturalCompletion, chat.ConfidenceHigh
	case "max_tokens":
		return chat.ReasonTokenLimitReached, chat.ConfidenceHigh
	case "tool_use":
		return chat.ReasonToolUseRequired, chat.ConfidenceHigh
	case "":
		return chat.ReasonUnknown, chat.ConfidenceLow
	default:
		return chat.ReasonUnknown, chat.ConfidenceMedium
	}
}
