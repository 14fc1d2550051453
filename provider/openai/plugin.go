// Package openai implements the OpenAI Responses v1 provider plugin (C5).
// It translates chat.ChatRequest into the Responses API wire shape and back,
// built on the shared transport/sse pipeline instead of a vendor SDK, so the
// generic retry/interceptor/SSE machinery sits beneath every vendor plugin
// uniformly.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/provider"
	"github.com/langadventurellc/burnside/sse"
	"github.com/langadventurellc/burnside/transport"
)

// Options configures the plugin's defaults. Credentials and vendor headers
// come from the config passed to Initialize, which stores them on the
// Plugin; they are not part of Options.
type Options struct {
	DefaultModel string
}

// Plugin implements provider.Plugin for OpenAI Responses v1 and, via
// NewCompatible, any vendor exposing an OpenAI-Responses-shaped wire
// protocol (xAI v1 per §4.5's per-vendor request shaping).
type Plugin struct {
	opts    Options
	baseURL string
	apiKey  string
	org     string
	project string
	id      string
	version string
}

// New constructs the plugin. Call Initialize before use.
func New(opts Options) *Plugin {
	return NewCompatible(opts, "openai", "responses-v1", "https://api.openai.com/v1")
}

// NewCompatible constructs a plugin for a vendor whose wire protocol is
// OpenAI-Responses-shaped but served under a different identity and base
// URL (e.g. xAI).
func NewCompatible(opts Options, id, version, baseURL string) *Plugin {
	return &Plugin{opts: opts, id: id, version: version, baseURL: baseURL}
}

func (p *Plugin) ID() string      { return p.id }
func (p *Plugin) Version() string { return p.version }

func (p *Plugin) Initialize(_ context.Context, config map[string]any) error {
	apiKey, _ := config["apiKey"].(string)
	if apiKey == "" {
		return chat.New(chat.KindValidation, "openai: apiKey is required")
	}
	p.apiKey = apiKey
	if baseURL, ok := config["baseUrl"].(string); ok && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	p.org, _ = config["organization"].(string)
	p.project, _ = config["project"].(string)
	return nil
}

func (p *Plugin) SupportsModel(id string) bool { return id != "" }

type requestBody struct {
	Model            string         `json:"model"`
	Input            []inputMessage `json:"input"`
	Stream           bool           `json:"stream"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxOutputTokens  *int           `json:"max_output_tokens,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	Tools            []toolShape    `json:"tools,omitempty"`
}

type inputMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolShape struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

func (p *Plugin) TranslateRequest(req chat.ChatRequest, capabilities *chat.Capabilities) (transport.HTTPRequest, error) {
	modelID := unqualify(req.Model)
	if modelID == "" {
		modelID = p.opts.DefaultModel
	}
	body := requestBody{
		Model:  modelID,
		Stream: req.Stream,
		Input:  make([]inputMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		body.Input = append(body.Input, inputMessage{
			Type:    "message",
			Role:    string(m.Role),
			Content: flattenText(m.Content),
		})
	}
	if capabilities == nil || capabilities.Temperature {
		body.Temperature = req.Temperature
	}
	body.MaxTokens(req.MaxTokens)
	body.TopP = req.TopP
	body.FrequencyPenalty = req.FrequencyPenalty
	body.PresencePenalty = req.PresencePenalty
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, toolShape{
			Type: "function",
			Function: functionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return transport.HTTPRequest{}, chat.Wrap(chat.KindValidation, "openai: encode request", err)
	}

	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
		"Content-Type":  "application/json",
	}
	if p.org != "" {
		headers["OpenAI-Organization"] = p.org
	}
	if p.project != "" {
		headers["OpenAI-Project"] = p.project
	}

	return transport.HTTPRequest{
		URL:     p.baseURL + "/responses",
		Method:  "POST",
		Headers: headers,
		Body:    payload,
	}, nil
}

// MaxTokens assigns MaxOutputTokens; a method keeps the zero-value rule (nil
// means omit) consistent with req.MaxTokens being an *int.
func (b *requestBody) MaxTokens(v *int) {
	b.MaxOutputTokens = v
}

func unqualify(model string) string {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[i+1:]
	}
	return model
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

type responseEnvelope struct {
	ID     string `json:"id"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Status string `json:"status"`
}

func (p *Plugin) ParseResponse(ctx context.Context, httpResp *transport.HTTPResponse, streaming bool) (provider.ParsedResponse, error) {
	if streaming {
		return p.parseStream(httpResp)
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "openai: read response", err)
	}
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "openai: decode response", err)
	}
	msg := chat.Message{Role: chat.RoleAssistant}
	for _, out := range env.Output {
		for _, c := range out.Content {
			if c.Text != "" {
				msg.Content = append(msg.Content, chat.TextPart{Text: c.Text})
			}
		}
	}
	total := env.Usage.TotalTokens
	usage := &chat.Usage{
		PromptTokens:     env.Usage.InputTokens,
		CompletionTokens: env.Usage.OutputTokens,
		TotalTokens:      &total,
	}
	msg.Metadata = map[string]string{"finishReason": env.Status}
	return provider.ParsedResponse{Message: &msg, Usage: usage}, nil
}

func (p *Plugin) parseStream(httpResp *transport.HTTPResponse) (provider.ParsedResponse, error) {
	reader := sse.NewReader(httpResp.Body)
	responseID := fmt.Sprintf("stream-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	return provider.ParsedResponse{Stream: &streamIterator{reader: reader, body: httpResp.Body, responseID: responseID}}, nil
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
			return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "openai: sse read", err)
		}
		if ev.Done {
			s.body.Close()
			return chat.StreamDelta{ID: s.responseID, Finished: true, Usage: s.usage,
				Metadata: map[string]any{"finishReason": "stop"}}, false, nil
		}
		if ev.Data == "" {
			continue
		}
		var chunk struct {
			Type  string `json:"type"`
			Delta string `json:"delta"`
			Usage *struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			s.body.Close()
			return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "openai: malformed chunk", err)
		}
		if chunk.Type == "error" {
			s.body.Close()
			msg := "openai: stream error"
			if chunk.Error != nil {
				msg = chunk.Error.Message
			}
			return chat.StreamDelta{}, false, chat.New(chat.KindProvider, msg)
		}
		if chunk.Type == "response.output_text.delta" && chunk.Delta != "" {
			return chat.StreamDelta{
				ID:    s.responseID,
				Delta: chat.Message{Role: chat.RoleAssistant, Content: []chat.ContentPart{chat.TextPart{Text: chunk.Delta}}},
			}, false, nil
		}
		if chunk.Type == "response.completed" && chunk.Usage != nil {
			total := chunk.Usage.InputTokens + chunk.Usage.OutputTokens
			s.usage = &chat.Usage{PromptTokens: chunk.Usage.InputTokens, CompletionTokens: chunk.Usage.OutputTokens, TotalTokens: &total}
		}
	}
}

func (p *Plugin) NormalizeError(err error, httpResp *transport.HTTPResponse) *chat.Error {
	if httpResp == nil {
		return chat.Wrap(chat.KindTransport, "openai: request failed", err)
	}
	defer httpResp.Body.Close()
	data, _ := io.ReadAll(httpResp.Body)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)

	e := chat.New(kindForStatus(httpResp.Status), fmt.Sprintf("openai: %s", envelope.Error.Message))
	e.Provider = p.ID()
	e.Version = p.Version()
	e.HTTPStatus = httpResp.Status
	e.Code = envelope.Error.Code
	e.Retryable = httpResp.Status == 429 || httpResp.Status >= 500
	return e
}

func kindForStatus(status int) chat.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return chat.KindAuth
	case status == 429:
		return chat.KindRateLimit
	case status == 408:
		return chat.KindTimeout
	case status >= 500:
		return chat.KindProvider
	default:
		return chat.KindProvider
	}
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
		return chat.UnifiedTerminationSignal{ShouldTerminate: false, Source: "openai", Reason: chat.ReasonUnknown, Confidence: chat.ConfidenceLow}
	}
	reason, confidence := mapFinishReason(finishReason)
	return chat.UnifiedTerminationSignal{
		ShouldTerminate: true,
		Source:          "openai",
		RawValue:        finishReason,
		Reason:          reason,
		Confidence:      confidence,
	}
}

func mapFinishReason(raw string) (chat.TerminationReason, chat.Confidence) {
	switch raw {
	case "stop", "completed":
		return chat.ReasonNaturalCompletion, chat.ConfidenceHigh
	case "length", "max_tokens":
		return chat.ReasonTokenLimitReached, chat.ConfidenceHigh
	case "content_filter":
		return chat.ReasonContentFiltered, chat.ConfidenceHigh
	case "tool_calls", "function_call":
		return chat.ReasonToolUseRequired, chat.ConfidenceHigh
	case "":
		return chat.ReasonUnknown, chat.ConfidenceLow
	default:
		return chat.ReasonUnknown, chat.ConfidenceMedium
	}
}
