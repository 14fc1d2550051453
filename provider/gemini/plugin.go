// Package gemini implements the Google Gemini v1 provider plugin (C5):
// generateContent / streamGenerateContent, grounded on the same adapter
// shape as the openai and anthropic plugins but shaped to Gemini's
// candidates/parts wire format.
package gemini

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

type Options struct {
	DefaultModel string
}

type Plugin struct {
	opts    Options
	baseURL string
	apiKey  string
}

func New(opts Options) *Plugin {
	return &Plugin{opts: opts, baseURL: "https://generativelanguage.googleapis.com/v1"}
}

func (p *Plugin) ID() string      { return "google" }
func (p *Plugin) Version() string { return "gemini-v1" }

func (p *Plugin) Initialize(_ context.Context, config map[string]any) error {
	apiKey, _ := config["apiKey"].(string)
	if apiKey == "" {
		return chat.New(chat.KindValidation, "gemini: apiKey is required")
	}
	p.apiKey = apiKey
	if baseURL, ok := config["baseUrl"].(string); ok && baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return nil
}

func (p *Plugin) SupportsModel(id string) bool { return id != "" }

type part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type requestBody struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool      `json:"tools,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []functionDecl `json:"functionDeclarations"`
}

type functionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
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
	body := requestBody{}
	for _, m := range req.Messages {
		if m.Role == chat.RoleSystem {
			sys := content{Role: "system", Parts: []part{{Text: flattenText(m.Content)}}}
			body.SystemInstruction = &sys
			continue
		}
		body.Contents = append(body.Contents, content{Role: geminiRole(m.Role), Parts: encodeParts(m.Content)})
	}
	gc := &generationConfig{TopP: req.TopP, MaxOutputTokens: req.MaxTokens}
	if capabilities == nil || capabilities.Temperature {
		gc.Temperature = req.Temperature
	}
	body.GenerationConfig = gc
	if len(req.Tools) > 0 {
		decls := make([]functionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, functionDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return transport.HTTPRequest{}, chat.Wrap(chat.KindValidation, "gemini: encode request", err)
	}

	method := "generateContent"
	if req.Stream {
		method = "streamGenerateContent"
	}
	url := fmt.Sprintf("%s/models/%s:%s", p.baseURL, modelID, method)
	return transport.HTTPRequest{
		URL:    url,
		Method: "POST",
		Headers: map[string]string{
			"x-goog-api-key": p.apiKey,
			"Content-Type":   "application/json",
		},
		Body: payload,
	}, nil
}

func geminiRole(r chat.Role) string {
	if r == chat.RoleAssistant {
		return "model"
	}
	return "user"
}

func flattenText(parts []chat.ContentPart) string {
	var sb strings.Builder
	for _, p := range parts {
		if t, ok := p.(chat.TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

func encodeParts(parts []chat.ContentPart) []part {
	out := make([]part, 0, len(parts))
	for _, cp := range parts {
		switch v := cp.(type) {
		case chat.TextPart:
			out = append(out, part{Text: v.Text})
		case chat.ToolUsePart:
			out = append(out, part{FunctionCall: &functionCall{Name: v.Name, Args: v.Input}})
		}
	}
	return out
}

type candidateShape struct {
	Content struct {
		Parts []struct {
			Text         string        `json:"text"`
			FunctionCall *functionCall `json:"functionCall"`
		} `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type responseEnvelope struct {
	Candidates    []candidateShape `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Plugin) ParseResponse(ctx context.Context, httpResp *transport.HTTPResponse, streaming bool) (provider.ParsedResponse, error) {
	if streaming {
		responseID := fmt.Sprintf("stream-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
		return provider.ParsedResponse{Stream: &streamIterator{reader: sse.NewReader(httpResp.Body), body: httpResp.Body, responseID: responseID}}, nil
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "gemini: read response", err)
	}
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return provider.ParsedResponse{}, chat.Wrap(chat.KindStreaming, "gemini: decode response", err)
	}
	var finishReason string
	msg := chat.Message{Role: chat.RoleAssistant}
	if len(env.Candidates) > 0 {
		cand := env.Candidates[0]
		finishReason = cand.FinishReason
		for _, pt := range cand.Content.Parts {
			if pt.Text != "" {
				msg.Content = append(msg.Content, chat.TextPart{Text: pt.Text})
			}
			if pt.FunctionCall != nil {
				msg.Content = append(msg.Content, chat.ToolUsePart{Name: pt.FunctionCall.Name, Input: pt.FunctionCall.Args})
			}
		}
	}
	msg.Metadata = map[string]string{"finishReason": finishReason}
	total := env.UsageMetadata.TotalTokenCount
	usage := &chat.Usage{
		PromptTokens:     env.UsageMetadata.PromptTokenCount,
		CompletionTokens: env.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      &total,
	}
	return provider.ParsedResponse{Message: &msg, Usage: usage}, nil
}

type streamIterator struct {
	reader     *sse.Reader
	body       io.Closer
	usage      *chat.Usage
	responseID string
	finished   bool
}

func (s *streamIterator) Next(ctx context.Context) (chat.StreamDelta, bool, error) {
	if s.finished {
		return chat.StreamDelta{}, true, nil
	}
	ev, err := s.reader.Next()
	if err == io.EOF {
		s.body.Close()
		s.finished = true
		return chat.StreamDelta{ID: s.responseID, Finished: true, Usage: s.usage}, false, nil
	}
	if err != nil {
		s.body.Close()
		return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "gemini: sse read", err)
	}
	if ev.Data == "" {
		return s.Next(ctx)
	}
	var env responseEnvelope
	if err := json.Unmarshal([]byte(ev.Data), &env); err != nil {
		s.body.Close()
		return chat.StreamDelta{}, false, chat.Wrap(chat.KindStreaming, "gemini: malformed chunk", err)
	}
	if len(env.Candidates) == 0 {
		return s.Next(ctx)
	}
	cand := env.Candidates[0]
	total := env.UsageMetadata.TotalTokenCount
	if total > 0 {
		s.usage = &chat.Usage{PromptTokens: env.UsageMetadata.PromptTokenCount, CompletionTokens: env.UsageMetadata.CandidatesTokenCount, TotalTokens: &total}
	}
	var contentParts []chat.ContentPart
	for _, pt := range cand.Content.Parts {
		if pt.Text != "" {
			contentParts = append(contentParts, chat.TextPart{Text: pt.Text})
		}
		if pt.FunctionCall != nil {
			contentParts = append(contentParts, chat.ToolUsePart{Name: pt.FunctionCall.Name, Input: pt.FunctionCall.Args})
		}
	}
	if cand.FinishReason != "" {
		s.body.Close()
		s.finished = true
		return chat.StreamDelta{ID: s.responseID, Finished: true, Usage: s.usage, Metadata: map[string]any{"finishReason": cand.FinishReason}}, false, nil
	}
	return chat.StreamDelta{ID: s.responseID, Delta: chat.Message{Role: chat.RoleAssistant, Content: contentParts}}, false, nil
}

func (p *Plugin) NormalizeError(err error, httpResp *transport.HTTPResponse) *chat.Error {
	if httpResp == nil {
		return chat.Wrap(chat.KindTransport, "gemini: request failed", err)
	}
	defer httpResp.Body.Close()
	data, _ := io.ReadAll(httpResp.Body)
	var envelope struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)

	kind := chat.KindProvider
	switch envelope.Error.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		kind = chat.KindAuth
	case "RESOURCE_EXHAUSTED":
		kind = chat.KindRateLimit
	case "DEADLINE_EXCEEDED":
		kind = chat.KindTimeout
	}
	e := chat.New(kind, fmt.Sprintf("gemini: %s", envelope.Error.Message))
	e.Provider = p.ID()
	e.Version = p.Version()
	e.HTTPStatus = httpResp.Status
	e.Code = envelope.Error.Status
	e.Retryable = kind == chat.KindRateLimit || httpResp.Status >= 500
	return e
}

func (p *Plugin) DetectTermination(deltaOrFinal any) chat.UnifiedTerminationSignal {
	var finishReason string
	var finished, hasFunctionCall bool
	switch v := deltaOrFinal.(type) {
	case chat.Message:
		finishReason = v.Metadata["finishReason"]
		finished = true
		hasFunctionCall = containsToolUse(v.Content)
	case chat.StreamDelta:
		if v.Finished {
			finished = true
			if v.Metadata != nil {
				if fr, ok := v.Metadata["finishReason"].(string); ok {
					finishReason = fr
				}
			}
		}
		hasFunctionCall = containsToolUse(v.Delta.Content)
	}
	if !finished {
		return chat.UnifiedTerminationSignal{ShouldTerminate: false, Source: "gemini", Reason: chat.ReasonUnknown, Confidence: chat.ConfidenceLow}
	}
	reason, confidence := mapFinishReason(finishReason)
	if finishReason == "STOP" && hasFunctionCall {
		reason, confidence = chat.ReasonToolUseRequired, chat.ConfidenceHigh
	}
	return chat.UnifiedTerminationSignal{ShouldTerminate: true, Source: "gemini", RawValue: finishReason, Reason: reason, Confidence: confidence}
}

func containsToolUse(parts []chat.ContentPart) bool {
	for _, p := range parts {
		if _, ok := p.(chat.ToolUsePart); ok {
			return true
		}
	}
	return false
}

func mapFinishReason(raw string) (chat.TerminationReason, chat.Confidence) {
	switch raw {
	case "STOP":
		return chat.ReasonNaturalCompletion, chat.ConfidenceHigh
	case "MAX_TOKENS":
		return chat.ReasonTokenLimitReached, chat.ConfidenceHigh
	case "SAFETY", "RECITATION":
		return chat.ReasonContentFiltered, chat.ConfidenceHigh
	case "":
		return chat.ReasonUnknown, chat.ConfidenceLow
	default:
		return chat.ReasonUnknown, chat.ConfidenceMedium
	}
}
