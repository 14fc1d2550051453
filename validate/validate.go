// Package validate implements the shared validators (C10). The client
// façade's configuration validation calls Timeout and MCPServers; the
// message, content-part, tool-definition and schema validators are exported
// for callers and are not invoked by the façade. Schema-shaped validation (tool input schemas) uses
// github.com/santhosh-tekuri/jsonschema/v6; structural validation (ranges,
// required fields, uniqueness) is plain Go, following the ranges named in
// §6.
package validate

import (
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/langadventurellc/burnside/chat"
)

// Message validates the shared invariant that every assistant message with
// ToolUsePart content is eventually followed by covering tool results; this
// function validates only the structural part (non-empty role, and each
// content part via ContentPart) since cross-message coverage is the agent
// loop's responsibility. An empty content sequence is accepted for any role.
func Message(m chat.Message) error {
	if m.Role == "" {
		return chat.New(chat.KindValidation, "validate: message role is required")
	}
	for _, part := range m.Content {
		if err := ContentPart(part); err != nil {
			return err
		}
	}
	return nil
}

// ContentPart validates one content part's required fields.
func ContentPart(part chat.ContentPart) error {
	switch v := part.(type) {
	case chat.TextPart:
		if strings.TrimSpace(v.Text) == "" {
			return chat.New(chat.KindValidation, "validate: text part must be non-empty")
		}
	case chat.CodePart:
		if v.Text == "" {
			return chat.New(chat.KindValidation, "validate: code part must be non-empty")
		}
	case chat.ImagePart:
		if v.Data == "" || v.MimeType == "" {
			return chat.New(chat.KindValidation, "validate: image part requires data and mimeType")
		}
	case chat.DocumentPart:
		if v.Data == "" || v.MimeType == "" {
			return chat.New(chat.KindValidation, "validate: document part requires data and mimeType")
		}
	case chat.ToolUsePart:
		if v.ID == "" || v.Name == "" {
			return chat.New(chat.KindValidation, "validate: tool use part requires id and name")
		}
	case chat.ToolResultPart:
		if v.CallID == "" {
			return chat.New(chat.KindValidation, "validate: tool result part requires callId")
		}
	}
	return nil
}

// ToolDefinition validates a tool's name and structural input schema.
func ToolDefinition(def chat.ToolDefinition) error {
	if def.Name == "" {
		return chat.New(chat.KindValidation, "validate: tool name is required")
	}
	if def.InputSchema == nil {
		return chat.New(chat.KindValidation, "validate: tool inputSchema is required")
	}
	return Schema(def.InputSchema)
}

// Schema compiles schema to confirm it is structurally a valid JSON Schema
// document, without validating any particular instance against it.
func Schema(schema any) error {
	compiler := jsonschema.NewCompiler()
	const resourceURL = "mem://validate-schema.json"
	if err := compiler.AddResource(resourceURL, schema); err != nil {
		return chat.Wrap(chat.KindValidation, "validate: invalid schema", err)
	}
	if _, err := compiler.Compile(resourceURL); err != nil {
		return chat.Wrap(chat.KindValidation, "validate: invalid schema", err)
	}
	return nil
}

// Timeout validates an integer millisecond timeout falls in [1000, 300000],
// per §6's timeout range.
func Timeout(ms int) error {
	if ms < 1000 || ms > 300000 {
		return chat.New(chat.KindValidation, "validate: timeout must be in [1000, 300000] ms")
	}
	return nil
}

// MCPServerConfig mirrors the tools.mcpServers entry shape from §6.
type MCPServerConfig struct {
	Name    string
	URL     string
	Command string
	Args    []string
}

// MCPServers validates §6's MCP configuration rules: unique names, and each
// entry specifies exactly one of {url, command}, with url required to be
// HTTP(S). MCP transport itself is out of scope; only its configuration
// validation rules are implemented here.
func MCPServers(servers []MCPServerConfig) error {
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if s.Name == "" {
			return chat.New(chat.KindValidation, "validate: mcp server name is required")
		}
		if seen[s.Name] {
			return chat.New(chat.KindValidation, "validate: duplicate mcp server name: "+s.Name)
		}
		seen[s.Name] = true

		hasURL := s.URL != ""
		hasCommand := s.Command != ""
		if hasURL == hasCommand {
			return chat.New(chat.KindValidation, "validate: mcp server "+s.Name+" must specify exactly one of url or command")
		}
		if hasURL {
			u, err := url.Parse(s.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return chat.New(chat.KindValidation, "validate: mcp server "+s.Name+" url must be http(s)")
			}
		}
	}
	return nil
}

// DefaultProvider validates that defaultProvider, when set, names a key
// present in providers.
func DefaultProvider(defaultProvider string, providers map[string]any) error {
	if defaultProvider == "" {
		return nil
	}
	if _, ok := providers[defaultProvider]; !ok {
		return chat.New(chat.KindValidation, "validate: defaultProvider is not present in providers")
	}
	return nil
}
