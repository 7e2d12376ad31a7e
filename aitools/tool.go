package aitools

import (
	"context"
	"net/http"
)

// Tool defines the interface for tools exposed to a conversation
type Tool interface {
	// ToolName returns the name of the tool
	ToolName() string

	// ToolDescription returns a description of what the tool does
	ToolDescription() string

	// ToolPayloadSchema returns the JSON schema for the tool's input parameters
	ToolPayloadSchema() Schema

	// Call executes the tool with the given JSON parameters and returns a
	// stringified response. Failures are reported in the response, not as
	// Go errors, so the model can react to them.
	Call(ctx context.Context, params string) string
}

// Builtin returns the named tool a profile may grant to its agents
func Builtin(name string) (Tool, bool) {
	switch name {
	case "bash":
		return NewBashTool(), true
	case "http_get":
		return NewHTTPTool(http.MethodGet), true
	case "http_post":
		return NewHTTPTool(http.MethodPost), true
	case "http_put":
		return NewHTTPTool(http.MethodPut), true
	case "http_delete":
		return NewHTTPTool(http.MethodDelete), true
	}
	return nil, false
}

// BuiltinNames lists the tools Builtin knows
func BuiltinNames() []string {
	return []string{"bash", "http_get", "http_post", "http_put", "http_delete"}
}
