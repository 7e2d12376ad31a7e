package aitools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "conductor"

// maxResponseBody bounds the response bytes returned to the model
const maxResponseBody = 256 * 1024

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// HTTPTool performs requests of one method. POST and PUT accept a body.
type HTTPTool struct {
	Method string
}

func NewHTTPTool(method string) *HTTPTool {
	return &HTTPTool{Method: method}
}

func (t *HTTPTool) hasBody() bool {
	return t.Method == http.MethodPost || t.Method == http.MethodPut
}

func (t *HTTPTool) ToolName() string {
	return "http_" + strings.ToLower(t.Method)
}

func (t *HTTPTool) ToolDescription() string {
	if t.hasBody() {
		return fmt.Sprintf("Performs an HTTP %s request with a body and returns the status and response body. Supports JSON, form data and plain text content types.", t.Method)
	}
	return fmt.Sprintf("Performs an HTTP %s request and returns the status and response body.", t.Method)
}

func (t *HTTPTool) ToolPayloadSchema() Schema {
	props := PropertyMap{
		"url": {
			Type:        TypeString,
			Description: "The URL to send the request to",
		},
		"headers": {
			Type:        TypeObject,
			Description: "Optional headers to include in the request (key-value pairs)",
		},
	}
	if t.hasBody() {
		props["body"] = Property{
			Type:        TypeObject,
			Description: "The body to send (object for JSON/form, string for text)",
		}
		props["content_type"] = Property{
			Type:        TypeString,
			Description: "Content type: 'json' (default), 'form', or 'text'",
		}
	}
	return Schema{Type: TypeObject, Properties: props, Required: []string{"url"}}
}

type httpParams struct {
	URL         string            `json:"url"`
	Body        any               `json:"body"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers"`
}

func (t *HTTPTool) Call(ctx context.Context, params string) string {
	var p httpParams
	if err := t.ToolPayloadSchema().Decode(params, &p); err != nil {
		return "Error: " + err.Error()
	}

	var body io.Reader
	var contentType string
	if t.hasBody() {
		var err error
		if body, contentType, err = encodeBody(p); err != nil {
			return "Error: " + err.Error()
		}
	}

	req, err := http.NewRequestWithContext(ctx, t.Method, p.URL, body)
	if err != nil {
		return "Error: failed to create request - " + err.Error()
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "Error: request failed - " + err.Error()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return "Error: failed to read response - " + err.Error()
	}
	out := fmt.Sprintf("Status: %s\n\n%s", resp.Status, data[:min(len(data), maxResponseBody)])
	if len(data) > maxResponseBody {
		out += "\n[response truncated]"
	}
	return out
}

func encodeBody(p httpParams) (io.Reader, string, error) {
	if p.Body == nil {
		return nil, "", nil
	}

	switch ct := p.ContentType; ct {
	case "", "json":
		b, err := json.Marshal(p.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal JSON body - %v", err)
		}
		return bytes.NewReader(b), "application/json", nil

	case "form":
		fields, ok := p.Body.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("form content_type requires body to be an object")
		}
		values := make(url.Values)
		for k, v := range fields {
			values.Set(k, fmt.Sprint(v))
		}
		return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", nil

	case "text":
		text, ok := p.Body.(string)
		if !ok {
			return nil, "", fmt.Errorf("text content_type requires body to be a string")
		}
		return strings.NewReader(text), "text/plain", nil

	default:
		return nil, "", fmt.Errorf("unsupported content_type '%s' - use 'json', 'form', or 'text'", ct)
	}
}
