package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, ok := arguments(req)[key].(string)
	if !ok {
		return ""
	}
	return trimString(val)
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalInt extracts an optional integer argument, returning def when absent.
func getOptionalInt(req mcp.CallToolRequest, key string, def int) int {
	if val, ok := getOptionalFloat(req, key); ok {
		return int(val)
	}
	return def
}

// getStringSlice extracts an array of strings. A single string is split on commas.
func getStringSlice(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := arguments(req)[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && trimString(s) != "" {
				out = append(out, trimString(s))
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = trimString(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
