package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthTool_Execute(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "1.2.3")

	resp := callTool(t, mcpServer, "health", map[string]any{})
	require.Nil(t, resp.Error)
	require.NotEmpty(t, resp.Result.Content)

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
}

func TestHealthTool_VersionWithSpecialChars(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	versionWithQuotes := `1.0.0-beta"test`
	RegisterHealthTool(mcpServer, versionWithQuotes)

	resp := callTool(t, mcpServer, "health", map[string]any{})

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &health))
	assert.Equal(t, versionWithQuotes, health.Version)
}
