package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/config"
	"github.com/ekaya-inc/ekaya-feedback/pkg/mcp"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

func setupMCPHandler() (*http.ServeMux, *mockQueryService) {
	query := &mockQueryService{stats: models.NewStats(30)}
	mcpServer := mcp.NewFeedbackServer("test-version", query, zap.NewNop())
	mux := http.NewServeMux()
	NewMCPHandler(mcpServer, zap.NewNop(), config.MCPConfig{Enabled: true, LogRequests: true}).RegisterRoutes(mux)
	return mux, query
}

func postMCP(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolsList(t *testing.T) {
	mux, _ := setupMCPHandler()

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "2.0", response["jsonrpc"])
	assert.Equal(t, float64(1), response["id"])
}

func TestMCPHandler_ToolsCall(t *testing.T) {
	mux, query := setupMCPHandler()

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"feedback_stats","arguments":{"days":7}},"id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.NotEmpty(t, response.Result.Content)
	assert.Contains(t, response.Result.Content[0].Text, "total_count")
	assert.Equal(t, 7, query.lastDays)
}

func TestMCPHandler_RejectsNonPOST(t *testing.T) {
	mux, _ := setupMCPHandler()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "POST", rec.Header().Get("Allow"))
	}
}
