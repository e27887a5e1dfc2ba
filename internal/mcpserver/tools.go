package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/agent"
	"github.com/taskloop/taskloop/internal/common/logger"
)

// registerTools mirrors the agent tool registry: every tool the chat
// assistant can call is also callable over MCP, with the same JSON schema.
// Handlers proxy to the task API, which owns validation and execution.
func registerTools(s *server.MCPServer, cfg Config, log *logger.Logger) {
	for _, spec := range agent.Specs() {
		schema, err := json.Marshal(spec.Parameters)
		if err != nil {
			log.Error("failed to encode tool schema, skipping tool",
				zap.String("tool", spec.Name), zap.Error(err))
			continue
		}
		s.AddTool(
			mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema),
			callToolHandler(cfg, spec.Name, log),
		)
	}
}

func callToolHandler(cfg Config, name string, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		body, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode arguments: %v", err)), nil
		}

		url := fmt.Sprintf("%s/api/v1/tools/%s", cfg.APIURL, name)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIToken)

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			log.Error("tool call failed", zap.String("tool", name), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to call %s: %v", name, err)), nil
		}
		defer func() { _ = resp.Body.Close() }()

		var result json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
		}

		if resp.StatusCode >= 400 {
			return mcp.NewToolResultError(fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(result))), nil
		}

		formatted, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(formatted)), nil
	}
}
