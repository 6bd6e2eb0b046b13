package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/germanamz/brewmcp/pkg/tools/mcpserver"
	"github.com/germanamz/brewmcp/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestServer serves tools from an mcpserver.MCPServer over in-memory
// transports and returns a connected client. The server runs in a background
// goroutine tied to t.Cleanup.
func setupTestServer(t *testing.T, tools ...toolbox.Tool) *MCPClient {
	t.Helper()

	server := mcpserver.New("test-server", "1.0.0")
	server.Register(tools...)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client, err := newFromTransport(ctx, clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func echoHandler(_ context.Context, input json.RawMessage) (string, error) {
	return string(input), nil
}

func TestListTools(t *testing.T) {
	client := setupTestServer(t,
		toolbox.Tool{
			Name:        "search",
			Description: "Search for a Homebrew package.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"package":{"type":"string"}},"required":["package"]}`),
			Handler:     echoHandler,
		},
		toolbox.Tool{
			Name:        "doctor",
			Description: "Check your system for potential Homebrew problems.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     echoHandler,
		},
	)

	descs, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 2)

	byName := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}

	search, ok := byName["search"]
	require.True(t, ok)
	assert.Equal(t, "Search for a Homebrew package.", search.Description)
	assert.JSONEq(t, `{"type":"object","properties":{"package":{"type":"string"}},"required":["package"]}`, string(search.InputSchema))

	doctor, ok := byName["doctor"]
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"object"}`, string(doctor.InputSchema))
}

func TestHasTool(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "outdated",
		Description: "List outdated",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	})
	ctx := context.Background()

	ok, err := client.HasTool(ctx, "outdated")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.HasTool(ctx, "tap")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallToolSuccess(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "info",
		Description: "Echo input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	})

	text, err := client.CallTool(context.Background(), "info", json.RawMessage(`{"package":"wget"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"package":"wget"}`, text)
}

func TestCallToolNoArguments(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "list",
		Description: "List",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, _ json.RawMessage) (string, error) {
			return "git\nwget\n", nil
		},
	})

	text, err := client.CallTool(context.Background(), "list", nil)
	require.NoError(t, err)
	assert.Equal(t, "git\nwget\n", text)
}

func TestCallToolError(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "install",
		Description: "Always fails",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, _ json.RawMessage) (string, error) {
			return "", errors.New("Error: No available formula")
		},
	})

	text, err := client.CallTool(context.Background(), "install", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Empty(t, text)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "install", toolErr.Tool)
	assert.Equal(t, "Error: No available formula", toolErr.Text)
	assert.Equal(t, "Error: No available formula", err.Error())
}

func TestCallToolProtocolError(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "install",
		Description: "Rejects input",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler: func(_ context.Context, _ json.RawMessage) (string, error) {
			return "", fmt.Errorf("%w: package is required", toolbox.ErrInvalidInput)
		},
	})

	_, err := client.CallTool(context.Background(), "install", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "mcpclient: call install")
}

func TestCallToolInvalidArguments(t *testing.T) {
	client := setupTestServer(t)

	_, err := client.CallTool(context.Background(), "list", json.RawMessage(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a JSON object")
}

func TestNewCommand_MissingExecutable(t *testing.T) {
	_, err := NewCommand(context.Background(), exec.Command("/nonexistent/brewmcp-server"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcpclient: connect")
}

func TestClose(t *testing.T) {
	client := setupTestServer(t, toolbox.Tool{
		Name:        "noop",
		Description: "Does nothing",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	})

	assert.NoError(t, client.Close())
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name: "single item kept verbatim",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "git\nwget\n"}},
			},
			want: "git\nwget\n",
		},
		{
			name: "items concatenated",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: "a"},
					&mcp.TextContent{Text: "b"},
				},
			},
			want: "ab",
		},
		{
			name: "non-text skipped",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.ImageContent{MIMEType: "image/png"},
					&mcp.TextContent{Text: "ok"},
				},
			},
			want: "ok",
		},
		{
			name:   "empty content",
			result: &mcp.CallToolResult{Content: []mcp.Content{}},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, replyText(tt.result))
		})
	}
}

func TestDescribe(t *testing.T) {
	d, err := describe(&mcp.Tool{
		Name:        "install",
		Description: "Install a Homebrew package by name.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"package": map[string]any{"type": "string"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "install", d.Name)
	assert.Equal(t, "Install a Homebrew package by name.", d.Description)
	assert.JSONEq(t, `{"type":"object","properties":{"package":{"type":"string"}}}`, string(d.InputSchema))
}
