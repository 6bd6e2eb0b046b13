package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/germanamz/brewmcp/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, input json.RawMessage) (string, error) {
	return string(input), nil
}

func errorHandler(_ context.Context, _ json.RawMessage) (string, error) {
	return "", errors.New("tool failed")
}

func invalidHandler(_ context.Context, _ json.RawMessage) (string, error) {
	return "", fmt.Errorf("install: %w: missing package", toolbox.ErrInvalidInput)
}

func newTestTool(name string) toolbox.Tool {
	return toolbox.Tool{
		Name:        name,
		Description: "Test tool: " + name,
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     echoHandler,
	}
}

// connect runs s over in-memory transports and returns a connected client
// session. The server goroutine is tied to t.Cleanup.
func connect(t *testing.T, s *MCPServer) *mcp.ClientSession {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.Run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// setupTestClient creates an MCPServer with tools and returns a connected
// client session.
func setupTestClient(t *testing.T, tools ...toolbox.Tool) *mcp.ClientSession {
	t.Helper()

	s := New("test-server", "1.0.0")
	s.Register(tools...)

	return connect(t, s)
}

func TestNew(t *testing.T) {
	s := New("srv", "1.0.0", WithInstructions("manage packages"))
	assert.NotNil(t, s.server)
}

func TestInitializeResult(t *testing.T) {
	s := New("homebrew-mcp", "0.1.0", WithInstructions("manage packages"))
	session := connect(t, s)

	initRes := session.InitializeResult()
	require.NotNil(t, initRes)
	assert.Equal(t, "homebrew-mcp", initRes.ServerInfo.Name)
	assert.Equal(t, "0.1.0", initRes.ServerInfo.Version)
	assert.Equal(t, "manage packages", initRes.Instructions)
}

func TestListTools(t *testing.T) {
	session := setupTestClient(t,
		newTestTool("echo"),
		toolbox.Tool{
			Name:        "greet",
			Description: "Say hello",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
			Handler:     echoHandler,
		},
	)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Tools, 2)

	toolsByName := make(map[string]*mcp.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		toolsByName[tool.Name] = tool
	}

	echo, ok := toolsByName["echo"]
	require.True(t, ok)
	assert.Equal(t, "Test tool: echo", echo.Description)

	greet, ok := toolsByName["greet"]
	require.True(t, ok)
	assert.Equal(t, "Say hello", greet.Description)
}

func TestToolCallSuccess(t *testing.T) {
	session := setupTestClient(t, newTestTool("echo"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"msg": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"msg":"hello"}`, tc.Text)
}

func TestToolCallNilArguments(t *testing.T) {
	session := setupTestClient(t, newTestTool("echo"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "echo"})
	require.NoError(t, err)

	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, tc.Text)
}

func TestToolCallHandlerError(t *testing.T) {
	session := setupTestClient(t, toolbox.Tool{
		Name:        "fail",
		Description: "Always fails",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     errorHandler,
	})

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "fail",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "tool failed", tc.Text)
}

func TestToolCallInvalidInputIsProtocolError(t *testing.T) {
	session := setupTestClient(t, toolbox.Tool{
		Name:        "install",
		Description: "Install",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Handler:     invalidHandler,
	})

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "install",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "missing package")
}

func TestToolCallNotFound(t *testing.T) {
	session := setupTestClient(t)

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "missing",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestUnknownToolHandler(t *testing.T) {
	s := New("test-server", "1.0.0")
	s.Register(newTestTool("list"))

	var seen []string
	s.HandleUnknownTools(func(_ context.Context, name string, args json.RawMessage) error {
		seen = append(seen, name+" "+string(args))
		return fmt.Errorf("%w: unknown tool %q", toolbox.ErrInvalidInput, name)
	})
	session := connect(t, s)
	ctx := context.Background()

	_, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "tap",
		Arguments: map[string]any{"package": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "tap"`)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "list", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, seen, 1)
	assert.Equal(t, `tap {"package":"x"}`, seen[0])
}

func TestUnknownToolHandlerNilErrorFallsThrough(t *testing.T) {
	s := New("test-server", "1.0.0")

	called := false
	s.HandleUnknownTools(func(context.Context, string, json.RawMessage) error {
		called = true
		return nil
	})
	session := connect(t, s)

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "missing",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.True(t, called)
}

func TestContextCancellation(t *testing.T) {
	s := New("srv", "1.0.0")
	serverTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, serverTransport)
	assert.ErrorIs(t, err, context.Canceled)
}
