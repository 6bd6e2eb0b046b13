package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrToolFailed is matched by *ToolError.
var ErrToolFailed = errors.New("mcpclient: tool error")

// ToolError is returned by CallTool when the server flags the result as an
// error. Text is the reply exactly as the server sent it.
type ToolError struct {
	Tool string
	Text string
}

func (e *ToolError) Error() string { return e.Text }

// Is reports whether target is ErrToolFailed.
func (e *ToolError) Is(target error) bool { return target == ErrToolFailed }

// Descriptor is a tool as advertised by the server.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// MCPClient talks to a brewmcp server subprocess.
type MCPClient struct {
	session *mcp.ClientSession
}

// NewCommand starts cmd as an MCP server over its stdin/stdout and completes
// the initialize handshake. The caller keeps control of the command's
// environment and stderr.
func NewCommand(ctx context.Context, cmd *exec.Cmd) (*MCPClient, error) {
	return newFromTransport(ctx, &mcp.CommandTransport{Command: cmd})
}

func newFromTransport(ctx context.Context, transport mcp.Transport) (*MCPClient, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "brewmcp",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect: %w", err)
	}

	return &MCPClient{session: session}, nil
}

// ListTools returns the advertised tools in server order.
func (c *MCPClient) ListTools(ctx context.Context) ([]Descriptor, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: list tools: %w", err)
	}

	descs := make([]Descriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		d, err := describe(t)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: tool %q: %w", t.Name, err)
		}
		descs = append(descs, d)
	}

	return descs, nil
}

// HasTool reports whether the server advertises name.
func (c *MCPClient) HasTool(ctx context.Context, name string) (bool, error) {
	descs, err := c.ListTools(ctx)
	if err != nil {
		return false, err
	}

	return slices.ContainsFunc(descs, func(d Descriptor) bool { return d.Name == name }), nil
}

// CallTool invokes name with a JSON object of arguments. Empty arguments are
// sent as no arguments. An error-flagged reply is returned as a *ToolError;
// any other error is a transport or protocol failure.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return "", fmt.Errorf("mcpclient: arguments for %q must be a JSON object: %w", name, err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcpclient: call %s: %w", name, err)
	}

	text := replyText(result)
	if result.IsError {
		return "", &ToolError{Tool: name, Text: text}
	}

	return text, nil
}

// Close closes the server's stdin and waits for it to exit.
func (c *MCPClient) Close() error {
	return c.session.Close()
}

func describe(t *mcp.Tool) (Descriptor, error) {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return Descriptor{}, fmt.Errorf("marshal input schema: %w", err)
	}

	return Descriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}, nil
}

// replyText concatenates the text items of a result. Command output is sent
// as a single item, so nothing is inserted between items.
func replyText(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}

	return b.String()
}
