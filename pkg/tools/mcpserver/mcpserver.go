package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/germanamz/brewmcp/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer serves tools over the MCP protocol using the official MCP Go SDK.
type MCPServer struct {
	server *mcp.Server

	mu      sync.RWMutex
	names   map[string]struct{}
	unknown UnknownToolHandler
}

// UnknownToolHandler is called for tools/call requests naming a tool that was
// never registered. A non-nil error is returned to the client as a JSON-RPC
// error; a nil error leaves the rejection to the SDK.
type UnknownToolHandler func(ctx context.Context, name string, args json.RawMessage) error

// Option configures an MCPServer.
type Option func(*mcp.ServerOptions)

// WithInstructions sets the instructions returned to clients on initialize.
func WithInstructions(text string) Option {
	return func(o *mcp.ServerOptions) { o.Instructions = text }
}

// New creates a new MCPServer with the given name and version.
func New(name, version string, opts ...Option) *MCPServer {
	var sopts mcp.ServerOptions
	for _, opt := range opts {
		opt(&sopts)
	}

	s := &MCPServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, &sopts),
		names: make(map[string]struct{}),
	}
	s.server.AddReceivingMiddleware(s.unknownToolMiddleware)

	return s
}

// Register adds tools to the server.
func (s *MCPServer) Register(tools ...toolbox.Tool) {
	s.mu.Lock()
	for _, t := range tools {
		s.names[t.Name] = struct{}{}
	}
	s.mu.Unlock()

	for _, t := range tools {
		s.server.AddTool(toSDKTool(t), toSDKHandler(t.Handler))
	}
}

// HandleUnknownTools installs h for calls to unregistered tools.
func (s *MCPServer) HandleUnknownTools(h UnknownToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown = h
}

func (s *MCPServer) unknownToolMiddleware(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		call, ok := req.(*mcp.CallToolRequest)
		if !ok || method != "tools/call" || call.Params == nil {
			return next(ctx, method, req)
		}

		s.mu.RLock()
		_, known := s.names[call.Params.Name]
		h := s.unknown
		s.mu.RUnlock()

		if known || h == nil {
			return next(ctx, method, req)
		}

		if err := h(ctx, call.Params.Name, call.Params.Arguments); err != nil {
			return nil, err
		}

		return next(ctx, method, req)
	}
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.Run(ctx, transport)
}

// Run serves MCP requests over an arbitrary transport, such as the SDK's
// in-memory transports.
func (s *MCPServer) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// toSDKTool converts a toolbox.Tool to an SDK *mcp.Tool.
func toSDKTool(t toolbox.Tool) *mcp.Tool {
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// toSDKHandler wraps a toolbox.Handler as an SDK ToolHandler. Errors matching
// toolbox.ErrInvalidInput become JSON-RPC errors; any other error becomes an
// error-flagged result carrying the error text.
func toSDKHandler(h toolbox.Handler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}
		result, err := h(ctx, args)
		if errors.Is(err, toolbox.ErrInvalidInput) {
			return nil, err
		}
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
