// Package tools provides the tool abstraction and MCP (Model Context Protocol) plumbing.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/brewmcp/pkg/tools/toolbox] — Tool type and ToolBox collection used to register and list tools
//   - [github.com/germanamz/brewmcp/pkg/tools/mcpserver] — MCP server using the official MCP Go SDK for exposing tools over stdio
//   - [github.com/germanamz/brewmcp/pkg/tools/mcpclient] — MCP client using the official MCP Go SDK for driving a spawned server process
//
// The toolbox sub-package is the foundation layer. Both mcpclient and mcpserver
// depend on toolbox for the Tool type but are independent of each other.
// Handler errors wrapping toolbox.ErrInvalidInput are reported by mcpserver as
// JSON-RPC errors; every other handler error becomes an error-flagged result.
package tools
