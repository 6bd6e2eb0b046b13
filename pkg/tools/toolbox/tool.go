package toolbox

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrInvalidInput marks a handler error caused by a malformed request rather
// than by the tool's own execution. Servers report it as a protocol error
// instead of an error-flagged tool result.
var ErrInvalidInput = errors.New("invalid tool input")

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool represents an executable tool with a name, description, JSON Schema, and handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}
