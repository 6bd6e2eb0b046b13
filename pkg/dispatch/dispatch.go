// Package dispatch maps tool invocations onto package-manager subprocess runs.
//
// A Dispatcher validates the tool name and arguments against the catalogue,
// runs the matching subcommand, turns its outcome into a text result and
// appends one transaction record per call. Calls are serialized so that at
// most one subprocess runs at a time.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/germanamz/brewmcp/pkg/brew"
	"github.com/germanamz/brewmcp/pkg/catalog"
	"github.com/germanamz/brewmcp/pkg/tools/toolbox"
	"github.com/germanamz/brewmcp/pkg/txlog"
)

const tracerName = "github.com/germanamz/brewmcp/pkg/dispatch"

var (
	// ErrUnknownTool is matched by requests naming a tool outside the catalogue.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is matched by requests whose arguments do not fit the
	// tool's input schema.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Runner runs the package-manager binary.
type Runner interface {
	Run(ctx context.Context, args ...string) (brew.Result, error)
	CommandLine(args ...string) string
}

// Recorder persists transaction records.
type Recorder interface {
	Record(ctx context.Context, e txlog.Entry) error
}

// Result is the outcome of a dispatched call.
type Result struct {
	Tool     string
	Package  string
	Command  string
	Output   string
	Success  bool
	Duration time.Duration
}

// RequestError reports a malformed request. It matches both its Kind
// (ErrUnknownTool or ErrInvalidArguments) and toolbox.ErrInvalidInput.
type RequestError struct {
	Tool   string
	Kind   error
	Detail string
}

func (e *RequestError) Error() string {
	if e.Kind == ErrUnknownTool {
		return fmt.Sprintf("unknown tool %q", e.Tool)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, e.Detail)
}

func (e *RequestError) Unwrap() []error {
	return []error{e.Kind, toolbox.ErrInvalidInput}
}

// CommandError is returned by tool handlers when the subprocess failed. Its
// message is the captured failure text.
type CommandError struct {
	Result Result
}

func (e *CommandError) Error() string { return e.Result.Output }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher is the tool dispatcher.
type Dispatcher struct {
	mu       sync.Mutex
	runner   Runner
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	schemas    map[string]json.RawMessage
	validators map[string]*jsonschema.Schema
}

// New creates a Dispatcher running commands through runner and recording each
// call with recorder.
func New(runner Runner, recorder Recorder, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		runner:     runner,
		recorder:   recorder,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		schemas:    make(map[string]json.RawMessage),
		validators: make(map[string]*jsonschema.Schema),
	}

	for _, opt := range opts {
		opt(d)
	}

	compiler := jsonschema.NewCompiler()

	for _, c := range catalog.Commands() {
		raw, err := json.Marshal(c.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("dispatch: marshal %s schema: %w", c.Name, err)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("dispatch: decode %s schema: %w", c.Name, err)
		}

		url := "mem://tools/" + c.Name + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("dispatch: add %s schema: %w", c.Name, err)
		}

		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("dispatch: compile %s schema: %w", c.Name, err)
		}

		d.schemas[c.Name] = raw
		d.validators[c.Name] = sch
	}

	return d, nil
}

// Tools returns one tool per catalogue entry, in catalogue order. Handlers
// return captured stdout on success, a *CommandError when the subprocess
// fails and a *RequestError for malformed requests.
func (d *Dispatcher) Tools() *toolbox.ToolBox {
	tb := toolbox.New()

	for _, c := range catalog.Commands() {
		name := c.Name
		tb.Register(toolbox.Tool{
			Name:        name,
			Description: c.Description,
			InputSchema: d.schemas[name],
			Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
				res, err := d.Dispatch(ctx, name, input)
				if err != nil {
					return "", err
				}
				if !res.Success {
					return "", &CommandError{Result: res}
				}
				return res.Output, nil
			},
		})
	}

	return tb
}

// Dispatch runs the named tool with the given JSON arguments. A non-nil error
// is always a *RequestError; subprocess failures are reported through
// Result.Success and Result.Output. Every call appends exactly one record.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.now()
	id := uuid.NewString()

	ctx, span := d.tracer.Start(ctx, "tools/call "+name, trace.WithAttributes(
		attribute.String("brew.tool", name),
		attribute.String("brewmcp.call_id", id),
	))
	defer span.End()

	res, err := d.dispatch(ctx, name, args)
	res.Duration = d.now().Sub(start)

	entry := txlog.Entry{
		ID:         id,
		Timestamp:  start,
		Tool:       name,
		Package:    res.Package,
		Arguments:  args,
		Command:    res.Command,
		Success:    res.Success,
		DurationMS: res.Duration.Milliseconds(),
	}

	span.SetAttributes(attribute.Bool("brew.success", res.Success))
	if res.Package != "" {
		span.SetAttributes(attribute.String("brew.package", res.Package))
	}
	if res.Command != "" {
		span.SetAttributes(attribute.String("brew.command", res.Command))
	}

	switch {
	case err != nil:
		entry.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.WarnContext(ctx, "rejected tool call", "id", id, "tool", name, "err", err)
	case !res.Success:
		entry.Error = res.Output
		span.SetStatus(codes.Error, "command failed")
		d.logger.WarnContext(ctx, "tool call failed", "id", id, "tool", name, "command", res.Command, "duration", res.Duration)
	default:
		entry.Output = res.Output
		span.SetStatus(codes.Ok, "")
		d.logger.DebugContext(ctx, "tool call succeeded", "id", id, "tool", name, "command", res.Command, "duration", res.Duration)
	}

	if rerr := d.recorder.Record(ctx, entry); rerr != nil {
		d.logger.ErrorContext(ctx, "write transaction log", "id", id, "err", rerr)
	}

	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	res := Result{Tool: name}

	cmd, ok := catalog.Lookup(name)
	if !ok {
		return res, &RequestError{Tool: name, Kind: ErrUnknownTool}
	}

	pkg, err := d.parseArgs(cmd, args)
	if err != nil {
		return res, err
	}

	argv := cmd.Args(pkg)
	res.Package = pkg
	res.Command = d.runner.CommandLine(argv...)

	out, err := d.runner.Run(ctx, argv...)
	if out.Command != "" {
		res.Command = out.Command
	}

	if err != nil {
		res.Output = failureText(res.Command, out, err)
		return res, nil
	}

	res.Success = true
	res.Output = out.Stdout

	return res, nil
}

func (d *Dispatcher) parseArgs(cmd catalog.Command, args json.RawMessage) (string, error) {
	invalid := func(detail string) error {
		return &RequestError{Tool: cmd.Name, Kind: ErrInvalidArguments, Detail: detail}
	}

	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(trimmed))
	if err != nil {
		return "", invalid("arguments are not valid JSON")
	}

	if err := d.validators[cmd.Name].Validate(inst); err != nil {
		return "", invalid(summarize(err))
	}

	if !cmd.TakesPackage {
		return "", nil
	}

	var in struct {
		Package string `json:"package"`
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return "", invalid(err.Error())
	}

	switch {
	case strings.TrimSpace(in.Package) == "":
		return "", invalid("package must not be empty")
	case strings.HasPrefix(in.Package, "-"):
		return "", invalid("package must not start with '-'")
	}

	return in.Package, nil
}

// failureText renders a failed run the way it is reported to the caller. The
// package manager writes some errors to stdout, so stdout is used when stderr
// is blank.
func failureText(command string, out brew.Result, err error) string {
	var timeoutErr *brew.TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("Command '%s' timed out after %s.", command, timeoutErr.Timeout)
	}

	var exitErr *brew.ExitError
	if errors.As(err, &exitErr) {
		if text := strings.TrimSpace(out.Stderr); text != "" {
			return text
		}
		if text := strings.TrimSpace(out.Stdout); text != "" {
			return text
		}
		return fmt.Sprintf("Command '%s' exited with status %d.", command, exitErr.Result.ExitCode)
	}

	return fmt.Sprintf("Command '%s' failed: %v", command, err)
}

// summarize flattens a schema validation error into a single line.
func summarize(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	if len(lines) == 1 {
		return lines[0]
	}

	parts := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l != "" {
			parts = append(parts, l)
		}
	}

	return strings.Join(parts, "; ")
}
