// Package catalog defines the fixed set of package-manager commands exposed as
// tools, together with their descriptions and JSON input schemas. The catalogue
// is built once at package initialization and never mutated.
package catalog

import "github.com/google/jsonschema-go/jsonschema"

// PackageArg is the name of the single argument accepted by package tools.
const PackageArg = "package"

// Command describes one package-manager subcommand exposed as a tool.
type Command struct {
	Name         string
	Description  string
	TakesPackage bool
}

var commands = []Command{
	{Name: "install", Description: "Install a Homebrew package by name.", TakesPackage: true},
	{Name: "uninstall", Description: "Uninstall a Homebrew package by name.", TakesPackage: true},
	{Name: "info", Description: "Fetch Homebrew package info using Homebrew.", TakesPackage: true},
	{Name: "upgrade", Description: "Upgrade a Homebrew package by name.", TakesPackage: true},
	{Name: "list", Description: "List all Homebrew packages using Homebrew."},
	{Name: "search", Description: "Search for a Homebrew package.", TakesPackage: true},
	{Name: "doctor", Description: "Check your system for potential Homebrew problems."},
	{Name: "reinstall", Description: "Reinstall a Homebrew package.", TakesPackage: true},
	{Name: "outdated", Description: "List outdated Homebrew packages."},
}

var byName = func() map[string]Command {
	m := make(map[string]Command, len(commands))
	for _, c := range commands {
		m[c.Name] = c
	}
	return m
}()

// Commands returns the catalogue in its canonical order. The returned slice is
// a copy and may be modified by the caller.
func Commands() []Command {
	out := make([]Command, len(commands))
	copy(out, commands)

	return out
}

// Names returns the tool names in canonical order.
func Names() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.Name
	}

	return names
}

// Lookup returns the command with the given name.
func Lookup(name string) (Command, bool) {
	c, ok := byName[name]
	return c, ok
}

// InputSchema returns the JSON Schema describing the tool's arguments. Package
// tools require a single string "package" property; all others take an empty
// object.
func (c Command) InputSchema() *jsonschema.Schema {
	if !c.TakesPackage {
		return &jsonschema.Schema{Type: "object"}
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			PackageArg: {
				Type:        "string",
				Description: "Name of the Homebrew package.",
			},
		},
		Required: []string{PackageArg},
	}
}

// Args returns the package-manager arguments for invoking this command. The
// package name is ignored for commands that do not take one.
func (c Command) Args(pkg string) []string {
	if c.TakesPackage {
		return []string{c.Name, pkg}
	}

	return []string{c.Name}
}
