// Package dispatch routes named tool invocations to Sigma API endpoints.
// The per-tool request shape lives in a declarative table (see tools.go);
// one generic Dispatch routine validates arguments, builds the HTTP
// request, and normalizes the response into a Result. Adding a tool is a
// data change, not a code change.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/yosida95/uritemplate/v3"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

// Arg describes one tool argument and how it maps onto the upstream call.
type Arg struct {
	Name        string // argument name as exposed to MCP clients
	Wire        string // upstream parameter name; defaults to Name
	Type        string // "string", "integer", "boolean", "array", "object"
	In          string // "path", "query", or "body"
	Required    bool
	Enum        []string
	Default     any
	Description string
	Items       map[string]any // item schema for array-typed arguments
}

func (a Arg) wireName() string {
	if a.Wire != "" {
		return a.Wire
	}
	return a.Name
}

// ShapeFunc turns an upstream response into a Result. Shapers receive the
// client so enrichment lookups (grant names) can issue auxiliary calls.
type ShapeFunc func(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result

// Tool is one registry entry: the request shape for a named tool.
type Tool struct {
	Name        string
	Description string
	Method      string
	Path        string // RFC 6570 path template, e.g. /v2/workbooks/{workbook_id}
	Args        []Arg

	// Route overrides Path for tools whose endpoint depends on which
	// arguments are present (grant listing). Called after validation.
	Route func(args map[string]any) (string, error)

	// Body overrides the default flat body construction for tools whose
	// request body is nested (export options, grant entries).
	Body func(args map[string]any) (any, error)

	// Validate holds cross-field rules the input schema cannot express
	// (export format legality, grant target exclusivity). Runs after
	// schema validation and before any network call.
	Validate func(args map[string]any) error

	// Shape normalizes the upstream response; nil means shapeDefault.
	Shape ShapeFunc
}

type compiledTool struct {
	spec   Tool
	tmpl   *uritemplate.Template
	schema *gojsonschema.Schema
	raw    map[string]any
}

// Registry is the read-only tool table consulted by Dispatch.
type Registry struct {
	order []string
	tools map[string]*compiledTool
}

// NewRegistry compiles the given tool specs: path templates are parsed and
// input schemas are built and compiled once, up front.
func NewRegistry(tools []Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*compiledTool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		ct := &compiledTool{spec: t}

		if t.Route == nil {
			tmpl, err := uritemplate.New(t.Path)
			if err != nil {
				return nil, fmt.Errorf("tool %q: bad path template %q: %w", t.Name, t.Path, err)
			}
			ct.tmpl = tmpl
		}

		ct.raw = buildInputSchema(t.Args)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(ct.raw))
		if err != nil {
			return nil, fmt.Errorf("tool %q: compiling input schema: %w", t.Name, err)
		}
		ct.schema = schema

		r.tools[t.Name] = ct
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the spec for a registered tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	ct, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return ct.spec, true
}

// InputSchema returns the JSON Schema for a tool's arguments, as exposed
// in the MCP tool listing.
func (r *Registry) InputSchema(name string) (map[string]any, bool) {
	ct, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return ct.raw, true
}

func (r *Registry) lookup(name string) (*compiledTool, bool) {
	ct, ok := r.tools[name]
	return ct, ok
}

// buildInputSchema converts argument specs into a single JSON Schema
// object used both for MCP tool listing and for pre-dispatch validation.
func buildInputSchema(args []Arg) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, a := range args {
		prop := map[string]any{"type": a.Type}
		if a.Description != "" {
			prop["description"] = a.Description
		}
		if len(a.Enum) > 0 {
			enum := make([]any, len(a.Enum))
			for i, v := range a.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if a.Default != nil {
			prop["default"] = a.Default
		}
		if a.Type == "array" && a.Items != nil {
			prop["items"] = a.Items
		}
		properties[a.Name] = prop
		if a.Required {
			required = append(required, a.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// formatSchemaErrors flattens gojsonschema results into one message.
func formatSchemaErrors(res *gojsonschema.Result) string {
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
