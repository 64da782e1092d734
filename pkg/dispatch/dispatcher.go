package dispatch

import (
	"context"
	"errors"
	"log"
	"net/url"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
	"github.com/yosida95/uritemplate/v3"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

// Dispatcher routes validated tool invocations to the Sigma API. Each
// dispatch is independent and stateless; the only shared dependency is the
// client's token cache, so concurrent dispatch is safe.
type Dispatcher struct {
	client *sigma.Client
	reg    *Registry
}

// NewDispatcher wires a client to the standard tool table.
func NewDispatcher(client *sigma.Client) (*Dispatcher, error) {
	reg, err := NewRegistry(Tools())
	if err != nil {
		return nil, err
	}
	return &Dispatcher{client: client, reg: reg}, nil
}

// NewDispatcherWithRegistry wires a client to a custom registry.
func NewDispatcherWithRegistry(client *sigma.Client, reg *Registry) *Dispatcher {
	return &Dispatcher{client: client, reg: reg}
}

// Registry exposes the tool table for listing and schema generation.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Dispatch validates arguments against the registry entry for name, builds
// the corresponding HTTP request, executes it, and normalizes the outcome.
// Validation is synchronous and side-effect-free: no network call is made
// until the arguments have passed. Upstream failures come back as Failure
// results, never as faults.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}

	requestID := uuid.NewString()

	ct, ok := d.reg.lookup(name)
	if !ok {
		return Failure(d.fail(sigma.NewError(sigma.KindUnknownTool, "unknown tool %q", name), name, requestID))
	}

	schemaResult, err := ct.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return Failure(d.fail(sigma.Wrap(err, sigma.KindInvalidArgument, "validating arguments"), name, requestID))
	}
	if !schemaResult.Valid() {
		return Failure(d.fail(sigma.NewError(sigma.KindInvalidArgument, "%s", formatSchemaErrors(schemaResult)), name, requestID))
	}

	args = withDefaults(ct.spec.Args, args)

	if ct.spec.Validate != nil {
		if err := ct.spec.Validate(args); err != nil {
			return Failure(d.fail(asSigmaError(err, sigma.KindInvalidArgument), name, requestID))
		}
	}

	endpoint, err := d.buildPath(ct, args)
	if err != nil {
		return Failure(d.fail(asSigmaError(err, sigma.KindInvalidArgument), name, requestID))
	}
	query := buildQuery(ct.spec.Args, args)
	body, err := buildBody(ct.spec, args)
	if err != nil {
		return Failure(d.fail(asSigmaError(err, sigma.KindInvalidArgument), name, requestID))
	}

	log.Printf("dispatch %s %s %s request_id=%s", name, ct.spec.Method, endpoint, requestID)

	resp, err := d.client.Do(ctx, ct.spec.Method, endpoint, query, body)
	if err != nil {
		return Failure(d.fail(asSigmaError(err, sigma.KindUpstream), name, requestID))
	}

	shape := ct.spec.Shape
	if shape == nil {
		shape = shapeDefault
	}
	return shape(ctx, d.client, resp, args)
}

func (d *Dispatcher) fail(err *sigma.Error, name, requestID string) *sigma.Error {
	err.RequestID = requestID
	log.Printf("dispatch %s failed request_id=%s: %v", name, requestID, err)
	return err
}

// asSigmaError keeps structured errors intact and wraps anything else.
func asSigmaError(err error, kind sigma.ErrorKind) *sigma.Error {
	var se *sigma.Error
	if errors.As(err, &se) {
		return se
	}
	return sigma.Wrap(err, kind, "dispatch failed")
}

// withDefaults returns a copy of args with declared defaults filled in for
// absent arguments. The caller's map is never mutated.
func withDefaults(specs []Arg, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, a := range specs {
		if a.Default == nil {
			continue
		}
		if _, present := out[a.Name]; !present {
			out[a.Name] = a.Default
		}
	}
	return out
}

func (d *Dispatcher) buildPath(ct *compiledTool, args map[string]any) (string, error) {
	if ct.spec.Route != nil {
		return ct.spec.Route(args)
	}
	vals := uritemplate.Values{}
	for _, a := range ct.spec.Args {
		if a.In != "path" {
			continue
		}
		if v, present := args[a.Name]; present {
			vals.Set(a.Name, uritemplate.String(cast.ToString(v)))
		}
	}
	return ct.tmpl.Expand(vals)
}

func buildQuery(specs []Arg, args map[string]any) url.Values {
	query := url.Values{}
	for _, a := range specs {
		if a.In != "query" {
			continue
		}
		if v, present := args[a.Name]; present {
			query.Set(a.wireName(), cast.ToString(v))
		}
	}
	return query
}

// buildBody constructs the request body: the tool's Body hook when set,
// otherwise a flat object of the body-bound arguments under their wire
// names. Returns nil when there is nothing to send.
func buildBody(spec Tool, args map[string]any) (any, error) {
	if spec.Body != nil {
		return spec.Body(args)
	}
	body := map[string]any{}
	for _, a := range spec.Args {
		if a.In != "body" {
			continue
		}
		if v, present := args[a.Name]; present {
			body[a.wireName()] = v
		}
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}
