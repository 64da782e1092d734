// Package sigma2mcp exposes the Sigma tool dispatcher as an MCP server.
// It registers every registry tool with its generated input schema, plus
// the browsable sigma:// resources, and serves the result over stdio,
// SSE, or streamable HTTP.
package sigma2mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/dgdocker/sigma-mcp-server/pkg/dispatch"
)

const (
	// ServerName identifies this adapter to MCP clients.
	ServerName = "sigma-computing"

	// ServerVersion is reported during MCP initialization.
	ServerVersion = "1.0.0"
)

// NewServer creates an MCP server with every dispatcher tool and the
// sigma:// resources registered.
func NewServer(d *dispatch.Dispatcher) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(ServerName, ServerVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
	)
	RegisterTools(srv, d)
	RegisterResources(srv, d)
	return srv
}

// RegisterTools registers each registry entry as one MCP tool whose
// handler routes through the dispatcher.
func RegisterTools(srv *mcpserver.MCPServer, d *dispatch.Dispatcher) {
	for _, name := range d.Registry().Names() {
		spec, _ := d.Registry().Lookup(name)
		schema, _ := d.Registry().InputSchema(name)
		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			// Schemas are built from static tool specs; this cannot
			// happen for a well-formed table.
			panic(fmt.Sprintf("marshaling input schema for %s: %v", name, err))
		}

		tool := mcp.NewToolWithRawSchema(spec.Name, spec.Description, schemaJSON)
		toolName := spec.Name
		srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := d.Dispatch(ctx, toolName, req.GetArguments())
			return ToCallToolResult(res), nil
		})
	}
}

// resourceListLimit caps how many entries a resource read pulls from the
// corresponding list endpoint.
const resourceListLimit = 100

// serverResources maps each browsable sigma:// URI to the list tool that
// backs it.
var serverResources = []struct {
	uri         string
	name        string
	description string
	tool        string
}{
	{"sigma://workbooks", "Workbooks", "Access to Sigma Computing workbooks", "sigma_list_workbooks"},
	{"sigma://datasets", "Datasets", "Access to Sigma Computing datasets", "sigma_list_datasets"},
	{"sigma://members", "Members", "Organization members and teams", "sigma_list_members"},
	{"sigma://connections", "Connections", "Data warehouse connections", "sigma_list_connections"},
}

// RegisterResources registers the sigma:// resources. Reading one runs
// the backing list tool through the dispatcher and returns the payload as
// JSON text.
func RegisterResources(srv *mcpserver.MCPServer, d *dispatch.Dispatcher) {
	for _, r := range serverResources {
		resource := mcp.NewResource(r.uri, r.name,
			mcp.WithResourceDescription(r.description),
			mcp.WithMIMEType("application/json"),
		)
		uri, toolName := r.uri, r.tool
		srv.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return readResource(ctx, d, toolName, uri)
		})
	}
}

func readResource(ctx context.Context, d *dispatch.Dispatcher, toolName, uri string) ([]mcp.ResourceContents, error) {
	res := d.Dispatch(ctx, toolName, map[string]any{"limit": resourceListLimit})
	if res.Status == dispatch.StatusFailure {
		return nil, res.Err
	}
	text, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(text),
		},
	}, nil
}

// ToCallToolResult converts a dispatch result into an MCP tool result.
// Pending is a regular (non-error) result so clients can schedule a retry;
// failures carry the structured error as JSON.
func ToCallToolResult(res dispatch.Result) *mcp.CallToolResult {
	switch res.Status {
	case dispatch.StatusPending:
		text, _ := json.MarshalIndent(map[string]any{
			"status":  "pending",
			"queryId": res.QueryID,
			"message": "export is still processing; call sigma_download_export again later",
		}, "", "  ")
		return mcp.NewToolResultText(string(text))

	case dispatch.StatusFailure:
		text, _ := json.MarshalIndent(res.Err, "", "  ")
		return mcp.NewToolResultError(string(text))

	default:
		payload := res.Payload
		if res.NextPage != "" {
			payload = map[string]any{"data": res.Payload, "nextPage": res.NextPage}
		}
		text, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
		}
		return mcp.NewToolResultText(string(text))
	}
}

// ServeStdio starts the MCP server on stdin/stdout.
func ServeStdio(srv *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(srv)
}

// SSEHandler returns an http.Handler serving the MCP server over SSE at
// basePath (default "/mcp").
func SSEHandler(srv *mcpserver.MCPServer, basePath string) http.Handler {
	if basePath == "" {
		basePath = "/mcp"
	}
	return mcpserver.NewSSEServer(srv,
		mcpserver.WithStaticBasePath(basePath),
		mcpserver.WithSSEEndpoint("/sse"),
		mcpserver.WithMessageEndpoint("/message"),
	)
}

// StreamableHTTPHandler returns an http.Handler serving the MCP server
// over streamable HTTP at basePath (default "/mcp").
func StreamableHTTPHandler(srv *mcpserver.MCPServer, basePath string) http.Handler {
	if basePath == "" {
		basePath = "/mcp"
	}
	return mcpserver.NewStreamableHTTPServer(srv,
		mcpserver.WithEndpointPath(basePath),
	)
}

// GetSSEURL returns the URL for establishing an SSE connection.
func GetSSEURL(addr, basePath string) string {
	if basePath == "" {
		basePath = "/mcp"
	}
	return "http://" + normalizeAddrToHost(addr) + basePath + "/sse"
}

// normalizeAddrToHost converts a net/http listen address to a host:port
// suitable for URLs; ":8080" becomes "localhost:8080".
func normalizeAddrToHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost"
	}
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
