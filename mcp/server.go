package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/nevindra/parley"
)

// Resource is a readable data source exposed via MCP resources/list and resources/read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	// Read returns the resource content. Called on each resources/read request.
	Read func() string
}

// Server exposes a Toolkit to MCP clients. The tool list follows the toolkit
// live: tools registered after construction show up in the next tools/list.
// Register resources before serving.
type Server struct {
	name    string
	version string

	toolkit   *parley.Toolkit
	resources []Resource

	// reader/writer can be overridden for testing (defaults to stdin/stdout).
	reader io.Reader
	writer io.Writer
	mu     sync.Mutex // protects writes
}

// New creates an MCP server serving the given toolkit.
func New(name, version string, toolkit *parley.Toolkit) *Server {
	if toolkit == nil {
		toolkit = parley.NewToolkit()
	}
	return &Server{
		name:    name,
		version: version,
		toolkit: toolkit,
		reader:  os.Stdin,
		writer:  os.Stdout,
	}
}

// AddResource registers a resource. Must be called before serving.
func (s *Server) AddResource(r Resource) {
	s.resources = append(s.resources, r)
}

// Serve runs the MCP server, reading JSON-RPC messages from stdin and writing
// responses to stdout. Blocks until stdin is closed or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 10<<20), 10<<20) // 10MB max message

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		for _, resp := range s.handleData(ctx, line) {
			s.writeResponse(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mcp: read stdin: %w", err)
	}
	return nil
}

// handleData parses a JSON-RPC message (or batch) and dispatches it, returning
// the responses to deliver. Notifications produce none.
func (s *Server) handleData(ctx context.Context, data []byte) []response {
	// Check for batch (JSON array).
	if len(data) > 0 && data[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			return []response{parseErrorResponse()}
		}
		var out []response
		for _, raw := range batch {
			if resp := s.handleSingle(ctx, raw); resp != nil {
				out = append(out, *resp)
			}
		}
		return out
	}

	if resp := s.handleSingle(ctx, data); resp != nil {
		return []response{*resp}
	}
	return nil
}

// handleSingle parses and dispatches a single JSON-RPC request. Returns nil
// for notifications.
func (s *Server) handleSingle(ctx context.Context, data []byte) *response {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		resp := parseErrorResponse()
		return &resp
	}
	return s.dispatch(ctx, &req)
}

// dispatch routes a request to the appropriate handler. Returns nil for notifications.
func (s *Server) dispatch(ctx context.Context, req *request) *response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil // notification, no response
	case "notifications/cancelled":
		return nil
	case "ping":
		return s.respond(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		if req.isNotification() {
			return nil
		}
		return s.respondError(req.ID, errCodeMethodNotFound, "method not found: "+req.Method)
	}
}

// --- handlers ---

func (s *Server) handleInitialize(req *request) *response {
	caps := serverCapabilities{}
	if s.toolkit.Size() > 0 {
		caps.Tools = &capability{}
	}
	if len(s.resources) > 0 {
		caps.Resources = &capability{}
	}

	return s.respond(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    caps,
		ServerInfo:      serverInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsList(req *request) *response {
	schemas := s.toolkit.Schemas()
	defs := make([]toolDefinition, len(schemas))
	for i, sc := range schemas {
		defs[i] = toolDefinition{
			Name:        sc.Name,
			Description: sc.Description,
			InputSchema: sc.Parameters,
		}
	}
	return s.respond(req.ID, toolsListResult{Tools: defs})
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) *response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.respondError(req.ID, errCodeInvalidParams, "invalid params: "+err.Error())
	}

	var input map[string]any
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &input); err != nil {
			return s.respondError(req.ID, errCodeInvalidParams, "invalid arguments: "+err.Error())
		}
	}

	// Toolkit.Call never fails: unknown tools and tool errors come back as
	// error-prefixed responses, which map to isError here.
	result := s.toolkit.Call(ctx, &parley.ToolUseBlock{Name: params.Name, Input: input})
	return s.respond(req.ID, toolCallResult{
		Content: []textContent{{Type: "text", Text: result.Text()}},
		IsError: result.IsError(),
	})
}

func (s *Server) handleResourcesList(req *request) *response {
	defs := make([]resourceDef, len(s.resources))
	for i, r := range s.resources {
		defs[i] = resourceDef{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MimeType,
		}
	}
	return s.respond(req.ID, resourcesListResult{Resources: defs})
}

func (s *Server) handleResourcesRead(req *request) *response {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.respondError(req.ID, errCodeInvalidParams, "invalid params: "+err.Error())
	}

	for _, r := range s.resources {
		if r.URI == params.URI {
			return s.respond(req.ID, resourceReadResult{
				Contents: []resourceContent{{
					URI:      r.URI,
					MimeType: r.MimeType,
					Text:     r.Read(),
				}},
			})
		}
	}

	return s.respondError(req.ID, errCodeInvalidParams, "resource not found: "+params.URI)
}

// --- response helpers ---

func (s *Server) respond(id json.RawMessage, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) respondError(id json.RawMessage, code int, message string) *response {
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func parseErrorResponse() response {
	return response{
		JSONRPC: "2.0",
		ID:      json.RawMessage("null"),
		Error:   &rpcError{Code: errCodeParse, Message: "parse error"},
	}
}

func (s *Server) writeResponse(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf(" [mcp] marshal response: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		log.Printf(" [mcp] write response: %v", err)
	}
}
