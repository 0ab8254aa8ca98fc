// Package mcpserver provides a reusable MCP (Model Context Protocol) server framework.
//
// A Server owns a Registry of tools and dispatches JSON-RPC 2.0 requests to
// them over stdio or HTTP. Every tools/call runs through Invoke, which
// validates the arguments against the tool's parameter schema, runs the
// handler and always yields exactly one of a result or an error envelope.
//
// Quick Start:
//
//	server := mcpserver.New("my-server", "1.0.0")
//	server.Register(mcpserver.Tool{Name: "echo", Handler: echo})
//	server.RunStdio(ctx) // or server.RunHTTP(ctx, ":8080")
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const defaultProtocolVersion = "2024-11-05"

// Server is the core MCP server that manages tools and handles JSON-RPC requests.
type Server struct {
	name            string
	version         string
	protocolVersion string
	instructions    string
	registry        *Registry
	middleware      []Middleware
	observers       []Observer
	invokeTimeout   time.Duration
	concurrency     int
	logger          *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithInvocationTimeout bounds a whole invocation, on top of the per-call
// timeouts enforced by the upstream clients.
func WithInvocationTimeout(d time.Duration) Option {
	return func(s *Server) { s.invokeTimeout = d }
}

// WithConcurrency sets how many stdio requests may run at once.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) Option {
	return func(s *Server) { s.instructions = text }
}

// New creates a new MCP server with the given name and version.
func New(name, version string, opts ...Option) *Server {
	s := &Server{
		name:            name,
		version:         version,
		protocolVersion: defaultProtocolVersion,
		registry:        NewRegistry(),
		concurrency:     4,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the server name.
func (s *Server) Name() string { return s.name }

// Registry returns the server's tool registry.
func (s *Server) Registry() *Registry { return s.registry }

// Register adds tools to the server, stopping at the first failure.
func (s *Server) Register(tools ...Tool) error {
	for _, t := range tools {
		if err := s.registry.Register(t); err != nil {
			return err
		}
		s.logger.Debug("registered tool", "server", s.name, "name", t.Name)
	}
	return nil
}

// Use adds middleware to the server's processing chain.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// Observe adds an observer notified after every invocation.
func (s *Server) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// HandleRequest processes a single JSON-RPC request and returns a response.
// Notifications yield a nil response.
func (s *Server) HandleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	handler := s.coreHandler
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler(ctx, req)
}

func (s *Server) coreHandler(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	resp := &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		resp.Result = s.handleInitialize()
	case "notifications/initialized":
		s.logger.Info("client initialized", "server", s.name)
		return nil
	case "ping":
		resp.Result = struct{}{}
	case "tools/list":
		resp.Result = s.handleToolsList()
	case "tools/call":
		var params ToolCallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				resp.Error = &RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
				return resp
			}
		}
		resp.Result = s.handleToolCall(ctx, params)
	default:
		if req.IsNotification() {
			return nil
		}
		resp.Error = &RPCError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities: ServerCapabilities{
			Tools: ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		Instructions: s.instructions,
	}
}

func (s *Server) handleToolsList() *ToolsListResult {
	tools := s.registry.List()
	defs := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Def())
	}
	return &ToolsListResult{Tools: defs}
}

func (s *Server) handleToolCall(ctx context.Context, params ToolCallParams) *ToolCallResult {
	out := s.Invoke(ctx, params.Name, params.Arguments)
	if out.Envelope != nil {
		return EnvelopeResult(*out.Envelope)
	}
	return TextResult(out.Result)
}
