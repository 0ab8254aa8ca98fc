package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPServer wraps the MCP Server to serve over HTTP with SSE support.
type HTTPServer struct {
	server *Server
	addr   string
	auth   Authenticator
	logger *slog.Logger
}

// NewHTTPServer creates an HTTP transport for s. A nil auth disables
// authentication.
func NewHTTPServer(s *Server, addr string, auth Authenticator) *HTTPServer {
	return &HTTPServer{
		server: s,
		addr:   addr,
		auth:   auth,
		logger: s.logger,
	}
}

// RunHTTP starts the MCP server on an HTTP endpoint and blocks until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, addr string, auth Authenticator) error {
	return NewHTTPServer(s, addr, auth).ListenAndServe(ctx)
}

// Handler returns the HTTP routes.
func (hs *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// MCP protocol endpoint (JSON-RPC 2.0)
	mux.Handle("/mcp", hs.requireAuth(http.HandlerFunc(hs.handleMCPRequest)))

	// RESTful endpoints
	mux.Handle("/api/tools", hs.requireAuth(http.HandlerFunc(hs.handleToolsList)))
	mux.Handle("/api/tools/", hs.requireAuth(http.HandlerFunc(hs.handleToolCall)))

	// Health check
	mux.HandleFunc("/health", hs.handleHealth)

	return hs.corsMiddleware(mux)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (hs *HTTPServer) ListenAndServe(ctx context.Context) error {
	hs.server.registry.Seal()

	srv := &http.Server{
		Addr:              hs.addr,
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	hs.logger.Info("starting HTTP server", "addr", hs.addr, "tools", hs.server.registry.Len(), "auth", hs.auth != nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", hs.addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (hs *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hs *HTTPServer) requireAuth(next http.Handler) http.Handler {
	if hs.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}
		if err := hs.auth.Authenticate(strings.TrimSpace(token)); err != nil {
			hs.logger.Warn("rejected HTTP request", "path", r.URL.Path, "error", err)
			http.Error(w, "invalid authentication token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hs *HTTPServer) handleMCPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		hs.writeError(w, CodeParseError, "Parse error")
		return
	}

	resp := hs.server.HandleRequest(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Choose response format based on Accept header
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		hs.sendSSE(w, resp)
	} else {
		hs.sendJSON(w, resp)
	}
}

func (hs *HTTPServer) sendJSON(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		hs.logger.Error("write response", "error", err)
	}
}

func (hs *HTTPServer) sendSSE(w http.ResponseWriter, resp *JSONRPCResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		hs.sendJSON(w, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	respBytes, err := json.Marshal(resp)
	if err != nil {
		hs.logger.Error("marshal response", "error", err)
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", respBytes)
	flusher.Flush()
}

func (hs *HTTPServer) handleToolsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hs.sendJSON(w, hs.server.handleToolsList())
}

func (hs *HTTPServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	toolName := strings.TrimPrefix(r.URL.Path, "/api/tools/")
	if toolName == "" {
		http.Error(w, "Tool name required", http.StatusBadRequest)
		return
	}

	var args map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&args); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	hs.sendJSON(w, hs.server.handleToolCall(r.Context(), ToolCallParams{Name: toolName, Arguments: args}))
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs.sendJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"server":    hs.server.name,
		"version":   hs.server.version,
		"tools":     hs.server.registry.Len(),
	})
}

func (hs *HTTPServer) writeError(w http.ResponseWriter, code int, message string) {
	hs.sendJSON(w, JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
	})
}
