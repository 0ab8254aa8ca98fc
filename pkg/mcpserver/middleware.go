package mcpserver

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware logs all incoming requests and their results.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
			start := time.Now()
			logger.Debug("mcp request", "method", req.Method, "id", req.ID)
			resp := next(ctx, req)
			if resp != nil && resp.Error != nil {
				logger.Error("mcp error", "method", req.Method, "code", resp.Error.Code, "message", resp.Error.Message)
			} else {
				logger.Debug("mcp response", "method", req.Method, "id", req.ID, "duration", time.Since(start))
			}
			return resp
		}
	}
}

// RecoveryMiddleware catches panics and returns a JSON-RPC error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in MCP handler", "method", req.Method, "panic", r)
					resp = &JSONRPCResponse{
						JSONRPC: "2.0",
						ID:      req.ID,
						Error: &RPCError{
							Code:    CodeInternalError,
							Message: "Internal error",
						},
					}
				}
			}()
			return next(ctx, req)
		}
	}
}
