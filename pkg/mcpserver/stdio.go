package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

const maxMessageBytes = 8 << 20

// RunStdio serves the protocol over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads newline-delimited JSON-RPC messages from r and writes responses
// to w. Requests run concurrently up to the configured limit; responses are
// written whole, one per line, in completion order. When r reaches EOF the
// host is gone: in-flight invocations are cancelled and Serve returns once
// they have unwound.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.registry.Seal()
	s.logger.Info("starting MCP server (stdio)", "name", s.name, "version", s.version, "tools", s.registry.Len())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &lineWriter{enc: json.NewEncoder(w)}

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("malformed message", "error", err)
			out.write(s, &JSONRPCResponse{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "Parse error"},
			})
			continue
		}
		if req.Method == "" {
			out.write(s, &JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &RPCError{Code: CodeInvalidRequest, Message: "Invalid request: missing method"},
			})
			continue
		}

		g.Go(func() error {
			if resp := s.HandleRequest(ctx, &req); resp != nil {
				out.write(s, resp)
			}
			return nil
		})
	}
	scanErr := scanner.Err()

	cancel()
	_ = g.Wait()

	if scanErr != nil {
		return fmt.Errorf("read request: %w", scanErr)
	}
	s.logger.Info("stdio input closed", "name", s.name)
	return nil
}

// lineWriter serializes whole responses onto the output stream.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (lw *lineWriter) write(s *Server, resp *JSONRPCResponse) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if err := lw.enc.Encode(resp); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
