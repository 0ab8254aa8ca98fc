package mcpserver

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

// State is the lifecycle position of one invocation.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateExecuting State = "EXECUTING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Outcome is the final state of an invocation. Exactly one of Result and
// Envelope is set: Result when State is COMPLETED, Envelope when FAILED.
type Outcome struct {
	ID         string
	Server     string
	Tool       string
	State      State
	Result     string
	Envelope   *toolerr.Envelope
	Started    time.Time
	Duration   time.Duration
	HandlerRan bool
}

// Observer receives every finished invocation.
type Observer interface {
	Observe(ctx context.Context, o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, o Outcome)

func (f ObserverFunc) Observe(ctx context.Context, o Outcome) { f(ctx, o) }

const emptyResult = "No results found."

// Invoke runs one tool call through RECEIVED -> VALIDATED -> EXECUTING ->
// COMPLETED/FAILED. It never panics and never returns both a result and an
// envelope.
func (s *Server) Invoke(ctx context.Context, name string, args map[string]any) Outcome {
	out := Outcome{
		ID:      uuid.NewString(),
		Server:  s.name,
		Tool:    name,
		State:   StateReceived,
		Started: time.Now(),
	}
	log := s.logger.With("invocation_id", out.ID, "tool", name)
	log.Debug("invocation state", "state", out.State)

	e, err := s.registry.lookup(name)
	if err != nil {
		return s.finish(ctx, out, err)
	}

	prepared, err := prepareArgs(e.tool, e.schema, args)
	if err != nil {
		return s.finish(ctx, out, err)
	}
	out.State = StateValidated
	log.Debug("invocation state", "state", out.State)

	if s.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.invokeTimeout)
		defer cancel()
	}

	out.State = StateExecuting
	out.HandlerRan = true
	log.Debug("invocation state", "state", out.State)

	result, err := s.execute(ctx, e.tool, prepared)
	if err != nil {
		return s.finish(ctx, out, err)
	}
	if result == "" {
		result = emptyResult
	}
	out.Result = result
	return s.finish(ctx, out, nil)
}

// execute runs the handler, converting a panic into an internal error.
func (s *Server) execute(ctx context.Context, t Tool, args Args) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in tool handler", "tool", t.Name, "panic", r, "stack", string(debug.Stack()))
			result = ""
			err = toolerr.New(toolerr.Internal, "tool %s failed unexpectedly: %v", t.Name, r)
		}
	}()
	result, err = t.Handler(ctx, args)
	if err != nil {
		return "", err
	}
	return result, nil
}

func (s *Server) finish(ctx context.Context, out Outcome, err error) Outcome {
	out.Duration = time.Since(out.Started)
	if err != nil {
		env := toolerr.ToEnvelope(err)
		out.State = StateFailed
		out.Result = ""
		out.Envelope = &env
		s.logger.Warn("invocation failed",
			"invocation_id", out.ID,
			"tool", out.Tool,
			"kind", env.Kind,
			"message", env.Message,
			"status", env.Status,
			"duration", out.Duration,
		)
	} else {
		out.State = StateCompleted
		s.logger.Info("invocation completed",
			"invocation_id", out.ID,
			"tool", out.Tool,
			"bytes", len(out.Result),
			"duration", out.Duration,
		)
	}
	for _, o := range s.observers {
		s.notify(ctx, o, out)
	}
	return out
}

func (s *Server) notify(ctx context.Context, o Observer, out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in observer", "panic", fmt.Sprint(r))
		}
	}()
	o.Observe(context.WithoutCancel(ctx), out)
}
