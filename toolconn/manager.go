package toolconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"recipeagent"
	"recipeagent/retry"
)

const (
	ToolSearchRecipes    = "search_recipes"
	ToolGetRecipeDetails = "get_recipe_details"

	defaultConnectTimeout = 10 * time.Second
)

var (
	ErrMissingCredentials = errors.New("recipe provider API key is missing")
	ErrNotReady           = errors.New("recipe provider connection is not ready")
	ErrMissingTools       = errors.New("recipe provider does not offer the required tools")
	ErrClosed             = errors.New("recipe provider connection is closed")
)

// RequiredTools must all be listed by the provider before the connection is
// considered ready.
var RequiredTools = []string{ToolSearchRecipes, ToolGetRecipeDetails}

type State int32

const (
	StateUninitialized State = iota
	StateValidating
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Dialer returns a fresh transport for one connection attempt.
type Dialer func(ctx context.Context) (mcp.Transport, error)

type Options struct {
	APIKey         string
	Dialer         Dialer
	Policy         retry.Policy
	ConnectTimeout time.Duration
	ClientName     string
	ClientVersion  string
}

// Manager owns the single MCP session to the recipe provider. It moves
// through Uninitialized, Validating, Connecting and then Ready or Failed,
// and never leaves Ready or Failed except into Closed, which is terminal.
type Manager struct {
	opts   Options
	client *mcp.Client
	tracer trace.Tracer

	state   atomic.Int32
	session atomic.Pointer[mcp.ClientSession]

	group   singleflight.Group
	mu      sync.Mutex
	settled bool
	outcome error
}

func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "recipe-assistant"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "v1.0.0"
	}
	return &Manager{
		opts:   opts,
		client: mcp.NewClient(&mcp.Implementation{Name: opts.ClientName, Version: opts.ClientVersion}, nil),
		tracer: otel.Tracer(recipeagent.TracerNameToolConn),
	}
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// setState moves to s unless the manager is already closed, and reports
// whether it did.
func (m *Manager) setState(s State) bool {
	for {
		prev := State(m.state.Load())
		if prev == StateClosed {
			return s == StateClosed
		}
		if m.state.CompareAndSwap(int32(prev), int32(s)) {
			if prev != s {
				slog.Info("TOOLCONN: State changed", "from", prev, "to", s)
			}
			return true
		}
	}
}

// Validate checks the API key without touching the network. A blank key is
// a permanent failure.
func (m *Manager) Validate(apiKey string) error {
	m.setState(StateValidating)
	if strings.TrimSpace(apiKey) == "" {
		m.setState(StateFailed)
		return ErrMissingCredentials
	}
	return nil
}

// Connect dials the provider and performs the MCP handshake, retrying
// transient failures. Each attempt is bounded by the connect timeout.
func (m *Manager) Connect(ctx context.Context) error {
	if m.opts.Dialer == nil {
		m.setState(StateFailed)
		return errors.New("no dialer configured")
	}
	m.setState(StateConnecting)

	ctx, span := m.tracer.Start(ctx, "toolconn.connect")
	defer span.End()

	policy := m.opts.Policy
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, ErrMissingTools) && !errors.Is(err, ErrMissingCredentials)
	}
	notify := policy.Notify
	policy.Notify = func(err error, n int, delay time.Duration) {
		slog.Warn("TOOLCONN: Connect attempt failed, retrying", "retry", n, "delay", delay, "error", err)
		span.AddEvent("connect.retry", trace.WithAttributes(
			attribute.Int("retry", n),
			attribute.String("delay", delay.String()),
			attribute.String("error", err.Error()),
		))
		if notify != nil {
			notify(err, n, delay)
		}
	}

	cs, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*mcp.ClientSession, error) {
		return m.attempt(ctx, attempt)
	})
	if err != nil {
		m.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		slog.Error("TOOLCONN: Connect failed", "error", err)
		return err
	}

	m.session.Store(cs)
	if !m.setState(StateReady) {
		m.session.Store(nil)
		_ = cs.Close()
		return ErrClosed
	}
	span.SetStatus(codes.Ok, "connected")
	return nil
}

func (m *Manager) attempt(ctx context.Context, attempt int) (*mcp.ClientSession, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	slog.Info("TOOLCONN: Connecting to recipe provider", "attempt", attempt)
	t, err := m.opts.Dialer(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	cs, err := m.client.Connect(ctx, detached{t}, nil)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		_ = cs.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range RequiredTools {
		if !slices.Contains(names, want) {
			_ = cs.Close()
			return nil, fmt.Errorf("%w: %s not in %v", ErrMissingTools, want, names)
		}
	}
	slog.Info("TOOLCONN: Connected", "tools", names)
	return cs, nil
}

// Start runs Validate and Connect once. Concurrent callers share the same
// attempt; once the outcome is settled later calls return it immediately.
func (m *Manager) Start(ctx context.Context) error {
	if err, ok := m.settledOutcome(); ok {
		return err
	}

	ch := m.group.DoChan("start", func() (any, error) {
		if err, ok := m.settledOutcome(); ok {
			return nil, err
		}
		// The attempt belongs to every waiter, not just the first caller.
		err := m.Validate(m.opts.APIKey)
		if err == nil {
			err = m.Connect(context.WithoutCancel(ctx))
		}
		m.mu.Lock()
		if !m.settled {
			m.settled, m.outcome = true, err
		}
		err = m.outcome
		m.mu.Unlock()
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) settledOutcome() (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome, m.settled
}

// CallTool forwards a tool call over the shared session.
func (m *Manager) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	cs := m.session.Load()
	if cs == nil || m.State() != StateReady {
		return nil, ErrNotReady
	}
	return cs.CallTool(ctx, params)
}

// Close ends the session. The manager is not reusable afterwards: later
// Start calls return ErrClosed and CallTool returns ErrNotReady.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.settled, m.outcome = true, ErrClosed
	m.mu.Unlock()

	cs := m.session.Swap(nil)
	m.setState(StateClosed)
	if cs == nil {
		return nil
	}
	return cs.Close()
}

// detached keeps the connection alive past the attempt that opened it.
// Some transports bind the connection's lifetime to the Connect context.
type detached struct {
	mcp.Transport
}

func (d detached) Connect(ctx context.Context) (mcp.Connection, error) {
	return d.Transport.Connect(context.WithoutCancel(ctx))
}
