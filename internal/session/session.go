// Package session compiles graph values into backend functions and runs
// them.
//
// A Session wraps one graph.Context. Run compiles the requested outputs,
// feeds and updates into a backend.Function, optionally caching it by name,
// and calls it:
//
//	sess := session.New(ctx, session.Options{})
//	if err := sess.Initialize(); err != nil { ... }
//	q, err := sess.Eval(model.Output(), session.RunOptions{
//		Name:   "q_values",
//		Inputs: []session.Feed{{Input: state, Value: batch}},
//	})
//
// Every update of a run is computed from the state before the run, and
// nothing is written when the run fails.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/config"
	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/tensor"
)

type state int

const (
	uninitialized state = iota
	initialized
	closed
)

func (s state) String() string {
	switch s {
	case initialized:
		return "initialized"
	case closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Options configures a Session.
type Options struct {
	// DebugCache rejects cache hits whose request differs from the one the
	// cached function was compiled for. Otherwise the difference is logged
	// and the cached function runs as compiled.
	DebugCache bool
}

// OptionsFromConfig derives Options from framework defaults.
func OptionsFromConfig(c config.Config) Options {
	return Options{DebugCache: c.DebugCache}
}

// Feed binds a concrete value to an input for one run.
type Feed struct {
	Input *graph.Input
	Value *tensor.Array
}

// RunOptions describes one run.
type RunOptions struct {
	// Name caches the compiled function. Later runs with the same name call
	// the cached function, whatever they request.
	Name string
	// Outputs are computed and returned in order.
	Outputs []graph.Value
	// Inputs feed placeholders. Values are cast to the input's dtype.
	Inputs []Feed
	// Updates are applied after the outputs are computed.
	Updates []*graph.Operation
	// Givens replaces the key with the value while compiling.
	Givens map[graph.Value]graph.Value
}

// Session runs computations of one graph.Context.
type Session struct {
	id   uuid.UUID
	gctx *graph.Context
	opts Options

	mu    sync.Mutex
	state state
	cache map[string]*compiled
	group singleflight.Group
}

// New creates an uninitialized Session over ctx.
func New(ctx *graph.Context, opts Options) *Session {
	s := &Session{
		id:    uuid.New(),
		gctx:  ctx,
		opts:  opts,
		cache: make(map[string]*compiled),
	}
	klog.V(2).InfoS("Created session", "session", s.id, "backend", ctx.Backend().Name(), "debugCache", opts.DebugCache)
	return s
}

// ID returns the session identifier used in log lines.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Context returns the graph context the session runs.
func (s *Session) Context() *graph.Context {
	return s.gctx
}

// Initialize materializes variable state. On the static engine every call
// resamples all variables; on the symbolic engine it only marks the session
// usable.
func (s *Session) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == closed {
		return errors.WithStack(graph.ErrSessionClosed)
	}
	if err := s.gctx.Backend().Initialize(); err != nil {
		if errors.Is(err, backend.ErrClosed) {
			return errors.Wrapf(graph.ErrSessionClosed, "%v", err)
		}
		return errors.Wrap(err, "initializing variables")
	}
	s.state = initialized
	klog.V(2).InfoS("Initialized session", "session", s.id)
	return nil
}

// Close releases backend resources. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == closed {
		return nil
	}
	s.state = closed
	s.cache = nil
	klog.V(2).InfoS("Closed session", "session", s.id)
	return errors.Wrap(s.gctx.Backend().Close(), "closing backend")
}

// Run computes opts.Outputs and applies opts.Updates.
func (s *Session) Run(opts RunOptions) ([]*tensor.Array, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	req, err := s.newRequest(opts)
	if err != nil {
		return nil, err
	}
	c, err := s.function(opts.Name, req)
	if err != nil {
		return nil, err
	}
	feeds, err := c.bind(req.feeds)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %q", opts.Name)
	}
	out, err := c.fn.Call(feeds)
	if err != nil {
		return nil, runError(opts.Name, err)
	}
	return out, nil
}

// Eval runs opts with output as the only output and returns its value.
func (s *Session) Eval(output graph.Value, opts RunOptions) (*tensor.Array, error) {
	opts.Outputs = []graph.Value{output}
	out, err := s.Run(opts)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		// A cached function compiled for other outputs.
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "function %q returned %d outputs", opts.Name, len(out))
	}
	return out[0], nil
}

func (s *Session) checkState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case closed:
		return errors.WithStack(graph.ErrSessionClosed)
	case uninitialized:
		return errors.WithStack(graph.ErrNotInitialized)
	}
	return nil
}

// function returns the compiled function for req, compiling at most once
// per name.
func (s *Session) function(name string, req *request) (*compiled, error) {
	if name == "" {
		return s.compile(name, req)
	}

	s.mu.Lock()
	c, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return c, s.checkHit(name, c, req)
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		s.mu.Lock()
		c, ok := s.cache[name]
		s.mu.Unlock()
		if ok {
			return c, nil
		}
		c, err := s.compile(name, req)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == closed {
			return nil, errors.WithStack(graph.ErrSessionClosed)
		}
		s.cache[name] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c = v.(*compiled)
	if c.sig.equal(req.sig) {
		return c, nil
	}
	// Another caller compiled name first with a different request.
	return c, s.checkHit(name, c, req)
}

func (s *Session) checkHit(name string, c *compiled, req *request) error {
	if c.sig.equal(req.sig) {
		return nil
	}
	if s.opts.DebugCache {
		return errors.Wrapf(graph.ErrInvalidArgument,
			"function %q was compiled for a different request (%s, now %s)", name, c.sig, req.sig)
	}
	klog.Warningf("Session %s: function %q was compiled for %s but is called with %s; running the cached function", s.id, name, c.sig, req.sig)
	return nil
}

func (s *Session) compile(name string, req *request) (*compiled, error) {
	fn, err := s.gctx.Backend().Compile(req.spec)
	if err != nil {
		if errors.Is(err, backend.ErrClosed) {
			return nil, errors.Wrapf(graph.ErrSessionClosed, "%v", err)
		}
		return nil, errors.Wrapf(graph.ErrCompilation, "function %q: %v", name, err)
	}
	klog.V(3).InfoS("Compiled function", "session", s.id, "name", name, "signature", req.sig)
	return &compiled{fn: fn, sig: req.sig, inputs: req.inputs}, nil
}

func runError(name string, err error) error {
	switch {
	case errors.Is(err, backend.ErrClosed):
		return errors.Wrapf(graph.ErrSessionClosed, "function %q: %v", name, err)
	case errors.Is(err, backend.ErrUninitialized):
		return errors.Wrapf(graph.ErrNotInitialized, "function %q: %v", name, err)
	default:
		return errors.Wrapf(graph.ErrInvalidArgument, "function %q: %v", name, err)
	}
}
