// Package graph holds the backend-neutral wrappers and the Context that
// names, scopes and owns them.
//
// A Context is created around one backend and passed explicitly to every
// construction call:
//
//	ctx := graph.NewContext(symbolic.New())
//	err := ctx.VariableScope("pre_trans", graph.Strict, func() error {
//		x, err := graph.NewInput(ctx, "state", tensor.NewPartialShape(-1, 4), tensor.Float32)
//		...
//	})
//
// Named inputs, variables and operations are registered under the active
// scope path and can be retrieved by name later. A Context is safe for
// concurrent lookups, but the scope stack is shared: build graphs from one
// goroutine per Context.
package graph

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/backend"
)

// ScopeSeparator joins scope names.
const ScopeSeparator = "/"

// Category partitions the registry.
type Category string

// Registry categories.
const (
	CategoryInput     Category = "input"
	CategoryVariable  Category = "variable"
	CategoryOperation Category = "operation"
)

// ReuseMode decides what registering an existing name does.
type ReuseMode int

const (
	// Strict fails with ErrDuplicateName.
	Strict ReuseMode = iota
	// AllowReuse replaces the existing entry.
	AllowReuse
)

func (m ReuseMode) String() string {
	if m == AllowReuse {
		return "allow_reuse"
	}
	return "strict"
}

type scopeFrame struct {
	path string
	mode ReuseMode
}

// Context owns the name registry, the scope stack and the arena of backend
// handles that wrappers point into.
type Context struct {
	backend backend.Backend

	mu       sync.Mutex
	registry map[Category]map[string]any
	varOrder []string
	models   map[string]any
	scopes   []scopeFrame
	arena    []backend.Handle

	// journal records registrations made inside Transaction; marks holds
	// the journal length at the start of each open transaction.
	journal []registration
	marks   []int
}

// registration is one journaled registry write and what it replaced.
type registration struct {
	category Category // empty for models
	name     string
	previous any
	existed  bool
}

// NewContext creates a Context around b.
func NewContext(b backend.Backend) *Context {
	ctx := &Context{backend: b}
	ctx.resetLocked()
	return ctx
}

// Backend returns the engine the Context builds on.
func (ctx *Context) Backend() backend.Backend {
	return ctx.backend
}

// Reset clears the registries and the scope stack. Wrappers created
// before Reset keep working but can no longer be retrieved by name.
func (ctx *Context) Reset() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.resetLocked()
}

func (ctx *Context) resetLocked() {
	ctx.registry = map[Category]map[string]any{
		CategoryInput:     {},
		CategoryVariable:  {},
		CategoryOperation: {},
	}
	ctx.varOrder = nil
	ctx.models = make(map[string]any)
	ctx.scopes = nil
	// Open transactions keep running but can only undo what follows.
	ctx.journal = nil
	for i := range ctx.marks {
		ctx.marks[i] = 0
	}
}

func (ctx *Context) currentLocked() scopeFrame {
	if len(ctx.scopes) == 0 {
		return scopeFrame{mode: Strict}
	}
	return ctx.scopes[len(ctx.scopes)-1]
}

// Scope returns the active scope path; the root is "".
func (ctx *Context) Scope() string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.currentLocked().path
}

// ReuseMode returns the mode of the innermost scope.
func (ctx *Context) ReuseMode() ReuseMode {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.currentLocked().mode
}

// ScopedName qualifies name with the active scope path.
func (ctx *Context) ScopedName(name string) string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return joinScope(ctx.currentLocked().path, name)
}

func joinScope(path, name string) string {
	switch {
	case path == "":
		return name
	case name == "":
		return path
	default:
		return path + ScopeSeparator + name
	}
}

// VariableScope runs fn with name pushed onto the scope stack and mode as
// the reuse mode. The frame is popped however fn exits, panics included.
// An empty name keeps the current path and only changes the mode.
func (ctx *Context) VariableScope(name string, mode ReuseMode, fn func() error) error {
	ctx.mu.Lock()
	path := joinScope(ctx.currentLocked().path, name)
	ctx.scopes = append(ctx.scopes, scopeFrame{path: path, mode: mode})
	depth := len(ctx.scopes)
	ctx.mu.Unlock()

	defer func() {
		ctx.mu.Lock()
		defer ctx.mu.Unlock()
		if len(ctx.scopes) >= depth {
			ctx.scopes = ctx.scopes[:depth-1]
		}
	}()
	return fn()
}

// Register stores w under the scoped name and returns that name.
func (ctx *Context) Register(category Category, name string, w any) (string, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	entries, ok := ctx.registry[category]
	if !ok {
		return "", errors.Wrapf(ErrInvalidArgument, "unknown category %q", category)
	}
	frame := ctx.currentLocked()
	fq := joinScope(frame.path, name)
	previous, exists := entries[fq]
	if exists {
		if frame.mode != AllowReuse {
			return "", errors.Wrapf(ErrDuplicateName, "%s %q already exists", category, fq)
		}
		klog.V(4).InfoS("Replacing registered entry", "category", category, "name", fq)
	} else if category == CategoryVariable {
		ctx.varOrder = append(ctx.varOrder, fq)
	}
	entries[fq] = w
	ctx.recordLocked(registration{category: category, name: fq, previous: previous, existed: exists})
	return fq, nil
}

// Transaction runs fn and, when it fails or panics, undoes every
// registration fn made, models included. Transactions nest; an inner
// commit is undone again if the outer transaction fails.
//
// Backend handles created by fn are not released; they are simply no
// longer reachable by name.
func (ctx *Context) Transaction(fn func() error) (err error) {
	ctx.mu.Lock()
	ctx.marks = append(ctx.marks, len(ctx.journal))
	ctx.mu.Unlock()

	committed := false
	defer func() {
		ctx.mu.Lock()
		defer ctx.mu.Unlock()
		mark := ctx.marks[len(ctx.marks)-1]
		ctx.marks = ctx.marks[:len(ctx.marks)-1]
		if !committed {
			n := ctx.rollbackLocked(mark)
			klog.V(2).InfoS("Rolled back registrations", "count", n, "scope", ctx.currentLocked().path)
		}
		if len(ctx.marks) == 0 {
			ctx.journal = nil
		}
	}()
	if err = fn(); err == nil {
		committed = true
	}
	return err
}

func (ctx *Context) recordLocked(r registration) {
	if len(ctx.marks) > 0 {
		ctx.journal = append(ctx.journal, r)
	}
}

// rollbackLocked undoes journal entries past mark, newest first.
func (ctx *Context) rollbackLocked(mark int) int {
	if mark > len(ctx.journal) {
		return 0
	}
	undone := ctx.journal[mark:]
	for i := len(undone) - 1; i >= 0; i-- {
		r := undone[i]
		entries := ctx.models
		if r.category != "" {
			entries = ctx.registry[r.category]
		}
		if r.existed {
			entries[r.name] = r.previous
			continue
		}
		delete(entries, r.name)
		if r.category == CategoryVariable {
			ctx.varOrder = removeLast(ctx.varOrder, r.name)
		}
	}
	ctx.journal = ctx.journal[:mark]
	return len(undone)
}

func removeLast(names []string, name string) []string {
	for i := len(names) - 1; i >= 0; i-- {
		if names[i] == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}

// Retrieve looks name up under the active scope first, then as a root name.
func (ctx *Context) Retrieve(category Category, name string) (any, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	entries, ok := ctx.registry[category]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown category %q", category)
	}
	if w, ok := entries[joinScope(ctx.currentLocked().path, name)]; ok {
		return w, nil
	}
	if w, ok := entries[name]; ok {
		return w, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "%s %q", category, name)
}

// Names lists the registered names of a category in sorted order.
func (ctx *Context) Names(category Category) []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	names := make([]string, 0, len(ctx.registry[category]))
	for name := range ctx.registry[category] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetInput returns the Input registered as name.
func (ctx *Context) GetInput(name string) (*Input, error) {
	w, err := ctx.Retrieve(CategoryInput, name)
	if err != nil {
		return nil, err
	}
	v, ok := w.(*Input)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q is a %T, not an Input", name, w)
	}
	return v, nil
}

// GetVariable returns the Variable registered as name.
func (ctx *Context) GetVariable(name string) (*Variable, error) {
	w, err := ctx.Retrieve(CategoryVariable, name)
	if err != nil {
		return nil, err
	}
	v, ok := w.(*Variable)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q is a %T, not a Variable", name, w)
	}
	return v, nil
}

// GetOperation returns the Operation registered as name.
func (ctx *Context) GetOperation(name string) (*Operation, error) {
	w, err := ctx.Retrieve(CategoryOperation, name)
	if err != nil {
		return nil, err
	}
	v, ok := w.(*Operation)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q is a %T, not an Operation", name, w)
	}
	return v, nil
}

// Variables returns every registered variable in registration order.
func (ctx *Context) Variables() []*Variable {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	vars := make([]*Variable, 0, len(ctx.varOrder))
	for _, name := range ctx.varOrder {
		if v, ok := ctx.registry[CategoryVariable][name].(*Variable); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// VariablesIn returns the registered variables whose names lie under scope,
// in registration order.
func (ctx *Context) VariablesIn(scope string) []*Variable {
	var vars []*Variable
	for _, v := range ctx.Variables() {
		if hasPrefix(v.Name(), scope) {
			vars = append(vars, v)
		}
	}
	return vars
}

// RegisterModel stores a model under its scoped name. An existing model of
// the same name is replaced with a warning.
func (ctx *Context) RegisterModel(name string, model any) string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	fq := joinScope(ctx.currentLocked().path, name)
	previous, exists := ctx.models[fq]
	if exists {
		klog.Warningf("Model %q already exists; overwriting", fq)
	}
	ctx.models[fq] = model
	ctx.recordLocked(registration{name: fq, previous: previous, existed: exists})
	return fq
}

// LookupModel returns the model registered as name, trying the scoped name
// first.
func (ctx *Context) LookupModel(name string) (any, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if m, ok := ctx.models[joinScope(ctx.currentLocked().path, name)]; ok {
		return m, nil
	}
	if m, ok := ctx.models[name]; ok {
		return m, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "model %q", name)
}

// ModelNames lists the registered model names in sorted order.
func (ctx *Context) ModelNames() []string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	names := make([]string, 0, len(ctx.models))
	for name := range ctx.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ctx *Context) newSlot(h backend.Handle) int {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.arena = append(ctx.arena, h)
	return len(ctx.arena) - 1
}

func (ctx *Context) handle(slot int) backend.Handle {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.arena[slot]
}

func (ctx *Context) rebind(slot int, h backend.Handle) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.arena[slot] = h
}

// hasPrefix reports whether name lies under scope.
func hasPrefix(name, scope string) bool {
	return scope == "" || name == scope || strings.HasPrefix(name, scope+ScopeSeparator)
}
