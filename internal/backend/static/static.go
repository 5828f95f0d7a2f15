// Package static implements the static-graph engine.
//
// Construction only records nodes in an arena. Variables hold no value
// until Initialize samples every initializer; Initialize may be called again
// to reset all state. Compile resolves the nodes a function needs into a
// topologically ordered plan that Call executes.
package static

import (
	"fmt"
	"sync"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Name is the engine name reported by Backend.Name.
const Name = "static"

// NodeID indexes the node arena.
type NodeID int

// Node is the handle type of this engine.
type Node struct {
	graph *Backend
	ID    NodeID
}

func (n Node) String() string {
	if n.graph == nil {
		return fmt.Sprintf("node#%d", n.ID)
	}
	return n.graph.describe(n.ID)
}

type nodeKind int

const (
	placeholderNode nodeKind = iota
	variableNode
	constantNode
	applyNode
	updateNode
)

type node struct {
	kind nodeKind

	op    backend.OpKind
	attrs backend.Attrs
	args  []NodeID

	shape tensor.PartialShape
	dtype tensor.DataType

	init     backend.Initializer
	constant *tensor.Array
	assigns  []assignment
}

type assignment struct {
	target NodeID
	value  NodeID
}

// Backend is the static-graph engine.
type Backend struct {
	mu          sync.Mutex
	nodes       []node
	state       map[NodeID]*tensor.Array
	initialized bool
	closed      bool
}

var _ backend.Backend = (*Backend)(nil)

// New creates a static backend.
func New() *Backend {
	return &Backend{state: make(map[NodeID]*tensor.Array)}
}

// Name returns "static".
func (b *Backend) Name() string {
	return Name
}

func (b *Backend) add(n node) (Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Node{}, backend.ErrClosed
	}
	b.nodes = append(b.nodes, n)
	return Node{graph: b, ID: NodeID(len(b.nodes) - 1)}, nil
}

// Placeholder records a feed point.
func (b *Backend) Placeholder(shape tensor.PartialShape, dtype tensor.DataType) (backend.Handle, error) {
	return b.add(node{kind: placeholderNode, shape: shape.Clone(), dtype: dtype})
}

// Variable records a variable; its value is sampled by Initialize.
func (b *Backend) Variable(shape tensor.Shape, dtype tensor.DataType, init backend.Initializer) (backend.Handle, error) {
	if init == nil {
		return nil, fmt.Errorf("variable %v: nil initializer", shape)
	}
	return b.add(node{kind: variableNode, shape: shape.Partial(), dtype: dtype, init: init})
}

// Constant records a copy of value.
func (b *Backend) Constant(value *tensor.Array) (backend.Handle, error) {
	return b.add(node{kind: constantNode, shape: value.Shape().Partial(), dtype: value.DType(), constant: value.Clone()})
}

// Apply records a derived node.
func (b *Backend) Apply(op backend.OpKind, attrs backend.Attrs, inputs ...backend.Handle) (backend.Handle, error) {
	if len(inputs) != op.Arity() {
		return nil, fmt.Errorf("%s: expected %d inputs, got %d", op, op.Arity(), len(inputs))
	}
	args := make([]NodeID, len(inputs))
	for i, h := range inputs {
		id, err := b.nodeID(h)
		if err != nil {
			return nil, fmt.Errorf("%s: input %d: %w", op, i, err)
		}
		if b.kind(id) == updateNode {
			return nil, fmt.Errorf("%s: input %d is an update", op, i)
		}
		args[i] = id
	}
	return b.add(node{kind: applyNode, op: op, attrs: attrs, args: args})
}

// NewUpdate records a group of assignments.
func (b *Backend) NewUpdate(updates []backend.Update) (backend.Handle, error) {
	n := node{kind: updateNode}
	for i, u := range updates {
		target, err := b.nodeID(u.Target)
		if err != nil {
			return nil, fmt.Errorf("update %d target: %w", i, err)
		}
		if b.kind(target) != variableNode {
			return nil, fmt.Errorf("update %d: %w", i, backend.ErrNotVariable)
		}
		value, err := b.nodeID(u.Value)
		if err != nil {
			return nil, fmt.Errorf("update %d value: %w", i, err)
		}
		n.assigns = append(n.assigns, assignment{target: target, value: value})
		n.args = append(n.args, value)
	}
	return b.add(n)
}

// Initialize samples every variable from its initializer, replacing any
// previous state.
func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	state := make(map[NodeID]*tensor.Array)
	for i, n := range b.nodes {
		if n.kind != variableNode {
			continue
		}
		shape, _ := n.shape.Concrete()
		value, err := n.init.Sample(shape, n.dtype)
		if err != nil {
			return fmt.Errorf("initializing %s: %w", b.describeLocked(NodeID(i)), err)
		}
		if !value.Shape().Equal(shape) {
			return fmt.Errorf("initializing %s: initializer produced shape %v", b.describeLocked(NodeID(i)), value.Shape())
		}
		state[NodeID(i)] = value
	}
	b.state = state
	b.initialized = true
	return nil
}

// Close drops all state. It is safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.state = nil
	return nil
}

func (b *Backend) nodeID(h backend.Handle) (NodeID, error) {
	n, ok := h.(Node)
	if !ok || n.graph != b {
		return 0, fmt.Errorf("%w: %v", backend.ErrForeignHandle, h)
	}
	return n.ID, nil
}

func (b *Backend) kind(id NodeID) nodeKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes[id].kind
}

func (b *Backend) describe(id NodeID) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.describeLocked(id)
}

func (b *Backend) describeLocked(id NodeID) string {
	if int(id) >= len(b.nodes) {
		return fmt.Sprintf("node#%d", id)
	}
	n := b.nodes[id]
	switch n.kind {
	case placeholderNode:
		return fmt.Sprintf("placeholder#%d%s", id, n.shape)
	case variableNode:
		return fmt.Sprintf("variable#%d%s", id, n.shape)
	case constantNode:
		return fmt.Sprintf("constant#%d%s", id, n.shape)
	case updateNode:
		return fmt.Sprintf("update#%d", id)
	default:
		return fmt.Sprintf("%s#%d", n.op, id)
	}
}
