package static

import (
	"fmt"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// plan is a compiled function: the nodes to evaluate in dependency order.
type plan struct {
	owner   *Backend
	inputs  []NodeID
	outputs []NodeID
	assigns []assignment
	givens  map[NodeID]NodeID
	order   []NodeID
}

// Compile resolves the nodes needed by the outputs and updates and orders
// them so that every node follows its dependencies.
func (b *Backend) Compile(spec backend.FunctionSpec) (backend.Function, error) {
	p := &plan{owner: b, givens: make(map[NodeID]NodeID, len(spec.Givens))}

	fed := make(map[NodeID]bool, len(spec.Inputs))
	for i, h := range spec.Inputs {
		id, err := b.nodeID(h)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if b.kind(id) != placeholderNode {
			return nil, fmt.Errorf("input %d: %s is not a placeholder", i, b.describe(id))
		}
		p.inputs = append(p.inputs, id)
		fed[id] = true
	}
	for from, to := range spec.Givens {
		src, err := b.nodeID(from)
		if err != nil {
			return nil, fmt.Errorf("given key: %w", err)
		}
		dst, err := b.nodeID(to)
		if err != nil {
			return nil, fmt.Errorf("given value: %w", err)
		}
		p.givens[src] = dst
	}
	for i, h := range spec.Outputs {
		id, err := b.nodeID(h)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if b.kind(id) == updateNode {
			return nil, fmt.Errorf("output %d: %s is an update", i, b.describe(id))
		}
		p.outputs = append(p.outputs, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	targets := make(map[NodeID]bool)
	for i, h := range spec.Updates {
		id, err := b.nodeID(h)
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i, err)
		}
		n := b.nodes[id]
		if n.kind != updateNode {
			return nil, fmt.Errorf("update %d: %s is not an update", i, b.describeLocked(id))
		}
		for _, a := range n.assigns {
			if targets[a.target] {
				return nil, fmt.Errorf("%w: %s", backend.ErrDuplicateTarget, b.describeLocked(a.target))
			}
			targets[a.target] = true
			p.assigns = append(p.assigns, a)
		}
	}

	wanted := append([]NodeID(nil), p.outputs...)
	for _, a := range p.assigns {
		wanted = append(wanted, a.value)
	}
	needed, err := p.reachable(wanted, fed)
	if err != nil {
		return nil, err
	}
	if p.order, err = p.buildOrder(needed, wanted); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) resolve(id NodeID) NodeID {
	if g, ok := p.givens[id]; ok {
		return g
	}
	return id
}

// reachable collects the nodes the wanted nodes depend on, after given
// substitution, and checks that every placeholder among them is fed.
func (p *plan) reachable(wanted []NodeID, fed map[NodeID]bool) (map[NodeID]bool, error) {
	b := p.owner
	needed := make(map[NodeID]bool)
	stack := make([]NodeID, 0, len(wanted))
	for _, id := range wanted {
		stack = append(stack, p.resolve(id))
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[id] {
			continue
		}
		needed[id] = true
		n := b.nodes[id]
		if n.kind == placeholderNode && !fed[id] {
			return nil, fmt.Errorf("%w: %s", backend.ErrUnfedPlaceholder, b.describeLocked(id))
		}
		for _, arg := range n.args {
			stack = append(stack, p.resolve(arg))
		}
	}
	return needed, nil
}

// buildOrder repeatedly sweeps the arena, emitting nodes whose dependencies
// are already emitted, until no progress is made.
func (p *plan) buildOrder(needed map[NodeID]bool, wanted []NodeID) ([]NodeID, error) {
	b := p.owner
	order := make([]NodeID, 0, len(needed))
	done := make(map[NodeID]bool, len(needed))
	for {
		progress := false
		for i := range b.nodes {
			id := NodeID(i)
			if !needed[id] || done[id] {
				continue
			}
			ready := true
			for _, arg := range b.nodes[id].args {
				if !done[p.resolve(arg)] {
					ready = false
					break
				}
			}
			if ready {
				done[id] = true
				order = append(order, id)
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	for _, id := range wanted {
		if !done[p.resolve(id)] {
			return nil, fmt.Errorf("%s could not be computed (cycle in computation graph)", b.describeLocked(id))
		}
	}
	return order, nil
}

// Call executes the plan, then writes the updates.
func (p *plan) Call(feeds []*tensor.Array) ([]*tensor.Array, error) {
	b := p.owner
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	if len(feeds) != len(p.inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", backend.ErrFeedCount, len(feeds), len(p.inputs))
	}

	values := make(map[NodeID]*tensor.Array, len(p.order))
	for i, id := range p.inputs {
		n := b.nodes[id]
		if feeds[i] == nil || !n.shape.Compatible(feeds[i].Shape()) {
			return nil, fmt.Errorf("feed %d for %s has incompatible shape", i, b.describeLocked(id))
		}
		values[id] = feeds[i].Cast(n.dtype)
	}

	for _, id := range p.order {
		n := b.nodes[id]
		switch n.kind {
		case placeholderNode:
			// fed above
		case variableNode:
			v, ok := b.state[id]
			if !b.initialized || !ok {
				return nil, fmt.Errorf("%w: reading %s", backend.ErrUninitialized, b.describeLocked(id))
			}
			values[id] = v
		case constantNode:
			values[id] = n.constant
		case applyNode:
			args := make([]*tensor.Array, len(n.args))
			for i, arg := range n.args {
				args[i] = values[p.resolve(arg)]
			}
			v, err := backend.Eval(n.op, n.attrs, args...)
			if err != nil {
				return nil, fmt.Errorf("evaluating %s: %w", b.describeLocked(id), err)
			}
			values[id] = v
		default:
			return nil, fmt.Errorf("cannot evaluate %s", b.describeLocked(id))
		}
	}

	outputs := make([]*tensor.Array, len(p.outputs))
	for i, id := range p.outputs {
		outputs[i] = values[p.resolve(id)].Clone()
	}

	pending := make([]*tensor.Array, len(p.assigns))
	for i, a := range p.assigns {
		if _, ok := b.state[a.target]; !b.initialized || !ok {
			return nil, fmt.Errorf("%w: updating %s", backend.ErrUninitialized, b.describeLocked(a.target))
		}
		v := values[p.resolve(a.value)]
		target := b.nodes[a.target]
		if !target.shape.Compatible(v.Shape()) {
			return nil, fmt.Errorf("update of %s: value shape %v does not match %s", b.describeLocked(a.target), v.Shape(), target.shape)
		}
		pending[i] = v.Cast(target.dtype)
	}
	for i, a := range p.assigns {
		b.state[a.target] = pending[i]
	}
	return outputs, nil
}
