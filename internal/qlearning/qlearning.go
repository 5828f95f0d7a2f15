// Package qlearning builds the graph of deep Q-learning: a pre-transition
// network, a post-transition (target) network of the same shape, the
// target Q-values the pre-transition network is trained toward, and an
// operation that copies its parameters into the target network.
package qlearning

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/luchador-ml/luchador/internal/graph"
	"github.com/luchador-ml/luchador/internal/model"
	"github.com/luchador-ml/luchador/internal/ops"
	"github.com/luchador-ml/luchador/internal/tensor"
)

// Scope names of the built graph.
const (
	ScopePreTrans     = "pre_trans"
	ScopePostTrans    = "post_trans"
	ScopeTargetQValue = "target_q_value"
	ScopeSync         = "sync"
)

// ModelMaker builds one Q-network. It is called once per scope and must
// build the same architecture each time. The network maps states of shape
// (N, ...) to action values of shape (N, n_actions).
type ModelMaker func() (model.Model, error)

// DeepQLearning holds the hyper-parameters of the target computation.
type DeepQLearning struct {
	DiscountRate float64
	// Rewards are clipped to [MinReward, MaxReward] when MinReward < MaxReward.
	MinReward float64
	MaxReward float64
}

// Network is the built graph.
type Network struct {
	PreTrans  model.Model
	PostTrans model.Model

	PreStates  graph.Value
	PostStates graph.Value

	Actions   *graph.Input // int32, (N,)
	Rewards   *graph.Input // (N,)
	Terminals *graph.Input // 1 for terminal transitions, (N,)

	PredictedQ   graph.Value   // pre-transition action values, (N, n_actions)
	FutureReward *graph.Tensor // clip(r) + discount * max(post_q) * (1 - terminal), (N,)
	TargetQ      *graph.Tensor // PredictedQ with the taken action replaced by FutureReward
	Error        *graph.Tensor // mean squared difference of TargetQ and PredictedQ

	// SyncOp copies every pre-transition parameter into the matching
	// post-transition parameter.
	SyncOp *graph.Operation
}

// Build constructs the Q-learning graph in the current scope of ctx. When
// it fails, nothing it registered stays in ctx.
func (q DeepQLearning) Build(ctx *graph.Context, maker ModelMaker) (*Network, error) {
	if maker == nil {
		return nil, errors.Wrap(graph.ErrInvalidArgument, "nil model maker")
	}
	if q.DiscountRate < 0 || q.DiscountRate > 1 {
		return nil, errors.Wrapf(graph.ErrInvalidValue, "discount rate must be in [0, 1], got %v", q.DiscountRate)
	}
	var n *Network
	err := ctx.Transaction(func() error {
		var err error
		n, err = q.build(ctx, maker)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (q DeepQLearning) build(ctx *graph.Context, maker ModelMaker) (*Network, error) {
	n := &Network{}
	var err error
	if n.PreTrans, err = buildNetwork(ctx, ScopePreTrans, maker); err != nil {
		return nil, err
	}
	if n.PostTrans, err = buildNetwork(ctx, ScopePostTrans, maker); err != nil {
		return nil, err
	}
	n.PreStates, n.PostStates = n.PreTrans.Input(), n.PostTrans.Input()
	n.PredictedQ = n.PreTrans.Output()

	err = ctx.VariableScope(ScopeTargetQValue, ctx.ReuseMode(), func() error {
		return q.buildTargetQValue(ctx, n)
	})
	if err != nil {
		return nil, errors.WithMessage(err, ScopeTargetQValue)
	}

	err = ctx.VariableScope(ScopeSync, ctx.ReuseMode(), func() error {
		n.SyncOp, err = buildSyncOp(ctx, n.PreTrans, n.PostTrans)
		return err
	})
	if err != nil {
		return nil, errors.WithMessage(err, ScopeSync)
	}
	klog.V(2).InfoS("Built deep Q-learning graph", "scope", ctx.Scope(), "discountRate", q.DiscountRate,
		"parameters", len(n.PreTrans.Parameters()))
	return n, nil
}

func buildNetwork(ctx *graph.Context, scope string, maker ModelMaker) (model.Model, error) {
	var m model.Model
	err := ctx.VariableScope(scope, ctx.ReuseMode(), func() error {
		var err error
		m, err = maker()
		return err
	})
	if err != nil {
		return nil, errors.WithMessage(err, scope)
	}
	if m == nil || m.Input() == nil || m.Output() == nil {
		return nil, errors.Wrapf(graph.ErrConfiguration, "%s: model maker must return a built model", scope)
	}
	if out := m.Output().Shape(); len(out) != 2 || out[1] == tensor.Unknown {
		return nil, errors.Wrapf(graph.ErrConfiguration, "%s: Q-network output must be (N, n_actions), got %s", scope, out)
	}
	return m, nil
}

func (q DeepQLearning) buildTargetQValue(ctx *graph.Context, n *Network) error {
	dtype := n.PredictedQ.DType()
	nActions := n.PredictedQ.Shape()[1]
	var err error
	if n.Actions, err = graph.NewInput(ctx, "actions", tensor.NewPartialShape(tensor.Unknown), tensor.Int32); err != nil {
		return err
	}
	if n.Rewards, err = graph.NewInput(ctx, "rewards", tensor.NewPartialShape(tensor.Unknown), dtype); err != nil {
		return err
	}
	if n.Terminals, err = graph.NewInput(ctx, "terminals", tensor.NewPartialShape(tensor.Unknown), dtype); err != nil {
		return err
	}

	// future = clip(r) + discount * max(post_q) * (1 - terminal)
	postQ, err := ops.ReduceMax(n.PostTrans.Output(), 1, false)
	if err != nil {
		return err
	}
	if postQ, err = ops.Scale(postQ, q.DiscountRate); err != nil {
		return err
	}
	alive, err := ops.Scale(n.Terminals, -1)
	if err != nil {
		return err
	}
	if alive, err = ops.AddScalar(alive, 1); err != nil {
		return err
	}
	if postQ, err = ops.Mul(postQ, alive); err != nil {
		return err
	}
	var rewards graph.Value = n.Rewards
	if q.MinReward < q.MaxReward {
		if rewards, err = ops.Clip(n.Rewards, q.MinReward, q.MaxReward); err != nil {
			return err
		}
	}
	if n.FutureReward, err = ops.Add(rewards, postQ); err != nil {
		return err
	}

	// Keep the predicted value of actions not taken, replace the taken one.
	maskOn, err := ops.OneHot(n.Actions, nActions, dtype)
	if err != nil {
		return err
	}
	maskOff, err := ops.Scale(maskOn, -1)
	if err != nil {
		return err
	}
	if maskOff, err = ops.AddScalar(maskOff, 1); err != nil {
		return err
	}
	current, err := ops.Identity(n.PredictedQ)
	if err != nil {
		return err
	}
	if current, err = ops.Mul(current, maskOff); err != nil {
		return err
	}
	future, err := ops.Reshape(n.FutureReward, tensor.Unknown, 1)
	if err != nil {
		return err
	}
	if future, err = ops.Mul(future, maskOn); err != nil {
		return err
	}
	if n.TargetQ, err = ops.Add(current, future); err != nil {
		return err
	}

	diff, err := ops.Sub(n.TargetQ, n.PredictedQ)
	if err != nil {
		return err
	}
	if diff, err = ops.Square(diff); err != nil {
		return err
	}
	n.Error, err = ops.ReduceMean(diff)
	return err
}

func buildSyncOp(ctx *graph.Context, pre, post model.Model) (*graph.Operation, error) {
	src, tgt := pre.Parameters(), post.Parameters()
	if len(src) != len(tgt) {
		return nil, errors.Wrapf(graph.ErrConfiguration,
			"pre-transition network has %d parameters, post-transition network has %d", len(src), len(tgt))
	}
	sources := make([]graph.Value, len(src))
	targets := make([]graph.Value, len(tgt))
	for i := range src {
		sources[i], targets[i] = src[i], tgt[i]
	}
	return ops.BuildSyncOp(ctx, sources, targets, nil, "sync")
}
