package symbolic

import (
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"

	"github.com/luchador-ml/luchador/internal/backend"
	"github.com/luchador-ml/luchador/internal/tensor"
)

var creator = anyvec64.DefaultCreator{}

func toVector(a *tensor.Array) anyvec.Vector {
	data := append([]float64(nil), a.Data()...)
	return creator.MakeVectorData(creator.MakeNumericList(data))
}

func fromVector(v anyvec.Vector, shape tensor.Shape, dtype tensor.DataType) (*tensor.Array, error) {
	return tensor.FromSliceAs(v.Data().([]float64), shape, dtype)
}

// compute runs same-shape arithmetic, scaling and matrix products on anyvec
// and leaves everything else to the shared kernels.
func compute(op backend.OpKind, attrs backend.Attrs, args []*tensor.Array) (*tensor.Array, error) {
	switch op {
	case backend.Add, backend.Sub, backend.Mul:
		a, b := args[0], args[1]
		if !a.Shape().Equal(b.Shape()) {
			break
		}
		v, w := toVector(a), toVector(b)
		switch op {
		case backend.Add:
			v.Add(w)
		case backend.Sub:
			v.Sub(w)
		default:
			v.Mul(w)
		}
		return fromVector(v, a.Shape(), a.DType())
	case backend.Scale:
		v := toVector(args[0])
		v.Scale(creator.MakeNumeric(attrs.Scalar))
		return fromVector(v, args[0].Shape(), args[0].DType())
	case backend.MatMul:
		a, b := args[0].Shape(), args[1].Shape()
		if len(a) != 2 || len(b) != 2 || a[1] != b[0] || a[0]*a[1]*b[1] == 0 {
			break
		}
		out := &anyvec.Matrix{Data: creator.MakeVector(a[0] * b[1]), Rows: a[0], Cols: b[1]}
		out.Product(false, false, creator.MakeNumeric(1),
			&anyvec.Matrix{Data: toVector(args[0]), Rows: a[0], Cols: a[1]},
			&anyvec.Matrix{Data: toVector(args[1]), Rows: b[0], Cols: b[1]},
			creator.MakeNumeric(0))
		return fromVector(out.Data, tensor.Shape{a[0], b[1]}, args[0].DType())
	}
	return backend.Eval(op, attrs, args...)
}
