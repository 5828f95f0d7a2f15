// Copyright 2025 Luchador Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/luchador-ml/luchador/internal/initializer"
	"github.com/luchador-ml/luchador/internal/layer"
)

// Layer builds one transformation of its input.
type Layer = layer.Layer

// LayerConfig is the serialized form of a layer.
type LayerConfig = layer.Config

// MakeLayer creates a layer from its configuration.
func MakeLayer(cfg LayerConfig) (Layer, error) {
	return layer.Make(cfg)
}

// Dense is a fully connected layer.
type Dense = layer.Dense

// DenseOption configures a Dense layer.
type DenseOption = layer.DenseOption

// NewDense creates a fully connected layer with nNodes outputs.
func NewDense(name string, nNodes int, opts ...DenseOption) *Dense {
	return layer.NewDense(name, nNodes, opts...)
}

// WithoutBias drops the bias of a Dense layer.
func WithoutBias() DenseOption {
	return layer.WithoutBias()
}

// WithWeightInitializer sets the weight initializer of a Dense layer.
func WithWeightInitializer(init Initializer) DenseOption {
	return layer.WithWeightInitializer(init)
}

// WithBiasInitializer sets the bias initializer of a Dense layer.
func WithBiasInitializer(init Initializer) DenseOption {
	return layer.WithBiasInitializer(init)
}

// NewReLU creates a rectified linear activation.
func NewReLU(name string) *layer.ReLU { return layer.NewReLU(name) }

// NewSigmoid creates a logistic activation.
func NewSigmoid(name string) *layer.Sigmoid { return layer.NewSigmoid(name) }

// NewTanh creates a hyperbolic tangent activation.
func NewTanh(name string) *layer.Tanh { return layer.NewTanh(name) }

// NewFlatten creates a layer reshaping (N, ...) to (N, features).
func NewFlatten(name string) *layer.Flatten { return layer.NewFlatten(name) }

// NewNHWC2NCHW creates a layer moving channels before the spatial dimensions.
func NewNHWC2NCHW(name string) *layer.NHWC2NCHW { return layer.NewNHWC2NCHW(name) }

// NewNCHW2NHWC creates a layer moving channels after the spatial dimensions.
func NewNCHW2NHWC(name string) *layer.NCHW2NHWC { return layer.NewNCHW2NHWC(name) }

// Initializer samples initial variable values.
type Initializer = initializer.Initializer

// Initializers.
type (
	Constant = initializer.Constant
	Uniform  = initializer.Uniform
	Normal   = initializer.Normal
	Xavier   = initializer.Xavier
	Kaiming  = initializer.Kaiming
)
