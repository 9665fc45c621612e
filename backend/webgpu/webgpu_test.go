// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu_test

import (
	"errors"
	"testing"

	"github.com/born-ml/qconv/backend/cpu"
	"github.com/born-ml/qconv/backend/webgpu"
	"github.com/born-ml/qconv/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeAgreesWithIsAvailable(t *testing.T) {
	assert.Equal(t, webgpu.IsAvailable(), webgpu.Probe() == nil)
}

func TestNewEngine_FallsBackToCPU(t *testing.T) {
	engine, err := webgpu.NewEngine()
	if errors.Is(err, webgpu.ErrUnsupported) {
		engine = cpu.New()
	}
	require.NotNil(t, engine)

	layer, err := nn.NewQuantConv(nn.QuantConvConfig{Geometry: nn.Uniform(1, 1, 1, 1, 1, 0, false), Scale: 1}, engine)
	require.NoError(t, err)
	assert.Contains(t, layer.String(), "on CPU")
}
