package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luchador-ml/luchador/internal/checkpoint"
)

const dqnModel = "../../internal/model/testdata/dqn.yml"

func TestOpenStore(t *testing.T) {
	s, err := openStore("gs://bucket/runs/dqn/")
	require.NoError(t, err)
	assert.Equal(t, &checkpoint.GCSStore{Bucket: "bucket", Prefix: "runs/dqn"}, s)

	s, err = openStore("/tmp/checkpoints")
	require.NoError(t, err)
	assert.Equal(t, &checkpoint.FileStore{Dir: "/tmp/checkpoints"}, s)

	_, err = openStore("gs://")
	assert.Error(t, err)
	_, err = openStore("")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runInspect(&out, []string{"-backend", "static", dqnModel}))
	assert.Contains(t, out.String(), "dqn/fc1/weight")
	assert.Contains(t, out.String(), "Container")

	assert.Error(t, runInspect(&out, []string{"-backend", "gpu", dqnModel}))
	assert.Error(t, runInspect(&out, nil))
}

func TestInitAndShow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, runInit(ctx, &out, []string{"-store", dir, "-key", "dqn/init", dqnModel}))
	assert.Contains(t, out.String(), "wrote")

	out.Reset()
	require.NoError(t, runShow(ctx, &out, []string{"-store", dir, "-key", "dqn/init"}))
	assert.Contains(t, out.String(), "backend symbolic")
	assert.Contains(t, out.String(), "dqn/fc2/bias")

	assert.Error(t, runShow(ctx, &out, []string{"-store", dir, "-key", "missing"}))
}
