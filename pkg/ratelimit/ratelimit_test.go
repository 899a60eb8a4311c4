package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInProcess_AllowsUpToBurstThenBlocks(t *testing.T) {
	l := NewInProcess(1, 2)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "agent-1"))
	assert.True(t, l.Allow(ctx, "agent-1"))
	assert.False(t, l.Allow(ctx, "agent-1"))
}

func TestInProcess_TracksActorsIndependently(t *testing.T) {
	l := NewInProcess(1, 1)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "agent-1"))
	assert.False(t, l.Allow(ctx, "agent-1"))
	assert.True(t, l.Allow(ctx, "agent-2"))
}
