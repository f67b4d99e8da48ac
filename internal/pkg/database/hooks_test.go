package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterCommit_WithoutTransactionRunsImmediately(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestAfterCommit_DeferredUntilRun(t *testing.T) {
	ctx, run := WithCommitHooks(context.Background())

	var order []string
	AfterCommit(ctx, func(context.Context) { order = append(order, "a") })
	AfterCommit(ctx, func(context.Context) { order = append(order, "b") })
	assert.Empty(t, order)

	run()
	assert.Equal(t, []string{"a", "b"}, order)

	run()
	assert.Len(t, order, 2, "ganchos rodam uma única vez")
}
