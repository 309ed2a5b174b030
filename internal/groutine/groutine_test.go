package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGo_PropagatesNameThroughContext(t *testing.T) {
	got := make(chan string, 1)
	Go(context.Background(), "batch-runner", func(ctx context.Context) {
		got <- Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "batch-runner", name)
	case <-time.After(time.Second):
		t.Fatal("fn did not run")
	}
}

func TestGo_NilParentContextDefaultsToBackground(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "no-parent", func(ctx context.Context) {
		assert.NotNil(t, ctx)
		assert.Equal(t, "no-parent", Name(ctx))
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fn did not run")
	}
}

func TestName_ReturnsEmptyOutsideGo(t *testing.T) {
	assert.Equal(t, "", Name(context.Background()))
	assert.Equal(t, "", Name(nil))
}
