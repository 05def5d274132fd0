package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflight(t *testing.T) {
	f := newInflight()

	release, ok := f.tryAcquire("v1")
	require.True(t, ok)
	assert.True(t, f.busy("v1"))

	_, ok = f.tryAcquire("v1")
	assert.False(t, ok)

	other, ok := f.tryAcquire("v2")
	require.True(t, ok)
	other()

	acquired := make(chan func())
	go func() {
		r, err := f.acquire(context.Background(), "v1")
		if err == nil {
			acquired <- r
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()

	select {
	case r := <-acquired:
		assert.True(t, f.busy("v1"))
		r()
		assert.False(t, f.busy("v1"))
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}
