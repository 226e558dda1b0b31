package shutdown

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psantana5/euclid/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.ERROR, false)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	m := New(time.Second, quietLogger())

	var order []string
	for _, name := range []string{"store", "metrics", "api"} {
		m.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"api", "metrics", "store"}, order)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done channel should be closed after shutdown")
	}
}

func TestShutdownCollectsErrorsAndRunsOnce(t *testing.T) {
	m := New(time.Second, quietLogger())
	boom := errors.New("boom")

	calls := 0
	m.Register("ok", func(ctx context.Context) error { calls++; return nil })
	m.Register("broken", func(ctx context.Context) error { calls++; return boom })

	err := m.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 2, calls, "hooks after a failure still run")

	assert.NoError(t, m.Shutdown())
	assert.Equal(t, 2, calls)
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	m := New(time.Second, quietLogger())
	ran := false
	m.Register("hook", func(ctx context.Context) error { ran = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Wait(ctx))
	assert.True(t, ran)
}
