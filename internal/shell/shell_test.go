package shell

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresDispatch(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}

func TestProcessInputDispatches(t *testing.T) {
	var got []string
	s := &Shell{
		dispatch: func(ctx context.Context, args []string) error {
			got = args
			return nil
		},
		builtins: make(map[string]func(args []string) error),
	}
	s.registerBuiltins()

	err := s.processInput(context.Background(), "  repo list  --db /tmp/x.db ")
	require.NoError(t, err)
	assert.Equal(t, []string{"repo", "list", "--db", "/tmp/x.db"}, got)
}

func TestProcessInputBuiltinsShadowDispatch(t *testing.T) {
	dispatched := false
	s := &Shell{
		dispatch: func(ctx context.Context, args []string) error {
			dispatched = true
			return nil
		},
		builtins: make(map[string]func(args []string) error),
	}
	s.registerBuiltins()

	err := s.processInput(context.Background(), "exit")
	assert.Equal(t, io.EOF, err)
	assert.False(t, dispatched)

	err = s.processInput(context.Background(), "help")
	require.NoError(t, err)
	assert.False(t, dispatched)
}

func TestProcessInputEmptyLine(t *testing.T) {
	s := &Shell{
		dispatch: func(ctx context.Context, args []string) error {
			t.Fatal("dispatch should not run for blank input")
			return nil
		},
		builtins: make(map[string]func(args []string) error),
	}
	s.registerBuiltins()

	require.NoError(t, s.processInput(context.Background(), "   "))
}
