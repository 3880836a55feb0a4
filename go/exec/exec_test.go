package exec

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CommandCollector_SeesCommand(t *testing.T) {
	mock := CommandCollector{}
	mock.SetDelegateRun(func(ctx context.Context, c *Command) error {
		_, err := c.Stdout.Write([]byte("abc\n"))
		return err
	})
	ctx := NewContext(context.Background(), mock.Run)

	var out bytes.Buffer
	require.NoError(t, Run(ctx, &Command{Name: "git", Args: []string{"rev-parse", "HEAD"}, Stdout: &out}))
	require.Len(t, mock.Commands(), 1)
	assert.Equal(t, "git rev-parse HEAD", DebugString(mock.Commands()[0]))
	assert.Equal(t, "abc\n", out.String())
}

func TestDefaultRun_RealProcess_CapturesOutputAndExitCode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "echo hello"}, Stdout: &out}))
	assert.Equal(t, "hello\n", out.String())

	err := Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "exit 75"}})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 75, exitErr.Code)
}
