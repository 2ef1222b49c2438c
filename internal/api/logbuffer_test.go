package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	buf := NewLogBuffer(2)
	buf.Append("a")
	buf.Append("b")
	buf.Append("c")
	require.Equal(t, []string{"b", "c"}, buf.Lines())

	lines := buf.Lines()
	lines[0] = "mutated"
	require.Equal(t, []string{"b", "c"}, buf.Lines())

	buf.Clear()
	require.Empty(t, buf.Lines())
}

func TestNewLogBufferDefaultsCapacity(t *testing.T) {
	t.Parallel()

	buf := NewLogBuffer(0)
	for range DefaultLogLines + 10 {
		buf.Append("line")
	}
	require.Len(t, buf.Lines(), DefaultLogLines)
}
