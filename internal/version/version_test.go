package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFull(t *testing.T) {
	full := Full()
	require.True(t, strings.HasPrefix(full, "gitgpt "+Version))
	require.Contains(t, full, runtime.Version())
}

func TestGetKeepsInjectedCommit(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })
	Commit = "abc1234"
	require.Equal(t, "abc1234", Get().Commit)
}
