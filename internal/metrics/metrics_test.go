package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatListsEveryCounter(t *testing.T) {
	before := Snapshot()["poll_cycles"]
	IncrPollCycles()
	assert.Equal(t, before+1, Snapshot()["poll_cycles"])

	out := Format()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(order))
	for i, k := range order {
		assert.True(t, strings.HasPrefix(lines[i], k+" "), "line %d = %q", i, lines[i])
	}
}
