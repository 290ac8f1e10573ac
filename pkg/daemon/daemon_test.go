package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumCounts(t *testing.T) {
	assert.Equal(t, 0, sumCounts(nil))
	assert.Equal(t, 6, sumCounts(map[string]int{"Running": 2, "Exited": 4}))
}
