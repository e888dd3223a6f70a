package rssl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_parseCPUList(t *testing.T) {
	cpus, err := parseCPUList("0")
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, cpus)
	if numCPU() >= 4 {
		cpus, err = parseCPUList("0, 2-3")
		assert.NoError(t, err)
		assert.Equal(t, []int{0, 2, 3}, cpus)
	}
	for _, bad := range []string{"", "x", "1-x", "3-1", "-1", "100000"} {
		_, err = parseCPUList(bad)
		assert.Error(t, err, bad)
	}
}

func Test_cpuSummary(t *testing.T) {
	assert.NotEmpty(t, cpuSummary())
	assert.True(t, numCPU() > 0)
}
