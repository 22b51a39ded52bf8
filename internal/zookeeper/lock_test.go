package zookeeper

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceOrdering_IgnoresProtectedPrefix(t *testing.T) {
	children := []string{
		"_c_f3a9-lock-0000000012",
		"_c_0b1e-lock-0000000010",
		"_c_9c2d-lock-0000000011",
	}
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

	assert.Equal(t, []string{
		"_c_0b1e-lock-0000000010",
		"_c_9c2d-lock-0000000011",
		"_c_f3a9-lock-0000000012",
	}, children)
	assert.Equal(t, 1, indexOf(children, "_c_9c2d-lock-0000000011"))
	assert.Equal(t, -1, indexOf(children, "missing"))
}
