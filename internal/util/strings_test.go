package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	assert.Equal(t, "0 threads", Pluralize(0, "thread", "threads"))
	assert.Equal(t, "1 thread", Pluralize(1, "thread", "threads"))
	assert.Equal(t, "12 threads", Pluralize(12, "thread", "threads"))
}

func TestJoinIDs(t *testing.T) {
	assert.Equal(t, "(none)", JoinIDs(nil))
	assert.Equal(t, "1000", JoinIDs([]int32{1000}))
	assert.Equal(t, "1000, 1000, 1000", JoinIDs([]int32{1000, 1000, 1000}))
}
