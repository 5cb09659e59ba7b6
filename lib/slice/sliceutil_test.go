package sliceutil

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	result := Map([]int{1, 2, 3}, strconv.Itoa)
	assert.Equal(t, []string{"1", "2", "3"}, result)
}

func TestMapEmpty(t *testing.T) {
	result := Map(nil, func(x int) int { return x })
	assert.NotNil(t, result)
	assert.Empty(t, result)
}
