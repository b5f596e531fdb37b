package pidmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestAndSetFirstSightingThenKnown(t *testing.T) {
	m := New(0)
	assert.False(t, m.TestAndSet(42), "first sighting should report unknown")
	assert.True(t, m.TestAndSet(42), "second sighting should report known")
}

func TestGrowsPastInitialAllocation(t *testing.T) {
	m := New(0)
	assert.False(t, m.Contains(100000))
	m.Set(100000)
	assert.True(t, m.Contains(100000))
}

func TestClearForgets(t *testing.T) {
	m := New(0)
	m.Set(7)
	assert.True(t, m.Contains(7))
	m.Clear(7)
	assert.False(t, m.Contains(7))
}

func TestNegativePidsAreNoOps(t *testing.T) {
	m := New(0)
	m.Set(-1)
	assert.False(t, m.Contains(-1))
	assert.False(t, m.TestAndSet(-5))
}
