package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolAllocFreeTCB(t *testing.T) {
	p := newPool(2, 64)

	a := p.allocTCB()
	b := p.allocTCB()
	assert.NotEqual(t, int16(noLink), a)
	assert.NotEqual(t, int16(noLink), b)
	assert.NotEqual(t, a, b)

	c := p.allocTCB()
	assert.Equal(t, int16(noLink), c)

	p.freeTCB(a)
	d := p.allocTCB()
	assert.Equal(t, a, d)
}

func TestPoolGenerationBumpsAcrossReuse(t *testing.T) {
	p := newPool(1, 64)

	idx := p.allocTCB()
	gen1 := p.tasks[idx].slotGen
	p.freeTCB(idx)

	idx2 := p.allocTCB()
	gen2 := p.tasks[idx2].slotGen

	assert.Equal(t, idx, idx2)
	assert.NotEqual(t, gen1, gen2)
}

func TestPoolAllocFreeStack(t *testing.T) {
	p := newPool(3, 64)

	i0 := p.allocStack()
	i1 := p.allocStack()
	i2 := p.allocStack()
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, 2, i2)

	assert.Equal(t, -1, p.allocStack())

	p.freeStack(i1)
	assert.Equal(t, i1, p.allocStack())
}

func TestPoolResetRebuildsFreeList(t *testing.T) {
	p := newPool(3, 64)
	p.allocTCB()
	p.allocTCB()
	p.allocStack()

	p.reset()

	assert.Equal(t, uint32(0), p.stackBits)
	for i := 0; i < 3; i++ {
		idx := p.allocTCB()
		assert.NotEqual(t, int16(noLink), idx)
	}
	assert.Equal(t, int16(noLink), p.allocTCB())
}
