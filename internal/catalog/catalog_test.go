package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertLookupRemove(t *testing.T) {
	c := New()
	e := &LookupEntry{Hash: Hash{1}}
	c.Insert(e)

	got, ok := c.Lookup(Hash{1})
	require.True(t, ok)
	assert.Same(t, e, got)

	c.Remove(Hash{1})
	_, ok = c.Lookup(Hash{1})
	assert.False(t, ok)
}

func TestIncDecRefDestroysAtZero(t *testing.T) {
	c := New()
	e := &LookupEntry{Hash: Hash{2}}
	c.Insert(e)
	c.IncRef(e, 2)
	assert.Equal(t, uint64(2), e.Refcount())

	destroyed := c.DecRef(e, 1)
	assert.False(t, destroyed)
	destroyed = c.DecRef(e, 1)
	assert.True(t, destroyed)

	_, ok := c.Lookup(Hash{2})
	assert.False(t, ok)
}

func TestDecRefDeferredWhileFDsOpen(t *testing.T) {
	c := New()
	e := &LookupEntry{Hash: Hash{3}}
	c.Insert(e)
	c.IncRef(e, 1)

	h := &Handle{}
	_, err := e.AllocFD(h)
	require.NoError(t, err)

	destroyed := c.DecRef(e, 1)
	assert.False(t, destroyed, "entry with open fds must not be destroyed even at refcount 0")

	destroyed = c.ReleaseFD(e, h.Index)
	assert.True(t, destroyed)
}

func TestAllocFDReusesFreedSlot(t *testing.T) {
	e := &LookupEntry{Hash: Hash{4}}
	h1 := &Handle{}
	h2 := &Handle{}

	idx1, err := e.AllocFD(h1)
	require.NoError(t, err)

	c := New()
	c.Insert(e)
	c.IncRef(e, 1)
	c.ReleaseFD(e, idx1)

	idx2, err := e.AllocFD(h2)
	require.NoError(t, err)
	assert.Equal(t, idx1, idx2, "freed slot should be reused before growing")
}

func TestAllocFDGrowsInBlocksOfEight(t *testing.T) {
	e := &LookupEntry{Hash: Hash{5}}
	for i := 0; i < 9; i++ {
		_, err := e.AllocFD(&Handle{})
		require.NoError(t, err)
	}
	assert.Equal(t, 16, len(e.fds))
}

func TestTransferFDMovesHandleBetweenEntries(t *testing.T) {
	src := &LookupEntry{Hash: Hash{6}}
	dst := &LookupEntry{Hash: Hash{7}}

	h := &Handle{}
	idx, err := src.AllocFD(h)
	require.NoError(t, err)

	TransferFD(src, dst, idx)

	assert.Equal(t, 0, src.numOpened)
	assert.Equal(t, 1, dst.numOpened)
	assert.Same(t, dst, h.Entry)
}

func TestForEachFDSkipsNilSlots(t *testing.T) {
	e := &LookupEntry{Hash: Hash{8}}
	h1 := &Handle{}
	h2 := &Handle{}
	idx1, _ := e.AllocFD(h1)
	_, _ = e.AllocFD(h2)
	e.fds[idx1] = nil
	e.numOpened--

	var seen []*Handle
	e.ForEachFD(func(slot int, h *Handle) {
		seen = append(seen, h)
	})
	require.Len(t, seen, 1)
	assert.Same(t, h2, seen[0])
}

func TestExactlyOneBackingSource(t *testing.T) {
	e := &LookupEntry{Hash: Hash{9}}
	e.SetStagingBacking("/staging/abc")
	assert.True(t, e.IsStaged())

	e.SetArchiveBacking(e.ArchiveResource())
	assert.False(t, e.IsStaged())
	assert.Empty(t, e.StagingPath())
}
