package staging

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// sequentialNames is a deterministic NameSource for tests.
type sequentialNames struct {
	n int
}

func (s *sequentialNames) NewSuffix() string {
	s.n++
	return "name" + string(rune('a'+s.n))
}

func (s *sequentialNames) NewPlaceholderHash() catalog.Hash {
	s.n++
	var h catalog.Hash
	h[0] = byte(s.n)
	return h
}

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, &sequentialNames{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDivergeBrandNewStream(t *testing.T) {
	store := newStore(t)
	cat := catalog.New()

	d := &dentry.Dentry{Name: "c"}
	d.LinkGroup = &dentry.HardLinkGroup{Master: d, Members: []*dentry.Dentry{d}}
	target := dentry.StreamTarget{Dentry: d, ADSIndex: -1}

	entry, err := store.Diverge(context.Background(), DivergeInput{
		Target:  target,
		Catalog: cat,
		Names:   &sequentialNames{},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.Refcount())
	assert.True(t, entry.IsStaged())

	got, ok := cat.Lookup(entry.Hash)
	require.True(t, ok)
	assert.Same(t, entry, got)
	assert.True(t, d.HasPrimary)
	assert.Equal(t, entry.Hash, d.PrimaryHash)
}

func TestDivergeReusesEntryWhenGroupOwnsWholeRefcount(t *testing.T) {
	store := newStore(t)
	cat := catalog.New()

	hash := catalog.Hash{7}
	old := &catalog.LookupEntry{Hash: hash}
	old.SetArchiveBacking(wimfile.ResourceDescriptor{OriginalSize: 5})
	cat.Insert(old)
	cat.IncRef(old, 1)

	d := &dentry.Dentry{Name: "a", HasPrimary: true, PrimaryHash: hash}
	d.LinkGroup = &dentry.HardLinkGroup{Master: d, Members: []*dentry.Dentry{d}}
	target := dentry.StreamTarget{Dentry: d, ADSIndex: -1}

	fixture := wimfile.NewFixtureImage()
	reader := fixture // implements ResourceReader trivially (no matching resource → returns error, fine since size 0 test below)

	entry, err := store.Diverge(context.Background(), DivergeInput{
		Target:   target,
		OldEntry: old,
		Size:     0,
		Reader:   reader,
		Catalog:  cat,
		Names:    &sequentialNames{},
	})
	require.NoError(t, err)
	assert.Same(t, old, entry, "whole refcount owned by the group: entry should be reused in place")
	assert.Equal(t, uint64(1), entry.Refcount())
	assert.True(t, entry.IsStaged())

	_, stillOld := cat.Lookup(hash)
	assert.False(t, stillOld)
}

func TestDivergeSplitsWhenGroupOwnsPartialRefcount(t *testing.T) {
	store := newStore(t)
	cat := catalog.New()

	hash := catalog.Hash{9}
	old := &catalog.LookupEntry{Hash: hash}
	old.SetArchiveBacking(wimfile.ResourceDescriptor{OriginalSize: 0})
	cat.Insert(old)
	cat.IncRef(old, 2) // shared by two link groups

	a := &dentry.Dentry{Name: "a", HasPrimary: true, PrimaryHash: hash}
	aGroup := &dentry.HardLinkGroup{Master: a, Members: []*dentry.Dentry{a}}
	a.LinkGroup = aGroup

	b := &dentry.Dentry{Name: "b", HasPrimary: true, PrimaryHash: hash}
	bGroup := &dentry.HardLinkGroup{Master: b, Members: []*dentry.Dentry{b}}
	b.LinkGroup = bGroup

	target := dentry.StreamTarget{Dentry: a, ADSIndex: -1}

	entry, err := store.Diverge(context.Background(), DivergeInput{
		Target:   target,
		OldEntry: old,
		Size:     0,
		Reader:   wimfile.NewFixtureImage(),
		Catalog:  cat,
		Names:    &sequentialNames{},
	})
	require.NoError(t, err)
	assert.NotSame(t, old, entry, "partial refcount ownership must split into a new entry")
	assert.Equal(t, uint64(1), entry.Refcount())
	assert.Equal(t, uint64(1), old.Refcount(), "old entry keeps the other link group's reference")

	_, err = os.Stat(entry.StagingPath())
	assert.NoError(t, err)
}

func TestDivergeTransfersOnlyDivergingGroupHandles(t *testing.T) {
	store := newStore(t)
	cat := catalog.New()

	hash := catalog.Hash{11}
	old := &catalog.LookupEntry{Hash: hash}
	old.SetArchiveBacking(wimfile.ResourceDescriptor{})
	cat.Insert(old)
	cat.IncRef(old, 2)

	a := &dentry.Dentry{Name: "a", HasPrimary: true, PrimaryHash: hash}
	aGroup := &dentry.HardLinkGroup{Master: a, Members: []*dentry.Dentry{a}}
	a.LinkGroup = aGroup

	b := &dentry.Dentry{Name: "b", HasPrimary: true, PrimaryHash: hash}
	bGroup := &dentry.HardLinkGroup{Master: b, Members: []*dentry.Dentry{b}}
	b.LinkGroup = bGroup

	haHandle := &catalog.Handle{Dentry: a, LinkGroupTag: aGroup}
	_, err := old.AllocFD(haHandle)
	require.NoError(t, err)
	hbHandle := &catalog.Handle{Dentry: b, LinkGroupTag: bGroup}
	_, err = old.AllocFD(hbHandle)
	require.NoError(t, err)

	target := dentry.StreamTarget{Dentry: a, ADSIndex: -1}
	entry, err := store.Diverge(context.Background(), DivergeInput{
		Target:   target,
		OldEntry: old,
		Reader:   wimfile.NewFixtureImage(),
		Catalog:  cat,
		Names:    &sequentialNames{},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, old.NumOpenedFDs(), "b's handle stays on the old entry")
	assert.Equal(t, 1, entry.NumOpenedFDs(), "a's handle transfers to the new entry")
	assert.Same(t, entry, haHandle.Entry)
	assert.Same(t, old, hbHandle.Entry)
}
