package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wimfuse/wimfuse/internal/clock"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

func TestBuildTreeFromImageSoloFiles(t *testing.T) {
	image := &wimfile.Image{
		Root: &wimfile.DentryRecord{
			IsDirectory: true,
			Children: []*wimfile.DentryRecord{
				{Name: "a.txt", HasPrimary: true, PrimaryHash: [20]byte{1}},
				{Name: "sub", IsDirectory: true, Children: []*wimfile.DentryRecord{
					{Name: "b.txt", HasPrimary: true, PrimaryHash: [20]byte{2}},
				}},
			},
		},
		Resources: map[[20]byte]wimfile.ResourceDescriptor{},
	}

	tree := buildTreeFromImage(image, clock.NewSimulated())

	a := tree.FindChild(tree.Root, "a.txt")
	require.NotNil(t, a)
	assert.Equal(t, [20]byte{1}, a.PrimaryHash)
	assert.NotNil(t, a.LinkGroup)
	assert.Len(t, a.LinkGroup.Members, 1)

	sub := tree.FindChild(tree.Root, "sub")
	require.NotNil(t, sub)
	assert.True(t, sub.IsDirectory)

	b := tree.FindChild(sub, "b.txt")
	require.NotNil(t, b)
	assert.Equal(t, [20]byte{2}, b.PrimaryHash)
}

func TestBuildTreeFromImageGroupsHardLinks(t *testing.T) {
	image := &wimfile.Image{
		Root: &wimfile.DentryRecord{
			IsDirectory: true,
			Children: []*wimfile.DentryRecord{
				{Name: "one.txt", HasPrimary: true, PrimaryHash: [20]byte{9}, HardLinkGroup: 5},
				{Name: "two.txt", HasPrimary: true, PrimaryHash: [20]byte{9}, HardLinkGroup: 5},
			},
		},
		Resources: map[[20]byte]wimfile.ResourceDescriptor{},
	}

	tree := buildTreeFromImage(image, clock.NewSimulated())

	one := tree.FindChild(tree.Root, "one.txt")
	two := tree.FindChild(tree.Root, "two.txt")
	require.NotNil(t, one)
	require.NotNil(t, two)
	assert.Same(t, one.LinkGroup, two.LinkGroup)
	assert.Len(t, one.LinkGroup.Members, 2)
}

func TestBuildCatalogFromImageSkipsUnreferencedResources(t *testing.T) {
	image := &wimfile.Image{
		Root: &wimfile.DentryRecord{
			IsDirectory: true,
			Children: []*wimfile.DentryRecord{
				{Name: "a.txt", HasPrimary: true, PrimaryHash: [20]byte{1}},
			},
		},
		Resources: map[[20]byte]wimfile.ResourceDescriptor{
			{1}: {OriginalSize: 10},
			{2}: {OriginalSize: 20}, // unreferenced by any dentry
		},
	}

	tree := buildTreeFromImage(image, clock.NewSimulated())
	cat := buildCatalogFromImage(tree, image)

	entry, ok := cat.Lookup([20]byte{1})
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.Refcount())

	_, ok = cat.Lookup([20]byte{2})
	assert.False(t, ok)
}

func TestBuildCatalogFromImageRefcountsHardLinkedStream(t *testing.T) {
	image := &wimfile.Image{
		Root: &wimfile.DentryRecord{
			IsDirectory: true,
			Children: []*wimfile.DentryRecord{
				{Name: "one.txt", HasPrimary: true, PrimaryHash: [20]byte{7}, HardLinkGroup: 3},
				{Name: "two.txt", HasPrimary: true, PrimaryHash: [20]byte{7}, HardLinkGroup: 3},
			},
		},
		Resources: map[[20]byte]wimfile.ResourceDescriptor{
			{7}: {OriginalSize: 42},
		},
	}

	tree := buildTreeFromImage(image, clock.NewSimulated())
	cat := buildCatalogFromImage(tree, image)

	entry, ok := cat.Lookup([20]byte{7})
	require.True(t, ok)
	assert.Equal(t, uint64(2), entry.Refcount())
}
