package dentry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wimfuse/wimfuse/internal/clock"
	"github.com/wimfuse/wimfuse/internal/wimerr"
)

func newTestTree() *Tree {
	return NewTree(clock.NewSimulated())
}

func TestAddAndFindChild(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	tree.AddChild(tree.Root, a)

	got := tree.FindChild(tree.Root, "a")
	assert.Same(t, a, got)
	assert.Nil(t, tree.FindChild(tree.Root, "missing"))
}

func TestChildrenCircularList(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	b := &Dentry{Name: "b"}
	c := &Dentry{Name: "c"}
	tree.AddChild(tree.Root, a)
	tree.AddChild(tree.Root, b)
	tree.AddChild(tree.Root, c)

	kids := tree.Children(tree.Root)
	require.Len(t, kids, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{kids[0].Name, kids[1].Name, kids[2].Name})
}

func TestRemoveChildMiddle(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	b := &Dentry{Name: "b"}
	c := &Dentry{Name: "c"}
	tree.AddChild(tree.Root, a)
	tree.AddChild(tree.Root, b)
	tree.AddChild(tree.Root, c)

	tree.RemoveChild(tree.Root, b)

	kids := tree.Children(tree.Root)
	require.Len(t, kids, 2)
	assert.Equal(t, []string{"a", "c"}, []string{kids[0].Name, kids[1].Name})
}

func TestRemoveOnlyChild(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	tree.AddChild(tree.Root, a)
	tree.RemoveChild(tree.Root, a)

	assert.Nil(t, tree.Root.FirstChild)
	assert.Empty(t, tree.Children(tree.Root))
}

func TestResolveNested(t *testing.T) {
	tree := newTestTree()
	dir := &Dentry{Name: "dir", IsDirectory: true}
	tree.AddChild(tree.Root, dir)
	file := &Dentry{Name: "file", HasPrimary: true, PrimaryHash: Hash{1}}
	tree.AddChild(dir, file)

	target, err := tree.Resolve("/dir/file", StreamInterfaceNone)
	require.NoError(t, err)
	assert.Same(t, file, target.Dentry)
	assert.Equal(t, -1, target.ADSIndex)
}

func TestResolveNotFound(t *testing.T) {
	tree := newTestTree()
	_, err := tree.Resolve("/nope", StreamInterfaceNone)
	assert.ErrorIs(t, err, wimerr.ErrNotFound)
}

func TestResolveNotADirectoryMidPath(t *testing.T) {
	tree := newTestTree()
	file := &Dentry{Name: "file"}
	tree.AddChild(tree.Root, file)

	_, err := tree.Resolve("/file/sub", StreamInterfaceNone)
	assert.ErrorIs(t, err, wimerr.ErrNotDirectory)
}

func TestResolveWindowsADS(t *testing.T) {
	tree := newTestTree()
	file := &Dentry{Name: "file", ADS: []ADSEntry{{Name: "stream", Hash: Hash{9}}}}
	tree.AddChild(tree.Root, file)

	target, err := tree.Resolve("/file:stream", StreamInterfaceWindows)
	require.NoError(t, err)
	assert.Same(t, file, target.Dentry)
	require.Equal(t, 0, target.ADSIndex)

	h, ok := target.Hash()
	require.True(t, ok)
	assert.Equal(t, Hash{9}, h)
}

func TestLinkCreatesSlaveInSameGroup(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a", HasPrimary: true, PrimaryHash: Hash{1}}
	a.LinkGroup = tree.NewSoloLinkGroup(a)
	tree.AddChild(tree.Root, a)

	b, err := tree.Link(a, tree.Root, "b")
	require.NoError(t, err)
	assert.Equal(t, a.PrimaryHash, b.PrimaryHash)
	assert.Same(t, a.LinkGroup, b.LinkGroup)
	assert.Equal(t, 2, a.LinkGroup.Size())
}

func TestRenameNoOpWhenSameDentry(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	tree.AddChild(tree.Root, a)

	replaced, err := tree.Rename(a, tree.Root, "a")
	require.NoError(t, err)
	assert.Nil(t, replaced)
}

func TestRenameReplacesExisting(t *testing.T) {
	tree := newTestTree()
	a := &Dentry{Name: "a"}
	b := &Dentry{Name: "b"}
	tree.AddChild(tree.Root, a)
	tree.AddChild(tree.Root, b)

	replaced, err := tree.Rename(a, tree.Root, "b")
	require.NoError(t, err)
	assert.Same(t, b, replaced)
	assert.Equal(t, "b", a.Name)
	assert.Same(t, a, tree.FindChild(tree.Root, "b"))
}

func TestRmdirRequiresEmpty(t *testing.T) {
	tree := newTestTree()
	dir := &Dentry{Name: "dir", IsDirectory: true}
	tree.AddChild(tree.Root, dir)
	child := &Dentry{Name: "child"}
	tree.AddChild(dir, child)

	err := tree.Rmdir(dir)
	assert.ErrorIs(t, err, wimerr.ErrNotEmpty)

	tree.RemoveChild(dir, child)
	assert.NoError(t, tree.Rmdir(dir))
}
