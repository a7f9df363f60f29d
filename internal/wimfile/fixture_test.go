package wimfile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFileRegistersResourceAndDentry(t *testing.T) {
	img := NewFixtureImage()
	hash := img.AddFile("a.txt", []byte("hello"))

	desc, ok := img.Resources[hash]
	require.True(t, ok)
	assert.Equal(t, int64(5), desc.OriginalSize)

	require.Len(t, img.Root.Children, 1)
	assert.Equal(t, "a.txt", img.Root.Children[0].Name)
	assert.True(t, img.Root.Children[0].HasPrimary)
}

func TestAddEmptyFileHasNoPrimary(t *testing.T) {
	img := NewFixtureImage()
	img.AddFile("empty.txt", nil)
	assert.False(t, img.Root.Children[0].HasPrimary)
}

func TestReadResourceReturnsContent(t *testing.T) {
	img := NewFixtureImage()
	hash := img.AddFile("a.txt", []byte("hello world"))
	desc := img.Resources[hash]

	buf := make([]byte, 5)
	n, err := img.ReadResource(context.Background(), desc, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestReadResourceHonorsSkip(t *testing.T) {
	img := NewFixtureImage()
	hash := img.AddFile("a.txt", []byte("hello world"))
	desc := img.Resources[hash]

	buf := make([]byte, 32)
	n, err := img.ReadResource(context.Background(), desc, 6, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestReadResourcePastEndReturnsZero(t *testing.T) {
	img := NewFixtureImage()
	hash := img.AddFile("a.txt", []byte("hi"))
	desc := img.Resources[hash]

	buf := make([]byte, 8)
	n, err := img.ReadResource(context.Background(), desc, 100, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReadResourceUnknownDescriptorErrors(t *testing.T) {
	img := NewFixtureImage()
	_, err := img.ReadResource(context.Background(), ResourceDescriptor{Offset: 999}, 0, make([]byte, 1))
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := NewFixtureImage()
	encoded, err := img.Encode("café")
	require.NoError(t, err)
	decoded, err := img.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "café", decoded)
}
