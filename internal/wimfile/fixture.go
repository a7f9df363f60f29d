package wimfile

import (
	"bytes"
	"context"
	"fmt"
)

// FixtureImage is an in-memory stand-in for a loaded Image, used by
// package tests throughout this module in place of a real .wim file.
// It implements ResourceReader and NameCodec itself so a single value
// can seed a full test mount context.
type FixtureImage struct {
	Root      *DentryRecord
	Resources map[[20]byte]ResourceDescriptor
	contents  map[[20]byte][]byte
}

// NewFixtureImage returns an empty fixture with a root directory record.
func NewFixtureImage() *FixtureImage {
	return &FixtureImage{
		Root:      &DentryRecord{Name: "", IsDirectory: true},
		Resources: make(map[[20]byte]ResourceDescriptor),
		contents:  make(map[[20]byte][]byte),
	}
}

// AddFile registers a file dentry at the image root with the given
// content, returning the content hash it was keyed under (the caller may
// use a synthetic hash; fixture resources are served out of memory, not
// actually offset into a backing file).
func (f *FixtureImage) AddFile(name string, content []byte) [20]byte {
	hash := fixtureHash(name, content)
	f.contents[hash] = append([]byte(nil), content...)
	f.Resources[hash] = ResourceDescriptor{
		Offset:         0,
		CompressedSize: int64(len(content)),
		OriginalSize:   int64(len(content)),
		Compression:    CompressionNone,
	}
	f.Root.Children = append(f.Root.Children, &DentryRecord{
		Name:        name,
		PrimaryHash: hash,
		HasPrimary:  len(content) > 0,
	})
	return hash
}

// ReadResource implements ResourceReader by slicing the fixture's
// in-memory content for the resource whose descriptor matches desc.
func (f *FixtureImage) ReadResource(ctx context.Context, desc ResourceDescriptor, skip int64, buf []byte) (int, error) {
	for hash, d := range f.Resources {
		if d == desc {
			content := f.contents[hash]
			if skip >= int64(len(content)) {
				return 0, nil
			}
			return copy(buf, content[skip:]), nil
		}
	}
	return 0, fmt.Errorf("wimfile: fixture resource not found for descriptor %+v", desc)
}

// Encode implements NameCodec with an identity UTF-8 passthrough; the
// fixture does not exercise real archive name encoding.
func (f *FixtureImage) Encode(native string) ([]byte, error) {
	return []byte(native), nil
}

// Decode is the inverse of Encode.
func (f *FixtureImage) Decode(archiveName []byte) (string, error) {
	return string(archiveName), nil
}

// Close implements the Close half of a ResourceReaderCloser; there is no
// backing archive file descriptor to release.
func (f *FixtureImage) Close() error { return nil }

func fixtureHash(name string, content []byte) [20]byte {
	var h [20]byte
	sum := bytes.NewBufferString(name)
	sum.Write(content)
	b := sum.Bytes()
	for i := range h {
		if len(b) == 0 {
			break
		}
		h[i] = b[i%len(b)]
	}
	return h
}
