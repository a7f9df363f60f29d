// Package wimfile defines the external collaborators this mount daemon
// consumes but does not implement: the archive catalog loader, the
// resource reader/overwriter, and the native/archive name codec. The on-disk WIM header/XML/integrity-table
// parser and the LZX/XPRESS decompressors are out of scope (see
// SPEC_FULL.md §1); this package only names their contracts.
package wimfile

import (
	"context"
	"io"
)

// CompressionType identifies the codec a resource was compressed with.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionXpress
	CompressionLZX
)

// ResourceDescriptor locates one compressed stream inside the archive.
type ResourceDescriptor struct {
	Offset         int64
	CompressedSize int64
	OriginalSize   int64
	Compression    CompressionType
}

// ResourceReader reads decompressed bytes out of an archive-backed
// resource, starting skip bytes into the logical (uncompressed) stream.
// It returns the number of bytes copied into buf, which may be short of
// len(buf) only at end of stream.
type ResourceReader interface {
	ReadResource(ctx context.Context, desc ResourceDescriptor, skip int64, buf []byte) (int, error)
}

// Overwriter serializes a modified image back to an on-disk archive,
// walking the dentry tree and catalog supplied by the caller at commit
// time (see internal/commit).
type Overwriter interface {
	Overwrite(ctx context.Context, image *Image, checkIntegrity bool) error
}

// NameCodec converts between the native (UTF-8) and archive-encoded
// (UTF-16LE, historically) representations of a path component.
type NameCodec interface {
	Encode(native string) ([]byte, error)
	Decode(archiveName []byte) (string, error)
}

// StreamRef pairs a content hash with the descriptor of the archive
// resource it names.
type StreamRef struct {
	Hash [20]byte
	ResourceDescriptor
}

// DentryRecord is the catalog loader's flattened description of one
// dentry, used only to seed the in-memory dentry tree at mount time.
// Real field population is the job of the external loader; this type is
// the seam it writes into.
type DentryRecord struct {
	Name           string
	ArchiveName    []byte
	IsDirectory    bool
	IsSymlink      bool
	Attributes     uint32
	ReparseTarget  string
	PrimaryHash    [20]byte
	HasPrimary     bool
	ADS            []ADSRecord
	HardLinkGroup  uint64
	Children       []*DentryRecord
}

// ADSRecord is one alternate data stream attached to a DentryRecord.
type ADSRecord struct {
	Name string
	Hash [20]byte
}

// Image is the loaded, in-memory representation of one selected WIM
// image: its root dentry record tree plus the resource table needed to
// resolve hashes to archive locations.
type Image struct {
	Root      *DentryRecord
	Resources map[[20]byte]ResourceDescriptor
	Reader    ResourceReader
	Codec     NameCodec
	backing   io.ReaderAt
}

// Loader produces the initial lookup table and dentry tree for a
// selected image inside an archive.
type Loader interface {
	LoadImage(ctx context.Context, archivePath string, imageIndex int) (*Image, error)
}
