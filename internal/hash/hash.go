// Package hash computes the SHA-1 content hash used to key catalog
// lookup entries at commit time. No third-party hashing library is
// exercised anywhere in the retrieved example corpus, so this package is
// a deliberate stdlib-only leaf (see DESIGN.md).
package hash

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
)

// Size is the width in bytes of a content hash.
const Size = sha1.Size

// File computes the SHA-1 hash of the file at path.
func File(path string) ([Size]byte, error) {
	var out [Size]byte

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("hash: open %q: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return out, fmt.Errorf("hash: read %q: %w", path, err)
	}

	copy(out[:], h.Sum(nil))
	return out, nil
}

// Bytes computes the SHA-1 hash of an in-memory buffer.
func Bytes(b []byte) [Size]byte {
	return sha1.Sum(b)
}
