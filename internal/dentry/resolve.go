package dentry

import (
	"strings"

	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// StreamInterface controls how alternate data streams are addressed in
// paths handed to Resolve, per the mount-time stream-interface option.
type StreamInterface int

const (
	// StreamInterfaceXattr exposes ADS only through extended attributes;
	// Resolve never splits a trailing ":name" off the path.
	StreamInterfaceXattr StreamInterface = iota
	// StreamInterfaceNone hides ADS entirely from the path namespace.
	StreamInterfaceNone
	// StreamInterfaceWindows exposes ADS as "path:streamname" components.
	StreamInterfaceWindows
)

// StreamTarget is a resolved pointer to the hash slot a caller may
// overwrite on divergence: either the dentry's primary hash, or one of
// its ADS entries by index.
type StreamTarget struct {
	Dentry    *Dentry
	ADSIndex  int // -1 selects the primary stream
}

// Hash returns the content hash currently named by the target.
func (s StreamTarget) Hash() (Hash, bool) {
	if s.ADSIndex < 0 {
		return s.Dentry.PrimaryHash, s.Dentry.HasPrimary
	}
	return s.Dentry.ADS[s.ADSIndex].Hash, true
}

// SetHash overwrites the hash named by the target, used by staging
// divergence (§4.3 step 6) to repoint a stream at its new lookup entry.
func (s StreamTarget) SetHash(h Hash) {
	if s.ADSIndex < 0 {
		s.Dentry.PrimaryHash = h
		s.Dentry.HasPrimary = true
		return
	}
	s.Dentry.ADS[s.ADSIndex].Hash = h
}

// Resolve walks the tree from root splitting path on '/'. In Windows-ADS
// mode, a trailing ":streamname" on the final component selects an ADS
// instead of the primary stream.
func (t *Tree) Resolve(path string, mode StreamInterface) (StreamTarget, error) {
	if path == "" || path == "/" {
		return StreamTarget{Dentry: t.Root, ADSIndex: -1}, nil
	}

	components := strings.Split(strings.Trim(path, "/"), "/")

	streamName := ""
	if mode == StreamInterfaceWindows {
		last := components[len(components)-1]
		if idx := strings.IndexByte(last, ':'); idx >= 0 {
			components[len(components)-1] = last[:idx]
			streamName = last[idx+1:]
		}
	}

	cur := t.Root
	for i, name := range components {
		if !cur.IsDirectory {
			return StreamTarget{}, wimerr.ErrNotDirectory
		}
		child := t.FindChild(cur, name)
		if child == nil {
			return StreamTarget{}, wimerr.ErrNotFound
		}
		if i < len(components)-1 && !child.IsDirectory {
			return StreamTarget{}, wimerr.ErrNotDirectory
		}
		cur = child
	}

	if streamName == "" {
		return StreamTarget{Dentry: cur, ADSIndex: -1}, nil
	}

	for i := range cur.ADS {
		if cur.ADS[i].Name == streamName {
			return StreamTarget{Dentry: cur, ADSIndex: i}, nil
		}
	}
	return StreamTarget{}, wimerr.ErrNotFound
}

// ResolveParent resolves the directory component of path and returns it
// together with the final path component's native name.
func (t *Tree) ResolveParent(path string) (*Dentry, string, error) {
	trimmed := strings.Trim(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	var parentPath, name string
	if idx < 0 {
		parentPath, name = "", trimmed
	} else {
		parentPath, name = trimmed[:idx], trimmed[idx+1:]
	}
	target, err := t.Resolve(parentPath, StreamInterfaceNone)
	if err != nil {
		return nil, "", err
	}
	if !target.Dentry.IsDirectory {
		return nil, "", wimerr.ErrNotDirectory
	}
	return target.Dentry, name, nil
}
