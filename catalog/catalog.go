// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package catalog defines a mapping from mnemonic method names to method IDs
// for use by the stubs and skeletons of a broker. Method names are not carried
// in call frames, but a Catalog can be encoded and sent from one broker to
// another when an object reference is resolved.
//
// # Usage
//
// Construct a new empty catalog and add methods to it:
//
//	cat := catalog.New().Add("foo", "bar", "baz")
//
// Add assigns method IDs to the specified names. To recover the assigned ID
// use the Lookup or Find method:
//
//	id := cat.Lookup("foo")
//	id, ok := cat.Find("foo")
//
// If you want to choose the ID, use Set:
//
//	cat.Set("quux", 125)
//
// Method IDs are assigned systematically, so that repeating the same sequence
// of Add and Set calls will always result in the same method IDs.
package catalog

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
)

// A Catalog is a static mapping from method names to IDs.
type Catalog struct {
	methods map[string]uint32
}

// New creates a new empty catalog to map names to method IDs. It is safe to
// copy the resulting value, all copies share a reference to the same name to
// ID mapping.
func New() Catalog { return Catalog{methods: make(map[string]uint32)} }

// Add adds the specified names to c with fresh positive IDs, and returns c to
// allow chaining.
func (c Catalog) Add(names ...string) Catalog {
	for _, name := range names {
		c.Set(name, c.pickUnusedID())
	}
	return c
}

// Set maps name to methodID in c, and return c to allow chaining.  If name was
// already mapped in c, the existing mapping is replaced.
//
// The name mapping of a catalog is shared among all copies of it.  It is not
// safe to call Set while c is used concurrently by other goroutines without
// external synchronization.
func (c Catalog) Set(name string, methodID uint32) Catalog {
	c.methods[name] = methodID
	return c
}

func (c Catalog) pickUnusedID() uint32 {
	var max uint32
	for _, id := range c.methods {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// Lookup returns the method ID assigned to name, or 0.
//
// Note that the caller may Set a method with ID 0, but assigned IDs will
// always be positive, so a 0 return value of 0 means name was not assigned an
// ID even if it is a valid mapping for the catalog.
func (c Catalog) Lookup(name string) uint32 { return c.methods[name] }

// Find returns the method ID assigned to name, and reports whether name is
// present in c.
func (c Catalog) Find(name string) (uint32, bool) {
	id, ok := c.methods[name]
	return id, ok
}

// Len reports the number of methods in c.
func (c Catalog) Len() int { return len(c.methods) }

// Names returns the method names of c in lexicographic order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Encode encodes c in binary format.
//
// THe wire format of the catalog comprises the names of all defined methods in
// lexicgraphic order, followed by the corresponding method IDs in the reverse
// order of the names.
//
// Each name is encoded as a big-endian uint16 length followed by that many
// bytes of the name. Each method ID is encoded as a big-endian uint32.
func (c Catalog) Encode() []byte {
	if len(c.methods) == 0 {
		return nil
	}
	var nlen int
	names := make([]string, 0, len(c.methods))
	for name := range c.methods {
		names = append(names, name)
		nlen += 2 + len(name) // +2 for length tag
	}
	sort.Strings(names)
	buf := make([]byte, nlen+4*len(c.methods))
	npos, mpos := 0, len(buf)
	putName := func(s string) {
		binary.BigEndian.PutUint16(buf[npos:], uint16(len(s)))
		npos += 2
		npos += copy(buf[npos:], s)
	}
	putMethod := func(id uint32) {
		mpos -= 4
		binary.BigEndian.PutUint32(buf[mpos:], id)
	}

	for _, name := range names {
		putName(name)
		putMethod(c.methods[name])
	}
	return buf
}

// Decode decodes data as a Catalog payload.
func (c *Catalog) Decode(data []byte) error {
	if c.methods == nil {
		c.methods = make(map[string]uint32)
	} else {
		clear(c.methods)
	}
	npos, mpos := 0, len(data)
	for {
		if npos == mpos {
			break
		} else if npos+2 > len(data) || npos > mpos {
			return fmt.Errorf("truncated catalog at offset %d", npos)
		}

		nlen := int(binary.BigEndian.Uint16(data[npos:]))
		npos += 2
		if npos+nlen > len(data) {
			return fmt.Errorf("truncated name at offset %d", npos)
		}

		mpos -= 4
		if mpos < npos+nlen {
			return fmt.Errorf("truncated ID at offset %d", mpos)
		}
		id := binary.BigEndian.Uint32(data[mpos:])

		c.methods[string(data[npos:npos+nlen])] = id
		npos += nlen
	}
	return nil
}
