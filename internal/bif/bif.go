// Package bif decodes the binary seek-thumbnail index format used for scrub
// previews. Decoding is pure: a missing or corrupt index degrades previews
// but never blocks playback, so failures yield nil rather than errors.
package bif

import (
	"bytes"
	"encoding/binary"
	"sort"
)

const (
	// HeaderLength is the fixed size of the index header in bytes.
	HeaderLength = 64

	entryStride = 8

	versionOffset    = 8
	countOffset      = 12
	multiplierOffset = 16

	// defaultTimestampMultiplier converts raw entry timestamps to
	// milliseconds when the header declares no multiplier.
	defaultTimestampMultiplier = 1000
)

// magic is the required first four bytes of an index blob.
var magic = []byte{0x89, 'B', 'I', 'F'}

// Entry is one thumbnail record: a presentation timestamp and the byte range
// of its image within the original blob. Length is derived from the following
// entry's offset; it is never stored on the wire.
type Entry struct {
	TimestampMs int64
	Offset      uint32
	Length      uint32
}

// Index is a decoded seek index. Immutable after Decode; entries are sorted
// by timestamp.
type Index struct {
	FormatVersion       uint32
	TimestampMultiplier uint32
	Entries             []Entry
}

// Decode parses a seek index blob. It returns nil if the buffer is shorter
// than the header or does not begin with the magic constant. Truncated
// trailing entries are dropped silently; the decoder never reads past the
// buffer.
func Decode(buf []byte) *Index {
	if len(buf) < HeaderLength {
		return nil
	}
	if !bytes.Equal(buf[:len(magic)], magic) {
		return nil
	}

	version := binary.LittleEndian.Uint32(buf[versionOffset:])
	count := binary.LittleEndian.Uint32(buf[countOffset:])
	multiplier := binary.LittleEndian.Uint32(buf[multiplierOffset:])
	if multiplier == 0 {
		multiplier = defaultTimestampMultiplier
	}

	// The header's count is untrusted; never size an allocation beyond the
	// entries the buffer could physically contain.
	maxEntries := uint32((len(buf) - HeaderLength) / entryStride)
	if count > maxEntries {
		count = maxEntries
	}

	idx := &Index{
		FormatVersion:       version,
		TimestampMultiplier: multiplier,
		Entries:             make([]Entry, 0, count),
	}

	bufLen := uint32(len(buf))
	for i := uint32(0); i < count; i++ {
		base := HeaderLength + i*entryStride
		if base+entryStride > bufLen {
			break
		}

		rawTimestamp := binary.LittleEndian.Uint32(buf[base:])
		offset := binary.LittleEndian.Uint32(buf[base+4:])
		if offset > bufLen {
			break
		}

		// The image's extent runs to the next entry's offset, or to the
		// end of the buffer for the final entry.
		end := bufLen
		nextBase := base + entryStride
		if nextBase+entryStride <= bufLen && i+1 < count {
			end = binary.LittleEndian.Uint32(buf[nextBase+4:])
		}
		if end > bufLen {
			end = bufLen
		}
		if end < offset {
			break
		}

		idx.Entries = append(idx.Entries, Entry{
			TimestampMs: int64(rawTimestamp) * int64(multiplier),
			Offset:      offset,
			Length:      end - offset,
		})
	}

	return idx
}

// AtOrBefore returns the entry with the greatest timestamp not exceeding
// timeMs, or nil when timeMs precedes the first entry.
func (ix *Index) AtOrBefore(timeMs int64) *Entry {
	if ix == nil || len(ix.Entries) == 0 {
		return nil
	}

	// First entry strictly after timeMs; the answer sits just before it.
	i := sort.Search(len(ix.Entries), func(n int) bool {
		return ix.Entries[n].TimestampMs > timeMs
	})
	if i == 0 {
		return nil
	}
	return &ix.Entries[i-1]
}

// Image slices the raw thumbnail bytes for an entry out of the original
// blob. The returned slice aliases buf; callers own any copying.
func Image(buf []byte, e *Entry) []byte {
	if e == nil {
		return nil
	}
	end := uint64(e.Offset) + uint64(e.Length)
	if end > uint64(len(buf)) {
		return nil
	}
	return buf[e.Offset:end]
}
