package cas

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Serialization is canonical: d-node entries are sorted by UTF-8 name bytes
// and set-node children by key bytes before writing, so the same logical
// node always yields the same bytes and therefore the same key.

func putHeader(buf []byte, kind Kind, size, count uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	flags := uint32(kind) & 0x3
	binary.LittleEndian.PutUint32(buf[4:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], size)
	binary.LittleEndian.PutUint32(buf[12:16], count)
}

func validContentType(ct string) bool {
	if len(ct) > ContentTypeSize {
		return false
	}
	for i := 0; i < len(ct); i++ {
		if ct[i] < 0x20 || ct[i] > 0x7e {
			return false
		}
	}
	return true
}

// EncodeFile serializes an f-node: header, FileInfo, child keys, data.
// fileSize is the logical size of the whole file, which exceeds len(data)
// when the file spans successor nodes.
func EncodeFile(data []byte, contentType string, fileSize uint64, children []Key) ([]byte, Key, error) {
	if !validContentType(contentType) {
		return nil, ZeroKey, encodeErr(FailFileInfo, "content type must be at most %d printable ASCII bytes", ContentTypeSize)
	}
	size := FileInfoSize + len(data)
	raw := make([]byte, HeaderSize+KeySize*len(children)+size)
	putHeader(raw, KindFile, uint32(size), uint32(len(children)))

	info := raw[HeaderSize : HeaderSize+FileInfoSize]
	binary.LittleEndian.PutUint64(info[0:8], fileSize)
	copy(info[8:], contentType) // zero padding from make

	off := HeaderSize + FileInfoSize
	for _, c := range children {
		copy(raw[off:], c[:])
		off += KeySize
	}
	copy(raw[off:], data)
	return raw, KeyFor(raw), nil
}

// EncodeSuccessor serializes an s-node: header, child keys, data.
func EncodeSuccessor(data []byte, children []Key) ([]byte, Key, error) {
	raw := make([]byte, HeaderSize+KeySize*len(children)+len(data))
	putHeader(raw, KindSuccessor, uint32(len(data)), uint32(len(children)))
	off := HeaderSize
	for _, c := range children {
		copy(raw[off:], c[:])
		off += KeySize
	}
	copy(raw[off:], data)
	return raw, KeyFor(raw), nil
}

// EncodeDict serializes a d-node. Entries are sorted by UTF-8 name bytes;
// duplicate or empty names fail. Names are written as u16 LE length-prefixed
// UTF-8 strings after the child keys.
func EncodeDict(entries []DictEntry) ([]byte, Key, error) {
	sorted := make([]DictEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	size := 0
	for i, e := range sorted {
		if e.Name == "" {
			return nil, ZeroKey, encodeErr(FailNamesDup, "empty child name")
		}
		if len(e.Name) > 0xffff {
			return nil, ZeroKey, encodeErr(FailNamesDup, "child name longer than 65535 bytes")
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, ZeroKey, encodeErr(FailNamesDup, "duplicate child name %q", e.Name)
		}
		size += 2 + len(e.Name)
	}

	raw := make([]byte, HeaderSize+KeySize*len(sorted)+size)
	putHeader(raw, KindDict, uint32(size), uint32(len(sorted)))
	off := HeaderSize
	for _, e := range sorted {
		copy(raw[off:], e.Key[:])
		off += KeySize
	}
	for _, e := range sorted {
		binary.LittleEndian.PutUint16(raw[off:], uint16(len(e.Name)))
		off += 2
		copy(raw[off:], e.Name)
		off += len(e.Name)
	}
	return raw, KeyFor(raw), nil
}

// EncodeSet serializes a set-node: header with zero payload size and at
// least two child keys, sorted ascending by key bytes, unique.
func EncodeSet(children []Key) ([]byte, Key, error) {
	if len(children) < 2 {
		return nil, ZeroKey, encodeErr(FailSetTooSmall, "set node needs at least 2 children, got %d", len(children))
	}
	sorted := make([]Key, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, ZeroKey, encodeErr(FailSetUnsorted, "duplicate set member %s", sorted[i])
		}
	}

	raw := make([]byte, HeaderSize+KeySize*len(sorted))
	putHeader(raw, KindSet, 0, uint32(len(sorted)))
	off := HeaderSize
	for _, c := range sorted {
		copy(raw[off:], c[:])
		off += KeySize
	}
	return raw, KeyFor(raw), nil
}
