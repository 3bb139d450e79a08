package cas

import (
	"bytes"
	"encoding/binary"
)

// Decode validates and parses a serialized CAS node.
//
// Validation is strict: the declared length must equal the buffer length,
// reserved header bits must be zero, d-node names must be sorted and unique,
// and set-nodes must carry at least two sorted unique children with a zero
// payload size. Non-canonical inputs are rejected so that keys are
// idempotent regardless of who produced the bytes.
func Decode(raw []byte) (*Node, error) {
	if len(raw) < HeaderSize {
		return nil, decodeErr(0, FailLength, "buffer shorter than %d-byte header", HeaderSize)
	}
	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != Magic {
		return nil, decodeErr(0, FailMagic, "bad magic 0x%08x", magic)
	}

	flags := binary.LittleEndian.Uint32(raw[4:8])
	kind := Kind(flags & 0x3)
	extCount := (flags >> 2) & 0x3
	blockClass := uint8((flags >> 4) & 0xf)
	hashAlgo := uint8((flags >> 8) & 0xff)
	if reserved := flags >> 16; reserved != 0 {
		return nil, decodeErr(4, FailReservedBits, "reserved flag bits 0x%04x set", reserved)
	}
	if extCount != 0 {
		return nil, decodeErr(4, FailReservedBits, "header extensions are not supported (count %d)", extCount)
	}

	size := binary.LittleEndian.Uint32(raw[8:12])
	count := binary.LittleEndian.Uint32(raw[12:16])
	declared := uint64(HeaderSize) + uint64(KeySize)*uint64(count) + uint64(size)
	if declared != uint64(len(raw)) {
		return nil, decodeErr(8, FailLength, "declared length %d, buffer is %d", declared, len(raw))
	}

	n := &Node{Kind: kind, BlockClass: blockClass, HashAlgo: hashAlgo}

	childOff := HeaderSize
	if kind == KindFile {
		if size < FileInfoSize {
			return nil, decodeErr(8, FailFileInfo, "f-node payload %d smaller than %d-byte FileInfo", size, FileInfoSize)
		}
		info, err := decodeFileInfo(raw[HeaderSize : HeaderSize+FileInfoSize])
		if err != nil {
			return nil, err
		}
		n.Info = info
		childOff += FileInfoSize
	}

	n.Children = make([]Key, count)
	off := childOff
	for i := range n.Children {
		copy(n.Children[i][:], raw[off:off+KeySize])
		off += KeySize
	}

	payload := raw[off:]
	switch kind {
	case KindFile, KindSuccessor:
		n.Data = payload

	case KindDict:
		names, err := decodeNames(payload, int(count), off)
		if err != nil {
			return nil, err
		}
		n.Names = names

	case KindSet:
		if size != 0 {
			return nil, decodeErr(8, FailSetUnsorted, "set node payload size must be 0, got %d", size)
		}
		if count < 2 {
			return nil, decodeErr(12, FailSetTooSmall, "set node needs at least 2 children, got %d", count)
		}
		for i := 1; i < len(n.Children); i++ {
			if bytes.Compare(n.Children[i-1][:], n.Children[i][:]) >= 0 {
				return nil, decodeErr(childOff+i*KeySize, FailSetUnsorted, "set members not in strictly ascending key order")
			}
		}
	}
	return n, nil
}

func decodeFileInfo(info []byte) (*FileInfo, error) {
	fileSize := binary.LittleEndian.Uint64(info[0:8])
	ct := info[8:]
	end := bytes.IndexByte(ct, 0)
	if end == -1 {
		end = len(ct)
	}
	// The content type is printable ASCII followed by zero padding only.
	for i := 0; i < end; i++ {
		if ct[i] < 0x20 || ct[i] > 0x7e {
			return nil, decodeErr(HeaderSize+8+i, FailFileInfo, "non-printable byte 0x%02x in content type", ct[i])
		}
	}
	for i := end; i < len(ct); i++ {
		if ct[i] != 0 {
			return nil, decodeErr(HeaderSize+8+i, FailFileInfo, "non-zero padding byte 0x%02x in content type", ct[i])
		}
	}
	return &FileInfo{Size: fileSize, ContentType: string(ct[:end])}, nil
}

func decodeNames(payload []byte, count, base int) ([]string, error) {
	names := make([]string, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+2 > len(payload) {
			return nil, decodeErr(base+off, FailLength, "truncated name length prefix for child %d", i)
		}
		l := int(binary.LittleEndian.Uint16(payload[off:]))
		off += 2
		if off+l > len(payload) {
			return nil, decodeErr(base+off, FailLength, "truncated name for child %d", i)
		}
		name := string(payload[off : off+l])
		if name == "" {
			return nil, decodeErr(base+off-2, FailNamesDup, "empty name for child %d", i)
		}
		if i > 0 {
			switch {
			case names[i-1] == name:
				return nil, decodeErr(base+off, FailNamesDup, "duplicate child name %q", name)
			case names[i-1] > name:
				return nil, decodeErr(base+off, FailNamesUnsorted, "child names not in UTF-8 byte order at %q", name)
			}
		}
		names = append(names, name)
		off += l
	}
	if off != len(payload) {
		return nil, decodeErr(base+off, FailLength, "%d trailing payload bytes after names", len(payload)-off)
	}
	return names, nil
}
