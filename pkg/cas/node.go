package cas

// Magic identifies a CAS node header ("CAS\x01", little-endian).
const Magic = 0x01534143

// Sizes of the fixed binary structures.
const (
	HeaderSize      = 16
	FileInfoSize    = 64 // u64 fileSize + 56-byte content type
	ContentTypeSize = 56
)

// Kind distinguishes the four node variants (header flag bits 0-1).
type Kind uint8

const (
	// KindFile is a file root: header, FileInfo, child keys, payload data.
	KindFile Kind = 0

	// KindSuccessor is a file continuation: header, child keys, payload data.
	KindSuccessor Kind = 1

	// KindDict is a directory: header, child keys, sorted child names.
	KindDict Kind = 2

	// KindSet is an authorization scope set: header, sorted child keys.
	KindSet Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSuccessor:
		return "successor"
	case KindDict:
		return "dict"
	case KindSet:
		return "set"
	default:
		return "unknown"
	}
}

// FileInfo is the 64-byte structure carried only by f-nodes.
type FileInfo struct {
	// Size is the logical size of the whole file, across all nodes.
	Size uint64

	// ContentType is the media type, at most 56 printable ASCII bytes.
	ContentType string
}

// DictEntry is a (name, child) pair of a directory node.
type DictEntry struct {
	Name string
	Key  Key
}

// Node is a decoded CAS node. Exactly one variant-specific field set is
// populated depending on Kind.
type Node struct {
	Kind Kind

	// BlockClass is the block-size class recorded in the header (bits 4-7).
	BlockClass uint8

	// HashAlgo is the hash algorithm id recorded in the header (bits 8-15).
	// 0 is BLAKE3-128.
	HashAlgo uint8

	// Children holds the child keys in serialization order.
	Children []Key

	// Data is the payload data of file and successor nodes (excluding the
	// FileInfo of f-nodes).
	Data []byte

	// Info is set for f-nodes only.
	Info *FileInfo

	// Names holds directory child names, parallel to Children, for d-nodes.
	Names []string
}

// Entries returns the (name, child) pairs of a directory node.
func (n *Node) Entries() []DictEntry {
	entries := make([]DictEntry, len(n.Names))
	for i, name := range n.Names {
		entries[i] = DictEntry{Name: name, Key: n.Children[i]}
	}
	return entries
}

// ChildIndex returns the index of the named child of a d-node, or -1.
func (n *Node) ChildIndex(name string) int {
	for i, existing := range n.Names {
		if existing == name {
			return i
		}
	}
	return -1
}
