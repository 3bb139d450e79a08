package cas

import "sync"

// The empty directory is a virtual constant: its bytes are exactly the
// 16-byte header with kind=dict, count=0, size=0. Its key is computed once
// and recognized system-wide without hitting the node store.

var emptyDirOnce = sync.OnceValues(func() ([]byte, Key) {
	raw, key, err := EncodeDict(nil)
	if err != nil {
		panic("cas: empty dict encoding failed: " + err.Error())
	}
	return raw, key
})

// EmptyDirBytes returns a fresh copy of the empty d-node serialization.
func EmptyDirBytes() []byte {
	raw, _ := emptyDirOnce()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// EmptyDirKey returns the well-known key of the empty d-node.
func EmptyDirKey() Key {
	_, key := emptyDirOnce()
	return key
}

// IsWellKnown reports whether k identifies a well-known virtual node.
func IsWellKnown(k Key) bool {
	return k == EmptyDirKey()
}
