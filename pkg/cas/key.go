// Package cas implements the content-addressed node format: the binary
// codec, content-key derivation, and the B-tree topology used to split
// files of arbitrary size into fixed-size nodes.
package cas

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"

	"github.com/depotfs/depotfs/pkg/errtypes"
)

// KeySize is the length of a content key in bytes.
const KeySize = 16

// EncodedKeyLen is the length of a Crockford Base32 rendered key.
const EncodedKeyLen = 26

// API-level key prefixes. All nod_ kinds share one address space.
const (
	PrefixNode     = "nod_"
	PrefixDepot    = "dpt_"
	PrefixToken    = "dlt_"
	PrefixDelegate = "dlg_"
	PrefixRequest  = "req_"
	PrefixTicket   = "tkt_"
)

// crockford is the Crockford Base32 alphabet: uppercase, excludes I/L/O/U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var cb32 = base32.NewEncoding(crockford).WithPadding(base32.NoPadding)

// Key is a 16-byte content address. The first byte is the size-class flag,
// the remaining 15 bytes come from the BLAKE3-128 digest of the node bytes.
type Key [KeySize]byte

// ZeroKey is the all-zero key. It is not a valid content address.
var ZeroKey Key

// String renders the key as 26 Crockford Base32 characters.
func (k Key) String() string {
	return cb32.EncodeToString(k[:])
}

// Hex renders the key as 32 lowercase hex characters. Used by the proof
// header, which keys its JSON object by node hash hex.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == ZeroKey
}

// Format renders the key with an application prefix, e.g. "nod_…".
func (k Key) Format(prefix string) string {
	return prefix + k.String()
}

// MarshalText renders the key as Crockford Base32 for JSON records. The
// zero key marshals to the empty string.
func (k Key) MarshalText() ([]byte, error) {
	if k.IsZero() {
		return nil, nil
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a Crockford Base32 key; empty input yields the zero
// key.
func (k *Key) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = ZeroKey
		return nil
	}
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKey parses a bare 26-character Crockford Base32 key.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != EncodedKeyLen {
		return k, errtypes.Validation("INVALID_ROOT", "key must be %d characters, got %d", EncodedKeyLen, len(s))
	}
	b, err := cb32.DecodeString(strings.ToUpper(s))
	if err != nil || len(b) != KeySize {
		return k, errtypes.Validation("INVALID_ROOT", "malformed base32 key %q", s)
	}
	copy(k[:], b)
	return k, nil
}

// ParsePrefixed parses a prefixed key such as "nod_…" and verifies the
// expected prefix.
func ParsePrefixed(prefix, s string) (Key, error) {
	if !strings.HasPrefix(s, prefix) {
		return ZeroKey, errtypes.Validation("INVALID_ROOT", "key %q does not carry prefix %q", s, prefix)
	}
	return ParseKey(strings.TrimPrefix(s, prefix))
}

// ParseKeyHex parses a 32-character hex key (proof header form).
func ParseKeyHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != KeySize {
		return k, errtypes.Validation("INVALID_PROOF_FORMAT", "malformed hex node hash %q", s)
	}
	copy(k[:], b)
	return k, nil
}

// MaxFlaggedSize is the largest node size representable by the size-class
// flag: 15 * 16^15 bytes.
const MaxFlaggedSize = uint64(15) << 60

// SizeFlag computes the monotonic size-class flag byte for a node of size s.
//
// The flag is the smallest pair (H, L) with L in [1,15] and H in [0,15]
// such that L*16^H >= s, packed as (H<<4)|L. 0x00 is reserved for s = 0.
// Byte order over flags matches numeric order over sizes.
func SizeFlag(s uint64) (byte, error) {
	if s == 0 {
		return 0x00, nil
	}
	if s > MaxFlaggedSize {
		return 0, fmt.Errorf("size %d exceeds flaggable maximum %d", s, MaxFlaggedSize)
	}
	for h := uint(0); h <= 15; h++ {
		unit := uint64(1) << (4 * h) // 16^h
		// Smallest L with L*unit >= s.
		l := (s + unit - 1) / unit
		if l <= 15 {
			return byte(h<<4) | byte(l), nil
		}
	}
	// Unreachable: h = 15 covers everything up to MaxFlaggedSize.
	return 0, fmt.Errorf("size %d not flaggable", s)
}

// SizeFlagBound returns the largest size covered by a flag byte, i.e. the
// inverse bound: for every s with SizeFlag(s) = b, s <= SizeFlagBound(b).
func SizeFlagBound(b byte) uint64 {
	h := uint(b >> 4)
	l := uint64(b & 0x0f)
	return l << (4 * h)
}

// KeyFor derives the content key for a serialized node: BLAKE3-128 of the
// bytes with the first byte replaced by the size-class flag.
func KeyFor(raw []byte) Key {
	var k Key
	sum := blake3.Sum256(raw)
	copy(k[:], sum[:KeySize])
	flag, err := SizeFlag(uint64(len(raw)))
	if err == nil {
		k[0] = flag
	}
	return k
}
