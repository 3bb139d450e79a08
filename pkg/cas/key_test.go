package cas

import (
	"strings"
	"testing"
)

func TestKeyStringRoundTrip(t *testing.T) {
	raw, key, err := EncodeFile([]byte("hello"), "text/plain", 5, nil)
	if err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	if key != KeyFor(raw) {
		t.Fatal("EncodeFile key disagrees with KeyFor")
	}

	s := key.String()
	if len(s) != EncodedKeyLen {
		t.Fatalf("encoded key length = %d, want %d", len(s), EncodedKeyLen)
	}
	for _, c := range s {
		if strings.ContainsRune("ILOU", c) {
			t.Fatalf("encoded key %q contains excluded character %c", s, c)
		}
	}

	parsed, err := ParseKey(s)
	if err != nil {
		t.Fatalf("ParseKey(%q) failed: %v", s, err)
	}
	if parsed != key {
		t.Fatalf("round trip mismatch: %s != %s", parsed, key)
	}
}

func TestParsePrefixed(t *testing.T) {
	key := EmptyDirKey()
	s := key.Format(PrefixNode)
	if !strings.HasPrefix(s, "nod_") {
		t.Fatalf("formatted key %q missing nod_ prefix", s)
	}

	parsed, err := ParsePrefixed(PrefixNode, s)
	if err != nil {
		t.Fatalf("ParsePrefixed failed: %v", err)
	}
	if parsed != key {
		t.Fatal("prefixed round trip mismatch")
	}

	if _, err := ParsePrefixed(PrefixDepot, s); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	if _, err := ParseKey("too-short"); err == nil {
		t.Fatal("expected length error")
	}
}

func TestParseKeyHex(t *testing.T) {
	key := EmptyDirKey()
	parsed, err := ParseKeyHex(key.Hex())
	if err != nil {
		t.Fatalf("ParseKeyHex failed: %v", err)
	}
	if parsed != key {
		t.Fatal("hex round trip mismatch")
	}
	if _, err := ParseKeyHex("zz"); err == nil {
		t.Fatal("expected hex error")
	}
}

func TestSizeFlagZeroReserved(t *testing.T) {
	flag, err := SizeFlag(0)
	if err != nil {
		t.Fatalf("SizeFlag(0) failed: %v", err)
	}
	if flag != 0x00 {
		t.Fatalf("SizeFlag(0) = 0x%02x, want 0x00", flag)
	}
}

func TestSizeFlagExactValues(t *testing.T) {
	cases := []struct {
		size uint64
		flag byte
	}{
		{1, 0x01},
		{15, 0x0f},
		{16, 0x11},
		{17, 0x12},
		{240, 0x1f},
		{241, 0x21},
		{256, 0x21},
		{4096, 0x31},
		{MaxFlaggedSize, 0xff},
	}
	for _, tc := range cases {
		flag, err := SizeFlag(tc.size)
		if err != nil {
			t.Fatalf("SizeFlag(%d) failed: %v", tc.size, err)
		}
		if flag != tc.flag {
			t.Errorf("SizeFlag(%d) = 0x%02x, want 0x%02x", tc.size, flag, tc.flag)
		}
	}

	if _, err := SizeFlag(MaxFlaggedSize + 1); err == nil {
		t.Fatal("expected error above MaxFlaggedSize")
	}
}

// The flag must be monotonic in size and tight: the flagged bound covers the
// size, and no smaller flag byte does.
func TestSizeFlagMonotonicAndTight(t *testing.T) {
	sizes := []uint64{1, 2, 15, 16, 17, 100, 240, 241, 255, 256, 4095, 4096, 1 << 20, 1 << 30, 1 << 40, MaxFlaggedSize - 1, MaxFlaggedSize}
	var prevFlag byte
	var prevSize uint64
	for _, s := range sizes {
		flag, err := SizeFlag(s)
		if err != nil {
			t.Fatalf("SizeFlag(%d) failed: %v", s, err)
		}
		if prevSize > 0 && prevSize < s && flag < prevFlag {
			t.Errorf("flag not monotonic: flag(%d)=0x%02x < flag(%d)=0x%02x", s, flag, prevSize, prevFlag)
		}
		if bound := SizeFlagBound(flag); bound < s {
			t.Errorf("flag 0x%02x bound %d does not cover size %d", flag, bound, s)
		}
		if flag > 1 {
			if bound := SizeFlagBound(flag - 1); bound >= s && (flag-1)&0x0f != 0 {
				t.Errorf("flag 0x%02x not tight for size %d: 0x%02x also covers it", flag, s, flag-1)
			}
		}
		prevFlag, prevSize = flag, s
	}
}

func TestKeyForEmbedsSizeFlag(t *testing.T) {
	raw := EmptyDirBytes()
	key := KeyFor(raw)
	want, _ := SizeFlag(uint64(len(raw)))
	if key[0] != want {
		t.Fatalf("key flag byte = 0x%02x, want 0x%02x", key[0], want)
	}
}
