package bytesize

import (
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "1024", 1024, false},
		{"plain large", "1073741824", 1073741824, false},

		{"bytes B", "1024B", 1024, false},
		{"bytes b lowercase", "1024b", 1024, false},

		// Binary units (×1024)
		{"kibibytes Ki", "1Ki", 1024, false},
		{"kibibytes KiB", "1KiB", 1024, false},
		{"node limit Mi", "4Mi", 4 * MiB, false},
		{"mebibytes MiB", "100MiB", 100 * MiB, false},
		{"gibibytes Gi", "1Gi", GiB, false},
		{"tebibytes TiB", "1TiB", TiB, false},

		// Decimal units (×1000)
		{"kilobytes KB", "1KB", 1000, false},
		{"megabytes MB", "100MB", 100 * MB, false},
		{"gigabytes G", "1G", GB, false},
		{"terabytes T", "1T", TB, false},

		// Case and whitespace tolerance
		{"lowercase gi", "1gi", GiB, false},
		{"uppercase GI", "1GI", GiB, false},
		{"leading space", "  1Gi", GiB, false},
		{"trailing space", "1Gi  ", GiB, false},
		{"space between", "1 Gi", GiB, false},

		// Fractional with unit
		{"float mebibytes", "1.5Mi", ByteSize(1.5 * 1024 * 1024), false},
		{"float gibibytes", "0.5Gi", ByteSize(0.5 * 1024 * 1024 * 1024), false},

		{"empty string", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"invalid unit", "1Xi", 0, true},
		{"negative number", "-1Gi", 0, true},
		{"no number", "Gi", 0, true},
		{"garbage", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseByteSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestByteSizeUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("4Mi")); err != nil || b != 4*MiB {
		t.Errorf("UnmarshalText(4Mi) = %d, %v; want %d", b, err, 4*MiB)
	}
	if err := b.UnmarshalText([]byte("invalid")); err == nil {
		t.Error("UnmarshalText(invalid) succeeded, want error")
	}
}

func TestByteSizeString(t *testing.T) {
	tests := []struct {
		input ByteSize
		want  string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{100 * MiB, "100.00MiB"},
		{GiB, "1.00GiB"},
		{2 * TiB, "2.00TiB"},
		{ByteSize(1.5 * float64(GiB)), "1.50GiB"},
	}

	for _, tt := range tests {
		if got := tt.input.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", tt.input, got, tt.want)
		}
	}
}
