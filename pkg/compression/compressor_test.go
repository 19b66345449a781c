package compression

import (
	"bytes"
	"testing"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	original := bytes.Repeat([]byte("1987,10,14,3,741,730,912,849,PS,1451,NA,91,79,NA,23,11,SAN,SFO,447\n"), 200)

	for _, algo := range Algorithms {
		for _, level := range []Level{Fastest, Default, Better, Best} {
			t.Run(string(algo)+"/"+level.String(), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: algo, Level: level})
				if err != nil {
					t.Fatalf("Failed to create %s compressor: %v", algo, err)
				}
				if comp.Algorithm() != algo {
					t.Errorf("Algorithm() = %s, want %s", comp.Algorithm(), algo)
				}

				compressed, err := comp.Compress(original)
				if err != nil {
					t.Fatalf("Failed to compress: %v", err)
				}
				if algo != None && len(compressed) >= len(original) {
					t.Errorf("Compressed size (%d) is not smaller than original (%d)", len(compressed), len(original))
				}

				decompressed, err := comp.Decompress(compressed)
				if err != nil {
					t.Fatalf("Failed to decompress: %v", err)
				}
				if !bytes.Equal(original, decompressed) {
					t.Errorf("Decompressed data doesn't match original")
				}
			})
		}
	}
}

func TestDecodeWithDifferentLevel(t *testing.T) {
	data := bytes.Repeat([]byte("categorical"), 500)

	for _, algo := range Algorithms {
		writer, err := NewCompressor(&Config{Algorithm: algo, Level: Best})
		if err != nil {
			t.Fatalf("Failed to create %s compressor: %v", algo, err)
		}
		compressed, err := writer.Compress(data)
		if err != nil {
			t.Fatalf("Failed to compress: %v", err)
		}

		reader, err := ForDecoding(algo)
		if err != nil {
			t.Fatalf("ForDecoding(%s): %v", algo, err)
		}
		decompressed, err := reader.Decompress(compressed)
		if err != nil {
			t.Fatalf("Failed to decompress %s: %v", algo, err)
		}
		if !bytes.Equal(data, decompressed) {
			t.Errorf("%s: decompressed data doesn't match original", algo)
		}
	}
}

func TestEmptyBlock(t *testing.T) {
	for _, algo := range Algorithms {
		comp, err := NewCompressor(&Config{Algorithm: algo})
		if err != nil {
			t.Fatalf("Failed to create %s compressor: %v", algo, err)
		}
		compressed, err := comp.Compress(nil)
		if err != nil {
			t.Fatalf("%s: failed to compress empty block: %v", algo, err)
		}
		decompressed, err := comp.Decompress(compressed)
		if err != nil {
			t.Fatalf("%s: failed to decompress empty block: %v", algo, err)
		}
		if len(decompressed) != 0 {
			t.Errorf("%s: expected empty output, got %d bytes", algo, len(decompressed))
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", Zstd, false},
		{"zstd", Zstd, false},
		{"LZ4", LZ4, false},
		{" snappy ", Snappy, false},
		{"none", None, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []Level{Fastest, Default, Better, Best} {
		got, err := ParseLevel(level.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", level.String(), err)
		}
		if got != level {
			t.Errorf("ParseLevel(%q) = %v, want %v", level.String(), got, level)
		}
	}
	if _, err := ParseLevel("ultra"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCorruptInput(t *testing.T) {
	for _, algo := range []Algorithm{Gzip, Snappy, Zstd, S2, LZ4} {
		comp, err := ForDecoding(algo)
		if err != nil {
			t.Fatalf("ForDecoding(%s): %v", algo, err)
		}
		if _, err := comp.Decompress([]byte("definitely not compressed")); err == nil {
			t.Errorf("%s: expected error decoding garbage", algo)
		}
	}
}
