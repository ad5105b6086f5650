package compress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// sampleDocument is a small rendered SBOM fragment.
var sampleDocument = []byte(`{"name":"nginx","versions":[{"version_id":"1.21.0","dependencies":[],"vulnerabilities":[{"id":"CVE-2021-23017"}]}]}`)

func TestCompressor_ZSTD(t *testing.T) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)

	compressed, err := compressor.Compress(sampleDocument)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	t.Logf("original %d bytes, compressed %d bytes", len(sampleDocument), len(compressed))

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(sampleDocument, decompressed) {
		t.Error("decompressed document does not match original")
	}
}

func TestCompressor_Gzip(t *testing.T) {
	compressor := NewCompressor(AlgorithmGzip, LevelDefault)

	compressed, err := compressor.Compress(sampleDocument)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(sampleDocument, decompressed) {
		t.Error("decompressed document does not match original")
	}
}

func TestCompressor_None(t *testing.T) {
	compressor := NewCompressor(AlgorithmNone, LevelDefault)

	compressed, err := compressor.Compress(sampleDocument)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if !bytes.Equal(sampleDocument, compressed) {
		t.Error("AlgorithmNone should return the original bytes")
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		want    Algorithm
		wantErr bool
	}{
		{"zstd", AlgorithmZSTD, false},
		{"gzip", AlgorithmGzip, false},
		{"none", AlgorithmNone, false},
		{"", AlgorithmNone, false},
		{"brotli", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCompressor_CompressWithStats(t *testing.T) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)

	// SBOM output is highly repetitive and should compress well.
	testData := []byte(strings.Repeat(`{"name":"zlib","version_id":"1.2.11","vulnerabilities":[]},`, 1000))

	compressed, stats, err := compressor.CompressWithStats(testData)
	if err != nil {
		t.Fatalf("CompressWithStats failed: %v", err)
	}

	if stats.OriginalSize != len(testData) {
		t.Errorf("OriginalSize = %d, want %d", stats.OriginalSize, len(testData))
	}
	if stats.CompressedSize != len(compressed) {
		t.Errorf("CompressedSize = %d, want %d", stats.CompressedSize, len(compressed))
	}
	if stats.Ratio <= 0 || stats.Ratio > 1 {
		t.Errorf("Ratio = %f, expected between 0 and 1", stats.Ratio)
	}
	if stats.Savings < 50 {
		t.Errorf("expected >50%% savings on repetitive data, got %f%%", stats.Savings)
	}
	if stats.Algorithm != "zstd" {
		t.Errorf("Algorithm = %q", stats.Algorithm)
	}
}

func TestCompressor_LargeDocument(t *testing.T) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)

	// A dependency tree with thousands of nodes.
	var sb strings.Builder
	sb.WriteString(`{"name":"app","versions":[{"version_id":"1.0","dependencies":[`)
	for i := 0; i < 10000; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"lib`)
		sb.WriteString(string(rune('a' + (i % 26))))
		sb.WriteString(`","version_id":"1.0.0","dependencies":[],"vulnerabilities":[]}`)
	}
	sb.WriteString(`]}]}`)

	testData := []byte(sb.String())
	compressed, stats, err := compressor.CompressWithStats(testData)
	if err != nil {
		t.Fatalf("CompressWithStats failed: %v", err)
	}
	t.Logf("compressed %d bytes to %d (%.1f%% savings)",
		stats.OriginalSize, stats.CompressedSize, stats.Savings)

	decompressed, err := compressor.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(testData, decompressed) {
		t.Error("decompressed document does not match original")
	}
}

func TestCompressor_ConcurrentUse(t *testing.T) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)
	done := make(chan error, 8)

	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 50; j++ {
				compressed, err := compressor.Compress(sampleDocument)
				if err != nil {
					done <- err
					return
				}
				decompressed, err := compressor.Decompress(compressed)
				if err != nil {
					done <- err
					return
				}
				if !bytes.Equal(sampleDocument, decompressed) {
					done <- errMismatch
					return
				}
			}
			done <- nil
		}()
	}

	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent round trip failed: %v", err)
		}
	}
}

var errMismatch = errors.New("decompressed data mismatch")

func TestPolicy_Choose(t *testing.T) {
	policy := NewPolicy(nil)

	if got := policy.Choose(10); got != StrategyStore {
		t.Errorf("Choose(10) = %q, want store", got)
	}
	if got := policy.Choose(1024); got != StrategyCompress {
		t.Errorf("Choose(1024) = %q, want compress", got)
	}
	if !policy.ShouldCompress(1 << 20) {
		t.Error("ShouldCompress(1MiB) = false")
	}

	custom := NewPolicy(&PolicyConfig{MinSizeForCompression: 10})
	if !custom.ShouldCompress(10) {
		t.Error("custom threshold not honored")
	}
}

func BenchmarkCompressor_ZSTD(b *testing.B) {
	compressor := NewCompressor(AlgorithmZSTD, LevelDefault)
	testData := []byte(strings.Repeat(`{"name":"zlib","version_id":"1.2.11"},`, 1000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := compressor.Compress(testData); err != nil {
			b.Fatal(err)
		}
	}
	b.SetBytes(int64(len(testData)))
}
