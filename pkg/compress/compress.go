// Package compress shrinks rendered SBOM documents before they enter
// the archive.
//
// Generated SBOMs are JSON with heavily repeated keys and identifiers,
// so they compress very well. ZSTD is the archive default; gzip is
// kept for exporting archives to tooling that cannot read zstd.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Algorithm identifies a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is Zstandard, the archive default.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is gzip, for interoperability with external tooling.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone stores documents uncompressed.
	AlgorithmNone Algorithm = "none"
)

// ParseAlgorithm maps a stored algorithm name back to an Algorithm.
// Rows written by older versions carry an empty name, which reads as
// uncompressed.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "zstd":
		return AlgorithmZSTD, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "none", "":
		return AlgorithmNone, nil
	default:
		return "", fmt.Errorf("unknown compression algorithm %q", name)
	}
}

// Level represents compression effort.
type Level int

const (
	// LevelFastest prioritizes speed over ratio.
	LevelFastest Level = 1

	// LevelDefault balances speed and ratio.
	LevelDefault Level = 3

	// LevelBetter trades speed for a better ratio.
	LevelBetter Level = 6

	// LevelBest is the maximum effort.
	LevelBest Level = 9
)

// Compressor compresses and decompresses archived documents. It is
// safe for concurrent use; zstd coders are pooled across calls.
type Compressor struct {
	algorithm Algorithm
	level     Level

	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
}

// NewCompressor creates a compressor for the given algorithm and level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
		c.zstdDecoderPool = sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil)
				return dec
			},
		}
	}

	return c
}

// Algorithm returns the configured algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// Compress compresses a rendered document.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.compressZSTD(data)
	case AlgorithmGzip:
		return c.compressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress restores a document read from the archive.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		return c.decompressZSTD(data)
	case AlgorithmGzip:
		return c.decompressGzip(data)
	case AlgorithmNone:
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

func (c *Compressor) compressZSTD(data []byte) ([]byte, error) {
	enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
	defer c.zstdEncoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close error: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *Compressor) decompressZSTD(data []byte) ([]byte, error) {
	dec := c.zstdDecoderPool.Get().(*zstd.Decoder)
	defer c.zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset error: %w", err)
	}

	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}

	return result, nil
}

func (c *Compressor) compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	level := gzip.DefaultCompression
	if c.level <= 3 {
		level = gzip.BestSpeed
	} else if c.level >= 7 {
		level = gzip.BestCompression
	}

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer error: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write error: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *Compressor) decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader error: %w", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress error: %w", err)
	}

	return result, nil
}

// CompressionStats describes one compression operation.
type CompressionStats struct {
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size"`
	Ratio          float64 `json:"ratio"`           // compressed/original
	Savings        float64 `json:"savings_percent"` // (1 - ratio) * 100
	Algorithm      string  `json:"algorithm"`
}

// CompressWithStats compresses a document and reports what it saved.
func (c *Compressor) CompressWithStats(data []byte) ([]byte, *CompressionStats, error) {
	compressed, err := c.Compress(data)
	if err != nil {
		return nil, nil, err
	}

	originalSize := len(data)
	compressedSize := len(compressed)
	ratio := float64(compressedSize) / float64(originalSize)

	stats := &CompressionStats{
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Ratio:          ratio,
		Savings:        (1 - ratio) * 100,
		Algorithm:      string(c.algorithm),
	}

	return compressed, stats, nil
}
