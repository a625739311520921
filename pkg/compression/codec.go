// Package compression implements the payload compression decision point for
// outgoing records. The algorithm is a pure function of configuration, chosen
// once at sink initialization; compressed payloads travel in an envelope that
// preserves the original size so the consumer can validate integrity.
package compression

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a supported compression algorithm.
type Algorithm string

const (
	AlgorithmNone   Algorithm = "none"
	AlgorithmLZ4    Algorithm = "lz4"
	AlgorithmSnappy Algorithm = "snappy"
	AlgorithmZstd   Algorithm = "zstd"
)

// Envelope is the wire shape of a compressed payload.
type Envelope struct {
	OriginalSize   int    `json:"original_size"`
	CompressedData []byte `json:"compressed_data"`
}

// Codec encodes and decodes payloads with a fixed algorithm.
type Codec struct {
	alg  Algorithm
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// New builds a codec for the named algorithm. A blank name means no
// compression.
func New(name string) (*Codec, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if alg == "" {
		alg = AlgorithmNone
	}
	c := &Codec{alg: alg}
	switch alg {
	case AlgorithmNone, AlgorithmLZ4, AlgorithmSnappy:
	case AlgorithmZstd:
		var err error
		if c.zenc, err = zstd.NewWriter(nil); err != nil {
			return nil, fmt.Errorf("compression: init zstd encoder: %w", err)
		}
		if c.zdec, err = zstd.NewReader(nil); err != nil {
			return nil, fmt.Errorf("compression: init zstd decoder: %w", err)
		}
	default:
		return nil, fmt.Errorf("compression: unsupported algorithm %q", name)
	}
	return c, nil
}

// Algorithm reports the configured algorithm.
func (c *Codec) Algorithm() Algorithm {
	return c.alg
}

// Enabled reports whether payloads are transformed at all.
func (c *Codec) Enabled() bool {
	return c.alg != AlgorithmNone
}

// Encode transforms a payload for the wire. With compression disabled the
// payload passes through untouched; otherwise the result is a JSON envelope
// carrying the original size and the compressed bytes.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	if c.alg == AlgorithmNone {
		return payload, nil
	}
	compressed, err := c.compress(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		OriginalSize:   len(payload),
		CompressedData: compressed,
	})
}

// Decode reverses Encode, returning the original payload bytes.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if c.alg == AlgorithmNone {
		return data, nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("compression: decode envelope: %w", err)
	}
	return c.decompress(env)
}

func (c *Codec) compress(src []byte) ([]byte, error) {
	switch c.alg {
	case AlgorithmLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("compression: lz4: %w", err)
		}
		if n == 0 || n >= len(src) {
			// Incompressible input is stored raw, so a compressed block is
			// always strictly smaller than the original and Decode can detect
			// raw storage by comparing sizes.
			return src, nil
		}
		return dst[:n], nil
	case AlgorithmSnappy:
		return snappy.Encode(nil, src), nil
	case AlgorithmZstd:
		return c.zenc.EncodeAll(src, make([]byte, 0, len(src))), nil
	}
	return nil, fmt.Errorf("compression: unsupported algorithm %q", c.alg)
}

func (c *Codec) decompress(env Envelope) ([]byte, error) {
	switch c.alg {
	case AlgorithmLZ4:
		if len(env.CompressedData) == env.OriginalSize {
			return env.CompressedData, nil
		}
		dst := make([]byte, env.OriginalSize)
		n, err := lz4.UncompressBlock(env.CompressedData, dst)
		if err != nil {
			return nil, fmt.Errorf("compression: lz4: %w", err)
		}
		return dst[:n], nil
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, env.CompressedData)
		if err != nil {
			return nil, fmt.Errorf("compression: snappy: %w", err)
		}
		return out, nil
	case AlgorithmZstd:
		out, err := c.zdec.DecodeAll(env.CompressedData, nil)
		if err != nil {
			return nil, fmt.Errorf("compression: zstd: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("compression: unsupported algorithm %q", c.alg)
}
