package ec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// reedSolomonCodec adapts github.com/klauspost/reedsolomon to the Codec
// interface. Fragments are laid out shard-per-fragment, data shards first,
// exactly the layout the teacher's ec/putjogger.go builds when it calls
// reedsolomon.NewStreamC(dataSlices, paritySlices, ...).
type reedSolomonCodec struct {
	k, m int
	enc  reedsolomon.Encoder
}

func newReedSolomonCodec(k, m int) (Codec, error) {
	if k <= 0 || m <= 0 {
		return nil, fmt.Errorf("invalid erasure-code parameters k=%d m=%d", k, m)
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("build reed-solomon codec k=%d m=%d: %w", k, m, err)
	}
	return &reedSolomonCodec{k: k, m: m, enc: enc}, nil
}

func (c *reedSolomonCodec) K() int { return c.k }
func (c *reedSolomonCodec) M() int { return c.m }

// MinParityNeeded is the number of parity fragments a classic (k,m)
// Reed-Solomon scheme requires to recover any m missing fragments: all m
// of them, i.e. the scheme tolerates exactly m losses.
func (c *reedSolomonCodec) MinParityNeeded() int { return c.m }

func (c *reedSolomonCodec) FragmentSize(segmentSize int64) int64 {
	perShard := (segmentSize + int64(c.k) - 1) / int64(c.k)
	return perShard
}

func (c *reedSolomonCodec) Encode(segment []byte) ([][]byte, error) {
	fragSize := int(c.FragmentSize(int64(len(segment))))
	shards := make([][]byte, c.k+c.m)
	for i := range shards {
		shards[i] = make([]byte, fragSize)
	}
	// scatter segment across the k data shards, zero-padding the tail
	for i := 0; i < c.k; i++ {
		start := i * fragSize
		if start >= len(segment) {
			continue
		}
		end := start + fragSize
		if end > len(segment) {
			end = len(segment)
		}
		copy(shards[i], segment[start:end])
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}
	return shards, nil
}

func (c *reedSolomonCodec) Decode(fragments [][]byte) ([]byte, error) {
	if len(fragments) != c.k+c.m {
		return nil, fmt.Errorf("decode: expected %d fragments, got %d", c.k+c.m, len(fragments))
	}
	shards := make([][]byte, len(fragments))
	copy(shards, fragments)
	if err := c.enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("reconstruct segment: %w", err)
	}
	segment := make([]byte, 0, len(shards[0])*c.k)
	for i := 0; i < c.k; i++ {
		segment = append(segment, shards[i]...)
	}
	return segment, nil
}
