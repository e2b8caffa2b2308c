package ec

import "fmt"

// xorCodec is the trivial single-parity codec the design notes call for:
// a codec that can stand in for klauspost/reedsolomon in tests without
// any real Reed-Solomon math. It only supports m=1 (a single XOR parity
// fragment tolerating exactly one loss).
type xorCodec struct {
	k int
}

// NewXORCodec returns a trivial (k,1) codec: the parity fragment is the
// byte-wise XOR of the k data fragments. Exported for use by package
// content's tests, matching the design notes' advice to keep the codec
// behind a small interface so the core is testable without a real EC
// library.
func NewXORCodec(k int) (Codec, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid xor codec parameter k=%d", k)
	}
	return &xorCodec{k: k}, nil
}

func (c *xorCodec) K() int               { return c.k }
func (c *xorCodec) M() int               { return 1 }
func (c *xorCodec) MinParityNeeded() int { return 1 }

func (c *xorCodec) FragmentSize(segmentSize int64) int64 {
	return (segmentSize + int64(c.k) - 1) / int64(c.k)
}

func (c *xorCodec) Encode(segment []byte) ([][]byte, error) {
	fragSize := int(c.FragmentSize(int64(len(segment))))
	fragments := make([][]byte, c.k+1)
	parity := make([]byte, fragSize)
	for i := 0; i < c.k; i++ {
		frag := make([]byte, fragSize)
		start := i * fragSize
		if start < len(segment) {
			end := start + fragSize
			if end > len(segment) {
				end = len(segment)
			}
			copy(frag, segment[start:end])
		}
		for j, b := range frag {
			parity[j] ^= b
		}
		fragments[i] = frag
	}
	fragments[c.k] = parity
	return fragments, nil
}

func (c *xorCodec) Decode(fragments [][]byte) ([]byte, error) {
	if len(fragments) != c.k+1 {
		return nil, fmt.Errorf("decode: expected %d fragments, got %d", c.k+1, len(fragments))
	}
	missing := -1
	for i, f := range fragments {
		if f == nil {
			if missing >= 0 {
				return nil, fmt.Errorf("decode: more than one fragment missing, xor codec cannot recover")
			}
			missing = i
		}
	}
	if missing >= 0 {
		fragSize := 0
		for _, f := range fragments {
			if f != nil {
				fragSize = len(f)
				break
			}
		}
		recovered := make([]byte, fragSize)
		for i, f := range fragments {
			if i == missing {
				continue
			}
			for j, b := range f {
				recovered[j] ^= b
			}
		}
		fragments = append([][]byte(nil), fragments...)
		fragments[missing] = recovered
	}

	segment := make([]byte, 0, len(fragments[0])*c.k)
	for i := 0; i < c.k; i++ {
		segment = append(segment, fragments[i]...)
	}
	return segment, nil
}
