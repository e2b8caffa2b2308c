// Package ec implements the erasure-code codec interface consumed by the
// storage-method descriptor and the EC write/read pipelines in package
// content. The shape mirrors storj.io/uplink/private/eestream's
// ErasureScheme: a small collaborator interface so the pipelines can be
// exercised against a trivial codec in tests without pulling in a real
// Reed-Solomon library.
package ec

import "fmt"

// Algo identifies one of the erasure-code families a chunk_method string
// may request.
type Algo string

const (
	IsaLRSVand           Algo = "isa_l_rs_vand"
	JerasureRSVand       Algo = "jerasure_rs_vand"
	JerasureRSCauchy     Algo = "jerasure_rs_cauchy"
	LiberasurecodeRSVand Algo = "liberasurecode_rs_vand"
	SHSS                 Algo = "shss"
)

// Codec encodes a fixed-size segment into k+m fragments and decodes a
// segment back from any k of those k+m fragments (up to m may be nil,
// standing in for a lost or unread fragment).
type Codec interface {
	// Encode splits segment (exactly SegmentSize() bytes, except for a
	// possibly-short final segment) into k+m fragments of FragmentSize
	// bytes, data fragments first.
	Encode(segment []byte) ([][]byte, error)
	// Decode reconstructs one segment from k+m fragments, up to
	// MinParityNeeded of which may be nil.
	Decode(fragments [][]byte) ([]byte, error)
	// MinParityNeeded is the number of parity fragments the codec
	// actually requires to tolerate loss (<= m).
	MinParityNeeded() int
	// FragmentSize returns the fragment size produced from a segment of
	// the given size.
	FragmentSize(segmentSize int64) int64
	K() int
	M() int
}

// NewCodec builds the Codec for the given algorithm and k/m parameters.
// Only Reed-Solomon family algorithms are backed by an actual
// implementation (via klauspost/reedsolomon); the others are accepted for
// chunk_method compatibility but share the same backing codec, matching
// the original ec_type_to_pyeclib_type mapping which treated them as
// interchangeable identifiers over pyeclib.
func NewCodec(algo Algo, k, m int) (Codec, error) {
	switch algo {
	case IsaLRSVand, JerasureRSVand, JerasureRSCauchy, LiberasurecodeRSVand, SHSS:
		return newReedSolomonCodec(k, m)
	default:
		return nil, fmt.Errorf("unsupported erasure-code algorithm %q", algo)
	}
}
