// Package chunk implements the pure range arithmetic and storage-method
// parsing that parameterize the replication and erasure-coding pipelines
// in package content. Nothing here touches the network or the filesystem.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a single requested byte range. A nil End means "to the
// end". A nil Start with a set End is read two ways: ParseHTTPRange
// produces it for a suffix request ("bytes=-500") and ResolveRanges
// resolves it as the last End bytes, while ObjRangeToMetaChunkRanges reads
// a nil start as "from the beginning".
type ByteRange struct {
	Start *int64
	End   *int64
}

// ResolvedRange is a ByteRange clamped against a known total length. Both
// bounds are defined and inclusive: a content of length L yields ranges
// with 0 <= Start <= End <= L-1.
type ResolvedRange struct {
	Start int64
	End   int64
}

func i64p(v int64) *int64 { return &v }

// MetaChunkRange is the local range to read/write on one meta-chunk, using
// the same nil-means-open convention as ByteRange.
type MetaChunkRange struct {
	Start *int64
	End   *int64
}

// ObjRangeToMetaChunkRanges walks metaSizes accumulating an offset and
// emits, for every meta-chunk position touched by [objStart, objEnd], the
// local range to apply to that meta-chunk. objStart and objEnd may each be
// nil (prefix/suffix request); at most one of them should be nil when both
// refer to a bounded request — a fully unbounded request is not valid
// input and returns every meta-chunk with (nil, nil).
func ObjRangeToMetaChunkRanges(objStart, objEnd *int64, metaSizes []int64) map[int]MetaChunkRange {
	ranges := make(map[int]MetaChunkRange)

	var offset int64
	foundStart := objStart == nil
	foundEnd := false

	for pos, size := range metaSizes {
		var r MetaChunkRange

		switch {
		case foundStart:
			r.Start = nil
		case *objStart >= offset && *objStart < offset+size:
			r.Start = i64p(*objStart - offset)
			foundStart = true
		case *objStart >= offset+size:
			offset += size
			continue
		default:
			r.Start = nil
			foundStart = true
		}

		if objEnd != nil && *objEnd >= offset && *objEnd < offset+size {
			r.End = i64p(*objEnd - offset)
			foundEnd = true
		} else {
			r.End = nil
		}

		ranges[pos] = r
		offset += size
		if foundEnd {
			break
		}
	}

	return ranges
}

// MetaChunkRangeToSegmentRange expands a meta-chunk-local range to segment
// alignment: the segment boundary at or before metaStart, and the segment
// boundary at or after metaEnd. A nil metaStart yields a nil segment start
// (prefix); a nil metaEnd yields a nil segment end (suffix).
func MetaChunkRangeToSegmentRange(metaStart, metaEnd *int64, segmentSize int64) (start, end *int64) {
	if metaStart != nil {
		start = i64p((*metaStart / segmentSize) * segmentSize)
	}
	if metaEnd != nil {
		end = i64p((*metaEnd/segmentSize+1)*segmentSize - 1)
	}
	return start, end
}

// SegmentRangeToFragmentRange scales a segment-aligned range down to the
// corresponding fragment range, given the codec's segment and fragment
// sizes.
func SegmentRangeToFragmentRange(segStart, segEnd *int64, segmentSize, fragmentSize int64) (start, end *int64) {
	if segStart != nil {
		start = i64p(*segStart / segmentSize * fragmentSize)
	}
	if segEnd != nil {
		end = i64p((*segEnd+1)/segmentSize*fragmentSize - 1)
	}
	return start, end
}

// ParseHTTPRange parses the value of a Range header, e.g.
// "bytes=0-99,200-" or "bytes=-500". It rejects malformed ranges (a > b,
// b < 0, or an entry with neither bound set).
func ParseHTTPRange(header string) ([]ByteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("invalid range value: %q", header)
	}
	var ranges []ByteRange
	for _, part := range strings.Split(header[len(prefix):], ",") {
		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			return nil, fmt.Errorf("invalid byte-range value: %q", header)
		}
		startStr, endStr := part[:dash], part[dash+1:]

		var start, end *int64
		if startStr != "" {
			v, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid byte-range value: %q", header)
			}
			start = i64p(v)
		}
		if endStr != "" {
			v, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid byte-range value: %q", header)
			}
			if v < 0 {
				return nil, fmt.Errorf("invalid byte-range value: %q", header)
			}
			if start != nil && v < *start {
				return nil, fmt.Errorf("invalid byte-range value: %q", header)
			}
			end = i64p(v)
		} else if start == nil {
			return nil, fmt.Errorf("invalid byte-range value: %q", header)
		}
		ranges = append(ranges, ByteRange{Start: start, End: end})
	}
	return ranges, nil
}

// ResolveRanges clamps each requested range against the known total
// length, turning suffix and open-ended ranges into fully-bounded,
// inclusive ranges. An end past the last byte is clamped to length-1.
// Unsatisfiable ranges (start at or past the end, a zero-byte suffix, or
// length is zero) are dropped from the result.
func ResolveRanges(ranges []ByteRange, length int64) []ResolvedRange {
	if length <= 0 || len(ranges) == 0 {
		return nil
	}
	resolved := make([]ResolvedRange, 0, len(ranges))
	for _, r := range ranges {
		switch {
		case r.Start == nil:
			// suffix range: last *r.End bytes
			n := *r.End
			if n == 0 {
				continue
			}
			start := length - n
			if n > length {
				start = 0
			}
			resolved = append(resolved, ResolvedRange{Start: start, End: length - 1})
		case r.End == nil:
			if *r.Start >= length {
				continue
			}
			resolved = append(resolved, ResolvedRange{Start: *r.Start, End: length - 1})
		default:
			if *r.Start >= length {
				continue
			}
			end := *r.End
			if end > length-1 {
				end = length - 1
			}
			resolved = append(resolved, ResolvedRange{Start: *r.Start, End: end})
		}
	}
	return resolved
}

// Satisfiable reports whether a meta range (as produced by
// ObjRangeToMetaChunkRanges, then resolved against the true meta-chunk
// length) designates a non-empty, in-bounds slice.
func Satisfiable(metaStart, metaEnd *int64, metaLength int64) bool {
	return metaStart != nil && metaEnd != nil && *metaStart <= *metaEnd && *metaEnd <= metaLength-1
}
