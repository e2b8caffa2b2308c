package content

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
)

// Uploader drives a whole content through the replicated or EC write
// pipeline, one meta-chunk at a time, accumulating a content-wide MD5
// alongside the per-target checksums the pipelines already track. This
// is the content driver of spec.md §3/§8 (oiopy/content.py:Content.create
// orchestrating ChunkWriteHandler per meta-chunk).
type Uploader struct {
	Timeouts Timeouts
}

func NewUploader(t Timeouts) *Uploader { return &Uploader{Timeouts: t} }

// Upload reads up to desc.Length bytes from source (a shorter source is
// logged, not rejected), splitting it into
// desc.ChunkSize-byte meta-chunks laid out by layout (in increasing
// meta-chunk position order; a real client obtains layout from the
// directory/proxy service, out of scope here) and writing each through
// the method's pipeline. Meta-chunks are written one at a time: the
// source is a single sequential stream and spec.md §5 only calls for
// per-target, not per-meta-chunk, concurrency.
func (u *Uploader) Upload(ctx context.Context, desc Descriptor, layout ChunksLayout, method chunk.Method, source io.Reader) (WriteResult, error) {
	positions := sortedPositions(layout)
	overall := md5.New()
	tee := io.TeeReader(source, overall)

	var chunks []Chunk
	var total int64
	remaining := desc.Length

	for _, pos := range positions {
		meta := layout[pos]
		budget := desc.ChunkSize
		if budget > remaining {
			budget = remaining
		}
		if budget <= 0 {
			break
		}
		limited := io.LimitReader(tee, budget)

		var (
			mcChunks []Chunk
			mcBytes  int64
			err      error
		)
		if method.Replicated() {
			mcChunks, mcBytes, err = WriteReplicatedMetaChunk(ctx, desc, len(layout), meta, method, pos, limited, u.Timeouts)
		} else {
			mcChunks, mcBytes, err = WriteECMetaChunk(ctx, desc, len(layout), meta, method, pos, limited, u.Timeouts)
		}
		if err != nil {
			return WriteResult{Chunks: chunks, BytesTransferred: total}, fmt.Errorf("meta-chunk %d: %w", pos, err)
		}

		chunks = append(chunks, mcChunks...)
		total += mcBytes
		remaining -= mcBytes
	}

	if total != desc.Length {
		xlog.Warningf("uploaded %d bytes but descriptor declares length %d", total, desc.Length)
	}

	return WriteResult{
		Chunks:           chunks,
		BytesTransferred: total,
		ContentMD5:       hex.EncodeToString(overall.Sum(nil)),
	}, nil
}

// Downloader drives a whole content's read back out through the
// replicated or EC read pipeline, resolving an optional object-level
// byte range down to meta-chunk, segment and fragment ranges via package
// chunk (spec.md §3/§8, oiopy/content.py:Content.fetch).
type Downloader struct {
	Timeouts Timeouts
}

func NewDownloader(t Timeouts) *Downloader { return &Downloader{Timeouts: t} }

// Download writes the requested range (nil for the whole content) of a
// content to dst, touching only the meta-chunks the range actually
// overlaps, in position order.
func (d *Downloader) Download(ctx context.Context, layout ChunksLayout, method chunk.Method, metaSizes []int64, rng *chunk.ByteRange, dst io.Writer) (int64, error) {
	positions := sortedPositions(layout)

	var objStart, objEnd *int64
	if rng != nil {
		objStart, objEnd = rng.Start, rng.End
	}
	mcRanges := chunk.ObjRangeToMetaChunkRanges(objStart, objEnd, metaSizes)

	var total int64
	for _, pos := range positions {
		mcRange, touched := mcRanges[pos]
		if !touched {
			continue
		}
		meta := layout[pos]
		if mcRange.Start != nil && mcRange.End != nil && !chunk.Satisfiable(mcRange.Start, mcRange.End, metaSizes[pos]) {
			return total, fmt.Errorf("%w: meta-chunk %d range not satisfiable", oioerr.ErrRangeNotSatisfiable, pos)
		}

		var (
			n   int64
			err error
		)
		if method.Replicated() {
			start := mcRange.Start
			if start == nil {
				zero := int64(0)
				start = &zero
			}
			n, err = ReadReplicatedMetaChunk(ctx, meta, &chunk.ByteRange{Start: start, End: mcRange.End}, dst, d.Timeouts)
		} else {
			n, err = d.readECRange(ctx, meta, method, mcRange, metaSizes[pos], dst)
		}
		total += n
		if err != nil {
			return total, fmt.Errorf("meta-chunk %d: %w", pos, err)
		}
	}
	return total, nil
}

// readECRange expands a meta-chunk-local range to segment and fragment
// alignment, decodes the full aligned span, and trims the leading and
// trailing padding the alignment introduces so dst sees exactly the
// requested meta-chunk bytes.
func (d *Downloader) readECRange(ctx context.Context, meta MetaChunk, method chunk.Method, mcRange chunk.MetaChunkRange, metaSize int64, dst io.Writer) (int64, error) {
	var metaStart int64
	if mcRange.Start != nil {
		metaStart = *mcRange.Start
	}
	metaEnd := metaSize - 1
	if mcRange.End != nil {
		metaEnd = *mcRange.End
	}

	// Round the start down to a segment boundary whenever it cuts into
	// the middle of one (there is always real, already-written data
	// before it to read through). Only round the end UP to a segment
	// boundary when it too cuts into the middle of a segment the write
	// side actually wrote at full size; when the span runs into the final
	// segment of the meta-chunk (or mcRange.End == nil), the last written segment
	// is exactly as long as the remaining data and needs no rounding —
	// rounding it up would ask fragment targets for bytes that were
	// never written.
	segmentSize := method.SegmentSize()
	segStart := (metaStart / segmentSize) * segmentSize
	segEnd := ((metaEnd/segmentSize)+1)*segmentSize - 1
	var fragEnd *int64
	if mcRange.End != nil && segEnd <= metaSize-1 {
		_, fragEnd = chunk.SegmentRangeToFragmentRange(&segStart, &segEnd, segmentSize, method.FragmentSize())
	} else {
		// Reading into the final segment: the last segment the write
		// side produced may be shorter than segmentSize, so its
		// fragment is shorter than FragmentSize() too. Request an
		// open-ended fragment range instead of computing a (necessarily
		// wrong) fixed end.
		segEnd = metaSize - 1
	}
	fragStart := segStart / segmentSize * method.FragmentSize()
	decodedLen := segEnd - segStart + 1

	skip := metaStart - segStart
	limit := metaEnd - metaStart + 1

	bw := &boundedWriter{dst: dst, skip: skip, limit: limit}
	_, err := ReadECMetaChunk(ctx, meta, method, &chunk.ByteRange{Start: &fragStart, End: fragEnd}, decodedLen, bw, d.Timeouts)
	return bw.written, err
}

// boundedWriter discards the first skip bytes written to it and stops
// forwarding once limit bytes have reached dst, while still reporting
// every byte as consumed: it exists only to let ReadECMetaChunk's
// segment-at-a-time Write calls land on a sub-range of what it decodes,
// never to be used as a general-purpose io.Writer.
type boundedWriter struct {
	dst     io.Writer
	skip    int64
	limit   int64
	written int64
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if w.skip > 0 {
		if int64(total) <= w.skip {
			w.skip -= int64(total)
			return total, nil
		}
		p = p[w.skip:]
		w.skip = 0
	}
	remain := w.limit - w.written
	if remain <= 0 {
		return total, nil
	}
	if int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := w.dst.Write(p)
	w.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}

func sortedPositions(layout ChunksLayout) []int {
	positions := make([]int, 0, len(layout))
	for pos := range layout {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}
