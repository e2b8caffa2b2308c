package content

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
	"github.com/mailanetworks/oiokit/transport"
)

// ReadReplicatedMetaChunk streams a meta-chunk to dst, trying meta's
// targets in order and failing over to the next on any connect, status
// or mid-stream error, per spec.md §4.6's replicated read pipeline
// (oiopy/replication.py:ReplicatedMetachunkReader.stream). rng is the
// local meta-chunk byte range to request, or nil for the whole chunk.
// Fail-over mid-stream resumes from the next target at the byte offset
// already written, so dst never sees a duplicated or skipped byte.
func ReadReplicatedMetaChunk(ctx context.Context, meta MetaChunk, rng *chunk.ByteRange, dst io.Writer, t Timeouts) (int64, error) {
	var written int64
	var lastErr error

	for _, target := range meta {
		subRange := shiftRange(rng, written)
		n, err := readFromTarget(ctx, target, subRange, dst, t)
		written += n
		if err == nil {
			return written, nil
		}
		lastErr = err
		xlog.Warningf("replicated read from %s failed at offset %d, failing over: %v", target.URL, written, err)
	}

	return written, fmt.Errorf("%w: all %d targets failed, last error: %v", oioerr.ErrUnrecoverableRead, len(meta), lastErr)
}

// shiftRange advances a requested range by n bytes already delivered, so
// a fail-over request picks up exactly where the last target left off.
// A nil Start (read from the beginning) becomes an explicit Start of n.
func shiftRange(rng *chunk.ByteRange, n int64) *chunk.ByteRange {
	if rng == nil {
		if n == 0 {
			return nil
		}
		start := n
		return &chunk.ByteRange{Start: &start}
	}
	start := n
	if rng.Start != nil {
		start += *rng.Start
	}
	return &chunk.ByteRange{Start: &start, End: rng.End}
}

func readFromTarget(ctx context.Context, target transport.Target, rng *chunk.ByteRange, dst io.Writer, t Timeouts) (int64, error) {
	rangeHeader := ""
	if rng != nil {
		switch {
		case rng.End != nil:
			rangeHeader = fmt.Sprintf("bytes=%d-%d", *rng.Start, *rng.End)
		default:
			rangeHeader = fmt.Sprintf("bytes=%d-", *rng.Start)
		}
	}

	conn, err := transport.ConnectGet(ctx, target, chunkIDOf(target), rangeHeader, t.Connection, t.Chunk)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var written int64
	buf := make([]byte, t.ReadChunkSize)
	for {
		n, rerr := conn.ReadFrame(buf, t.Chunk)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("%w: %v", oioerr.ErrUnrecoverableRead, werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// chunkIDOf returns the chunk id of target: the last segment of its URL
// path, the same value transport.ConnectPut sends on write.
func chunkIDOf(target transport.Target) string {
	u, err := url.Parse(target.URL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
