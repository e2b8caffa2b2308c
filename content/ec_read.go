package content

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
	"github.com/mailanetworks/oiokit/transport"
)

// fragmentReader is one fragment target's read-side state: an open
// connection and whether it has been marked unusable.
type fragmentReader struct {
	target transport.Target
	conn   *transport.ReadConn
	failed bool
}

// timeoutReader adapts a ReadConn to io.Reader for io.ReadFull, binding
// every Read to the chunk read timeout the way the write side binds
// every SendFrame.
type timeoutReader struct {
	conn    *transport.ReadConn
	timeout time.Duration
}

func (r timeoutReader) Read(p []byte) (int, error) { return r.conn.ReadFrame(p, r.timeout) }

// ReadECMetaChunk requests fragRange from every fragment target in meta
// (k data fragments followed by m parity fragments, matching the layout
// WriteECMetaChunk produced), decodes segment by segment, and writes
// exactly decodedLen bytes to dst — trimming the zero padding the codec
// adds to round the final, possibly-short segment up to a whole number
// of fragments. This implements spec.md §4.7's EC read pipeline
// (oiopy/ec.py:ECChunkDownloadHandler / FragmentGetHandler): fan out one
// reader per fragment, read each segment's fragments from every alive
// reader in lockstep (waiting for all of them, not just the first k),
// tolerate up to m missing without re-requesting.
func ReadECMetaChunk(ctx context.Context, meta MetaChunk, method chunk.Method, fragRange *chunk.ByteRange, decodedLen int64, dst io.Writer, t Timeouts) (int64, error) {
	if len(meta) != method.K()+method.M() {
		return 0, fmt.Errorf("%w: meta-chunk has %d fragment targets, method needs %d", oioerr.ErrInvalidStorageMethod, len(meta), method.K()+method.M())
	}

	readers := connectECReaders(ctx, meta, fragRange, t)
	defer closeReaders(readers)

	if aliveReaders(readers) < method.K() {
		return 0, fmt.Errorf("%w: only %d/%d fragment targets reachable, need %d", oioerr.ErrReadQuorumError, aliveReaders(readers), len(meta), method.K())
	}

	segmentSize := method.SegmentSize()
	codec := method.Codec()
	var written int64
	remaining := decodedLen

	for remaining > 0 {
		segLen := segmentSize
		if segLen > remaining {
			segLen = remaining
		}
		fragSize := codec.FragmentSize(segLen)

		fragments := readFragmentSet(readers, fragSize, t.Chunk)
		alive := 0
		for _, f := range fragments {
			if f != nil {
				alive++
			}
		}
		if alive < method.K() {
			return written, fmt.Errorf("%w: only %d/%d fragments available for this segment, need %d", oioerr.ErrUnrecoverableRead, alive, len(meta), method.K())
		}

		segment, err := codec.Decode(fragments)
		if err != nil {
			return written, fmt.Errorf("%w: %v", oioerr.ErrUnrecoverableRead, err)
		}
		if int64(len(segment)) < segLen {
			return written, fmt.Errorf("%w: decoded segment shorter than expected", oioerr.ErrUnrecoverableRead)
		}
		segment = segment[:segLen]

		if _, err := dst.Write(segment); err != nil {
			return written, fmt.Errorf("%w: %v", oioerr.ErrUnrecoverableRead, err)
		}
		written += int64(len(segment))
		remaining -= segLen
	}

	xlog.Infof(xlog.VChunk, "EC read reconstructed %d bytes from %d/%d fragment targets", written, aliveReaders(readers), len(meta))
	return written, nil
}

func connectECReaders(ctx context.Context, meta MetaChunk, fragRange *chunk.ByteRange, t Timeouts) []*fragmentReader {
	readers := make([]*fragmentReader, len(meta))
	rangeHeader := ""
	if fragRange != nil {
		switch {
		case fragRange.End != nil:
			rangeHeader = fmt.Sprintf("bytes=%d-%d", *fragRange.Start, *fragRange.End)
		default:
			rangeHeader = fmt.Sprintf("bytes=%d-", *fragRange.Start)
		}
	}

	var wg sync.WaitGroup
	for i, target := range meta {
		wg.Add(1)
		go func(i int, target transport.Target) {
			defer wg.Done()
			r := &fragmentReader{target: target}
			conn, err := transport.ConnectGet(ctx, target, chunkIDOf(target), rangeHeader, t.Connection, t.Chunk)
			if err != nil {
				r.failed = true
				xlog.Warningf("fragment target %s unreachable: %v", target.URL, err)
			} else {
				r.conn = conn
			}
			readers[i] = r
		}(i, target)
	}
	wg.Wait()
	return readers
}

// readFragmentSet pulls one fragSize block from every still-alive reader,
// in parallel, returning nil in place of any reader that fails this
// round (the codec tolerates up to MinParityNeeded such holes).
func readFragmentSet(readers []*fragmentReader, fragSize int64, timeout time.Duration) [][]byte {
	fragments := make([][]byte, len(readers))
	var wg sync.WaitGroup
	for i, r := range readers {
		if r.failed {
			continue
		}
		wg.Add(1)
		go func(i int, r *fragmentReader) {
			defer wg.Done()
			buf := make([]byte, fragSize)
			n, err := io.ReadFull(timeoutReader{conn: r.conn, timeout: timeout}, buf)
			if err != nil && err != io.ErrUnexpectedEOF {
				r.failed = true
				xlog.Warningf("fragment target %s read failed: %v", r.target.URL, err)
				return
			}
			fragments[i] = buf[:n]
			if n < len(buf) {
				// short read padded back to fragSize with zeros so every
				// fragment handed to Decode has identical length.
				padded := make([]byte, fragSize)
				copy(padded, buf[:n])
				fragments[i] = padded
			}
		}(i, r)
	}
	wg.Wait()
	return fragments
}

func aliveReaders(readers []*fragmentReader) int {
	n := 0
	for _, r := range readers {
		if !r.failed {
			n++
		}
	}
	return n
}

func closeReaders(readers []*fragmentReader) {
	for _, r := range readers {
		if r.conn != nil {
			r.conn.Close()
		}
	}
}
