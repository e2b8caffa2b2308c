package content

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
	"github.com/mailanetworks/oiokit/transport"
)

// WriteECMetaChunk segments source into method.SegmentSize() blocks (the
// last one possibly short), encodes each segment into k+m fragments with
// method.Codec(), and streams fragment i to meta[i]. It implements
// spec.md §4.5's EC write pipeline (oiopy/ec.py:ECChunkWriteHandler.stream):
// connect-all-fragment-targets, segment-encode-dispatch loop with
// per-segment quorum recheck, terminate, collect responses.
func WriteECMetaChunk(ctx context.Context, desc Descriptor, chunksNb int, meta MetaChunk, method chunk.Method, chunkPos int, source io.Reader, t Timeouts) ([]Chunk, int64, error) {
	if len(meta) != method.K()+method.M() {
		return nil, 0, fmt.Errorf("%w: meta-chunk has %d targets, method needs %d", oioerr.ErrInvalidStorageMethod, len(meta), method.K()+method.M())
	}
	sm := desc.sysMeta(chunksNb)
	quorum := method.Quorum(len(meta))

	writers := connectFragments(ctx, meta, sm, chunkPos, t)
	if countAlive(writers) < quorum {
		closeAll(writers)
		return nil, 0, fmt.Errorf("%w: connected %d/%d fragment targets, need %d", oioerr.ErrWriteQuorumError, countAlive(writers), len(meta), quorum)
	}

	var wg sync.WaitGroup
	for _, w := range writers {
		if w.failed.Load() {
			continue
		}
		wg.Add(1)
		go func(w *writerState) {
			defer wg.Done()
			w.run(t.Chunk)
		}(w)
	}

	overall := md5.New()
	var total int64
	streamErr := segmentAndDispatch(ctx, source, method, writers, overall, quorum, t, &total)

	// Close every queue, not just the still-alive ones: the dispatch loop
	// has stopped sending by now, and a writer marked failed mid-stream
	// still has its run() goroutine blocked on <-queue. Leaving its
	// queue open here hangs wg.Wait() forever.
	for _, w := range writers {
		close(w.queue)
	}
	wg.Wait()

	if streamErr != nil {
		closeAll(writers)
		xlog.Warningf("EC write of meta-chunk %d aborted: %v", chunkPos, streamErr)
		return nil, 0, streamErr
	}
	if countAlive(writers) < quorum {
		closeAll(writers)
		return nil, 0, fmt.Errorf("%w: %d/%d fragment writers survived the stream, need %d", oioerr.ErrWriteQuorumError, countAlive(writers), len(meta), quorum)
	}

	chunks := collectResponses(writers, t.Chunk)
	ok := 0
	for _, c := range chunks {
		if c.Error == "" {
			ok++
		}
	}
	if ok < quorum {
		return chunks, 0, fmt.Errorf("%w: %d/%d fragments acknowledged, need %d", oioerr.ErrWriteQuorumError, ok, len(meta), quorum)
	}

	xlog.Infof(xlog.VChunk, "EC meta-chunk %d written: %d/%d fragments, %d payload bytes", chunkPos, ok, len(meta), total)
	return chunks, total, nil
}

func connectFragments(ctx context.Context, meta MetaChunk, sm transport.SysMeta, chunkPos int, t Timeouts) []*writerState {
	writers := make([]*writerState, len(meta))
	var wg sync.WaitGroup
	for i, target := range meta {
		wg.Add(1)
		go func(i int, target transport.Target) {
			defer wg.Done()
			pos := fmt.Sprintf("%d.%d", chunkPos, i)
			w := &writerState{
				target:   target,
				chunkPos: pos,
				queue:    make(chan []byte, t.PutQueueDepth),
				checksum: md5.New(),
			}
			conn, err := transport.ConnectPut(ctx, target, sm, pos, t.Connection)
			if err != nil {
				w.markFailed(err)
			} else {
				w.conn = conn
			}
			writers[i] = w
		}(i, target)
	}
	wg.Wait()
	return writers
}

// segmentAndDispatch accumulates source bytes into method.SegmentSize()
// blocks, encodes each complete (or final, possibly short) segment, and
// fans fragment i out to writers[i]'s queue. total accumulates the true
// payload byte count (pre-encoding), matching what the replicated
// pipeline reports for Chunk.Size parity at the driver layer.
func segmentAndDispatch(ctx context.Context, source io.Reader, method chunk.Method, writers []*writerState, overall interface{ Write([]byte) (int, error) }, quorum int, t Timeouts, total *int64) error {
	segmentSize := method.SegmentSize()
	acc := make([]byte, 0, segmentSize)
	buf := make([]byte, t.WriteChunkSize)

	flush := func(segment []byte) error {
		if len(segment) == 0 {
			return nil
		}
		fragments, err := method.Codec().Encode(segment)
		if err != nil {
			return fmt.Errorf("encode segment: %w", err)
		}
		overall.Write(segment)
		*total += int64(len(segment))
		for i, frag := range fragments {
			if i >= len(writers) || writers[i].failed.Load() {
				continue
			}
			writers[i].queue <- frag
		}
		if countAlive(writers) < quorum {
			return fmt.Errorf("%w: lost quorum mid-stream", oioerr.ErrWriteQuorumError)
		}
		return nil
	}

	for {
		n, err := readWithTimeout(ctx, source, buf, t.Client)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			for int64(len(acc)) >= segmentSize {
				if ferr := flush(acc[:segmentSize]); ferr != nil {
					return ferr
				}
				acc = acc[segmentSize:]
			}
		}
		if err == io.EOF {
			if ferr := flush(acc); ferr != nil {
				return ferr
			}
			for _, w := range writers {
				if !w.failed.Load() {
					w.queue <- nil
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
