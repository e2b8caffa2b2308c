package content

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/oioerr"
	"github.com/mailanetworks/oiokit/transport"
)

// WriteReplicatedMetaChunk streams source onto every target of meta,
// fanning out identical frames to each connected writer, and returns one
// Chunk per target of meta once the stream completes; a target that failed
// carries its reason in Chunk.Error (on a stream abort or a lost quorum
// before responses are read, no chunks are returned). It implements
// spec.md §4.4's replicated write pipeline (ReplicatedChunkWriteHandler.stream
// in oiopy/replication.py): connect-all, stream-with-quorum-recheck,
// terminate, collect responses.
func WriteReplicatedMetaChunk(ctx context.Context, desc Descriptor, chunksNb int, meta MetaChunk, method chunk.Method, chunkPos int, source io.Reader, t Timeouts) ([]Chunk, int64, error) {
	sm := desc.sysMeta(chunksNb)
	quorum := method.Quorum(len(meta))

	writers := connectAll(ctx, meta, sm, fmt.Sprintf("%d", chunkPos), t)
	if countAlive(writers) < quorum {
		closeAll(writers)
		return nil, 0, fmt.Errorf("%w: connected %d/%d targets, need %d", oioerr.ErrWriteQuorumError, countAlive(writers), len(meta), quorum)
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
	buf := make([]byte, t.WriteChunkSize)

	streamErr := streamToWriters(ctx, source, buf, writers, overall, quorum, t)

	// Close every queue, not just the still-alive ones: the stream loop
	// has stopped sending by now, and a writer marked failed mid-stream
	// still has its run() goroutine blocked on <-queue. Leaving its
	// queue open here hangs wg.Wait() forever.
	for _, w := range writers {
		close(w.queue)
	}
	wg.Wait()

	if streamErr != nil {
		closeAll(writers)
		xlog.Warningf("replicated write of meta-chunk %d aborted: %v", chunkPos, streamErr)
		return nil, 0, streamErr
	}

	if countAlive(writers) < quorum {
		closeAll(writers)
		return nil, 0, fmt.Errorf("%w: %d/%d writers survived the stream, need %d", oioerr.ErrWriteQuorumError, countAlive(writers), len(meta), quorum)
	}

	chunks := collectResponses(writers, t.Chunk)
	var total int64
	ok := 0
	for _, c := range chunks {
		if c.Error == "" {
			ok++
			total = c.Size
		}
	}
	if ok < quorum {
		return chunks, 0, fmt.Errorf("%w: %d/%d targets acknowledged, need %d", oioerr.ErrWriteQuorumError, ok, len(meta), quorum)
	}

	xlog.Infof(xlog.VChunk, "replicated meta-chunk %d written: %d/%d targets, %d bytes", chunkPos, ok, len(meta), total)
	return chunks, total, nil
}

func connectAll(ctx context.Context, meta MetaChunk, sm transport.SysMeta, chunkPos string, t Timeouts) []*writerState {
	writers := make([]*writerState, len(meta))
	var wg sync.WaitGroup
	for i, target := range meta {
		wg.Add(1)
		go func(i int, target transport.Target) {
			defer wg.Done()
			w := &writerState{
				target:   target,
				chunkPos: chunkPos,
				queue:    make(chan []byte, t.PutQueueDepth),
				checksum: md5.New(),
			}
			conn, err := transport.ConnectPut(ctx, target, sm, chunkPos, t.Connection)
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

// streamToWriters reads source in Timeouts.WriteChunkSize blocks, fanning
// each block out to every alive writer's queue, rechecking quorum after
// every block (spec.md §4.4 step 6: losing quorum mid-stream aborts the
// write). The empty terminator frame is pushed to every surviving writer
// on EOF to close out the chunked-transfer body.
func streamToWriters(ctx context.Context, source io.Reader, buf []byte, writers []*writerState, overall hash.Hash, quorum int, t Timeouts) error {
	for {
		n, err := readWithTimeout(ctx, source, buf, t.Client)
		if n > 0 {
			block := make([]byte, n)
			copy(block, buf[:n])
			overall.Write(block)
			for _, w := range writers {
				if w.failed.Load() {
					continue
				}
				w.queue <- block
			}
			if countAlive(writers) < quorum {
				return fmt.Errorf("%w: lost quorum mid-stream", oioerr.ErrWriteQuorumError)
			}
		}
		if err == io.EOF {
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

func collectResponses(writers []*writerState, timeout time.Duration) []Chunk {
	chunks := make([]Chunk, len(writers))
	var wg sync.WaitGroup
	for i, w := range writers {
		wg.Add(1)
		go func(i int, w *writerState) {
			defer wg.Done()
			c := Chunk{Target: w.target}
			if w.failed.Load() {
				c.Error = w.lastErr.Error()
			} else if _, err := w.conn.ReadResponse(timeout); err != nil {
				c.Error = err.Error()
			} else {
				c.Size = w.sent
				c.Hash = hex.EncodeToString(w.checksum.Sum(nil))
			}
			if w.conn != nil {
				w.conn.Close()
			}
			chunks[i] = c
		}(i, w)
	}
	wg.Wait()
	return chunks
}

func closeAll(writers []*writerState) {
	for _, w := range writers {
		if w.conn != nil {
			w.conn.Close()
		}
	}
}
