package content

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/chunk/ec"
	"github.com/mailanetworks/oiokit/transport"
)

func TestWriteECMetaChunkAllAlive(t *testing.T) {
	k, m := 3, 1
	srvs := make([]*httptest.Server, k+m)
	meta := make(MetaChunk, k+m)
	for i := range srvs {
		srvs[i] = rawxServer(t, http.StatusCreated)
		defer srvs[i].Close()
		meta[i] = targetOf(srvs[i])
	}

	codec, err := ec.NewXORCodec(k)
	if err != nil {
		t.Fatalf("NewXORCodec: %v", err)
	}
	method := chunk.NewECMethod(k, m, codec, 12) // segment size 12, so 12/3 = 4 bytes per fragment

	payload := bytes.Repeat([]byte("A"), 12*2+5) // two full segments plus a short tail
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "ec/k=3,m=1,algo=isa_l_rs_vand"}

	chunks, total, err := WriteECMetaChunk(context.Background(), desc, 1, meta, method, 0, bytes.NewReader(payload), NewTimeouts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != int64(len(payload)) {
		t.Fatalf("expected total %d, got %d", len(payload), total)
	}
	for _, c := range chunks {
		if c.Error != "" {
			t.Errorf("target %s reported error: %s", c.Target.URL, c.Error)
		}
	}
}

// A lost fragment always costs the write its quorum: Quorum() is
// k+MinParityNeeded, and MinParityNeeded is m for both codecs, so an EC
// write quorum is the full target count. Fault tolerance from the parity
// fragments only pays off on a later read, not during the write itself.
func TestWriteECMetaChunkFailsOnAnyFragmentLoss(t *testing.T) {
	k, m := 3, 1
	srvs := make([]*httptest.Server, k+m)
	meta := make(MetaChunk, k+m)
	for i := range srvs {
		srvs[i] = rawxServer(t, http.StatusCreated)
		defer srvs[i].Close()
		meta[i] = targetOf(srvs[i])
	}
	meta[k] = transport.Target{URL: "http://127.0.0.1:1/chunk/AAAA"}

	codec, _ := ec.NewXORCodec(k)
	method := chunk.NewECMethod(k, m, codec, 12)

	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "ec/k=3,m=1,algo=isa_l_rs_vand"}
	_, _, err := WriteECMetaChunk(context.Background(), desc, 1, meta, method, 0, bytes.NewReader(bytes.Repeat([]byte("B"), 30)), NewTimeouts())
	if err == nil {
		t.Fatal("expected write quorum error when one of k+m fragment targets is down")
	}
}

// TestWriteECMetaChunkFailsOnAnyFragmentLoss's quorum-lost-mid-stream
// counterpart: a fragment writer that connects but fails mid-stream (via
// closesAfterHeadersTarget from replicated_write_test.go) must still let
// WriteECMetaChunk return promptly instead of hanging on an unclosed
// queue, exercising the same close-every-queue fix for the EC pipeline.
func TestWriteECMetaChunkMidStreamFailureDoesNotHang(t *testing.T) {
	k, m := 3, 1
	srvs := make([]*httptest.Server, k+m-1)
	meta := make(MetaChunk, k+m)
	for i := range srvs {
		srvs[i] = rawxServer(t, http.StatusCreated)
		defer srvs[i].Close()
		meta[i] = targetOf(srvs[i])
	}
	meta[k+m-1] = closesAfterHeadersTarget(t)

	codec, err := ec.NewXORCodec(k)
	if err != nil {
		t.Fatalf("NewXORCodec: %v", err)
	}
	method := chunk.NewECMethod(k, m, codec, 12)
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "ec/k=3,m=1,algo=isa_l_rs_vand"}
	payload := bytes.Repeat([]byte("C"), 12*4)

	done := make(chan error, 1)
	go func() {
		_, _, err := WriteECMetaChunk(context.Background(), desc, 1, meta, method, 0, bytes.NewReader(payload), NewTimeouts())
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected write quorum error when one of k+m fragment targets fails mid-stream")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WriteECMetaChunk hung: a mid-stream fragment failure must not block on an unclosed queue")
	}
}

func TestWriteECMetaChunkRejectsWrongTargetCount(t *testing.T) {
	codec, _ := ec.NewXORCodec(3)
	method := chunk.NewECMethod(3, 1, codec, 12)
	meta := MetaChunk{{URL: "http://127.0.0.1:1/x"}}
	_, _, err := WriteECMetaChunk(context.Background(), Descriptor{}, 1, meta, method, 0, bytes.NewReader(nil), NewTimeouts())
	if err == nil {
		t.Fatal("expected error for mismatched target count")
	}
}
