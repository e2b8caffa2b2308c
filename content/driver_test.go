package content

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/chunk/ec"
)

func TestUploaderDownloaderReplicatedRoundTrip(t *testing.T) {
	srvs := []*httptest.Server{newRawxStore(t), newRawxStore(t), newRawxStore(t)}
	for _, s := range srvs {
		defer s.Close()
	}

	payload := []byte("the quick brown fox jumps over the lazy dog, twice for good measure")
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "plain/nb_copy=3", Length: int64(len(payload)), ChunkSize: 32}
	method := chunk.NewReplicatedMethod(3)

	// each meta-chunk gets its own chunk path, so rawxStore does not
	// overwrite one meta-chunk's data with the next
	layout := ChunksLayout{
		0: MetaChunk{{URL: srvs[0].URL + "/chunk/M0"}, {URL: srvs[1].URL + "/chunk/M0"}, {URL: srvs[2].URL + "/chunk/M0"}},
		1: MetaChunk{{URL: srvs[0].URL + "/chunk/M1"}, {URL: srvs[1].URL + "/chunk/M1"}, {URL: srvs[2].URL + "/chunk/M1"}},
		2: MetaChunk{{URL: srvs[0].URL + "/chunk/M2"}, {URL: srvs[1].URL + "/chunk/M2"}, {URL: srvs[2].URL + "/chunk/M2"}},
	}

	up := NewUploader(NewTimeouts())
	res, err := up.Upload(context.Background(), desc, layout, method, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if res.BytesTransferred != int64(len(payload)) {
		t.Fatalf("expected %d bytes transferred, got %d", len(payload), res.BytesTransferred)
	}

	metaSizes := []int64{32, 32, int64(len(payload)) - 64}

	down := NewDownloader(NewTimeouts())
	var out bytes.Buffer
	n, err := down.Download(context.Background(), layout, method, metaSizes, nil, &out)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("roundtrip mismatch: got %q", out.String())
	}
}

func TestUploaderDownloaderReplicatedPartialRange(t *testing.T) {
	srvs := []*httptest.Server{newRawxStore(t), newRawxStore(t)}
	for _, s := range srvs {
		defer s.Close()
	}
	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "plain/nb_copy=2", Length: int64(len(payload)), ChunkSize: 16}
	method := chunk.NewReplicatedMethod(2)
	layout := ChunksLayout{
		0: MetaChunk{{URL: srvs[0].URL + "/chunk/M0"}, {URL: srvs[1].URL + "/chunk/M0"}},
		1: MetaChunk{{URL: srvs[0].URL + "/chunk/M1"}, {URL: srvs[1].URL + "/chunk/M1"}},
		2: MetaChunk{{URL: srvs[0].URL + "/chunk/M2"}, {URL: srvs[1].URL + "/chunk/M2"}},
	}
	up := NewUploader(NewTimeouts())
	if _, err := up.Upload(context.Background(), desc, layout, method, bytes.NewReader(payload)); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	metaSizes := []int64{16, 16, int64(len(payload)) - 32}
	start, end := int64(10), int64(20)
	down := NewDownloader(NewTimeouts())
	var out bytes.Buffer
	n, err := down.Download(context.Background(), layout, method, metaSizes, &chunk.ByteRange{Start: &start, End: &end}, &out)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	want := payload[10:21]
	if n != int64(len(want)) || !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestUploaderDownloaderECRoundTrip(t *testing.T) {
	k, m := 3, 1
	srvs := make([]*httptest.Server, k+m)
	targets := make(MetaChunk, k+m)
	for i := range srvs {
		srvs[i] = newRawxStore(t)
		defer srvs[i].Close()
		targets[i] = targetOf(srvs[i])
	}
	codec, _ := ec.NewXORCodec(k)
	method := chunk.NewECMethod(k, m, codec, 16)

	payload := bytes.Repeat([]byte("Z"), 50)
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "ec/k=3,m=1,algo=isa_l_rs_vand", Length: int64(len(payload)), ChunkSize: int64(len(payload))}
	layout := ChunksLayout{0: targets}

	up := NewUploader(NewTimeouts())
	res, err := up.Upload(context.Background(), desc, layout, method, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if res.BytesTransferred != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), res.BytesTransferred)
	}

	metaSizes := []int64{int64(len(payload))}
	down := NewDownloader(NewTimeouts())
	var out bytes.Buffer
	n, err := down.Download(context.Background(), layout, method, metaSizes, nil, &out)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("EC roundtrip mismatch")
	}
}

func TestUploaderDownloaderECPartialRange(t *testing.T) {
	k, m := 3, 1
	srvs := make([]*httptest.Server, k+m)
	targets := make(MetaChunk, k+m)
	for i := range srvs {
		srvs[i] = newRawxStore(t)
		defer srvs[i].Close()
		targets[i] = targetOf(srvs[i])
	}
	codec, _ := ec.NewXORCodec(k)
	method := chunk.NewECMethod(k, m, codec, 16)

	payload := []byte("abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJ")
	desc := Descriptor{ContentID: "c1", Path: "obj", ChunkMethod: "ec/k=3,m=1,algo=isa_l_rs_vand", Length: int64(len(payload)), ChunkSize: int64(len(payload))}
	layout := ChunksLayout{0: targets}

	up := NewUploader(NewTimeouts())
	if _, err := up.Upload(context.Background(), desc, layout, method, bytes.NewReader(payload)); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	metaSizes := []int64{int64(len(payload))}
	start, end := int64(5), int64(19)
	down := NewDownloader(NewTimeouts())
	var out bytes.Buffer
	n, err := down.Download(context.Background(), layout, method, metaSizes, &chunk.ByteRange{Start: &start, End: &end}, &out)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	want := payload[5:20]
	if n != int64(len(want)) || !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("expected %q, got %q (n=%d)", want, out.String(), n)
	}
}
