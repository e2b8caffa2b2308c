package oiocli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mailanetworks/oiokit/content"
	"github.com/mailanetworks/oiokit/devtools/tutils/tassert"
	"github.com/mailanetworks/oiokit/transport"
)

func transportTargetFor(url, pos string) transport.Target {
	return transport.Target{URL: url, Position: pos}
}

func TestClientResolveChunksBuildsLayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tassert.Fatalf(t, r.Method == http.MethodGet, "method = %s", r.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"descriptor": content.Descriptor{ContentID: "abc", Length: 10},
			"chunks": []map[string]interface{}{
				{"pos": "0", "url": "http://rawx1/chunk0"},
				{"pos": "1.0", "url": "http://rawx2/frag0"},
				{"pos": "1.1", "url": "http://rawx3/frag1"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "myaccount", "OPENIO")
	layout, desc, err := c.ResolveChunks(context.Background(), "cid1", "obj/path")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, desc.ContentID == "abc", "descriptor not decoded: %+v", desc)
	tassert.Fatalf(t, len(layout[0]) == 1, "meta-chunk 0 should have 1 target, got %d", len(layout[0]))
	tassert.Fatalf(t, len(layout[1]) == 2, "meta-chunk 1 should have 2 fragment targets, got %d", len(layout[1]))
	tassert.Fatalf(t, layout[1][0].URL == "http://rawx2/frag0", "fragment 0 url = %s", layout[1][0].URL)
	tassert.Fatalf(t, layout[1][1].URL == "http://rawx3/frag1", "fragment 1 url = %s", layout[1][1].URL)
}

func TestClientCommitSkipsFailedChunks(t *testing.T) {
	var received struct {
		Chunks []chunkRecord `json:"chunks"`
		MD5    string        `json:"md5"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tassert.Fatalf(t, r.Method == http.MethodPut, "method = %s", r.Method)
		tassert.CheckFatal(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "myaccount", "OPENIO")
	result := content.WriteResult{
		Chunks: []content.Chunk{
			{Target: transportTargetFor("http://rawx1/chunk0", "0"), Size: 5, Hash: "h1"},
			{Target: transportTargetFor("http://rawx2/chunk0", "0"), Error: "connection refused"},
		},
		ContentMD5: "deadbeef",
	}
	err := c.Commit(context.Background(), "cid1", "obj/path", content.Descriptor{ContentID: "abc"}, result)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(received.Chunks) == 1, "expected 1 committed chunk, got %d", len(received.Chunks))
	tassert.Fatalf(t, received.MD5 == "deadbeef", "MD5 = %s", received.MD5)
}

func TestClientPrepareBuildsLayout(t *testing.T) {
	var received struct {
		Size        int64  `json:"size"`
		ChunkMethod string `json:"chunk_method"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tassert.Fatalf(t, r.Method == http.MethodPost, "method = %s", r.Method)
		tassert.Fatalf(t, r.URL.Query().Get("action") == "prepare", "expected action=prepare, got %q", r.URL.RawQuery)
		tassert.CheckFatal(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chunks": []map[string]interface{}{
				{"pos": "0", "url": "http://rawx1/new0"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "myaccount", "OPENIO")
	layout, err := c.Prepare(context.Background(), "cid1", "obj/path", 1024, "plain")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, received.Size == 1024, "Size = %d", received.Size)
	tassert.Fatalf(t, received.ChunkMethod == "plain", "ChunkMethod = %q", received.ChunkMethod)
	tassert.Fatalf(t, len(layout[0]) == 1 && layout[0][0].URL == "http://rawx1/new0", "layout = %+v", layout)
}

func TestClientDeleteCallsEveryTarget(t *testing.T) {
	hits := make(chan string, 4)
	rawx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer rawx.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tassert.Fatalf(t, r.Method == http.MethodDelete, "method = %s", r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer proxy.Close()

	c := NewClient(proxy.URL, "myaccount", "OPENIO")
	layout := content.ChunksLayout{
		0: content.MetaChunk{transportTargetFor(rawx.URL+"/chunk0", "0")},
		1: content.MetaChunk{
			transportTargetFor(rawx.URL+"/frag0", "1.0"),
			transportTargetFor(rawx.URL+"/frag1", "1.1"),
		},
	}
	err := c.Delete(context.Background(), "cid1", "obj/path", layout)
	tassert.CheckFatal(t, err)

	close(hits)
	count := 0
	for range hits {
		count++
	}
	tassert.Fatalf(t, count == 3, "expected 3 rawx delete calls, got %d", count)
}
