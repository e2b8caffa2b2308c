// Package oiocli is the thin directory/proxy HTTP client spec.md §6
// assumes as a callback boundary: resolve a content's chunk layout before
// a download, commit a layout after a successful upload, delete a
// content's chunks. It is glue, not a hardened HTTP client (spec.md §1
// scopes the directory/proxy service itself out) — grounded on
// oiopy/api.py's API._request/do_get/do_put/do_delete and
// oiopy/directory.py's resource verbs, with JSON bodies instead of the
// ad-hoc headers-plus-body shape of the Python SDK.
package oiocli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/mailanetworks/oiokit/content"
	"github.com/mailanetworks/oiokit/internal/xlog"
	"github.com/mailanetworks/oiokit/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the proxy/directory service fronting a namespace.
// It mirrors oiopy/api.py:API, which wraps one endpoint_url and composes
// do_get/do_put/do_delete on top of a single _request helper.
type Client struct {
	ProxyURL   string
	Account    string
	Namespace  string
	HTTPClient *http.Client
}

// NewClient returns a Client using http.DefaultClient's transport
// defaults, as oiopy/api.py's API.__init__ does with requests.Session().
func NewClient(proxyURL, account, namespace string) *Client {
	return &Client{
		ProxyURL:   proxyURL,
		Account:    account,
		Namespace:  namespace,
		HTTPClient: &http.Client{},
	}
}

// chunkRecord is the wire shape of one chunk entry as returned by
// resolve and accepted by commit, grounded on the chunk list embedded in
// oiopy/directory.py's content resource representation.
type chunkRecord struct {
	Position string `json:"pos"`
	URL      string `json:"url"`
	Size     int64  `json:"size,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// ResolveChunks fetches the write-time (or read-time) target assignment
// for a content, the oiopy content resource's "chunks" list converted
// into a content.ChunksLayout keyed by meta-chunk position.
//
// spec.md §6's fetch_meta/resolve_chunks boundary: the engine is handed a
// ChunksLayout, never asked to compute target placement itself.
func (c *Client) ResolveChunks(ctx context.Context, containerID, path string) (content.ChunksLayout, content.Descriptor, error) {
	var body struct {
		Descriptor content.Descriptor `json:"descriptor"`
		Chunks     []chunkRecord      `json:"chunks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.contentURI(containerID, path), nil, &body); err != nil {
		return nil, content.Descriptor{}, fmt.Errorf("oiocli: resolve chunks: %w", err)
	}
	layout, err := chunksToLayout(body.Chunks)
	if err != nil {
		return nil, content.Descriptor{}, err
	}
	return layout, body.Descriptor, nil
}

// Prepare asks the directory to allocate fresh target placement for a
// new content before any bytes are sent, mirroring the "Link"-style
// allocation action of oiopy/directory.py:ReferenceService.link, which
// the original SDK calls before a content's chunks can be written.
func (c *Client) Prepare(ctx context.Context, containerID, path string, size int64, method string) (content.ChunksLayout, error) {
	req := struct {
		Size        int64  `json:"size"`
		ChunkMethod string `json:"chunk_method"`
	}{Size: size, ChunkMethod: method}

	var body struct {
		Chunks []chunkRecord `json:"chunks"`
	}
	uri := c.contentURI(containerID, path) + "&action=prepare"
	if err := c.doJSON(ctx, http.MethodPost, uri, req, &body); err != nil {
		return nil, fmt.Errorf("oiocli: prepare: %w", err)
	}
	return chunksToLayout(body.Chunks)
}

// Commit reports the global write result of a successful upload back to
// the directory so it can record the new chunk placement, mirroring
// oiopy/directory.py's SetProperties-style "action" request shape.
func (c *Client) Commit(ctx context.Context, containerID, path string, desc content.Descriptor, result content.WriteResult) error {
	records := make([]chunkRecord, 0, len(result.Chunks))
	for _, ch := range result.Chunks {
		if ch.Error != "" {
			continue
		}
		records = append(records, chunkRecord{
			Position: ch.Target.Position,
			URL:      ch.Target.URL,
			Size:     ch.Size,
			Hash:     ch.Hash,
		})
	}
	payload := struct {
		Descriptor content.Descriptor `json:"descriptor"`
		Chunks     []chunkRecord      `json:"chunks"`
		MD5        string             `json:"md5"`
	}{Descriptor: desc, Chunks: records, MD5: result.ContentMD5}

	if err := c.doJSON(ctx, http.MethodPut, c.contentURI(containerID, path), payload, nil); err != nil {
		return fmt.Errorf("oiocli: commit: %w", err)
	}
	xlog.Infof(xlog.VChunk, "committed %d chunks for %s/%s", len(records), containerID, path)
	return nil
}

// Delete removes every chunk of a content concurrently and then the
// content's directory entry, mirroring oiopy/directory.py:ReferenceService.delete
// cascading to its linked services. Fan-out uses golang.org/x/sync/errgroup
// the way the teacher's wider aistore fork family uses it for bounded
// concurrent RPC fan-out (see DESIGN.md).
func (c *Client) Delete(ctx context.Context, containerID, path string, layout content.ChunksLayout) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, meta := range layout {
		for _, target := range meta {
			target := target
			g.Go(func() error {
				req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.URL, nil)
				if err != nil {
					return err
				}
				resp, err := c.HTTPClient.Do(req)
				if err != nil {
					xlog.Warningf("delete %s: %v", target.URL, err)
					return nil
				}
				resp.Body.Close()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("oiocli: delete chunks: %w", err)
	}
	return c.doJSON(ctx, http.MethodDelete, c.contentURI(containerID, path), nil, nil)
}

// chunksToLayout groups the flat chunk list by meta-chunk position. Each
// record's Position is "<metaChunkIndex>" for a replicated target or
// "<metaChunkIndex>.<fragmentIndex>" for an EC fragment (the same scheme
// content.WriteReplicatedMetaChunk/WriteECMetaChunk produce on write).
func chunksToLayout(records []chunkRecord) (content.ChunksLayout, error) {
	layout := make(content.ChunksLayout)
	for _, r := range records {
		pos, fragIdx, err := splitPosition(r.Position)
		if err != nil {
			return nil, err
		}
		target := transport.Target{URL: r.URL, Position: r.Position, Size: r.Size}
		mc := layout[pos]
		for len(mc) <= fragIdx {
			mc = append(mc, transport.Target{})
		}
		mc[fragIdx] = target
		layout[pos] = mc
	}
	return layout, nil
}

func (c *Client) contentURI(containerID, path string) string {
	return fmt.Sprintf("%s/v2.0/%s/content?cid=%s&path=%s",
		c.ProxyURL, c.Namespace, url.QueryEscape(containerID), encodePath(path))
}

func (c *Client) doJSON(ctx context.Context, method, uri string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Connection", "keep-alive")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("proxy returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
