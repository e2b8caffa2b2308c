// Package content implements the write and read pipelines (spec.md
// C4–C8): fan-out/fan-in of replicated and erasure-coded meta-chunks
// across blob targets under a quorum policy, and the content driver that
// drives a whole content through them.
package content

import "github.com/mailanetworks/oiokit/transport"

// Descriptor is the content descriptor of spec.md §3: everything the
// write and read pipelines need to know about one content, independent
// of where its chunks actually live.
type Descriptor struct {
	ContentID   string
	Version     int64
	ContainerID string
	Path        string
	Length      int64
	MimeType    string
	Policy      string
	ChunkMethod string
	// ChunkSize is the fixed platform upper bound on one meta-chunk's
	// payload (spec.md §3's "chunk_size").
	ChunkSize int64
}

func (d Descriptor) sysMeta(chunksNb int) transport.SysMeta {
	return transport.SysMeta{
		ContentID:   d.ContentID,
		Version:     d.Version,
		Path:        d.Path,
		Size:        d.Length,
		ChunkMethod: d.ChunkMethod,
		MimeType:    d.MimeType,
		Policy:      d.Policy,
		ChunksNb:    chunksNb,
		ContainerID: d.ContainerID,
	}
}

// Chunk is one target's outcome within a meta-chunk write: the final
// descriptor to report back to the directory service on success, or the
// failure reason to report for observability (spec.md §3's "global
// content write result").
type Chunk struct {
	Target transport.Target
	Size   int64
	Hash   string
	Error  string
}

// MetaChunk is an ordered set of chunk targets sharing the same
// meta-chunk position (spec.md §3).
type MetaChunk []transport.Target

// ChunksLayout maps meta-chunk index to meta-chunk, the write-time target
// assignment handed down by the (out-of-scope) directory/proxy service.
type ChunksLayout map[int]MetaChunk

// WriteResult is the global content write result of spec.md §3.
type WriteResult struct {
	Chunks           []Chunk
	BytesTransferred int64
	ContentMD5       string
}
