package content

import "time"

// Default tunables for the chunk streaming engine (spec.md §6). All are
// overridable per Uploader/Downloader via Timeouts.
const (
	DefaultConnectionTimeout = 5 * time.Second
	DefaultChunkTimeout      = 60 * time.Second
	DefaultClientTimeout     = 60 * time.Second
	DefaultReadChunkSize     = 64 * 1024
	DefaultWriteChunkSize    = 64 * 1024
	DefaultPutQueueDepth     = 10
)

// Timeouts bundles the three timeouts, two buffer sizes and queue depth spec.md §6
// calls out as tunable. A zero Timeouts is invalid; use NewTimeouts to
// get the platform defaults and override individual fields.
type Timeouts struct {
	Connection time.Duration
	Chunk      time.Duration
	Client     time.Duration

	ReadChunkSize  int
	WriteChunkSize int
	PutQueueDepth  int
}

// NewTimeouts returns the default tunables.
func NewTimeouts() Timeouts {
	return Timeouts{
		Connection:     DefaultConnectionTimeout,
		Chunk:          DefaultChunkTimeout,
		Client:         DefaultClientTimeout,
		ReadChunkSize:  DefaultReadChunkSize,
		WriteChunkSize: DefaultWriteChunkSize,
		PutQueueDepth:  DefaultPutQueueDepth,
	}
}
